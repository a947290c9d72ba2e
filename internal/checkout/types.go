package checkout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/carepos/api/internal/enum"
	"github.com/shopspring/decimal"
)

// ID is an identifier that the POS front end sends either as a JSON string or
// as a JSON number. It is always carried and re-encoded as a string.
type ID string

func (id ID) String() string { return string(id) }

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

func (id *ID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("id must be a string or number: %w", err)
		}
		*id = ID(n.String())
		return nil
	}
	*id = ID(strings.TrimSpace(str))
	return nil
}

// Pricing is the per-line price state. TotalLinePrice is authoritative and
// tax-inclusive.
type Pricing struct {
	OriginalPrice  decimal.Decimal `json:"originalPrice"`
	CustomPrice    decimal.Decimal `json:"customPrice"`
	Discount       decimal.Decimal `json:"discount"`
	Quantity       int             `json:"quantity"`
	FinalUnitPrice decimal.Decimal `json:"finalUnitPrice"`
	TotalLinePrice decimal.Decimal `json:"totalLinePrice"`
}

// GSTBreakdown splits a tax-inclusive amount into its exclusive and tax parts.
type GSTBreakdown struct {
	Inclusive decimal.Decimal `json:"inclusive"`
	Exclusive decimal.Decimal `json:"exclusive"`
	GST       decimal.Decimal `json:"gst"`
	GSTRate   decimal.Decimal `json:"gstRate"`
}

// Payment is an allocation of funds toward one section of the cart.
type Payment struct {
	ID            ID              `json:"id"`
	MethodID      ID              `json:"methodId"`
	MethodName    string          `json:"methodName"`
	Amount        decimal.Decimal `json:"amount"`
	Remark        string          `json:"remark"`
	IsAutoPending bool            `json:"isAutoPending,omitempty"`
}

// IsPending reports whether p is the synthetic outstanding-balance payment.
func (p Payment) IsPending() bool {
	return p.IsAutoPending || p.MethodID == enum.PaymentMethodPending
}

// IsTransfer reports whether p settles a transfer section. The POS tags
// transfers by name when it sends its own numeric method id.
func (p Payment) IsTransfer() bool {
	return p.MethodID == enum.PaymentMethodTransfer || p.MethodName == enum.PaymentMethodNameTransfer
}

// TransactionDetails is the context shared by every sub-transaction of one
// checkout.
type TransactionDetails struct {
	ReceiptNumber     string `json:"receiptNumber"`
	TransactionRemark string `json:"transactionRemark"`
	CreatedBy         ID     `json:"createdBy"`
	HandledBy         ID     `json:"handledBy"`
	MemberID          ID     `json:"memberId"`
	CustomerType      string `json:"customerType"`
	CreatedAt         string `json:"createdAt"`
	UpdatedAt         string `json:"updatedAt"`
}

// ResolvedCustomerType returns MEMBER when a member is attached and WALK_IN
// otherwise.
func (d TransactionDetails) ResolvedCustomerType() string {
	if d.MemberID != "" {
		return enum.CustomerTypeMember
	}
	return enum.CustomerTypeWalkIn
}

// ServicesProductsTransaction is the single combined sub-transaction covering
// every service and product line.
type ServicesProductsTransaction struct {
	SectionID    string          `json:"sectionId"`
	Items        []CartItem      `json:"items"`
	Payments     []Payment       `json:"payments"`
	GSTBreakdown GSTBreakdown    `json:"gstBreakdown"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
}

// SingleTransaction is a sub-transaction for exactly one cart line.
type SingleTransaction struct {
	SectionID    string          `json:"sectionId"`
	Item         CartItem        `json:"item"`
	Payments     []Payment       `json:"payments"`
	GSTBreakdown GSTBreakdown    `json:"gstBreakdown"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
}

// ProcessedTransactionData is the cart regrouped into backend sub-transactions.
type ProcessedTransactionData struct {
	ServicesProducts        *ServicesProductsTransaction `json:"servicesProducts,omitempty"`
	MCPTransactions         []SingleTransaction          `json:"mcpTransactions"`
	MVTransactions          []SingleTransaction          `json:"mvTransactions"`
	MCPTransferTransactions []SingleTransaction          `json:"mcpTransferTransactions"`
	MVTransferTransactions  []SingleTransaction          `json:"mvTransferTransactions"`
}

// Total returns the number of sub-transactions the data will produce.
func (p ProcessedTransactionData) Total() int {
	n := len(p.MCPTransactions) + len(p.MVTransactions) +
		len(p.MCPTransferTransactions) + len(p.MVTransferTransactions)
	if p.ServicesProducts != nil {
		n++
	}
	return n
}
