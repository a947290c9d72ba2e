package checkout

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Gateway is the external transaction API the orchestrator submits to.
// Create* calls return the server's created record unchanged.
type Gateway interface {
	CreateServicesProducts(ctx context.Context, req ServicesProductsRequest) (json.RawMessage, error)
	CreateMCP(ctx context.Context, req LineRequest) (json.RawMessage, error)
	CreateMemberVoucher(ctx context.Context, req LineRequest) (json.RawMessage, error)
	CreateMCPTransfer(ctx context.Context, req LineRequest) (json.RawMessage, error)
	CreateMVTransfer(ctx context.Context, req LineRequest) (json.RawMessage, error)

	// QueuePackages allocates member care package ids for every package
	// line in one call. The result is matched to the request by position;
	// a zero id means no allocation for that position.
	QueuePackages(ctx context.Context, req PackageQueueRequest) ([]int64, error)

	// QueueTransfers processes every care package transfer line in one call.
	// The result is matched to the request by position.
	QueueTransfers(ctx context.Context, req TransferQueueRequest) ([]TransferResult, error)

	// TransferVoucher mints the voucher that receives consolidated balances.
	TransferVoucher(ctx context.Context, req VoucherTransferRequest) (VoucherTransferResult, error)
}

// Envelope holds the fields common to every sub-transaction request.
type Envelope struct {
	CustomerType  string `json:"customer_type"`
	MemberID      ID     `json:"member_id,omitempty"`
	ReceiptNumber string `json:"receipt_number"`
	Remarks       string `json:"remarks"`
	CreatedBy     ID     `json:"created_by"`
	HandledBy     ID     `json:"handled_by"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// NewEnvelope builds the request envelope from the checkout details.
// UpdatedAt falls back to CreatedAt.
func NewEnvelope(d TransactionDetails) Envelope {
	updatedAt := d.UpdatedAt
	if updatedAt == "" {
		updatedAt = d.CreatedAt
	}
	return Envelope{
		CustomerType:  d.ResolvedCustomerType(),
		MemberID:      d.MemberID,
		ReceiptNumber: d.ReceiptNumber,
		Remarks:       d.TransactionRemark,
		CreatedBy:     d.CreatedBy,
		HandledBy:     d.HandledBy,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     updatedAt,
	}
}

type ServicesProductsRequest struct {
	Envelope
	Items        []CartItem      `json:"items"`
	Payments     []Payment       `json:"payments"`
	GSTBreakdown GSTBreakdown    `json:"gstBreakdown"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

// LineRequest submits one cart line. Transfer lines carry no GST breakdown;
// voucher transfers carry the minted voucher id.
type LineRequest struct {
	Envelope
	Item         CartItem        `json:"item"`
	Payments     []Payment       `json:"payments"`
	GSTBreakdown *GSTBreakdown   `json:"gstBreakdown,omitempty"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	NewVoucherID int64           `json:"newVoucherId,omitempty"`
}

type PackageQueueRequest struct {
	Envelope
	Packages []QueueEntry `json:"packages"`
}

type TransferQueueRequest struct {
	Envelope
	Transfers []QueueEntry `json:"transfers"`
}

// QueueEntry is one line of a batch queue call, in cart order.
type QueueEntry struct {
	Position    int             `json:"position"`
	Item        CartItem        `json:"item"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// TransferResult is the transfer queue's outcome for one line.
type TransferResult struct {
	MCPID1 int64           `json:"mcp_id1"`
	MCPID2 int64           `json:"mcp_id2"`
	IsNew  bool            `json:"isNew"`
	Amount decimal.Decimal `json:"amount"`
}

func (r TransferResult) empty() bool {
	return r.MCPID1 == 0 && r.MCPID2 == 0
}

type VoucherTransferRequest struct {
	MemberName          string              `json:"member_name"`
	VoucherTemplateName string              `json:"voucher_template_name"`
	Price               decimal.Decimal     `json:"price"`
	FreeOfCharge        decimal.Decimal     `json:"foc"`
	IsBypass            bool                `json:"is_bypass"`
	OldVoucherNames     []string            `json:"old_voucher_names"`
	OldVoucherDetails   []OldVoucherBalance `json:"old_voucher_details"`
	CreatedBy           ID                  `json:"created_by"`
	UpdatedBy           ID                  `json:"updated_by"`
	Remarks             string              `json:"remarks"`
	CreatedAt           string              `json:"created_at"`
}

type VoucherTransferResult struct {
	Success      bool   `json:"success"`
	NewVoucherID int64  `json:"newVoucherId"`
	Message      string `json:"message,omitempty"`
}
