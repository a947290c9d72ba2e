package checkout

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ItemType is the kind of a cart line.
type ItemType string

const (
	ItemTypeService     ItemType = "service"
	ItemTypeProduct     ItemType = "product"
	ItemTypePackage     ItemType = "package"
	ItemTypeVoucher     ItemType = "member-voucher"
	ItemTypeTransferMCP ItemType = "transferMCP"
	ItemTypeTransferMV  ItemType = "transferMV"
)

// Errors returned while decoding cart items.
var (
	ErrUnknownItemType = errors.New("unknown cart item type")
	ErrMissingItemData = errors.New("cart item data is required")
)

// ItemData is the type-specific payload of a cart line. The set of
// implementations is closed: one struct per ItemType.
type ItemData interface {
	ItemType() ItemType
	DisplayName() string
	isItemData()
}

// CartItem is one purchasable line in the checkout cart.
type CartItem struct {
	ID               ID
	Data             ItemData
	Pricing          Pricing
	AssignedEmployee ID
	Remarks          string
}

// Type returns the line's type, derived from its data variant.
func (c CartItem) Type() ItemType {
	if c.Data == nil {
		return ""
	}
	return c.Data.ItemType()
}

// Name returns a human-readable label used in error messages.
func (c CartItem) Name() string {
	if c.Data == nil {
		return string(c.ID)
	}
	if n := c.Data.DisplayName(); n != "" {
		return n
	}
	return string(c.ID)
}

type cartItemJSON struct {
	Type             ItemType        `json:"type"`
	ID               ID              `json:"id"`
	Data             json.RawMessage `json:"data"`
	Pricing          Pricing         `json:"pricing"`
	AssignedEmployee ID              `json:"assignedEmployee,omitempty"`
	Remarks          string          `json:"remarks,omitempty"`
}

func (c CartItem) MarshalJSON() ([]byte, error) {
	if c.Data == nil {
		return nil, ErrMissingItemData
	}
	data, err := json.Marshal(c.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(cartItemJSON{
		Type:             c.Data.ItemType(),
		ID:               c.ID,
		Data:             data,
		Pricing:          c.Pricing,
		AssignedEmployee: c.AssignedEmployee,
		Remarks:          c.Remarks,
	})
}

func (c *CartItem) UnmarshalJSON(b []byte) error {
	var raw cartItemJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw.Data) == 0 || string(raw.Data) == "null" {
		return fmt.Errorf("%s %q: %w", raw.Type, raw.ID, ErrMissingItemData)
	}
	data, err := decodeItemData(raw.Type, raw.Data)
	if err != nil {
		return fmt.Errorf("%s %q: %w", raw.Type, raw.ID, err)
	}
	*c = CartItem{
		ID:               raw.ID,
		Data:             data,
		Pricing:          raw.Pricing,
		AssignedEmployee: raw.AssignedEmployee,
		Remarks:          raw.Remarks,
	}
	return nil
}

func decodeItemData(t ItemType, raw json.RawMessage) (ItemData, error) {
	switch t {
	case ItemTypeService:
		var d ServiceData
		err := json.Unmarshal(raw, &d)
		return d, err
	case ItemTypeProduct:
		var d ProductData
		err := json.Unmarshal(raw, &d)
		return d, err
	case ItemTypePackage:
		var d PackageData
		err := json.Unmarshal(raw, &d)
		return d, err
	case ItemTypeVoucher:
		var d VoucherData
		err := json.Unmarshal(raw, &d)
		return d, err
	case ItemTypeTransferMCP:
		var d MCPTransferData
		err := json.Unmarshal(raw, &d)
		return d, err
	case ItemTypeTransferMV:
		var d MVTransferData
		err := json.Unmarshal(raw, &d)
		return d, err
	default:
		return nil, ErrUnknownItemType
	}
}

// --- Item data variants ---

type ServiceData struct {
	ServiceID   ID              `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	Duration    int             `json:"duration,omitempty"`
	Price       decimal.Decimal `json:"price"`
}

func (ServiceData) ItemType() ItemType    { return ItemTypeService }
func (d ServiceData) DisplayName() string { return d.Name }
func (ServiceData) isItemData()           {}

type ProductData struct {
	ProductID   ID              `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	Price       decimal.Decimal `json:"price"`
}

func (ProductData) ItemType() ItemType    { return ItemTypeProduct }
func (d ProductData) DisplayName() string { return d.Name }
func (ProductData) isItemData()           {}

// PackageService is one service bundled inside a care package.
type PackageService struct {
	ServiceID ID              `json:"service_id"`
	Name      string          `json:"service_name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Discount  decimal.Decimal `json:"discount"`
}

// PackageData is a member care package sold as one line. MemberCarePackageID
// stays zero until the package-creation queue allocates it.
type PackageData struct {
	PackageID           ID               `json:"id"`
	Name                string           `json:"package_name"`
	Remarks             string           `json:"package_remarks,omitempty"`
	Price               decimal.Decimal  `json:"package_price"`
	MemberID            ID               `json:"member_id,omitempty"`
	EmployeeID          ID               `json:"employee_id,omitempty"`
	Services            []PackageService `json:"services"`
	MemberCarePackageID int64            `json:"member_care_package_id,omitempty"`
}

func (PackageData) ItemType() ItemType    { return ItemTypePackage }
func (d PackageData) DisplayName() string { return d.Name }
func (PackageData) isItemData()           {}

// VoucherServiceDetail is a service entitlement attached to a member voucher.
type VoucherServiceDetail struct {
	ServiceID ID              `json:"service_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Duration  int             `json:"duration,omitempty"`
}

type VoucherData struct {
	VoucherTemplateID ID                     `json:"id"`
	Name              string                 `json:"member_voucher_name"`
	TotalPrice        decimal.Decimal        `json:"total_price"`
	StartingBalance   decimal.Decimal        `json:"starting_balance"`
	FreeOfCharge      decimal.Decimal        `json:"free_of_charge"`
	Details           []VoucherServiceDetail `json:"member_voucher_details,omitempty"`
}

func (VoucherData) ItemType() ItemType    { return ItemTypeVoucher }
func (d VoucherData) DisplayName() string { return d.Name }
func (VoucherData) isItemData()           {}

// MCPTransferData moves balance between member care packages. The queue
// result fields are filled in after the transfer-processing queue runs.
type MCPTransferData struct {
	Description  string          `json:"description"`
	QueueItemID  ID              `json:"queue_item_id,omitempty"`
	MemberID     ID              `json:"member_id,omitempty"`
	SourceMCPIDs []ID            `json:"source_mcp_ids,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	MCPID1       int64           `json:"mcp_id1,omitempty"`
	MCPID2       int64           `json:"mcp_id2,omitempty"`
	IsNew        bool            `json:"isNew,omitempty"`
}

func (MCPTransferData) ItemType() ItemType    { return ItemTypeTransferMCP }
func (d MCPTransferData) DisplayName() string { return d.Description }
func (MCPTransferData) isItemData()           {}

// OldVoucherBalance is a balance carried from an existing voucher into a new one.
type OldVoucherBalance struct {
	VoucherID         int64           `json:"voucher_id"`
	MemberVoucherName string          `json:"member_voucher_name"`
	BalanceToTransfer decimal.Decimal `json:"balance_to_transfer"`
}

// MVTransferData consolidates old voucher balances into a newly minted voucher.
type MVTransferData struct {
	Description         string              `json:"description"`
	MemberName          string              `json:"member_name"`
	VoucherTemplateName string              `json:"voucher_template_name"`
	Price               decimal.Decimal     `json:"price"`
	FreeOfCharge        decimal.Decimal     `json:"foc"`
	IsBypass            bool                `json:"is_bypass"`
	OldVouchers         []OldVoucherBalance `json:"old_voucher_details"`
}

func (MVTransferData) ItemType() ItemType { return ItemTypeTransferMV }
func (d MVTransferData) DisplayName() string {
	if d.Description != "" {
		return d.Description
	}
	return d.VoucherTemplateName
}
func (MVTransferData) isItemData() {}
