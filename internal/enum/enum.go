package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	CheckoutStateIdle      = "idle"
	CheckoutStatePreparing = "preparing"
	CheckoutStateCreating  = "creating"
	CheckoutStateCompleted = "completed"
	CheckoutStatePartial   = "partial"
	CheckoutStateFailed    = "failed"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	EmployeeRoleOwner   = "OWNER"
	EmployeeRoleManager = "MANAGER"
	EmployeeRoleCashier = "CASHIER"
)

const (
	CustomerTypeMember = "MEMBER"
	CustomerTypeWalkIn = "WALK_IN"
)

// ── Group B: Configurable labels (no DB constraint) ──

// Reserved payment method ids. Pending is the POS "Pending" payment method row
// and marks the synthetic outstanding balance; it is never counted as paid.
const (
	PaymentMethodPending  = "7"
	PaymentMethodTransfer = "transfer"
)

const (
	PaymentMethodNamePending  = "Pending"
	PaymentMethodNameTransfer = "Transfer"
)

const (
	SectionServicesProducts = "services-products"
	SectionPackagePrefix    = "package-"
	SectionVoucherPrefix    = "voucher-"
	SectionMCPTransfer      = "transfer-mcp-"
	SectionMVTransfer       = "transfer-mv-"
)
