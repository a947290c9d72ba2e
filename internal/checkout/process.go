package checkout

import (
	"github.com/carepos/api/internal/enum"
	"github.com/shopspring/decimal"
)

// SectionID returns the key under which a line's payments are allocated.
// Services and products share one section.
func SectionID(item CartItem) string {
	switch item.Type() {
	case ItemTypeService, ItemTypeProduct:
		return enum.SectionServicesProducts
	case ItemTypePackage:
		return enum.SectionPackagePrefix + item.ID.String()
	case ItemTypeVoucher:
		return enum.SectionVoucherPrefix + item.ID.String()
	case ItemTypeTransferMCP:
		return enum.SectionMCPTransfer + item.ID.String()
	case ItemTypeTransferMV:
		return enum.SectionMVTransfer + item.ID.String()
	default:
		return ""
	}
}

// IsTransfer reports whether t settles against existing balances and is
// therefore zero-rated.
func IsTransfer(t ItemType) bool {
	return t == ItemTypeTransferMCP || t == ItemTypeTransferMV
}

// ProcessCartDataForBackend partitions the cart into backend sub-transactions.
// Pricing comes from itemPricing keyed by item id, payments from
// sectionPayments keyed by SectionID. Missing entries default to a zero total
// and no payments.
func ProcessCartDataForBackend(items []CartItem, itemPricing map[string]Pricing, sectionPayments map[string][]Payment, gstRate decimal.Decimal) ProcessedTransactionData {
	var out ProcessedTransactionData
	spTotal := decimal.Zero

	for _, item := range items {
		pricing := itemPricing[item.ID.String()]
		item.Pricing = pricing
		total := pricing.TotalLinePrice
		section := SectionID(item)

		switch item.Type() {
		case ItemTypeService, ItemTypeProduct:
			if out.ServicesProducts == nil {
				out.ServicesProducts = &ServicesProductsTransaction{
					SectionID: section,
					Payments:  copyPayments(sectionPayments[section]),
				}
			}
			out.ServicesProducts.Items = append(out.ServicesProducts.Items, item)
			spTotal = spTotal.Add(total)
			continue
		}

		txn := SingleTransaction{
			SectionID:   section,
			Item:        item,
			Payments:    copyPayments(sectionPayments[section]),
			TotalAmount: total,
		}
		if IsTransfer(item.Type()) {
			txn.GSTBreakdown = ZeroRatedBreakdown(total)
		} else {
			txn.GSTBreakdown = CalculateGSTBreakdown(total, gstRate)
		}

		switch item.Type() {
		case ItemTypePackage:
			out.MCPTransactions = append(out.MCPTransactions, txn)
		case ItemTypeVoucher:
			out.MVTransactions = append(out.MVTransactions, txn)
		case ItemTypeTransferMCP:
			out.MCPTransferTransactions = append(out.MCPTransferTransactions, txn)
		case ItemTypeTransferMV:
			out.MVTransferTransactions = append(out.MVTransferTransactions, txn)
		}
	}

	if out.ServicesProducts != nil {
		out.ServicesProducts.TotalAmount = spTotal
		out.ServicesProducts.GSTBreakdown = CalculateGSTBreakdown(spTotal, gstRate)
	}
	return out
}

// ApplyPendingPayments reconciles the pending payment of every care package
// and voucher sub-transaction against its own total. Transfers and the
// services/products transaction pass through unchanged.
func ApplyPendingPayments(data ProcessedTransactionData) ProcessedTransactionData {
	out := data
	out.MCPTransactions = withPending(data.MCPTransactions)
	out.MVTransactions = withPending(data.MVTransactions)
	return out
}

// ApplyTransferPayments gives every transfer sub-transaction a transfer
// payment for its full amount when none was allocated.
func ApplyTransferPayments(data ProcessedTransactionData) ProcessedTransactionData {
	out := data
	out.MCPTransferTransactions = withTransferPayment(data.MCPTransferTransactions)
	out.MVTransferTransactions = withTransferPayment(data.MVTransferTransactions)
	return out
}

func withPending(txns []SingleTransaction) []SingleTransaction {
	if txns == nil {
		return nil
	}
	out := make([]SingleTransaction, len(txns))
	for i, txn := range txns {
		txn.Payments = AddAutoPendingPayment(txn.TotalAmount, txn.Payments)
		out[i] = txn
	}
	return out
}

func withTransferPayment(txns []SingleTransaction) []SingleTransaction {
	if txns == nil {
		return nil
	}
	out := make([]SingleTransaction, len(txns))
	for i, txn := range txns {
		txn.Payments = EnsureTransferPayment(txn.TotalAmount, txn.Payments)
		out[i] = txn
	}
	return out
}

func copyPayments(payments []Payment) []Payment {
	out := make([]Payment, len(payments))
	copy(out, payments)
	return out
}
