package checkout

import (
	"github.com/carepos/api/internal/enum"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	autoPendingRemark  = "Auto-generated pending payment for outstanding amount"
	autoTransferRemark = "Auto-generated transfer payment"
)

// newPaymentID is swapped in tests for deterministic ids.
var newPaymentID = func() ID { return ID(uuid.NewString()) }

// AddAutoPendingPayment reconciles the pending payment in existing against
// total. A positive outstanding balance updates the first pending payment in
// place (keeping its id and position) or appends a new one; a settled balance
// removes every pending payment. The input slice is not modified.
func AddAutoPendingPayment(total decimal.Decimal, existing []Payment) []Payment {
	paid := decimal.Zero
	pendingIdx := -1
	for i, p := range existing {
		if p.IsPending() {
			if pendingIdx < 0 {
				pendingIdx = i
			}
			continue
		}
		paid = paid.Add(p.Amount)
	}
	outstanding := total.Sub(paid)

	out := make([]Payment, 0, len(existing)+1)
	for i, p := range existing {
		if !p.IsPending() {
			out = append(out, p)
			continue
		}
		if i == pendingIdx && outstanding.IsPositive() {
			p.Amount = outstanding
			out = append(out, p)
		}
	}

	if pendingIdx < 0 && outstanding.IsPositive() {
		out = append(out, Payment{
			ID:            newPaymentID(),
			MethodID:      enum.PaymentMethodPending,
			MethodName:    enum.PaymentMethodNamePending,
			Amount:        outstanding,
			Remark:        autoPendingRemark,
			IsAutoPending: true,
		})
	}
	return out
}

// EnsureTransferPayment appends a transfer payment covering amount when the
// section has none. Transfers settle against existing balances, so the section
// never carries a pending payment.
func EnsureTransferPayment(amount decimal.Decimal, payments []Payment) []Payment {
	out := make([]Payment, 0, len(payments)+1)
	out = append(out, payments...)
	for _, p := range payments {
		if p.IsTransfer() {
			return out
		}
	}
	if !amount.IsPositive() {
		return out
	}
	return append(out, Payment{
		ID:         newPaymentID(),
		MethodID:   enum.PaymentMethodTransfer,
		MethodName: enum.PaymentMethodNameTransfer,
		Amount:     amount,
		Remark:     autoTransferRemark,
	})
}
