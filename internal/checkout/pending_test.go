package checkout

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/carepos/api/internal/enum"
)

// sequentialIDs makes generated payment ids predictable for the test.
func sequentialIDs(t *testing.T) {
	t.Helper()
	orig := newPaymentID
	n := 0
	newPaymentID = func() ID {
		n++
		return ID(fmt.Sprintf("generated-%d", n))
	}
	t.Cleanup(func() { newPaymentID = orig })
}

func cash(id string, amount string) Payment {
	return Payment{ID: ID(id), MethodID: "3", MethodName: "Cash", Amount: dec(amount)}
}

func pendingOf(payments []Payment) []Payment {
	var out []Payment
	for _, p := range payments {
		if p.IsPending() {
			out = append(out, p)
		}
	}
	return out
}

func TestAddAutoPendingPayment_AppendsForUnpaidTotal(t *testing.T) {
	sequentialIDs(t)

	got := AddAutoPendingPayment(dec("100"), nil)

	if len(got) != 1 {
		t.Fatalf("payments: got %d, want 1", len(got))
	}
	p := got[0]
	if p.MethodID != enum.PaymentMethodPending {
		t.Errorf("method: got %q, want %q", p.MethodID, enum.PaymentMethodPending)
	}
	if !p.Amount.Equal(dec("100")) {
		t.Errorf("amount: got %s, want 100", p.Amount)
	}
	if !p.IsAutoPending {
		t.Error("isAutoPending: got false, want true")
	}
	if p.Remark != "Auto-generated pending payment for outstanding amount" {
		t.Errorf("remark: got %q", p.Remark)
	}
	if p.ID != "generated-1" {
		t.Errorf("id: got %q, want generated-1", p.ID)
	}
}

func TestAddAutoPendingPayment_FullyPaid(t *testing.T) {
	got := AddAutoPendingPayment(dec("100"), []Payment{cash("a", "100")})
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("payments: got %+v, want only the cash payment", got)
	}
}

func TestAddAutoPendingPayment_Overpaid(t *testing.T) {
	got := AddAutoPendingPayment(dec("100"), []Payment{cash("a", "150")})
	if len(pendingOf(got)) != 0 {
		t.Fatalf("pending payments: got %d, want 0", len(pendingOf(got)))
	}
}

func TestAddAutoPendingPayment_PartialThenSettled(t *testing.T) {
	sequentialIDs(t)

	first := AddAutoPendingPayment(dec("100"), []Payment{cash("a", "40")})
	pending := pendingOf(first)
	if len(pending) != 1 || !pending[0].Amount.Equal(dec("60")) {
		t.Fatalf("pending after partial payment: got %+v, want one of 60", pending)
	}

	second := AddAutoPendingPayment(dec("100"), append(first, cash("b", "60")))
	if len(pendingOf(second)) != 0 {
		t.Fatalf("pending after settling: got %+v, want removed", pendingOf(second))
	}
	if len(second) != 2 {
		t.Fatalf("payments: got %d, want 2", len(second))
	}
}

func TestAddAutoPendingPayment_UpdatesInPlace(t *testing.T) {
	sequentialIDs(t)

	existing := []Payment{
		cash("a", "10"),
		{ID: "p-1", MethodID: enum.PaymentMethodPending, MethodName: "Pending", Amount: dec("90"), IsAutoPending: true},
		cash("b", "20"),
	}

	got := AddAutoPendingPayment(dec("100"), existing)

	if len(got) != 3 {
		t.Fatalf("payments: got %d, want 3", len(got))
	}
	if got[1].ID != "p-1" {
		t.Fatalf("pending position/id: got %+v, want p-1 at index 1", got[1])
	}
	if !got[1].Amount.Equal(dec("70")) {
		t.Errorf("pending amount: got %s, want 70", got[1].Amount)
	}
	if !existing[1].Amount.Equal(dec("90")) {
		t.Errorf("input was modified: pending amount now %s", existing[1].Amount)
	}
}

func TestAddAutoPendingPayment_DropsDuplicatePending(t *testing.T) {
	existing := []Payment{
		{ID: "p-1", MethodID: enum.PaymentMethodPending, Amount: dec("5")},
		{ID: "p-2", MethodID: enum.PaymentMethodPending, Amount: dec("5")},
	}
	got := AddAutoPendingPayment(dec("30"), existing)
	if len(got) != 1 || got[0].ID != "p-1" || !got[0].Amount.Equal(dec("30")) {
		t.Fatalf("payments: got %+v, want single p-1 of 30", got)
	}
}

func TestAddAutoPendingPayment_Idempotent(t *testing.T) {
	sequentialIDs(t)

	once := AddAutoPendingPayment(dec("120"), []Payment{cash("a", "20")})
	twice := AddAutoPendingPayment(dec("120"), once)

	if len(once) != len(twice) {
		t.Fatalf("length: got %d then %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].ID != twice[i].ID || !once[i].Amount.Equal(twice[i].Amount) || once[i].MethodID != twice[i].MethodID {
			t.Fatalf("payment %d: got %+v then %+v", i, once[i], twice[i])
		}
	}
}

func TestEnsureTransferPayment(t *testing.T) {
	sequentialIDs(t)

	got := EnsureTransferPayment(dec("300"), nil)
	if len(got) != 1 {
		t.Fatalf("payments: got %d, want 1", len(got))
	}
	if got[0].MethodID != enum.PaymentMethodTransfer || got[0].MethodName != "Transfer" || !got[0].Amount.Equal(dec("300")) {
		t.Fatalf("transfer payment: got %+v", got[0])
	}

	again := EnsureTransferPayment(dec("300"), got)
	if len(again) != 1 {
		t.Fatalf("payments after second call: got %d, want 1", len(again))
	}

	if zero := EnsureTransferPayment(dec("0"), nil); len(zero) != 0 {
		t.Fatalf("zero amount: got %+v, want no payment", zero)
	}
}

func TestAddAutoPendingPayment_POSPendingPaymentSettled(t *testing.T) {
	var existing []Payment
	body := `[
		{"id": 1700000000001, "methodId": 3, "methodName": "Cash", "amount": 100},
		{"id": 1700000000002, "methodId": 7, "methodName": "Pending", "amount": 60, "isAutoPending": true}
	]`
	if err := json.Unmarshal([]byte(body), &existing); err != nil {
		t.Fatalf("decode payments: %v", err)
	}
	if !existing[1].IsPending() {
		t.Fatalf("method 7 payment not recognised as pending: %+v", existing[1])
	}

	got := AddAutoPendingPayment(dec("100"), existing)

	if len(got) != 1 {
		t.Fatalf("payments: got %d, want 1 (stale pending removed)", len(got))
	}
	if got[0].ID != "1700000000001" {
		t.Errorf("remaining payment: got %+v, want the cash payment", got[0])
	}
}

func TestAddAutoPendingPayment_AutoFlagMarksPending(t *testing.T) {
	existing := []Payment{
		cash("a", "40"),
		{ID: "p-1", MethodID: "99", MethodName: "Pending", Amount: dec("10"), IsAutoPending: true},
	}

	got := AddAutoPendingPayment(dec("100"), existing)

	if len(got) != 2 {
		t.Fatalf("payments: got %d, want 2", len(got))
	}
	if got[1].ID != "p-1" || !got[1].Amount.Equal(dec("60")) {
		t.Errorf("pending: got %+v, want p-1 of 60", got[1])
	}
}

func TestEnsureTransferPayment_MatchesByName(t *testing.T) {
	existing := []Payment{{ID: "t-1", MethodID: "12", MethodName: "Transfer", Amount: dec("300")}}

	got := EnsureTransferPayment(dec("300"), existing)

	if len(got) != 1 || got[0].ID != "t-1" {
		t.Fatalf("payments: got %+v, want only t-1", got)
	}
}
