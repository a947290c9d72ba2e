package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/carepos/api/internal/auth"
	"github.com/carepos/api/internal/checkout"
	"github.com/carepos/api/internal/enum"
	"github.com/carepos/api/internal/handler"
	"github.com/carepos/api/internal/middleware"
	"github.com/carepos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- Mock CheckoutServicer ---

type mockCheckoutService struct {
	previewFn  func(in service.CheckoutInput) (checkout.ProcessedTransactionData, error)
	checkoutFn func(ctx context.Context, in service.CheckoutInput) (*service.CheckoutOutcome, error)
	getFn      func(ctx context.Context, id uuid.UUID) (*service.CheckoutView, error)
	listFn     func(ctx context.Context, limit, offset int32) ([]service.CheckoutView, error)
	retryFn    func(ctx context.Context, id uuid.UUID) (*service.RetryResult, error)
}

func (m *mockCheckoutService) Preview(in service.CheckoutInput) (checkout.ProcessedTransactionData, error) {
	return m.previewFn(in)
}

func (m *mockCheckoutService) Checkout(ctx context.Context, in service.CheckoutInput) (*service.CheckoutOutcome, error) {
	return m.checkoutFn(ctx, in)
}

func (m *mockCheckoutService) Get(ctx context.Context, id uuid.UUID) (*service.CheckoutView, error) {
	return m.getFn(ctx, id)
}

func (m *mockCheckoutService) List(ctx context.Context, limit, offset int32) ([]service.CheckoutView, error) {
	return m.listFn(ctx, limit, offset)
}

func (m *mockCheckoutService) Retry(ctx context.Context, id uuid.UUID) (*service.RetryResult, error) {
	return m.retryFn(ctx, id)
}

// --- Test helpers ---

const testCheckoutSecret = "test-secret-for-checkouts"

func setupCheckoutRouter(svc *mockCheckoutService) *chi.Mux {
	h := handler.NewCheckoutHandler(svc)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testCheckoutSecret))
	r.Route("/checkouts", h.RegisterRoutes)
	return r
}

func doCheckoutRequest(t *testing.T, router http.Handler, method, path string, body interface{}, employeeID uuid.UUID, role string) *httptest.ResponseRecorder {
	t.Helper()

	token, err := auth.GenerateToken(testCheckoutSecret, employeeID, role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func checkoutBody(checkoutID string) map[string]interface{} {
	return map[string]interface{}{
		"checkout_id": checkoutID,
		"items": []map[string]interface{}{
			{
				"type": "service",
				"id":   "svc-1",
				"data": map[string]interface{}{"id": 11, "name": "Facial", "price": "109"},
			},
		},
		"item_pricing": map[string]interface{}{
			"svc-1": map[string]interface{}{"quantity": 1, "totalLinePrice": "109"},
		},
		"section_payments": map[string]interface{}{
			"services-products": []map[string]interface{}{
				{"id": "p1", "methodId": 1, "methodName": "Cash", "amount": "109"},
			},
		},
		"transaction_details": map[string]interface{}{
			"receiptNumber": "R-1",
			"createdBy":     7,
			"handledBy":     8,
			"createdAt":     "2026-03-01T10:30",
		},
	}
}

func outcome(state checkout.State) *service.CheckoutOutcome {
	return &service.CheckoutOutcome{
		CheckoutID: uuid.New(),
		Result:     &checkout.Result{State: state},
	}
}

// =====================
// Create
// =====================

func TestCheckoutCreate_PassesInputToService(t *testing.T) {
	employeeID := uuid.New()
	checkoutID := uuid.New()

	svc := &mockCheckoutService{
		checkoutFn: func(ctx context.Context, in service.CheckoutInput) (*service.CheckoutOutcome, error) {
			if in.CheckoutID != checkoutID {
				t.Errorf("checkout_id: got %v, want %v", in.CheckoutID, checkoutID)
			}
			if in.RequestedBy != employeeID {
				t.Errorf("requested_by: got %v, want %v", in.RequestedBy, employeeID)
			}
			if len(in.Items) != 1 || in.Items[0].Type() != checkout.ItemTypeService {
				t.Errorf("items: got %+v", in.Items)
			}
			if in.Details.CreatedBy != "7" || in.Details.ReceiptNumber != "R-1" {
				t.Errorf("details: got %+v", in.Details)
			}
			if !in.ItemPricing["svc-1"].TotalLinePrice.Equal(decimal.NewFromInt(109)) {
				t.Errorf("pricing: got %+v", in.ItemPricing["svc-1"])
			}
			if in.GSTRate != nil {
				t.Errorf("gst_rate: got %v, want nil", in.GSTRate)
			}
			return &service.CheckoutOutcome{
				CheckoutID: in.CheckoutID,
				Result:     &checkout.Result{State: checkout.StateCompleted, Success: true},
			}, nil
		},
	}

	router := setupCheckoutRouter(svc)
	rr := doCheckoutRequest(t, router, "POST", "/checkouts", checkoutBody(checkoutID.String()), employeeID, enum.EmployeeRoleCashier)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["checkout_id"] != checkoutID.String() {
		t.Errorf("checkout_id: got %v, want %v", resp["checkout_id"], checkoutID)
	}
	result, ok := resp["result"].(map[string]interface{})
	if !ok {
		t.Fatal("expected result object in response")
	}
	if result["state"] != "completed" {
		t.Errorf("state: got %v, want completed", result["state"])
	}
}

func TestCheckoutCreate_StatusByOutcome(t *testing.T) {
	tests := []struct {
		name    string
		outcome *service.CheckoutOutcome
		want    int
	}{
		{name: "completed", outcome: outcome(checkout.StateCompleted), want: http.StatusCreated},
		{name: "partial", outcome: outcome(checkout.StatePartial), want: http.StatusMultiStatus},
		{name: "all failed", outcome: outcome(checkout.StateFailed), want: http.StatusBadGateway},
		{
			name: "precondition",
			outcome: &service.CheckoutOutcome{
				CheckoutID:         uuid.New(),
				Result:             &checkout.Result{State: checkout.StateFailed, LastError: "created by is required"},
				PreconditionFailed: true,
			},
			want: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCheckoutService{
				checkoutFn: func(ctx context.Context, in service.CheckoutInput) (*service.CheckoutOutcome, error) {
					return tt.outcome, nil
				},
			}
			router := setupCheckoutRouter(svc)
			rr := doCheckoutRequest(t, router, "POST", "/checkouts", checkoutBody(""), uuid.New(), enum.EmployeeRoleCashier)

			if rr.Code != tt.want {
				t.Errorf("status: got %d, want %d; body: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestCheckoutCreate_ServiceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid gst", err: service.ErrInvalidGSTRate, want: http.StatusBadRequest},
		{name: "duplicate item", err: fmt.Errorf("%w: svc-1", service.ErrDuplicateCartItem), want: http.StatusBadRequest},
		{name: "missing item id", err: service.ErrMissingCartItemID, want: http.StatusBadRequest},
		{name: "duplicate checkout", err: service.ErrDuplicateCheckout, want: http.StatusConflict},
		{name: "internal", err: errors.New("db down"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCheckoutService{
				checkoutFn: func(ctx context.Context, in service.CheckoutInput) (*service.CheckoutOutcome, error) {
					return nil, tt.err
				},
			}
			router := setupCheckoutRouter(svc)
			rr := doCheckoutRequest(t, router, "POST", "/checkouts", checkoutBody(""), uuid.New(), enum.EmployeeRoleCashier)

			if rr.Code != tt.want {
				t.Errorf("status: got %d, want %d; body: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestCheckoutCreate_InvalidCheckoutID(t *testing.T) {
	svc := &mockCheckoutService{
		checkoutFn: func(ctx context.Context, in service.CheckoutInput) (*service.CheckoutOutcome, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}
	router := setupCheckoutRouter(svc)
	rr := doCheckoutRequest(t, router, "POST", "/checkouts", checkoutBody("not-a-uuid"), uuid.New(), enum.EmployeeRoleCashier)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestCheckoutCreate_UnknownItemType(t *testing.T) {
	svc := &mockCheckoutService{}
	router := setupCheckoutRouter(svc)

	body := checkoutBody("")
	body["items"] = []map[string]interface{}{
		{"type": "gift-card", "id": "g-1", "data": map[string]interface{}{"name": "x"}},
	}
	rr := doCheckoutRequest(t, router, "POST", "/checkouts", body, uuid.New(), enum.EmployeeRoleCashier)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestCheckoutCreate_NoAuth(t *testing.T) {
	router := setupCheckoutRouter(&mockCheckoutService{})

	b, _ := json.Marshal(checkoutBody(""))
	req := httptest.NewRequest("POST", "/checkouts", bytes.NewReader(b))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

// =====================
// Preview
// =====================

func TestCheckoutPreview_HappyPath(t *testing.T) {
	svc := &mockCheckoutService{
		previewFn: func(in service.CheckoutInput) (checkout.ProcessedTransactionData, error) {
			if in.GSTRate == nil || !in.GSTRate.Equal(decimal.NewFromInt(8)) {
				t.Errorf("gst_rate: got %v, want 8", in.GSTRate)
			}
			return checkout.ProcessedTransactionData{
				ServicesProducts: &checkout.ServicesProductsTransaction{
					SectionID:   enum.SectionServicesProducts,
					TotalAmount: decimal.NewFromInt(109),
				},
			}, nil
		},
	}
	router := setupCheckoutRouter(svc)

	body := checkoutBody("")
	body["gst_rate"] = "8"
	rr := doCheckoutRequest(t, router, "POST", "/checkouts/preview", body, uuid.New(), enum.EmployeeRoleCashier)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	sp, ok := resp["servicesProducts"].(map[string]interface{})
	if !ok {
		t.Fatal("expected servicesProducts in response")
	}
	if sp["sectionId"] != "services-products" {
		t.Errorf("sectionId: got %v", sp["sectionId"])
	}
}

func TestCheckoutPreview_ValidationError(t *testing.T) {
	svc := &mockCheckoutService{
		previewFn: func(in service.CheckoutInput) (checkout.ProcessedTransactionData, error) {
			return checkout.ProcessedTransactionData{}, service.ErrInvalidGSTRate
		},
	}
	router := setupCheckoutRouter(svc)
	rr := doCheckoutRequest(t, router, "POST", "/checkouts/preview", checkoutBody(""), uuid.New(), enum.EmployeeRoleCashier)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// =====================
// List / Get
// =====================

func TestCheckoutList_Pagination(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int32
		wantOffset int32
	}{
		{query: "", wantLimit: 20, wantOffset: 0},
		{query: "?limit=5&offset=10", wantLimit: 5, wantOffset: 10},
		{query: "?limit=500", wantLimit: 100, wantOffset: 0},
		{query: "?limit=-1&offset=-3", wantLimit: 20, wantOffset: 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			svc := &mockCheckoutService{
				listFn: func(ctx context.Context, limit, offset int32) ([]service.CheckoutView, error) {
					if limit != tt.wantLimit || offset != tt.wantOffset {
						t.Errorf("paging: got %d/%d, want %d/%d", limit, offset, tt.wantLimit, tt.wantOffset)
					}
					return nil, nil
				},
			}
			router := setupCheckoutRouter(svc)
			rr := doCheckoutRequest(t, router, "GET", "/checkouts"+tt.query, nil, uuid.New(), enum.EmployeeRoleCashier)

			if rr.Code != http.StatusOK {
				t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
			}
			resp := decodeResponse(t, rr)
			list, ok := resp["checkouts"].([]interface{})
			if !ok || len(list) != 0 {
				t.Errorf("checkouts: got %v, want empty array", resp["checkouts"])
			}
		})
	}
}

func TestCheckoutGet_HappyPath(t *testing.T) {
	id := uuid.New()
	svc := &mockCheckoutService{
		getFn: func(ctx context.Context, got uuid.UUID) (*service.CheckoutView, error) {
			if got != id {
				t.Errorf("id: got %v, want %v", got, id)
			}
			return &service.CheckoutView{ID: id, State: "creating", Live: true, Total: 3, Completed: 1}, nil
		},
	}
	router := setupCheckoutRouter(svc)
	rr := doCheckoutRequest(t, router, "GET", "/checkouts/"+id.String(), nil, uuid.New(), enum.EmployeeRoleCashier)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decodeResponse(t, rr)
	if resp["state"] != "creating" || resp["live"] != true {
		t.Errorf("view: got %v", resp)
	}
	if resp["total"] != float64(3) {
		t.Errorf("total: got %v, want 3", resp["total"])
	}
}

func TestCheckoutGet_NotFound(t *testing.T) {
	svc := &mockCheckoutService{
		getFn: func(ctx context.Context, id uuid.UUID) (*service.CheckoutView, error) {
			return nil, service.ErrCheckoutNotFound
		},
	}
	router := setupCheckoutRouter(svc)
	rr := doCheckoutRequest(t, router, "GET", "/checkouts/"+uuid.New().String(), nil, uuid.New(), enum.EmployeeRoleCashier)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestCheckoutGet_InvalidID(t *testing.T) {
	router := setupCheckoutRouter(&mockCheckoutService{})
	rr := doCheckoutRequest(t, router, "GET", "/checkouts/abc", nil, uuid.New(), enum.EmployeeRoleCashier)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// =====================
// Retry
// =====================

func TestCheckoutRetry_CashierForbidden(t *testing.T) {
	router := setupCheckoutRouter(&mockCheckoutService{})
	rr := doCheckoutRequest(t, router, "POST", "/checkouts/"+uuid.New().String()+"/retry", nil, uuid.New(), enum.EmployeeRoleCashier)

	if rr.Code != http.StatusForbidden {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestCheckoutRetry_Outcomes(t *testing.T) {
	tests := []struct {
		name string
		res  *service.RetryResult
		err  error
		want int
	}{
		{name: "nothing to retry", res: &service.RetryResult{Success: true, Message: "No failed transactions to retry"}, want: http.StatusOK},
		{name: "not implemented", err: service.ErrRetryNotImplemented, want: http.StatusNotImplemented},
		{name: "not found", err: service.ErrCheckoutNotFound, want: http.StatusNotFound},
		{name: "in progress", err: service.ErrCheckoutInProgress, want: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCheckoutService{
				retryFn: func(ctx context.Context, id uuid.UUID) (*service.RetryResult, error) {
					return tt.res, tt.err
				},
			}
			router := setupCheckoutRouter(svc)
			rr := doCheckoutRequest(t, router, "POST", "/checkouts/"+uuid.New().String()+"/retry", nil, uuid.New(), enum.EmployeeRoleManager)

			if rr.Code != tt.want {
				t.Errorf("status: got %d, want %d; body: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}
