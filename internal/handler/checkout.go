package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/carepos/api/internal/checkout"
	"github.com/carepos/api/internal/enum"
	"github.com/carepos/api/internal/middleware"
	"github.com/carepos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CheckoutServicer defines the service methods needed by checkout handlers.
// Satisfied by *service.CheckoutService; narrow interface for testability.
type CheckoutServicer interface {
	Preview(in service.CheckoutInput) (checkout.ProcessedTransactionData, error)
	Checkout(ctx context.Context, in service.CheckoutInput) (*service.CheckoutOutcome, error)
	Get(ctx context.Context, id uuid.UUID) (*service.CheckoutView, error)
	List(ctx context.Context, limit, offset int32) ([]service.CheckoutView, error)
	Retry(ctx context.Context, id uuid.UUID) (*service.RetryResult, error)
}

// CheckoutHandler handles checkout endpoints.
type CheckoutHandler struct {
	svc CheckoutServicer
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(svc CheckoutServicer) *CheckoutHandler {
	return &CheckoutHandler{svc: svc}
}

// RegisterRoutes registers checkout endpoints on the given Chi router.
// Expected to be mounted at /checkouts behind Authenticate.
func (h *CheckoutHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Post("/preview", h.Preview)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.With(middleware.RequireRole(enum.EmployeeRoleOwner, enum.EmployeeRoleManager)).
		Post("/{id}/retry", h.Retry)
}

// --- Request / Response types ---

type checkoutRequest struct {
	CheckoutID         string                        `json:"checkout_id"`
	Items              []checkout.CartItem           `json:"items"`
	ItemPricing        map[string]checkout.Pricing   `json:"item_pricing"`
	SectionPayments    map[string][]checkout.Payment `json:"section_payments"`
	TransactionDetails checkout.TransactionDetails   `json:"transaction_details"`
	GSTRate            *decimal.Decimal              `json:"gst_rate"`
}

type checkoutResponse struct {
	CheckoutID uuid.UUID        `json:"checkout_id"`
	Result     *checkout.Result `json:"result"`
}

type checkoutListResponse struct {
	Checkouts []service.CheckoutView `json:"checkouts"`
	Limit     int                    `json:"limit"`
	Offset    int                    `json:"offset"`
}

// --- Handlers ---

// Create handles POST /checkouts. It responds once the run is terminal.
func (h *CheckoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	in, ok := decodeCheckoutRequest(w, r)
	if !ok {
		return
	}
	in.RequestedBy = claims.EmployeeID

	out, err := h.svc.Checkout(r.Context(), in)
	if err != nil {
		switch {
		case isCheckoutValidationError(err):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrDuplicateCheckout):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "checkout_id already used"})
		default:
			log.Printf("ERROR: checkout: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	writeJSON(w, checkoutStatus(out), checkoutResponse{CheckoutID: out.CheckoutID, Result: out.Result})
}

// Preview handles POST /checkouts/preview.
func (h *CheckoutHandler) Preview(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeCheckoutRequest(w, r)
	if !ok {
		return
	}

	data, err := h.svc.Preview(in)
	if err != nil {
		if isCheckoutValidationError(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("ERROR: preview checkout: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, data)
}

// List handles GET /checkouts.
func (h *CheckoutHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	views, err := h.svc.List(r.Context(), int32(limit), int32(offset))
	if err != nil {
		log.Printf("ERROR: list checkouts: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if views == nil {
		views = []service.CheckoutView{}
	}

	writeJSON(w, http.StatusOK, checkoutListResponse{Checkouts: views, Limit: limit, Offset: offset})
}

// Get handles GET /checkouts/{id}.
func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid checkout ID"})
		return
	}

	view, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrCheckoutNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "checkout not found"})
			return
		}
		log.Printf("ERROR: get checkout: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Retry handles POST /checkouts/{id}/retry.
func (h *CheckoutHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid checkout ID"})
		return
	}

	res, err := h.svc.Retry(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCheckoutNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "checkout not found"})
		case errors.Is(err, service.ErrCheckoutInProgress):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrRetryNotImplemented):
			writeJSON(w, http.StatusNotImplemented, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: retry checkout: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// --- Helpers ---

// decodeCheckoutRequest writes a 400 and returns false when the body is unusable.
func decodeCheckoutRequest(w http.ResponseWriter, r *http.Request) (service.CheckoutInput, bool) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return service.CheckoutInput{}, false
	}

	var id uuid.UUID
	if req.CheckoutID != "" {
		parsed, err := uuid.Parse(req.CheckoutID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid checkout_id"})
			return service.CheckoutInput{}, false
		}
		id = parsed
	}

	return service.CheckoutInput{
		CheckoutID:      id,
		Items:           req.Items,
		ItemPricing:     req.ItemPricing,
		SectionPayments: req.SectionPayments,
		Details:         req.TransactionDetails,
		GSTRate:         req.GSTRate,
	}, true
}

func checkoutStatus(out *service.CheckoutOutcome) int {
	switch {
	case out.PreconditionFailed:
		return http.StatusUnprocessableEntity
	case out.Result.State == checkout.StateCompleted:
		return http.StatusCreated
	case out.Result.State == checkout.StatePartial:
		return http.StatusMultiStatus
	default:
		return http.StatusBadGateway
	}
}

func isCheckoutValidationError(err error) bool {
	return errors.Is(err, service.ErrInvalidGSTRate) ||
		errors.Is(err, service.ErrDuplicateCartItem) ||
		errors.Is(err, service.ErrMissingCartItemID)
}
