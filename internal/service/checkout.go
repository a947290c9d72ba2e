package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/carepos/api/internal/checkout"
	"github.com/carepos/api/internal/database"
	"github.com/carepos/api/internal/enum"
	"github.com/carepos/api/internal/events"
	"github.com/carepos/api/internal/logging"
	"github.com/carepos/api/internal/ws"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const (
	logService     = "checkout"
	publishTimeout = 5 * time.Second

	noFailuresToRetry = "No failed transactions to retry"
)

// Errors returned by the checkout service.
var (
	ErrInvalidGSTRate      = errors.New("gst rate must be between 0 and 100")
	ErrDuplicateCartItem   = errors.New("duplicate cart item id")
	ErrMissingCartItemID   = errors.New("cart item id is required")
	ErrDuplicateCheckout   = errors.New("checkout already exists")
	ErrCheckoutNotFound    = errors.New("checkout not found")
	ErrCheckoutInProgress  = errors.New("checkout is still in progress")
	ErrRetryNotImplemented = errors.New("Retry functionality not implemented yet")
)

var hundred = decimal.NewFromInt(100)

// CheckoutStore defines the DB methods needed by the checkout service.
// Satisfied by *database.Queries.
type CheckoutStore interface {
	CreateCheckoutAttempt(ctx context.Context, arg database.CreateCheckoutAttemptParams) (database.CheckoutAttempt, error)
	FinishCheckoutAttempt(ctx context.Context, arg database.FinishCheckoutAttemptParams) (database.CheckoutAttempt, error)
	GetCheckoutAttempt(ctx context.Context, id uuid.UUID) (database.CheckoutAttempt, error)
	ListCheckoutAttempts(ctx context.Context, arg database.ListCheckoutAttemptsParams) ([]database.CheckoutAttempt, error)
}

// Executor runs one checkout. Satisfied by *checkout.Orchestrator.
type Executor interface {
	Execute(ctx context.Context, run *checkout.Run, data checkout.ProcessedTransactionData, details checkout.TransactionDetails) (*checkout.Result, error)
}

// Broadcaster pushes live progress to watchers. Satisfied by *ws.Hub.
type Broadcaster interface {
	BroadcastToCheckout(checkoutID uuid.UUID, event ws.Event)
	CloseCheckout(checkoutID uuid.UUID)
}

// EventPublisher is satisfied by *events.Publisher.
type EventPublisher interface {
	PublishCheckoutFinished(ctx context.Context, e events.CheckoutFinished) error
}

// Recorder is satisfied by *metrics.Metrics.
type Recorder interface {
	RunFinished(state string)
	SubTransaction(kind, outcome string)
}

// CheckoutInput is the validated input for one checkout attempt.
type CheckoutInput struct {
	CheckoutID      uuid.UUID // generated when zero
	RequestedBy     uuid.UUID
	Items           []checkout.CartItem
	ItemPricing     map[string]checkout.Pricing
	SectionPayments map[string][]checkout.Payment
	Details         checkout.TransactionDetails
	GSTRate         *decimal.Decimal // service default when nil
}

// CheckoutOutcome is what Checkout returns once the run is terminal.
type CheckoutOutcome struct {
	CheckoutID uuid.UUID
	Result     *checkout.Result
	// PreconditionFailed is set when the run was rejected before any
	// sub-transaction was sent.
	PreconditionFailed bool
}

// CheckoutView is a checkout as seen by readers: live while running,
// persisted afterwards.
type CheckoutView struct {
	ID            uuid.UUID         `json:"id"`
	ReceiptNumber string            `json:"receipt_number"`
	State         string            `json:"state"`
	Live          bool              `json:"live"`
	Total         int               `json:"total"`
	Completed     int               `json:"completed"`
	Failed        int               `json:"failed"`
	Summary       *checkout.Summary `json:"summary,omitempty"`
	Result        json.RawMessage   `json:"result,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	FinishedAt    *time.Time        `json:"finished_at,omitempty"`
}

// RetryResult answers a retry request that needed no work.
type RetryResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type liveRun struct {
	run           *checkout.Run
	receiptNumber string
	startedAt     time.Time
}

// CheckoutDeps are the collaborators a CheckoutService reports to.
type CheckoutDeps struct {
	Hub       Broadcaster
	Publisher EventPublisher
	Metrics   Recorder
	GSTRate   decimal.Decimal
}

// CheckoutService runs checkouts and keeps their history.
type CheckoutService struct {
	store     CheckoutStore
	executor  Executor
	hub       Broadcaster
	publisher EventPublisher
	metrics   Recorder
	gstRate   decimal.Decimal

	mu   sync.RWMutex
	live map[uuid.UUID]*liveRun
}

// NewCheckoutService creates a new CheckoutService.
func NewCheckoutService(store CheckoutStore, executor Executor, deps CheckoutDeps) *CheckoutService {
	return &CheckoutService{
		store:     store,
		executor:  executor,
		hub:       deps.Hub,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		gstRate:   deps.GSTRate,
		live:      make(map[uuid.UUID]*liveRun),
	}
}

// Preview returns the sub-transactions a checkout would submit, with
// auto-generated pending and transfer payments applied.
func (s *CheckoutService) Preview(in CheckoutInput) (checkout.ProcessedTransactionData, error) {
	data, err := s.prepare(in)
	if err != nil {
		return checkout.ProcessedTransactionData{}, err
	}
	return checkout.ApplyPendingPayments(data), nil
}

// Checkout records the attempt, runs it to a terminal state and reports the
// outcome. Cancelling ctx does not abort a run that has started.
func (s *CheckoutService) Checkout(ctx context.Context, in CheckoutInput) (*CheckoutOutcome, error) {
	data, err := s.prepare(in)
	if err != nil {
		return nil, err
	}

	id := in.CheckoutID
	if id == uuid.Nil {
		id = uuid.New()
	}

	memberID := pgtype.Text{}
	if in.Details.MemberID != "" {
		memberID = pgtype.Text{String: in.Details.MemberID.String(), Valid: true}
	}
	_, err = s.store.CreateCheckoutAttempt(ctx, database.CreateCheckoutAttemptParams{
		ID:            id,
		ReceiptNumber: in.Details.ReceiptNumber,
		MemberID:      memberID,
		CreatedBy:     in.Details.CreatedBy.String(),
		HandledBy:     in.Details.HandledBy.String(),
		RequestedBy:   in.RequestedBy,
		State:         enum.CheckoutStatePreparing,
		Total:         int32(data.Total()),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateCheckout
		}
		return nil, fmt.Errorf("create checkout attempt: %w", err)
	}

	start := time.Now()
	receipt := in.Details.ReceiptNumber
	logging.Log(logging.Fields{
		Service:       logService,
		CheckoutID:    id.String(),
		ReceiptNumber: receipt,
		Step:          "start",
		Status:        "started",
		Message:       fmt.Sprintf("%d sub-transactions", data.Total()),
	})

	run := checkout.NewRun(s.observer(id, receipt))
	s.track(id, &liveRun{run: run, receiptNumber: receipt, startedAt: start})
	defer s.untrack(id)

	preconditionErr := checkout.ValidateDetails(in.Details)

	// The run must reach a terminal state even if the caller goes away.
	runCtx := context.WithoutCancel(ctx)
	result, err := s.executor.Execute(runCtx, run, data, in.Details)
	if err != nil {
		s.abandon(runCtx, id, err)
		return nil, fmt.Errorf("execute checkout: %w", err)
	}

	s.persist(runCtx, id, result)
	s.metrics.RunFinished(string(result.State))
	s.publish(runCtx, id, receipt, result)
	s.hub.CloseCheckout(id)

	logging.Log(logging.Fields{
		Service:       logService,
		CheckoutID:    id.String(),
		ReceiptNumber: receipt,
		Step:          "finish",
		Status:        string(result.State),
		DurationMS:    time.Since(start).Milliseconds(),
		Message:       result.LastError,
	})

	return &CheckoutOutcome{
		CheckoutID:         id,
		Result:             result,
		PreconditionFailed: preconditionErr != nil && result.State == checkout.StateFailed,
	}, nil
}

// Get returns the live summary of a running checkout or the persisted record.
func (s *CheckoutService) Get(ctx context.Context, id uuid.UUID) (*CheckoutView, error) {
	if lr := s.lookup(id); lr != nil {
		summary := lr.run.Snapshot()
		return &CheckoutView{
			ID:            id,
			ReceiptNumber: lr.receiptNumber,
			State:         string(summary.State),
			Live:          true,
			Total:         summary.Progress.Total,
			Completed:     summary.Progress.Completed,
			Failed:        summary.Progress.Failed,
			Summary:       &summary,
			LastError:     summary.LastError,
			CreatedAt:     lr.startedAt,
		}, nil
	}

	attempt, err := s.store.GetCheckoutAttempt(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCheckoutNotFound
		}
		return nil, fmt.Errorf("get checkout attempt: %w", err)
	}
	view := toCheckoutView(attempt)
	return &view, nil
}

// List returns persisted checkouts, newest first.
func (s *CheckoutService) List(ctx context.Context, limit, offset int32) ([]CheckoutView, error) {
	attempts, err := s.store.ListCheckoutAttempts(ctx, database.ListCheckoutAttemptsParams{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list checkout attempts: %w", err)
	}
	views := make([]CheckoutView, len(attempts))
	for i, a := range attempts {
		views[i] = toCheckoutView(a)
		views[i].Result = nil
	}
	return views, nil
}

// Watchable reports whether progress for id can still be streamed. Checkouts
// with no record yet are watchable so a client can subscribe before posting.
func (s *CheckoutService) Watchable(ctx context.Context, id uuid.UUID) (bool, error) {
	attempt, err := s.store.GetCheckoutAttempt(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return true, nil
		}
		return false, fmt.Errorf("get checkout attempt: %w", err)
	}
	return !checkout.State(attempt.State).Terminal(), nil
}

// Retry resubmits the failed sub-transactions of a finished checkout. Only
// the no-op case is supported.
func (s *CheckoutService) Retry(ctx context.Context, id uuid.UUID) (*RetryResult, error) {
	if s.lookup(id) != nil {
		return nil, ErrCheckoutInProgress
	}
	attempt, err := s.store.GetCheckoutAttempt(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCheckoutNotFound
		}
		return nil, fmt.Errorf("get checkout attempt: %w", err)
	}
	if attempt.Failed == 0 {
		return &RetryResult{Success: true, Message: noFailuresToRetry}, nil
	}
	return nil, ErrRetryNotImplemented
}

// prepare validates the input and groups the cart.
func (s *CheckoutService) prepare(in CheckoutInput) (checkout.ProcessedTransactionData, error) {
	rate := s.gstRate
	if in.GSTRate != nil {
		rate = *in.GSTRate
	}
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return checkout.ProcessedTransactionData{}, ErrInvalidGSTRate
	}

	seen := make(map[checkout.ID]bool, len(in.Items))
	for _, item := range in.Items {
		if item.ID == "" {
			return checkout.ProcessedTransactionData{}, ErrMissingCartItemID
		}
		if seen[item.ID] {
			return checkout.ProcessedTransactionData{}, fmt.Errorf("%w: %s", ErrDuplicateCartItem, item.ID)
		}
		seen[item.ID] = true
	}

	data := checkout.ProcessCartDataForBackend(in.Items, in.ItemPricing, in.SectionPayments, rate)
	return checkout.ApplyTransferPayments(data), nil
}

// observer forwards run events to watchers, logs and metrics.
func (s *CheckoutService) observer(id uuid.UUID, receipt string) checkout.Observer {
	return checkout.ObserverFunc(func(e checkout.Event) {
		eventType := ws.EventCheckoutProgress
		if e.Kind == checkout.EventState {
			eventType = ws.EventCheckoutState
		}
		msg, err := ws.NewEvent(eventType, checkoutEventPayload{
			CheckoutID:     id,
			Kind:           e.Kind,
			State:          e.State,
			Progress:       e.Progress,
			SubTransaction: e.SubTransaction,
			Message:        e.Message,
		})
		if err != nil {
			log.Printf("ERROR: encode checkout event: %v", err)
		} else {
			s.hub.BroadcastToCheckout(id, msg)
		}

		switch e.Kind {
		case checkout.EventCreated:
			s.metrics.SubTransaction(string(e.SubTransaction), "created")
			logging.Log(logging.Fields{
				Service:        logService,
				CheckoutID:     id.String(),
				ReceiptNumber:  receipt,
				Step:           "sub_transaction",
				SubTransaction: string(e.SubTransaction),
				Status:         "created",
			})
		case checkout.EventFailed:
			s.metrics.SubTransaction(string(e.SubTransaction), "failed")
			logging.Log(logging.Fields{
				Service:        logService,
				CheckoutID:     id.String(),
				ReceiptNumber:  receipt,
				Step:           "sub_transaction",
				SubTransaction: string(e.SubTransaction),
				Status:         "failed",
				Message:        e.Message,
			})
		}
	})
}

type checkoutEventPayload struct {
	CheckoutID     uuid.UUID                   `json:"checkout_id"`
	Kind           checkout.EventKind          `json:"kind"`
	State          checkout.State              `json:"state"`
	Progress       checkout.Progress           `json:"progress"`
	SubTransaction checkout.SubTransactionType `json:"sub_transaction,omitempty"`
	Message        string                      `json:"message,omitempty"`
}

func (s *CheckoutService) persist(ctx context.Context, id uuid.UUID, result *checkout.Result) {
	raw, err := json.Marshal(result)
	if err != nil {
		log.Printf("ERROR: encode checkout %s result: %v", id, err)
		raw = nil
	}
	lastError := pgtype.Text{}
	if result.LastError != "" {
		lastError = pgtype.Text{String: result.LastError, Valid: true}
	}
	_, err = s.store.FinishCheckoutAttempt(ctx, database.FinishCheckoutAttemptParams{
		ID:        id,
		State:     string(result.State),
		Completed: int32(len(result.CreatedTransactions)),
		Failed:    int32(len(result.FailedTransactions)),
		Result:    raw,
		LastError: lastError,
	})
	if err != nil {
		log.Printf("ERROR: persist checkout %s result: %v", id, err)
	}
}

// abandon records an attempt whose run produced no result as failed.
func (s *CheckoutService) abandon(ctx context.Context, id uuid.UUID, cause error) {
	_, err := s.store.FinishCheckoutAttempt(ctx, database.FinishCheckoutAttemptParams{
		ID:        id,
		State:     enum.CheckoutStateFailed,
		LastError: pgtype.Text{String: cause.Error(), Valid: true},
	})
	if err != nil {
		log.Printf("ERROR: persist abandoned checkout %s: %v", id, err)
	}
	s.metrics.RunFinished(enum.CheckoutStateFailed)
	s.hub.CloseCheckout(id)
}

func (s *CheckoutService) publish(ctx context.Context, id uuid.UUID, receipt string, result *checkout.Result) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := s.publisher.PublishCheckoutFinished(ctx, events.CheckoutFinished{
		EventID:       uuid.NewString(),
		CheckoutID:    id.String(),
		ReceiptNumber: receipt,
		State:         string(result.State),
		Total:         result.Progress.Total,
		Completed:     len(result.CreatedTransactions),
		Failed:        len(result.FailedTransactions),
		Errors:        result.Errors,
		FinishedAt:    time.Now().UTC(),
	})
	if err != nil && !errors.Is(err, events.ErrDisabled) {
		log.Printf("WARNING: publish checkout %s finished event: %v", id, err)
	}
}

func (s *CheckoutService) track(id uuid.UUID, lr *liveRun) {
	s.mu.Lock()
	s.live[id] = lr
	s.mu.Unlock()
}

func (s *CheckoutService) untrack(id uuid.UUID) {
	s.mu.Lock()
	delete(s.live, id)
	s.mu.Unlock()
}

func (s *CheckoutService) lookup(id uuid.UUID) *liveRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live[id]
}

func toCheckoutView(a database.CheckoutAttempt) CheckoutView {
	v := CheckoutView{
		ID:            a.ID,
		ReceiptNumber: a.ReceiptNumber,
		State:         a.State,
		Total:         int(a.Total),
		Completed:     int(a.Completed),
		Failed:        int(a.Failed),
		CreatedAt:     a.CreatedAt,
	}
	if len(a.Result) > 0 {
		v.Result = json.RawMessage(a.Result)
	}
	if a.LastError.Valid {
		v.LastError = a.LastError.String
	}
	if a.FinishedAt.Valid {
		t := a.FinishedAt.Time
		v.FinishedAt = &t
	}
	return v
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
