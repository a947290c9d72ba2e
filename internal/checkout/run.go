package checkout

import (
	"encoding/json"
	"sync"

	"github.com/carepos/api/internal/enum"
)

// State is the lifecycle state of one checkout attempt.
type State string

const (
	StateIdle      State = enum.CheckoutStateIdle
	StatePreparing State = enum.CheckoutStatePreparing
	StateCreating  State = enum.CheckoutStateCreating
	StateCompleted State = enum.CheckoutStateCompleted
	StatePartial   State = enum.CheckoutStatePartial
	StateFailed    State = enum.CheckoutStateFailed
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StatePartial || s == StateFailed
}

// SubTransactionType tags created and failed entries.
type SubTransactionType string

const (
	SubTxServicesProducts SubTransactionType = "services-products"
	SubTxMCP              SubTransactionType = "mcp"
	SubTxMV               SubTransactionType = "mv"
	SubTxMCPTransfer      SubTransactionType = "mcp-transfer"
	SubTxMVTransfer       SubTransactionType = "mv-transfer"
)

// Label is the prefix used for the sub-transaction in user-facing errors.
func (t SubTransactionType) Label() string {
	switch t {
	case SubTxServicesProducts:
		return "Services/Products"
	case SubTxMCP:
		return "MCP"
	case SubTxMV:
		return "MV"
	case SubTxMCPTransfer:
		return "MCP Transfer"
	case SubTxMVTransfer:
		return "MV Transfer"
	default:
		return string(t)
	}
}

type Progress struct {
	Total            int    `json:"total"`
	Completed        int    `json:"completed"`
	Failed           int    `json:"failed"`
	CurrentOperation string `json:"currentOperation"`
}

// CreatedTransaction is a sub-transaction the API accepted.
type CreatedTransaction struct {
	Type        SubTransactionType `json:"type"`
	Transaction json.RawMessage    `json:"transaction"`
	Items       []CartItem         `json:"items"`
}

// FailedTransaction is a sub-transaction that could not be created, with the
// input it was built from.
type FailedTransaction struct {
	Type             SubTransactionType           `json:"type"`
	Error            string                       `json:"error"`
	Line             *SingleTransaction           `json:"line,omitempty"`
	ServicesProducts *ServicesProductsTransaction `json:"servicesProducts,omitempty"`
}

// Result is the outcome of a checkout attempt.
type Result struct {
	State               State                `json:"state"`
	Success             bool                 `json:"success"`
	HasPartialSuccess   bool                 `json:"hasPartialSuccess"`
	Progress            Progress             `json:"progress"`
	CreatedTransactions []CreatedTransaction `json:"createdTransactions"`
	FailedTransactions  []FailedTransaction  `json:"failedTransactions"`
	Errors              []string             `json:"errors"`
	LastError           string               `json:"lastError,omitempty"`
}

// Summary is a point-in-time view of a run.
type Summary struct {
	State        State    `json:"state"`
	IsCreating   bool     `json:"isCreating"`
	Progress     Progress `json:"progress"`
	TotalCreated int      `json:"totalCreated"`
	TotalFailed  int      `json:"totalFailed"`
	Errors       []string `json:"errors"`
	LastError    string   `json:"lastError,omitempty"`
}

type EventKind string

const (
	EventState    EventKind = "state"
	EventProgress EventKind = "progress"
	EventCreated  EventKind = "created"
	EventFailed   EventKind = "failed"
)

// Event is emitted to the run's observer on every state or progress change.
// SubTransaction and Message are set for created and failed events.
type Event struct {
	Kind           EventKind          `json:"kind"`
	State          State              `json:"state"`
	Progress       Progress           `json:"progress"`
	SubTransaction SubTransactionType `json:"subTransaction,omitempty"`
	Message        string             `json:"message,omitempty"`
}

// Observer receives run events synchronously, in order.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Run tracks one checkout attempt. It is created by the caller, driven by
// Orchestrator.Execute and safe to read from other goroutines while running.
type Run struct {
	mu        sync.RWMutex
	state     State
	progress  Progress
	created   []CreatedTransaction
	failed    []FailedTransaction
	errors    []string
	lastError string
	observer  Observer
}

// NewRun returns an idle run. observer may be nil.
func NewRun(observer Observer) *Run {
	return &Run{state: StateIdle, observer: observer}
}

func (r *Run) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Snapshot returns the current summary.
func (r *Run) Snapshot() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Summary{
		State:        r.state,
		IsCreating:   r.state == StateCreating,
		Progress:     r.progress,
		TotalCreated: len(r.created),
		TotalFailed:  len(r.failed),
		Errors:       append([]string(nil), r.errors...),
		LastError:    r.lastError,
	}
}

// Result returns the outcome so far. It is final once State is terminal.
func (r *Run) Result() *Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hasFailures := len(r.failed) > 0
	hasSuccesses := len(r.created) > 0
	return &Result{
		State:               r.state,
		Success:             r.state == StateCompleted || r.state == StatePartial,
		HasPartialSuccess:   hasFailures && hasSuccesses,
		Progress:            r.progress,
		CreatedTransactions: append([]CreatedTransaction{}, r.created...),
		FailedTransactions:  append([]FailedTransaction{}, r.failed...),
		Errors:              append([]string{}, r.errors...),
		LastError:           r.lastError,
	}
}

// --- Mutators used by the orchestrator ---

func (r *Run) setState(s State) {
	r.mu.Lock()
	r.state = s
	e := r.eventLocked(EventState)
	r.mu.Unlock()
	r.emit(e)
}

func (r *Run) begin(total int) {
	r.mu.Lock()
	r.state = StateCreating
	r.progress = Progress{Total: total, CurrentOperation: "Starting transaction creation..."}
	e := r.eventLocked(EventState)
	r.mu.Unlock()
	r.emit(e)
}

func (r *Run) setOperation(op string) {
	r.mu.Lock()
	r.progress.CurrentOperation = op
	e := r.eventLocked(EventProgress)
	r.mu.Unlock()
	r.emit(e)
}

func (r *Run) recordCreated(c CreatedTransaction) {
	r.mu.Lock()
	r.created = append(r.created, c)
	r.progress.Completed++
	e := r.eventLocked(EventCreated)
	e.SubTransaction = c.Type
	r.mu.Unlock()
	r.emit(e)
}

// recordFailed stores the failure and the user-facing message for it.
func (r *Run) recordFailed(f FailedTransaction, message string) {
	r.mu.Lock()
	r.failed = append(r.failed, f)
	r.progress.Failed++
	r.errors = append(r.errors, message)
	e := r.eventLocked(EventFailed)
	e.SubTransaction = f.Type
	e.Message = message
	r.mu.Unlock()
	r.emit(e)
}

// recordError stores an error that is not tied to a single sub-transaction.
func (r *Run) recordError(message string) {
	r.mu.Lock()
	r.errors = append(r.errors, message)
	r.lastError = message
	r.mu.Unlock()
}

// abort ends the run as failed without attempting the remaining steps.
func (r *Run) abort(err error) {
	r.mu.Lock()
	r.state = StateFailed
	r.lastError = err.Error()
	r.progress.CurrentOperation = ""
	e := r.eventLocked(EventState)
	e.Message = r.lastError
	r.mu.Unlock()
	r.emit(e)
}

// finish picks the terminal state from the recorded outcomes.
func (r *Run) finish() {
	r.mu.Lock()
	hasFailures := len(r.failed) > 0
	hasSuccesses := len(r.created) > 0
	switch {
	case !hasFailures:
		r.state = StateCompleted
	case hasSuccesses:
		r.state = StatePartial
	default:
		r.state = StateFailed
	}
	r.progress.CurrentOperation = ""
	e := r.eventLocked(EventState)
	r.mu.Unlock()
	r.emit(e)
}

func (r *Run) eventLocked(kind EventKind) Event {
	return Event{Kind: kind, State: r.state, Progress: r.progress}
}

func (r *Run) emit(e Event) {
	if r.observer != nil {
		r.observer.OnEvent(e)
	}
}
