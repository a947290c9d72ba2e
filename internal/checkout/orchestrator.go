package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Precondition errors. They abort a run before any sub-transaction is sent.
var (
	ErrMissingCreatedBy = errors.New("created by is required")
	ErrMissingHandledBy = errors.New("handled by is required")
	ErrMissingCreatedAt = errors.New("created at is required")
	ErrInvalidCreatedAt = errors.New("created at is not a valid timestamp")
	ErrRunStarted       = errors.New("checkout run already started")
)

// MissingAllocationError fails a line whose batch queue result has no entry
// at the line's position.
type MissingAllocationError struct {
	What  string
	Index int
}

func (e *MissingAllocationError) Error() string {
	return fmt.Sprintf("No %s found for transaction item at index %d", e.What, e.Index)
}

const voucherTransferFailed = "Voucher transfer failed"

// timestampLayouts are the createdAt formats accepted from the POS.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses a user-entered createdAt/updatedAt value.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidCreatedAt
}

// ValidateDetails checks the fields every sub-transaction depends on.
func ValidateDetails(d TransactionDetails) error {
	if d.CreatedBy == "" {
		return ErrMissingCreatedBy
	}
	if d.HandledBy == "" {
		return ErrMissingHandledBy
	}
	if strings.TrimSpace(d.CreatedAt) == "" {
		return ErrMissingCreatedAt
	}
	if _, err := ParseTimestamp(d.CreatedAt); err != nil {
		return err
	}
	return nil
}

// Options tunes orchestration policy.
type Options struct {
	// FailFastOnBatchError fails every dependent line as soon as a batch
	// queue call errors. By default each line fails when its lookup misses.
	FailFastOnBatchError bool
}

// Orchestrator submits the sub-transactions of a checkout in dependency order.
type Orchestrator struct {
	gateway Gateway
	opts    Options
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(gateway Gateway, opts Options) *Orchestrator {
	return &Orchestrator{gateway: gateway, opts: opts}
}

// stage submits one group of sub-transactions. A returned error aborts the
// run; per-line failures are recorded on the run instead.
type stage func(ctx context.Context, run *Run, data ProcessedTransactionData, env Envelope) error

// Execute drives run from idle to a terminal state. Stages run strictly in
// order because packages and transfers depend on ids allocated by the batch
// queues. A cancelled context or a panic aborts the run as failed.
func (o *Orchestrator) Execute(ctx context.Context, run *Run, data ProcessedTransactionData, details TransactionDetails) (res *Result, err error) {
	if run.State() != StateIdle {
		return nil, ErrRunStarted
	}

	defer func() {
		if p := recover(); p != nil {
			run.abort(fmt.Errorf("unexpected error: %v", p))
			res = run.Result()
		}
	}()

	run.setState(StatePreparing)
	if err := ValidateDetails(details); err != nil {
		run.recordError(err.Error())
		run.abort(err)
		return run.Result(), nil
	}

	data = ApplyPendingPayments(data)
	run.begin(data.Total())
	env := NewEnvelope(details)

	stages := []stage{
		o.submitServicesProducts,
		o.submitPackages,
		o.submitVouchers,
		o.submitMCPTransfers,
		o.submitMVTransfers,
	}
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			run.abort(err)
			return run.Result(), nil
		}
		if err := s(ctx, run, data, env); err != nil {
			run.abort(err)
			return run.Result(), nil
		}
	}

	run.finish()
	return run.Result(), nil
}

// --- Stage 1: services and products ---

func (o *Orchestrator) submitServicesProducts(ctx context.Context, run *Run, data ProcessedTransactionData, env Envelope) error {
	sp := data.ServicesProducts
	if sp == nil || len(sp.Items) == 0 {
		return nil
	}
	run.setOperation("Creating Services & Products transaction...")

	record, err := o.gateway.CreateServicesProducts(ctx, ServicesProductsRequest{
		Envelope:     env,
		Items:        sp.Items,
		Payments:     sp.Payments,
		GSTBreakdown: sp.GSTBreakdown,
		TotalAmount:  sp.TotalAmount,
	})
	if err != nil {
		run.recordFailed(FailedTransaction{
			Type:             SubTxServicesProducts,
			Error:            err.Error(),
			ServicesProducts: sp,
		}, fmt.Sprintf("%s: %s", SubTxServicesProducts.Label(), err.Error()))
		return nil
	}
	run.recordCreated(CreatedTransaction{Type: SubTxServicesProducts, Transaction: record, Items: sp.Items})
	return nil
}

// --- Stage 2: member care packages ---

// PackageAllocation is the package-creation queue result, indexed by the
// position of each package line.
type PackageAllocation struct {
	ids []int64
}

// resolvedPackage is a package line paired with its allocated id. It can only
// be built by PackageAllocation.resolve.
type resolvedPackage struct {
	txn SingleTransaction
}

func (a PackageAllocation) resolve(i int, txn SingleTransaction) (resolvedPackage, error) {
	if i >= len(a.ids) || a.ids[i] <= 0 {
		return resolvedPackage{}, &MissingAllocationError{What: "member care package ID", Index: i}
	}
	pkg, ok := txn.Item.Data.(PackageData)
	if !ok {
		return resolvedPackage{}, fmt.Errorf("cart item %q is not a care package", txn.Item.ID)
	}
	pkg.MemberCarePackageID = a.ids[i]
	txn.Item.Data = pkg
	return resolvedPackage{txn: txn}, nil
}

func (p resolvedPackage) request(env Envelope) LineRequest {
	gst := p.txn.GSTBreakdown
	return LineRequest{
		Envelope:     env,
		Item:         p.txn.Item,
		Payments:     p.txn.Payments,
		GSTBreakdown: &gst,
		TotalAmount:  p.txn.TotalAmount,
	}
}

func (o *Orchestrator) submitPackages(ctx context.Context, run *Run, data ProcessedTransactionData, env Envelope) error {
	txns := data.MCPTransactions
	if len(txns) == 0 {
		return nil
	}
	run.setOperation("Processing member care package queue...")

	ids, err := o.gateway.QueuePackages(ctx, PackageQueueRequest{Envelope: env, Packages: queueEntries(txns)})
	if err != nil {
		run.recordError("Package creation queue: " + err.Error())
		if o.opts.FailFastOnBatchError {
			o.failAll(run, SubTxMCP, txns, err)
			return nil
		}
	}
	alloc := PackageAllocation{ids: ids}

	for i, txn := range txns {
		if err := ctx.Err(); err != nil {
			return err
		}
		run.setOperation(fmt.Sprintf("Creating MCP transaction %d/%d...", i+1, len(txns)))

		resolved, err := alloc.resolve(i, txn)
		if err != nil {
			o.failLine(run, SubTxMCP, txn, err)
			continue
		}
		record, err := o.gateway.CreateMCP(ctx, resolved.request(env))
		if err != nil {
			o.failLine(run, SubTxMCP, txn, err)
			continue
		}
		run.recordCreated(CreatedTransaction{Type: SubTxMCP, Transaction: record, Items: []CartItem{resolved.txn.Item}})
	}
	return nil
}

// --- Stage 3: member vouchers ---

func (o *Orchestrator) submitVouchers(ctx context.Context, run *Run, data ProcessedTransactionData, env Envelope) error {
	txns := data.MVTransactions
	for i, txn := range txns {
		if err := ctx.Err(); err != nil {
			return err
		}
		run.setOperation(fmt.Sprintf("Creating MV transaction %d/%d...", i+1, len(txns)))

		gst := txn.GSTBreakdown
		record, err := o.gateway.CreateMemberVoucher(ctx, LineRequest{
			Envelope:     env,
			Item:         txn.Item,
			Payments:     txn.Payments,
			GSTBreakdown: &gst,
			TotalAmount:  txn.TotalAmount,
		})
		if err != nil {
			o.failLine(run, SubTxMV, txn, err)
			continue
		}
		run.recordCreated(CreatedTransaction{Type: SubTxMV, Transaction: record, Items: []CartItem{txn.Item}})
	}
	return nil
}

// --- Stage 4: care package transfers ---

// TransferAllocation is the transfer queue result, indexed by the position of
// each transfer line.
type TransferAllocation struct {
	results []TransferResult
}

// resolvedTransfer is a transfer line with its queue result merged into the
// item data. It can only be built by TransferAllocation.resolve.
type resolvedTransfer struct {
	txn SingleTransaction
}

func (a TransferAllocation) resolve(i int, txn SingleTransaction) (resolvedTransfer, error) {
	if i >= len(a.results) || a.results[i].empty() {
		return resolvedTransfer{}, &MissingAllocationError{What: "MCP transfer result", Index: i}
	}
	data, ok := txn.Item.Data.(MCPTransferData)
	if !ok {
		return resolvedTransfer{}, fmt.Errorf("cart item %q is not a care package transfer", txn.Item.ID)
	}
	r := a.results[i]
	data.MCPID1 = r.MCPID1
	data.MCPID2 = r.MCPID2
	data.IsNew = r.IsNew
	data.Amount = r.Amount
	txn.Item.Data = data
	return resolvedTransfer{txn: txn}, nil
}

func (t resolvedTransfer) request(env Envelope) LineRequest {
	return LineRequest{
		Envelope:    env,
		Item:        t.txn.Item,
		Payments:    t.txn.Payments,
		TotalAmount: t.txn.TotalAmount,
	}
}

func (o *Orchestrator) submitMCPTransfers(ctx context.Context, run *Run, data ProcessedTransactionData, env Envelope) error {
	txns := data.MCPTransferTransactions
	if len(txns) == 0 {
		return nil
	}
	run.setOperation("Processing care package transfer queue...")

	results, err := o.gateway.QueueTransfers(ctx, TransferQueueRequest{Envelope: env, Transfers: queueEntries(txns)})
	if err != nil {
		run.recordError("Transfer queue: " + err.Error())
		if o.opts.FailFastOnBatchError {
			o.failAll(run, SubTxMCPTransfer, txns, err)
			return nil
		}
	}
	alloc := TransferAllocation{results: results}

	for i, txn := range txns {
		if err := ctx.Err(); err != nil {
			return err
		}
		run.setOperation(fmt.Sprintf("Creating MCP transfer transaction %d/%d...", i+1, len(txns)))

		resolved, err := alloc.resolve(i, txn)
		if err != nil {
			o.failLine(run, SubTxMCPTransfer, txn, err)
			continue
		}
		record, err := o.gateway.CreateMCPTransfer(ctx, resolved.request(env))
		if err != nil {
			o.failLine(run, SubTxMCPTransfer, txn, err)
			continue
		}
		run.recordCreated(CreatedTransaction{Type: SubTxMCPTransfer, Transaction: record, Items: []CartItem{resolved.txn.Item}})
	}
	return nil
}

// --- Stage 5: voucher transfers ---

// mintedVoucher is a voucher transfer line paired with the voucher the
// transfer service created for it.
type mintedVoucher struct {
	txn          SingleTransaction
	newVoucherID int64
}

func (m mintedVoucher) request(env Envelope) LineRequest {
	return LineRequest{
		Envelope:     env,
		Item:         m.txn.Item,
		Payments:     m.txn.Payments,
		TotalAmount:  m.txn.TotalAmount,
		NewVoucherID: m.newVoucherID,
	}
}

func voucherTransferRequest(txn SingleTransaction, env Envelope) (VoucherTransferRequest, error) {
	data, ok := txn.Item.Data.(MVTransferData)
	if !ok {
		return VoucherTransferRequest{}, fmt.Errorf("cart item %q is not a voucher transfer", txn.Item.ID)
	}
	names := make([]string, 0, len(data.OldVouchers))
	for _, v := range data.OldVouchers {
		names = append(names, v.MemberVoucherName)
	}
	remarks := txn.Item.Remarks
	if remarks == "" {
		remarks = env.Remarks
	}
	return VoucherTransferRequest{
		MemberName:          data.MemberName,
		VoucherTemplateName: data.VoucherTemplateName,
		Price:               data.Price,
		FreeOfCharge:        data.FreeOfCharge,
		IsBypass:            data.IsBypass,
		OldVoucherNames:     names,
		OldVoucherDetails:   data.OldVouchers,
		CreatedBy:           env.CreatedBy,
		UpdatedBy:           env.HandledBy,
		Remarks:             remarks,
		CreatedAt:           env.CreatedAt,
	}, nil
}

func (o *Orchestrator) mintVoucher(ctx context.Context, txn SingleTransaction, env Envelope) (mintedVoucher, error) {
	req, err := voucherTransferRequest(txn, env)
	if err != nil {
		return mintedVoucher{}, err
	}
	result, err := o.gateway.TransferVoucher(ctx, req)
	if err != nil {
		return mintedVoucher{}, err
	}
	if !result.Success {
		if result.Message != "" {
			return mintedVoucher{}, errors.New(result.Message)
		}
		return mintedVoucher{}, errors.New(voucherTransferFailed)
	}
	if result.NewVoucherID <= 0 {
		return mintedVoucher{}, errors.New("voucher transfer returned no new voucher id")
	}
	return mintedVoucher{txn: txn, newVoucherID: result.NewVoucherID}, nil
}

func (o *Orchestrator) submitMVTransfers(ctx context.Context, run *Run, data ProcessedTransactionData, env Envelope) error {
	txns := data.MVTransferTransactions
	for i, txn := range txns {
		if err := ctx.Err(); err != nil {
			return err
		}
		run.setOperation(fmt.Sprintf("Creating MV transfer transaction %d/%d...", i+1, len(txns)))

		minted, err := o.mintVoucher(ctx, txn, env)
		if err != nil {
			o.failLine(run, SubTxMVTransfer, txn, err)
			continue
		}
		record, err := o.gateway.CreateMVTransfer(ctx, minted.request(env))
		if err != nil {
			o.failLine(run, SubTxMVTransfer, txn, err)
			continue
		}
		run.recordCreated(CreatedTransaction{Type: SubTxMVTransfer, Transaction: record, Items: []CartItem{txn.Item}})
	}
	return nil
}

// --- Helpers ---

func (o *Orchestrator) failLine(run *Run, t SubTransactionType, txn SingleTransaction, err error) {
	line := txn
	run.recordFailed(FailedTransaction{
		Type:  t,
		Error: err.Error(),
		Line:  &line,
	}, fmt.Sprintf("%s (%s): %s", t.Label(), txn.Item.Name(), err.Error()))
}

func (o *Orchestrator) failAll(run *Run, t SubTransactionType, txns []SingleTransaction, err error) {
	for _, txn := range txns {
		o.failLine(run, t, txn, err)
	}
}

func queueEntries(txns []SingleTransaction) []QueueEntry {
	entries := make([]QueueEntry, len(txns))
	for i, txn := range txns {
		entries[i] = QueueEntry{Position: i, Item: txn.Item, TotalAmount: txn.TotalAmount}
	}
	return entries
}
