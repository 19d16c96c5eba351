package checkout

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"possync/internal/core/apperror"
	"possync/internal/core/failure"
	"possync/internal/core/types"
	"possync/internal/domain/duplicate"
	"possync/internal/domain/offline"
	"possync/internal/domain/sale"
	"possync/internal/domain/sequence"
	"possync/pkg/logger"
)

var tracer = otel.Tracer("possync/checkout")

// DefaultCompensationTimeout bounds compensating calls made after the
// caller's context was cancelled.
const DefaultCompensationTimeout = 10 * time.Second

// Reservations is the invoice number allocator.
type Reservations interface {
	Reserve(ctx context.Context, companyID string) (sequence.ReservedInvoice, error)
	Commit(ctx context.Context, r sequence.ReservedInvoice)
	Revert(ctx context.Context, r sequence.ReservedInvoice)
}

// DuplicateChecker flags probable resubmissions.
type DuplicateChecker interface {
	Check(ctx context.Context, req sale.Request, companyID, storeID string) duplicate.Verdict
}

// Enqueuer stores a sale for later replay.
type Enqueuer interface {
	Enqueue(ctx context.Context, rec offline.PendingSaleRecord) error
}

// Deps are the collaborators of the orchestrator. Stock is optional.
type Deps struct {
	Reservations Reservations
	Duplicates   DuplicateChecker
	Processor    sale.Processor
	Assigner     sale.InvoiceAssigner
	Queue        Enqueuer
	Stock        sale.StockChecker
}

// Config tunes the orchestrator.
type Config struct {
	CompensationTimeout time.Duration
	Classify            failure.Classifier
}

// Options apply to a single submission.
type Options struct {
	// ConfirmDuplicate skips the duplicate check after the cashier confirmed
	// the sale is not a resubmission.
	ConfirmDuplicate bool
}

// Result describes how a submission ended.
type Result struct {
	State         State
	InvoiceNumber string
	SaleID        string
	Total         types.Money
	DuplicateOf   *sale.RecordedSale
	Trail         []State
}

// Orchestrator runs the submission pipeline.
type Orchestrator struct {
	deps Deps
	cfg  Config
}

// New creates an orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.CompensationTimeout <= 0 {
		cfg.CompensationTimeout = DefaultCompensationTimeout
	}
	if cfg.Classify == nil {
		cfg.Classify = failure.Classify
	}
	return &Orchestrator{deps: deps, cfg: cfg}
}

// Submit runs req through validation, duplicate check, reservation, remote
// submission and invoice attachment.
//
// A network failure during submission is not an error for the cashier: the
// reservation is kept, the sale is queued and the result state is Queued.
// Every other failure returns the pipeline to Idle after compensating and
// yields an *apperror.AppError. Compensation runs even when ctx is cancelled;
// a sale queued because of the cancellation returns the Queued result together
// with ctx.Err().
func (o *Orchestrator) Submit(ctx context.Context, req sale.Request, opts Options) (Result, error) {
	ctx, span := tracer.Start(ctx, "checkout.submit",
		trace.WithAttributes(
			attribute.String("company.id", req.CompanyID),
			attribute.String("store.id", req.StoreID),
			attribute.Int("sale.lines", len(req.Items)),
		))
	defer span.End()

	req = req.Clone()
	r := newRun()
	res, err := o.submit(ctx, r, req, opts)
	res.Trail = r.trail
	res.State = r.state
	res.Total = req.Total()

	span.SetAttributes(attribute.String("checkout.state", string(r.state)))
	if res.InvoiceNumber != "" {
		span.SetAttributes(attribute.String("invoice.number", res.InvoiceNumber))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (o *Orchestrator) step(ctx context.Context, r *run, next State) {
	r.to(next)
	trace.SpanFromContext(ctx).AddEvent(string(next))
}

func (o *Orchestrator) submit(ctx context.Context, r *run, req sale.Request, opts Options) (Result, error) {
	companyID, storeID := req.CompanyID, req.StoreID

	o.step(ctx, r, Validating)
	if err := o.validate(ctx, req); err != nil {
		o.step(ctx, r, Idle)
		return Result{}, err
	}

	o.step(ctx, r, DuplicateChecking)
	if !opts.ConfirmDuplicate {
		if v := o.deps.Duplicates.Check(ctx, req, companyID, storeID); v.IsDuplicate {
			o.step(ctx, r, Idle)
			var matchID, matchInvoice string
			if v.Match != nil {
				matchID, matchInvoice = v.Match.ID, v.Match.InvoiceNumber
			}
			return Result{DuplicateOf: v.Match}, apperror.NewDuplicateSuspected(matchID, matchInvoice)
		}
	}

	o.step(ctx, r, Reserving)
	reservation, err := o.deps.Reservations.Reserve(ctx, companyID)
	if err != nil {
		o.step(ctx, r, Idle)
		return Result{}, err
	}

	o.step(ctx, r, Submitting)
	saleID, err := o.deps.Processor.Submit(ctx, req)
	if err != nil {
		cctx, cancel := o.compensationContext(ctx)
		defer cancel()

		if o.cfg.Classify(err) == failure.Network {
			return o.queue(ctx, cctx, r, req, reservation, err)
		}

		o.deps.Reservations.Revert(cctx, reservation)
		o.step(ctx, r, Idle)
		logger.Warn(ctx, "sale rejected",
			"invoice_number", reservation.InvoiceNumber,
			"error", err,
		)
		return Result{}, rejection(err)
	}

	o.step(ctx, r, Finalizing)
	invoice, err := o.finalize(ctx, req, saleID, reservation)
	if err != nil {
		o.step(ctx, r, Idle)
		return Result{SaleID: saleID}, err
	}

	o.step(ctx, r, Completed)
	logger.Info(ctx, "sale completed",
		"sale_id", saleID,
		"invoice_number", invoice,
	)
	return Result{InvoiceNumber: invoice, SaleID: saleID}, nil
}

// compensationContext outlives a cancelled caller context for a bounded time.
func (o *Orchestrator) compensationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.cfg.CompensationTimeout)
}

func (o *Orchestrator) validate(ctx context.Context, req sale.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if o.deps.Stock == nil {
		return nil
	}

	wanted := make(map[string]types.Quantity, len(req.Items))
	var order []string
	for _, item := range req.Items {
		if _, seen := wanted[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		total, err := wanted[item.ProductID].Add(item.Quantity)
		if err != nil {
			return apperror.NewValidation("quantity out of range").WithDetail("product_id", item.ProductID)
		}
		wanted[item.ProductID] = total
	}

	for _, productID := range order {
		available, err := o.deps.Stock.Available(ctx, req.StoreID, productID)
		if err != nil {
			if o.cfg.Classify(err) == failure.Network {
				// Offline sales are accepted; the remote procedure rechecks stock on replay.
				logger.Warn(ctx, "stock check unavailable, continuing",
					"product_id", productID,
					"error", err,
				)
				return nil
			}
			return fmt.Errorf("check stock for %s: %w", productID, err)
		}
		if available < wanted[productID] {
			return apperror.NewInsufficientStock(productID, wanted[productID].String(), available.String())
		}
	}
	return nil
}

// queue keeps the reservation and hands the sale to the offline queue. The
// record is persisted before the reservation is committed, so a committed
// number always has either a remote sale or a queued record behind it.
func (o *Orchestrator) queue(ctx, cctx context.Context, r *run, req sale.Request, reservation sequence.ReservedInvoice, cause error) (Result, error) {
	rec := offline.PendingSaleRecord{
		InvoiceNumber: reservation.InvoiceNumber,
		Sequence:      reservation.Sequence,
		SaleRequest:   req,
		StoreID:       req.StoreID,
		TotalAmount:   req.Total(),
	}
	if err := o.deps.Queue.Enqueue(cctx, rec); err != nil {
		o.deps.Reservations.Revert(cctx, reservation)
		o.step(ctx, r, Idle)
		logger.Error(ctx, "remote unreachable and sale could not be queued",
			"invoice_number", reservation.InvoiceNumber,
			"submit_error", cause,
			"error", err,
		)
		return Result{}, apperror.NewNetworkFailure("queue sale", fmt.Errorf("%w (submit: %v)", err, cause))
	}
	o.deps.Reservations.Commit(cctx, reservation)

	o.step(ctx, r, Queued)
	logger.Warn(ctx, "remote unreachable, sale queued",
		"invoice_number", reservation.InvoiceNumber,
		"error", cause,
	)
	return Result{InvoiceNumber: reservation.InvoiceNumber}, ctx.Err()
}

// finalize attaches the invoice number to the recorded sale. When that write
// fails the reservation is replaced once by a fresh one; if the second write
// also fails the sale is left without an invoice number and the failure is
// raised as CRITICAL_ASSIGNMENT_FAILURE.
func (o *Orchestrator) finalize(ctx context.Context, req sale.Request, saleID string, reservation sequence.ReservedInvoice) (string, error) {
	companyID := req.CompanyID

	err := o.deps.Assigner.AttachInvoice(ctx, companyID, saleID, reservation.InvoiceNumber)
	if err == nil {
		o.deps.Reservations.Commit(ctx, reservation)
		return reservation.InvoiceNumber, nil
	}

	cctx, cancel := o.compensationContext(ctx)
	defer cancel()

	logger.Warn(ctx, "invoice attachment failed, retrying with a fresh number",
		"sale_id", saleID,
		"invoice_number", reservation.InvoiceNumber,
		"error", err,
	)
	o.deps.Reservations.Revert(cctx, reservation)

	fresh, rerr := o.deps.Reservations.Reserve(cctx, companyID)
	if rerr != nil {
		return "", o.critical(ctx, saleID, reservation.InvoiceNumber, fmt.Errorf("reserve replacement: %w (attach: %v)", rerr, err))
	}

	if err := o.deps.Assigner.AttachInvoice(cctx, companyID, saleID, fresh.InvoiceNumber); err != nil {
		o.deps.Reservations.Revert(cctx, fresh)
		return "", o.critical(ctx, saleID, fresh.InvoiceNumber, err)
	}

	o.deps.Reservations.Commit(cctx, fresh)
	logger.Info(ctx, "invoice attached on retry",
		"sale_id", saleID,
		"invoice_number", fresh.InvoiceNumber,
		"abandoned_invoice_number", reservation.InvoiceNumber,
	)
	return fresh.InvoiceNumber, nil
}

func (o *Orchestrator) critical(ctx context.Context, saleID, invoiceNumber string, err error) error {
	logger.Error(ctx, "sale recorded without invoice number",
		"alert", true,
		"sale_id", saleID,
		"invoice_number", invoiceNumber,
		"error", err,
	)
	return apperror.NewCriticalAssignment(saleID, invoiceNumber, err)
}

// rejection surfaces a logic-class remote failure as a validation error,
// keeping the remote message.
func rejection(err error) error {
	if _, ok := apperror.AsAppError(err); ok {
		return err
	}
	return apperror.NewRejected(err.Error()).WithCause(err)
}
