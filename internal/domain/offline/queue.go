package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"possync/internal/core/apperror"
	"possync/internal/core/failure"
	"possync/internal/core/kv"
	"possync/internal/domain/sale"
	"possync/pkg/logger"
)

const (
	queueKey   = "pending_sales"
	corruptKey = "pending_sales_corrupt"
)

// ErrDrainInProgress is returned by Drain when another drain is running.
var ErrDrainInProgress = errors.New("offline queue: drain already in progress")

// Oracle answers whether an invoice number is already recorded remotely.
type Oracle interface {
	Exists(ctx context.Context, invoiceNumber, companyID string) (bool, error)
}

// Queue is the durable FIFO of pending sales, stored as one JSON array.
type Queue struct {
	store     kv.Store
	oracle    Oracle
	processor sale.Processor
	assigner  sale.InvoiceAssigner
	now       func() time.Time

	mu       sync.Mutex
	draining atomic.Bool
}

// Option customizes a Queue.
type Option func(*Queue)

// WithClock overrides the time source for EnqueuedAt.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// NewQueue creates a queue.
func NewQueue(store kv.Store, oracle Oracle, processor sale.Processor, assigner sale.InvoiceAssigner, opts ...Option) *Queue {
	q := &Queue{
		store:     store,
		oracle:    oracle,
		processor: processor,
		assigner:  assigner,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// load reads the queue. Caller must hold q.mu.
// A corrupt value is set aside under corruptKey and the queue starts empty.
func (q *Queue) load(ctx context.Context) ([]PendingSaleRecord, error) {
	var records []PendingSaleRecord
	err := kv.GetJSON(ctx, q.store, queueKey, &records)
	switch {
	case err == nil:
		return records, nil
	case errors.Is(err, kv.ErrNotFound):
		return nil, nil
	}

	raw, readErr := q.store.Get(ctx, queueKey)
	if readErr != nil {
		return nil, fmt.Errorf("read offline queue: %w", readErr)
	}
	logger.Error(ctx, "offline queue corrupt, starting empty",
		"error", err,
		"bytes", len(raw),
	)
	if putErr := q.store.Put(ctx, corruptKey, raw); putErr != nil {
		logger.Error(ctx, "failed to preserve corrupt offline queue", "error", putErr)
	}
	return nil, nil
}

// save replaces the queue. Caller must hold q.mu.
func (q *Queue) save(ctx context.Context, records []PendingSaleRecord) error {
	if records == nil {
		records = []PendingSaleRecord{}
	}
	return kv.PutJSON(ctx, q.store, queueKey, records)
}

// Enqueue appends rec durably. A record for an invoice number that is already
// queued is ignored.
func (q *Queue) Enqueue(ctx context.Context, rec PendingSaleRecord) error {
	if rec.InvoiceNumber == "" {
		return apperror.NewValidation("pending sale has no invoice number")
	}
	if rec.SaleRequest.CompanyID == "" {
		return apperror.NewValidation("pending sale has no company")
	}
	rec.SaleRequest = rec.SaleRequest.Clone()
	if rec.EnqueuedAt.IsZero() {
		rec.EnqueuedAt = q.now().UTC()
	}
	if rec.StoreID == "" {
		rec.StoreID = rec.SaleRequest.StoreID
	}
	if rec.TotalAmount.IsZero() {
		rec.TotalAmount = rec.SaleRequest.Total()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	records, err := q.load(ctx)
	if err != nil {
		return err
	}
	for _, existing := range records {
		if existing.key() == rec.key() {
			return nil
		}
	}
	records = append(records, rec)
	if err := q.save(ctx, records); err != nil {
		return fmt.Errorf("persist offline queue: %w", err)
	}

	logger.Info(ctx, "sale queued for replay",
		"company_id", rec.CompanyID(),
		"invoice_number", rec.InvoiceNumber,
		"queue_length", len(records),
	)
	return nil
}

// Pending returns the queued records in FIFO order.
func (q *Queue) Pending(ctx context.Context) ([]PendingSaleRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Len returns the number of queued records.
func (q *Queue) Len(ctx context.Context) (int, error) {
	records, err := q.Pending(ctx)
	return len(records), err
}

// Draining reports whether a drain is running.
func (q *Queue) Draining() bool {
	return q.draining.Load()
}

type outcome int

const (
	outcomeSubmitted outcome = iota
	outcomeAlreadyPresent
	outcomeFailed
)

// Drain replays every queued record in FIFO order. A record whose invoice
// number already exists remotely is dropped without resubmission; a record
// that fails stays queued and the drain moves on. Per-record errors are
// combined into the returned error.
//
// Only one drain runs at a time; a concurrent call returns ErrDrainInProgress.
func (q *Queue) Drain(ctx context.Context) (DrainReport, error) {
	if !q.draining.CompareAndSwap(false, true) {
		return DrainReport{}, ErrDrainInProgress
	}
	defer q.draining.Store(false)

	q.mu.Lock()
	snapshot, err := q.load(ctx)
	q.mu.Unlock()
	if err != nil {
		return DrainReport{}, err
	}

	var (
		report  DrainReport
		errs    error
		done    = make(map[string]bool, len(snapshot))
		updated = make(map[string]PendingSaleRecord)
	)

	for _, rec := range snapshot {
		if ctxErr := ctx.Err(); ctxErr != nil {
			errs = multierr.Append(errs, ctxErr)
			break
		}
		report.Processed++

		res, err := q.replay(ctx, &rec)
		switch res {
		case outcomeSubmitted:
			report.Submitted++
			done[rec.key()] = true
		case outcomeAlreadyPresent:
			report.AlreadyPresent++
			done[rec.key()] = true
		default:
			report.Failed++
			rec.Attempts++
			rec.LastError = err.Error()
			updated[rec.key()] = rec
			errs = multierr.Append(errs, fmt.Errorf("invoice %s: %w", rec.InvoiceNumber, err))

			fields := []any{
				"company_id", rec.CompanyID(),
				"invoice_number", rec.InvoiceNumber,
				"attempts", rec.Attempts,
				"error", err,
			}
			if failure.IsNetwork(err) {
				logger.Warn(ctx, "pending sale replay failed, will retry", fields...)
			} else {
				logger.Error(ctx, "pending sale rejected on replay, needs attention", fields...)
			}
		}
	}

	// Records enqueued while draining are kept; handled ones are removed.
	persistCtx := context.WithoutCancel(ctx)
	q.mu.Lock()
	current, err := q.load(persistCtx)
	if err == nil {
		kept := current[:0]
		for _, rec := range current {
			if done[rec.key()] {
				continue
			}
			if upd, ok := updated[rec.key()]; ok {
				rec = upd
			}
			kept = append(kept, rec)
		}
		report.Remaining = len(kept)
		err = q.save(persistCtx, kept)
	}
	q.mu.Unlock()
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("persist offline queue: %w", err))
	}

	if report.Processed > 0 {
		logger.Info(ctx, "offline queue drained",
			"processed", report.Processed,
			"submitted", report.Submitted,
			"already_present", report.AlreadyPresent,
			"failed", report.Failed,
			"remaining", report.Remaining,
		)
	}
	return report, errs
}

func (q *Queue) replay(ctx context.Context, rec *PendingSaleRecord) (outcome, error) {
	companyID := rec.CompanyID()

	exists, err := q.oracle.Exists(ctx, rec.InvoiceNumber, companyID)
	if err != nil {
		return outcomeFailed, err
	}
	if exists {
		logger.Info(ctx, "pending sale already recorded remotely, dropping",
			"company_id", companyID,
			"invoice_number", rec.InvoiceNumber,
		)
		return outcomeAlreadyPresent, nil
	}

	if rec.SaleID == "" {
		saleID, err := q.processor.Submit(ctx, rec.SaleRequest)
		if err != nil {
			return outcomeFailed, err
		}
		rec.SaleID = saleID
	}

	if err := q.assigner.AttachInvoice(ctx, companyID, rec.SaleID, rec.InvoiceNumber); err != nil {
		return outcomeFailed, err
	}
	return outcomeSubmitted, nil
}
