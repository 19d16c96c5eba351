package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"possync/pkg/logger"
)

var tracer = otel.Tracer("possync/tx")

// TxOptions configures transaction behavior.
type TxOptions struct {
	// IsolationLevel: pgx.Serializable, pgx.RepeatableRead, pgx.ReadCommitted
	IsolationLevel pgx.TxIsoLevel

	// AccessMode: pgx.ReadWrite, pgx.ReadOnly
	AccessMode pgx.TxAccessMode

	// StatementTimeout bounds every statement inside the transaction.
	StatementTimeout time.Duration
}

// DefaultTxOptions returns read-committed, read-write with a 15s statement timeout.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel:   pgx.ReadCommitted,
		AccessMode:       pgx.ReadWrite,
		StatementTimeout: 15 * time.Second,
	}
}

// Querier is satisfied by both the pool and an open transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxManager runs functions inside a transaction carried in the context.
type TxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager creates a new transaction manager.
func NewTxManager(pool *Pool) *TxManager {
	return &TxManager{pool: pool.Pool}
}

type txKey struct{}

// RunInTransaction executes fn within a transaction with default options.
// A transaction already present in ctx is reused.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransactionWithOptions(ctx, DefaultTxOptions(), fn)
}

// ReadOnly executes fn in a read-only transaction, giving fn a consistent snapshot.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	opts := DefaultTxOptions()
	opts.AccessMode = pgx.ReadOnly
	opts.IsolationLevel = pgx.RepeatableRead
	return m.RunInTransactionWithOptions(ctx, opts, fn)
}

// RunInTransactionWithOptions executes fn with custom transaction options.
func (m *TxManager) RunInTransactionWithOptions(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	if m.GetTx(ctx) != nil {
		return fn(ctx)
	}

	ctx, span := tracer.Start(ctx, "transaction",
		trace.WithAttributes(
			attribute.String("tx.isolation", string(opts.IsolationLevel)),
			attribute.String("tx.access", string(opts.AccessMode)),
		))
	defer span.End()

	err := m.run(ctx, opts, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (m *TxManager) run(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   opts.IsolationLevel,
		AccessMode: opts.AccessMode,
	})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if opts.StatementTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", opts.StatementTimeout.Milliseconds())); err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		// Roll back even when ctx was cancelled.
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetTx returns the transaction in ctx, or nil.
func (m *TxManager) GetTx(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// GetQuerier returns the transaction in ctx if any, otherwise the pool.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if tx := m.GetTx(ctx); tx != nil {
		return tx
	}
	return m.pool
}
