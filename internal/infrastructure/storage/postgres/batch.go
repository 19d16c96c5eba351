package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errNoTx = errors.New("batch operations require a transaction in context")

// BatchInserter bulk-loads rows with the COPY protocol.
type BatchInserter struct {
	txManager *TxManager
}

// NewBatchInserter creates a new batch inserter.
func NewBatchInserter(txManager *TxManager) *BatchInserter {
	return &BatchInserter{txManager: txManager}
}

// CopyFromSlice copies rows into table inside the current transaction.
func (b *BatchInserter) CopyFromSlice(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	tx := b.txManager.GetTx(ctx)
	if tx == nil {
		return 0, errNoTx
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}

// BatchQuery is one statement of a batch.
type BatchQuery struct {
	SQL  string
	Args []any
}

// BatchExecutor sends several statements in one round-trip.
type BatchExecutor struct {
	txManager *TxManager
}

// NewBatchExecutor creates a new batch executor.
func NewBatchExecutor(txManager *TxManager) *BatchExecutor {
	return &BatchExecutor{txManager: txManager}
}

// ExecuteBatch runs queries in order inside the current transaction and
// returns one command tag per query.
func (e *BatchExecutor) ExecuteBatch(ctx context.Context, queries []BatchQuery) ([]pgconn.CommandTag, error) {
	tx := e.txManager.GetTx(ctx)
	if tx == nil {
		return nil, errNoTx
	}

	batch := &pgx.Batch{}
	for _, q := range queries {
		batch.Queue(q.SQL, q.Args...)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	tags := make([]pgconn.CommandTag, 0, len(queries))
	for i := range queries {
		tag, err := results.Exec()
		if err != nil {
			return tags, fmt.Errorf("batch query %d: %w", i, err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}
