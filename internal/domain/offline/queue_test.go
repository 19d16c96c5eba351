package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"possync/internal/core/apperror"
	"possync/internal/core/types"
	"possync/internal/domain/sale"
	"possync/internal/domain/sale/saletest"
	"possync/internal/domain/sequence"
	"possync/internal/infrastructure/storage/local"
)

const company = "company-1"

func pending(invoice, customer string) PendingSaleRecord {
	return PendingSaleRecord{
		InvoiceNumber: invoice,
		Sequence:      1000,
		SaleRequest: sale.Request{
			CompanyID:  company,
			StoreID:    "store-1",
			CashierID:  "cashier-1",
			CustomerID: customer,
			Items: []sale.LineItem{
				{ProductID: "P1", Quantity: types.NewQuantity(2), UnitPrice: types.MustMoney("10.00")},
			},
			Payments: []sale.Payment{{Method: "cash_usd", Amount: types.MustMoney("20.00")}},
		},
	}
}

func newQueue(remote *saletest.Remote) (*Queue, *local.MemoryStore) {
	store := local.NewMemoryStore()
	return NewQueue(store, sequence.NewOracle(remote), remote, remote), store
}

func TestDrain_InvoiceAlreadyRecordedIsDroppedWithoutResubmit(t *testing.T) {
	ctx := context.Background()
	remote := saletest.New()
	q, _ := newQueue(remote)

	require.NoError(t, q.Enqueue(ctx, pending("INV-20261019-001000", "C1")))
	remote.Seed(sale.RecordedSale{CompanyID: company, StoreID: "store-1", InvoiceNumber: "INV-20261019-001000"})

	report, err := q.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.AlreadyPresent)
	assert.Equal(t, 0, report.Remaining)
	assert.Equal(t, 0, remote.SubmitCalls)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDrain_SubmitsAndAttachesInFIFOOrder(t *testing.T) {
	ctx := context.Background()
	remote := saletest.New()
	q, _ := newQueue(remote)

	var order []string
	remote.SubmitHook = func(req sale.Request) error {
		order = append(order, req.CustomerID)
		return nil
	}

	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Enqueue(ctx, pending(fmt.Sprintf("INV-20261019-%06d", 1000+i), fmt.Sprintf("C%d", i))))
	}

	report, err := q.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"C1", "C2", "C3"}, order)
	assert.Equal(t, 3, report.Submitted)
	assert.Equal(t, []string{"INV-20261019-001001", "INV-20261019-001002", "INV-20261019-001003"}, remote.InvoiceNumbers())
}

func TestDrain_FailureKeepsRecordAndContinues(t *testing.T) {
	ctx := context.Background()
	remote := saletest.New()
	q, _ := newQueue(remote)

	remote.SubmitHook = func(req sale.Request) error {
		if req.CustomerID == "C1" {
			return saletest.ErrUnreachable
		}
		return nil
	}
	require.NoError(t, q.Enqueue(ctx, pending("INV-20261019-001000", "C1")))
	require.NoError(t, q.Enqueue(ctx, pending("INV-20261019-001001", "C2")))

	report, err := q.Drain(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, saletest.ErrUnreachable)
	assert.Equal(t, 1, report.Submitted)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Remaining)

	left, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "INV-20261019-001000", left[0].InvoiceNumber)
	assert.Equal(t, 1, left[0].Attempts)
	assert.Contains(t, left[0].LastError, "connection refused")
}

func TestDrain_AttachFailureOnlyReattachesNextTime(t *testing.T) {
	ctx := context.Background()
	remote := saletest.New()
	q, _ := newQueue(remote)

	attachErr := errors.New("i/o timeout")
	remote.AttachHook = func(string, string) error { return attachErr }
	require.NoError(t, q.Enqueue(ctx, pending("INV-20261019-001000", "C1")))

	_, err := q.Drain(ctx)
	require.Error(t, err)

	left, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.NotEmpty(t, left[0].SaleID)

	remote.AttachHook = nil
	report, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Submitted)
	assert.Equal(t, 1, remote.SubmitCalls)
	assert.Equal(t, []string{"INV-20261019-001000"}, remote.InvoiceNumbers())
}

func TestDrain_NotReentrant(t *testing.T) {
	ctx := context.Background()
	remote := saletest.New()
	q, _ := newQueue(remote)

	entered := make(chan struct{})
	release := make(chan struct{})
	remote.SubmitHook = func(sale.Request) error {
		close(entered)
		<-release
		return nil
	}
	require.NoError(t, q.Enqueue(ctx, pending("INV-20261019-001000", "C1")))

	var (
		wg     sync.WaitGroup
		report DrainReport
		err    error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		report, err = q.Drain(ctx)
	}()

	<-entered
	assert.True(t, q.Draining())
	_, second := q.Drain(ctx)
	assert.ErrorIs(t, second, ErrDrainInProgress)

	// Enqueued mid-drain, must survive the drain's final write.
	require.NoError(t, q.Enqueue(ctx, pending("INV-20261019-001001", "C2")))

	close(release)
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, 1, report.Submitted)
	assert.Equal(t, 1, remote.SubmitCalls)

	left, lerr := q.Pending(ctx)
	require.NoError(t, lerr)
	require.Len(t, left, 1)
	assert.Equal(t, "INV-20261019-001001", left[0].InvoiceNumber)
	assert.False(t, q.Draining())
}

func TestDrain_LogicRejectionStaysQueued(t *testing.T) {
	ctx := context.Background()
	remote := saletest.New()
	q, _ := newQueue(remote)
	remote.SetStock("store-1", "P1", types.NewQuantity(1))

	require.NoError(t, q.Enqueue(ctx, pending("INV-20261019-001000", "C1")))

	report, err := q.Drain(ctx)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	assert.Equal(t, 1, report.Remaining)
}

func TestEnqueue(t *testing.T) {
	ctx := context.Background()
	remote := saletest.New()
	fixed := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	q := NewQueue(local.NewMemoryStore(), sequence.NewOracle(remote), remote, remote, WithClock(func() time.Time { return fixed }))

	t.Run("fills derived fields", func(t *testing.T) {
		require.NoError(t, q.Enqueue(ctx, pending("INV-20261019-001000", "C1")))
		got, err := q.Pending(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, fixed, got[0].EnqueuedAt)
		assert.Equal(t, "store-1", got[0].StoreID)
		assert.True(t, types.MustMoney("20").Equal(got[0].TotalAmount))
	})

	t.Run("same invoice queued once", func(t *testing.T) {
		require.NoError(t, q.Enqueue(ctx, pending("INV-20261019-001000", "C1")))
		n, err := q.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("requires invoice number", func(t *testing.T) {
		err := q.Enqueue(ctx, pending("", "C1"))
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	})
}

func TestQueue_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	remote := saletest.New()
	store := local.NewMemoryStore()

	first := NewQueue(store, sequence.NewOracle(remote), remote, remote)
	require.NoError(t, first.Enqueue(ctx, pending("INV-20261019-001000", "C1")))

	second := NewQueue(store, sequence.NewOracle(remote), remote, remote)
	got, err := second.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "C1", got[0].SaleRequest.CustomerID)
	assert.Equal(t, types.NewQuantity(2), got[0].SaleRequest.Items[0].Quantity)
}

func TestQueue_CorruptStartsEmptyAndKeepsBytes(t *testing.T) {
	ctx := context.Background()
	q, store := newQueue(saletest.New())
	require.NoError(t, store.Put(ctx, queueKey, []byte("[{broken")))

	got, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	kept, err := store.Get(ctx, corruptKey)
	require.NoError(t, err)
	assert.Equal(t, "[{broken", string(kept))
}
