package sequence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"possync/internal/core/apperror"
	"possync/internal/core/kv"
	"possync/internal/core/numerator"
	"possync/internal/domain/sale"
	"possync/internal/domain/sale/saletest"
	"possync/internal/infrastructure/storage/local"
)

const company = "company-1"

var testDay = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

type fixture struct {
	store   *local.MemoryStore
	cache   *Cache
	remote  *saletest.Remote
	service *Service
}

func newFixture(t *testing.T, remote *saletest.Remote) *fixture {
	t.Helper()
	if remote == nil {
		remote = saletest.New()
	}
	store := local.NewMemoryStore()
	cache := NewCache(store)
	return &fixture{
		store:   store,
		cache:   cache,
		remote:  remote,
		service: NewService(cache, NewOracle(remote), DefaultConfig(), WithClock(func() time.Time { return testDay })),
	}
}

func (f *fixture) rawCache(t *testing.T) []byte {
	t.Helper()
	raw, err := f.store.Get(context.Background(), cacheKey(company))
	require.NoError(t, err)
	return raw
}

func seedInvoice(remote *saletest.Remote, seq int64) {
	remote.Seed(sale.RecordedSale{
		CompanyID:     company,
		StoreID:       "store-1",
		InvoiceNumber: numerator.Format(numerator.DefaultConfig(), testDay, seq),
	})
}

func TestReserve_DefaultFloor(t *testing.T) {
	f := newFixture(t, nil)

	r, err := f.service.Reserve(context.Background(), company)
	require.NoError(t, err)

	assert.Equal(t, int64(1000), r.Sequence)
	assert.Equal(t, "INV-20261019-001000", r.InvoiceNumber)
	assert.Equal(t, int64(DefaultFloor), r.PriorState.LastSequence)
}

func TestSync_TakesHighestSource(t *testing.T) {
	ctx := context.Background()

	t.Run("remote ahead of cache", func(t *testing.T) {
		f := newFixture(t, nil)
		seedInvoice(f.remote, 1500)
		require.NoError(t, f.cache.Write(ctx, company, State{LastSequence: 1200}))

		st := f.service.Sync(ctx, company, false)
		assert.Equal(t, int64(1500), st.LastSequence)

		persisted, err := f.cache.Read(ctx, company)
		require.NoError(t, err)
		assert.Equal(t, int64(1500), persisted.LastSequence)
	})

	t.Run("cache ahead of remote", func(t *testing.T) {
		f := newFixture(t, nil)
		seedInvoice(f.remote, 1100)
		require.NoError(t, f.cache.Write(ctx, company, State{LastSequence: 1300}))

		st := f.service.Sync(ctx, company, false)
		assert.Equal(t, int64(1300), st.LastSequence)
	})

	t.Run("remote unreachable", func(t *testing.T) {
		f := newFixture(t, nil)
		f.remote.LatestErr = saletest.ErrUnreachable
		require.NoError(t, f.cache.Write(ctx, company, State{LastSequence: 1042}))

		st := f.service.Sync(ctx, company, false)
		assert.Equal(t, int64(1042), st.LastSequence)
	})

	t.Run("corrupt cache", func(t *testing.T) {
		f := newFixture(t, nil)
		require.NoError(t, f.store.Put(ctx, cacheKey(company), []byte("{not json")))

		st := f.service.Sync(ctx, company, false)
		assert.Equal(t, DefaultFloor, st.LastSequence)
	})

	t.Run("unparseable remote number", func(t *testing.T) {
		f := newFixture(t, nil)
		f.remote.Seed(sale.RecordedSale{CompanyID: company, InvoiceNumber: "MANUAL-ENTRY"})

		st := f.service.Sync(ctx, company, false)
		assert.Equal(t, DefaultFloor, st.LastSequence)
	})
}

func TestSync_OncePerProcessUnlessForced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.service.Sync(ctx, company, false)
	seedInvoice(f.remote, 2000)

	assert.Equal(t, DefaultFloor, f.service.Sync(ctx, company, false).LastSequence)
	assert.Equal(t, int64(2000), f.service.Sync(ctx, company, true).LastSequence)
}

func TestSync_ForcedKeepsOutstandingReservations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	r1, err := f.service.Reserve(ctx, company)
	require.NoError(t, err)

	f.service.Sync(ctx, company, true)

	r2, err := f.service.Reserve(ctx, company)
	require.NoError(t, err)
	assert.Greater(t, r2.Sequence, r1.Sequence)
}

func TestReserve_UniqueUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	const n = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []string
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := f.service.Reserve(ctx, company)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers = append(numbers, r.InvoiceNumber)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, numbers, n)
	seen := make(map[string]bool, n)
	for _, num := range numbers {
		assert.False(t, seen[num], "duplicate %s", num)
		seen[num] = true
	}
}

func TestReserve_TerminalsSharingRemoteSkipTakenNumbers(t *testing.T) {
	ctx := context.Background()
	remote := saletest.New()
	a := newFixture(t, remote)
	b := newFixture(t, remote)

	// Both terminals start from the same empty remote.
	a.service.Sync(ctx, company, false)
	b.service.Sync(ctx, company, false)

	ra, err := a.service.Reserve(ctx, company)
	require.NoError(t, err)
	saleID, err := remote.Submit(ctx, sale.Request{CompanyID: company, StoreID: "store-1"})
	require.NoError(t, err)
	require.NoError(t, remote.AttachInvoice(ctx, company, saleID, ra.InvoiceNumber))

	rb, err := b.service.Reserve(ctx, company)
	require.NoError(t, err)

	assert.Equal(t, int64(1000), ra.Sequence)
	assert.Equal(t, int64(1001), rb.Sequence)
}

func TestCommit_Monotonic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	r1, err := f.service.Reserve(ctx, company)
	require.NoError(t, err)
	r2, err := f.service.Reserve(ctx, company)
	require.NoError(t, err)

	f.service.Commit(ctx, r2)
	f.service.Commit(ctx, r1)
	f.service.Commit(ctx, r2)

	st, err := f.cache.Read(ctx, company)
	require.NoError(t, err)
	assert.Equal(t, r2.Sequence, st.LastSequence)

	r3, err := f.service.Reserve(ctx, company)
	require.NoError(t, err)
	assert.Greater(t, r3.Sequence, r2.Sequence)
}

func TestRevert_RestoresPriorState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.service.Sync(ctx, company, false)
	before := f.rawCache(t)

	r, err := f.service.Reserve(ctx, company)
	require.NoError(t, err)
	f.service.Revert(ctx, r)

	assert.Equal(t, before, f.rawCache(t))

	again, err := f.service.Reserve(ctx, company)
	require.NoError(t, err)
	assert.Equal(t, r.InvoiceNumber, again.InvoiceNumber)
}

func TestRevert_SupersededLeavesGap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	r1, err := f.service.Reserve(ctx, company)
	require.NoError(t, err)
	r2, err := f.service.Reserve(ctx, company)
	require.NoError(t, err)

	f.service.Revert(ctx, r1)

	head, synced := f.service.Head(company)
	require.True(t, synced)
	assert.Equal(t, r2.Sequence, head.LastSequence)

	r3, err := f.service.Reserve(ctx, company)
	require.NoError(t, err)
	assert.Equal(t, r2.Sequence+1, r3.Sequence)
}

func TestReserve_RetryBound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.remote.ExistsHook = func(string) (bool, error) { return true, nil }

	f.service.Sync(ctx, company, false)
	before := f.rawCache(t)

	_, err := f.service.Reserve(ctx, company)
	require.Error(t, err)
	assert.True(t, apperror.IsSequenceExhausted(err))
	assert.Equal(t, DefaultMaxAttempts, f.remote.ExistsCalls)
	assert.Equal(t, before, f.rawCache(t))

	head, _ := f.service.Head(company)
	assert.Equal(t, DefaultFloor, head.LastSequence)
}

func TestReserve_SkipsCollisions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	taken := map[string]bool{
		"INV-20261019-001000": true,
		"INV-20261019-001001": true,
		"INV-20261019-001002": true,
	}
	f.remote.ExistsHook = func(n string) (bool, error) { return taken[n], nil }

	r, err := f.service.Reserve(ctx, company)
	require.NoError(t, err)
	assert.Equal(t, int64(1003), r.Sequence)
	assert.Equal(t, 4, f.remote.ExistsCalls)
}

func TestReserve_ExistenceCheckFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.remote.ExistsHook = func(string) (bool, error) { return false, saletest.ErrUnreachable }

	_, err := f.service.Reserve(ctx, company)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeNetworkFailure))
	assert.Equal(t, 1, f.remote.ExistsCalls)

	head, _ := f.service.Head(company)
	assert.Equal(t, DefaultFloor, head.LastSequence)
}

func TestReserve_SequenceDoesNotResetAcrossDays(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	day := testDay
	f.service.now = func() time.Time { return day }

	r1, err := f.service.Reserve(ctx, company)
	require.NoError(t, err)
	f.service.Commit(ctx, r1)

	day = day.Add(24 * time.Hour)
	r2, err := f.service.Reserve(ctx, company)
	require.NoError(t, err)

	assert.Equal(t, "INV-20261019-001000", r1.InvoiceNumber)
	assert.Equal(t, "INV-20261020-001001", r2.InvoiceNumber)
}

func TestCommit_CacheWriteFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	remote := saletest.New()
	store := &failingStore{Store: local.NewMemoryStore()}
	svc := NewService(NewCache(store), NewOracle(remote), DefaultConfig())

	r, err := svc.Reserve(ctx, company)
	require.NoError(t, err)

	store.failPut = true
	svc.Commit(ctx, r)

	next, err := svc.Reserve(ctx, company)
	require.NoError(t, err)
	assert.Equal(t, r.Sequence+1, next.Sequence)
}

func TestReserve_CompaniesAreIndependent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	var got []string
	for _, c := range []string{"b", "a", "b"} {
		r, err := f.service.Reserve(ctx, c)
		require.NoError(t, err)
		got = append(got, fmt.Sprintf("%s:%d", c, r.Sequence))
	}
	sort.Strings(got)
	assert.Equal(t, []string{"a:1000", "b:1000", "b:1001"}, got)
}

type failingStore struct {
	kv.Store
	failPut bool
}

func (s *failingStore) Put(ctx context.Context, key string, value []byte) error {
	if s.failPut {
		return errors.New("disk full")
	}
	return s.Store.Put(ctx, key, value)
}
