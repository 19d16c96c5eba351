package offline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"possync/internal/domain/sale"
	"possync/internal/domain/sale/saletest"
)

type fakeSignal struct {
	mu     sync.Mutex
	online bool
	subs   []func(bool)
}

func (s *fakeSignal) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *fakeSignal) Subscribe(fn func(bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
	return func() {}
}

func (s *fakeSignal) subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *fakeSignal) set(online bool) {
	s.mu.Lock()
	s.online = online
	subs := append([]func(bool){}, s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(online)
	}
}

func queueLen(t *testing.T, q *Queue) int {
	n, err := q.Len(context.Background())
	require.NoError(t, err)
	return n
}

func TestWatch_DrainsAtStartWhenOnline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote := saletest.New()
	q, _ := newQueue(remote)
	require.NoError(t, q.Enqueue(ctx, pending("INV-20261019-001000", "C1")))

	go q.Watch(ctx, &fakeSignal{online: true})

	assert.Eventually(t, func() bool { return queueLen(t, q) == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"INV-20261019-001000"}, remote.InvoiceNumbers())
}

func TestWatch_DrainsOnReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote := saletest.New()
	q, _ := newQueue(remote)
	require.NoError(t, q.Enqueue(ctx, pending("INV-20261019-001000", "C1")))

	signal := &fakeSignal{}
	go q.Watch(ctx, signal)
	require.Eventually(t, func() bool { return signal.subscribers() == 1 }, time.Second, 5*time.Millisecond)

	// Still offline: nothing happens.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, queueLen(t, q))

	signal.set(false)
	signal.set(true)

	assert.Eventually(t, func() bool { return queueLen(t, q) == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, remote.SubmitCalls)
}

func TestWatch_TransitionDuringDrainIsIgnored(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	remote := saletest.New()
	remote.SubmitHook = func(sale.Request) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	}
	q, _ := newQueue(remote)
	require.NoError(t, q.Enqueue(ctx, pending("INV-20261019-001000", "C1")))

	signal := &fakeSignal{online: true}
	go q.Watch(ctx, signal)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("drain did not start")
	}
	require.True(t, q.Draining())

	// Queued mid-drain and kept by the merge; the reconnect must not start a second pass.
	require.NoError(t, q.Enqueue(ctx, pending("INV-20261019-001001", "C2")))
	signal.set(false)
	signal.set(true)
	close(release)

	require.Eventually(t, func() bool { return !q.Draining() && queueLen(t, q) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, queueLen(t, q))
	assert.Equal(t, []string{"INV-20261019-001000"}, remote.InvoiceNumbers())
}
