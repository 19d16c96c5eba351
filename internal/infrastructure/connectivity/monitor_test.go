package connectivity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	mu    sync.Mutex
	err   error
	calls atomic.Int32
}

func (p *fakePinger) Ping(context.Context) error {
	p.calls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakePinger) fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func TestMonitor_Transitions(t *testing.T) {
	p := &fakePinger{}
	m := NewMonitor(p, Config{})
	assert.False(t, m.Online(), "offline until the first probe")

	var seen []bool
	m.Subscribe(func(online bool) { seen = append(seen, online) })

	ctx := context.Background()
	assert.True(t, m.Probe(ctx))
	assert.True(t, m.Probe(ctx))

	p.fail(errors.New("connection refused"))
	assert.False(t, m.Probe(ctx))
	assert.False(t, m.Online())

	p.fail(nil)
	m.Probe(ctx)

	assert.Equal(t, []bool{true, false, true}, seen, "only transitions are published")
}

func TestMonitor_Unsubscribe(t *testing.T) {
	m := NewMonitor(&fakePinger{}, Config{})

	calls := 0
	unsubscribe := m.Subscribe(func(bool) { calls++ })
	unsubscribe()

	m.Probe(context.Background())
	assert.Zero(t, calls)
}

func TestMonitor_SubscriberPanicDoesNotStopOthers(t *testing.T) {
	m := NewMonitor(&fakePinger{}, Config{})

	var got atomic.Bool
	m.Subscribe(func(bool) { panic("boom") })
	m.Subscribe(func(online bool) { got.Store(online) })

	require.NotPanics(t, func() { m.Probe(context.Background()) })
	assert.True(t, got.Load())
}

func TestMonitor_StartProbesPeriodically(t *testing.T) {
	p := &fakePinger{}
	m := NewMonitor(p, Config{Interval: 10 * time.Millisecond, ProbeTimeout: time.Second})

	m.Start(context.Background())
	defer m.Stop()

	assert.Eventually(t, func() bool { return p.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.True(t, m.Online())
}

func TestMonitor_StopIsIdempotent(t *testing.T) {
	m := NewMonitor(&fakePinger{}, Config{Interval: time.Hour})
	m.Stop()
	m.Start(context.Background())
	m.Stop()
	m.Stop()
}
