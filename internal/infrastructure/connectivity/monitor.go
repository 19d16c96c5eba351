// Package connectivity tracks whether the remote sale store is reachable.
package connectivity

import (
	"context"
	"sync"
	"time"

	"possync/pkg/logger"
)

// Pinger checks reachability of the remote store. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config controls probe cadence.
type Config struct {
	Interval     time.Duration
	ProbeTimeout time.Duration
}

// DefaultConfig probes every five seconds.
func DefaultConfig() Config {
	return Config{Interval: 5 * time.Second, ProbeTimeout: 2 * time.Second}
}

// Monitor probes the remote store periodically and notifies subscribers on
// every online/offline transition. It starts out offline until the first probe.
type Monitor struct {
	pinger Pinger
	cfg    Config

	mu     sync.RWMutex
	online bool
	subs   map[int]func(bool)
	nextID int

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewMonitor creates a monitor. Zero config fields fall back to DefaultConfig.
func NewMonitor(p Pinger, cfg Config) *Monitor {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	return &Monitor{pinger: p, cfg: cfg, subs: make(map[int]func(bool))}
}

// Online reports the result of the latest probe.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Subscribe registers fn for transitions and returns a function removing it.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Probe runs one check and publishes a transition if the state changed.
func (m *Monitor) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	err := m.pinger.Ping(probeCtx)
	cancel()

	m.set(ctx, err == nil, err)
	return err == nil
}

func (m *Monitor) set(ctx context.Context, online bool, cause error) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	if online {
		logger.Info(ctx, "remote store reachable")
	} else {
		logger.Warn(ctx, "remote store unreachable, sales will be queued", "error", cause)
	}

	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(ctx, "connectivity subscriber panic recovered", "panic", r)
				}
			}()
			fn(online)
		}()
	}
}

// Start probes immediately and then every Interval until Stop.
func (m *Monitor) Start(ctx context.Context) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		m.Probe(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Probe(ctx)
			}
		}
	}()
}

// Stop halts probing and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.lifecycleMu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.lifecycleMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
}
