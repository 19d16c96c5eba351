package postgres

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	"possync/pkg/logger"
)

// InvoiceAssignedChannel is the NOTIFY channel raised when any terminal
// attaches an invoice number. The payload is the company id.
const InvoiceAssignedChannel = "invoice_assigned"

// NotificationHandler is called for each notification payload.
type NotificationHandler func(ctx context.Context, payload string)

// Listener holds a dedicated connection on LISTEN and fans notifications out
// to registered handlers. The connection is re-acquired after failures.
type Listener struct {
	pool    *pgxpool.Pool
	channel string

	handlers   []NotificationHandler
	handlersMu sync.RWMutex

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewListener creates a listener for channel.
func NewListener(pool *Pool, channel string) *Listener {
	return &Listener{pool: pool.Pool, channel: channel}
}

// OnNotify registers a handler. Handlers run sequentially on the listener goroutine.
func (l *Listener) OnNotify(h NotificationHandler) {
	l.handlersMu.Lock()
	l.handlers = append(l.handlers, h)
	l.handlersMu.Unlock()
}

// Start begins listening in the background. It does not wait for the database.
func (l *Listener) Start(ctx context.Context) {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()
	if l.started {
		return
	}
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.started = true

	l.wg.Add(1)
	go l.listenLoop()
	logger.Info(ctx, "notification listener started", "channel", l.channel)
}

// Stop cancels the listener and waits for it to exit.
func (l *Listener) Stop() {
	l.lifecycleMu.Lock()
	if !l.started {
		l.lifecycleMu.Unlock()
		return
	}
	cancel := l.cancel
	l.started = false
	l.cancel = nil
	l.lifecycleMu.Unlock()

	cancel()
	l.wg.Wait()
	logger.Info(context.Background(), "notification listener stopped", "channel", l.channel)
}

func (l *Listener) listenLoop() {
	defer l.wg.Done()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	for {
		if l.ctx.Err() != nil {
			return
		}

		if err := l.listenOnce(b); err != nil && l.ctx.Err() == nil {
			wait := b.NextBackOff()
			logger.Debug(l.ctx, "listen failed, retrying", "channel", l.channel, "retry_in", wait, "error", err)
			select {
			case <-l.ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}
}

func (l *Listener) listenOnce(b backoff.BackOff) error {
	conn, err := l.pool.Acquire(l.ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	defer func() {
		// pooled connection must not keep the subscription
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctx, "UNLISTEN "+quoteIdent(l.channel))
	}()

	if _, err := conn.Exec(l.ctx, "LISTEN "+quoteIdent(l.channel)); err != nil {
		return err
	}
	b.Reset()
	logger.Info(l.ctx, "listening for notifications", "channel", l.channel)

	for {
		n, err := conn.Conn().WaitForNotification(l.ctx)
		if err != nil {
			return err
		}
		l.dispatch(n.Payload)
	}
}

func (l *Listener) dispatch(payload string) {
	logger.Debug(l.ctx, "received notification", "channel", l.channel, "payload", payload)

	l.handlersMu.RLock()
	defer l.handlersMu.RUnlock()
	for _, h := range l.handlers {
		func(h NotificationHandler) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(l.ctx, "notification handler panic recovered", "channel", l.channel, "panic", r)
				}
			}()
			h(l.ctx, payload)
		}(h)
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
