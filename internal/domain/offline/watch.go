package offline

import (
	"context"
	"errors"

	"possync/pkg/logger"
)

// Signal reports connectivity to the remote store.
type Signal interface {
	Online() bool
	// Subscribe registers fn for online/offline transitions and returns a
	// function that removes it.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Watch drains the queue whenever signal goes from offline to online, and once
// at start when already online with records queued. A transition that arrives
// while a drain is running is dropped. It blocks until ctx is done.
func (q *Queue) Watch(ctx context.Context, signal Signal) {
	triggers := make(chan struct{}, 1)
	trigger := func() {
		if q.Draining() {
			logger.Debug(ctx, "drain trigger ignored, drain already running")
			return
		}
		select {
		case triggers <- struct{}{}:
		default:
		}
	}

	unsubscribe := signal.Subscribe(func(online bool) {
		if online {
			trigger()
		}
	})
	defer unsubscribe()

	if signal.Online() {
		if n, err := q.Len(ctx); err != nil {
			logger.Warn(ctx, "offline queue unreadable at start", "error", err)
		} else if n > 0 {
			trigger()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-triggers:
			q.drainAndLog(ctx)
		}
	}
}

func (q *Queue) drainAndLog(ctx context.Context) {
	_, err := q.Drain(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrDrainInProgress):
		logger.Debug(ctx, "drain trigger ignored, drain already running")
	default:
		logger.Warn(ctx, "offline queue drain incomplete", "error", err)
	}
}
