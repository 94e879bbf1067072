package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"callcenter/internal/metrics"
)

// Outbox buffers events produced inside the gate and delivers them from a
// single goroutine, so per-user order equals commit order.
type Outbox struct {
	notifier Notifier
	logger   zerolog.Logger

	mu      sync.Mutex
	pending []Event
	wake    chan struct{}

	deliverMu sync.Mutex
}

func NewOutbox(notifier Notifier, logger zerolog.Logger) *Outbox {
	return &Outbox{
		notifier: notifier,
		logger:   logger,
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue appends events without blocking on delivery.
func (o *Outbox) Enqueue(events ...Event) {
	if len(events) == 0 {
		return
	}
	o.mu.Lock()
	o.pending = append(o.pending, events...)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Pending reports how many events wait for delivery.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Run delivers events until ctx is done, then flushes what is left.
func (o *Outbox) Run(ctx context.Context) {
	for {
		select {
		case <-o.wake:
			o.Flush(ctx)
		case <-ctx.Done():
			o.Flush(context.WithoutCancel(ctx))
			return
		}
	}
}

// Flush synchronously delivers everything pending.
func (o *Outbox) Flush(ctx context.Context) {
	o.deliverMu.Lock()
	defer o.deliverMu.Unlock()

	for {
		o.mu.Lock()
		batch := o.pending
		o.pending = nil
		o.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, ev := range batch {
			o.deliver(ctx, ev)
		}
	}
}

func (o *Outbox) deliver(ctx context.Context, ev Event) {
	if o.notifier == nil {
		return
	}
	var err error
	switch e := ev.(type) {
	case PositionChanged:
		err = o.notifier.NotifyPositionUpdate(ctx, e)
	case YourTurn:
		err = o.notifier.NotifyYourTurn(ctx, e)
	case CallAssigned:
		err = o.notifier.NotifyCallAssigned(ctx, e)
	case QueueBroadcast:
		err = o.notifier.BroadcastQueueUpdate(ctx, e)
	case CallEnded:
		err = o.notifier.NotifyCallEnded(ctx, e)
	default:
		err = fmt.Errorf("unknown event %T", ev)
	}
	if err != nil {
		metrics.NotificationFailuresTotal.WithLabelValues(ev.Name()).Inc()
		o.logger.Warn().Err(err).Str("event", ev.Name()).Msg("notification delivery failed")
		return
	}
	metrics.NotificationsTotal.WithLabelValues(ev.Name()).Inc()
}
