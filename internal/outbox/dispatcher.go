package outbox

import (
	"context"
	"log"
	"time"

	"github.com/lenticket/ticketing/internal/clock"
	"github.com/lenticket/ticketing/internal/model"
)

// Store is the dispatcher's view of the outbox table.
// *repository.OutboxRepo implements it.
type Store interface {
	LockPendingBatch(ctx context.Context, now time.Time, limit int) ([]model.OutboxEvent, error)
	MarkPublished(ctx context.Context, eventID string, now time.Time) error
	MarkRetryOrFail(ctx context.Context, e *model.OutboxEvent, publishErr error, now time.Time) error
}

// Sender publishes one message to the broker.  *Publisher implements it.
type Sender interface {
	Publish(ctx context.Context, topic, key string, body []byte) error
}

// DispatcherConfig carries the drain tunables.
type DispatcherConfig struct {
	Interval  time.Duration // poll period
	BatchSize int           // rows claimed per poll
}

// Dispatcher drains due PENDING outbox events to the broker with
// at-least-once semantics: an event is only marked PUBLISHED after the
// broker accepted it, and any failure re-schedules the row with backoff.
type Dispatcher struct {
	store  Store
	sender Sender
	clk    clock.Clock
	cfg    DispatcherConfig
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(store Store, sender Sender, clk clock.Clock, cfg DispatcherConfig) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 300 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Dispatcher{store: store, sender: sender, clk: clk, cfg: cfg}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drainOnce(ctx)
		}
	}
}

// drainOnce claims one batch and pushes it out.  Per-event failures only
// affect that event; the rest of the batch still goes through.
func (d *Dispatcher) drainOnce(ctx context.Context) {
	now := d.clk.Now()
	batch, err := d.store.LockPendingBatch(ctx, now, d.cfg.BatchSize)
	if err != nil {
		log.Printf("outbox: claim batch failed: %v", err)
		return
	}
	if len(batch) == 0 {
		return
	}

	var published, retried, failed int
	for i := range batch {
		e := &batch[i]
		if err := d.sender.Publish(ctx, e.Topic, e.EventKey, e.Payload); err != nil {
			if mErr := d.store.MarkRetryOrFail(ctx, e, err, d.clk.Now()); mErr != nil {
				log.Printf("outbox: mark retry failed for event=%s: %v", e.EventID, mErr)
				continue
			}
			if e.Status == model.OutboxFailed {
				failed++
				log.Printf("outbox: event %s failed permanently after %d attempts: %v", e.EventID, e.RetryCount, err)
			} else {
				retried++
			}
			continue
		}
		if err := d.store.MarkPublished(ctx, e.EventID, d.clk.Now()); err != nil {
			// The broker has the message but the row stays PENDING: the
			// event will be re-published.  At-least-once, by construction.
			log.Printf("outbox: mark published failed for event=%s: %v", e.EventID, err)
			continue
		}
		published++
	}
	log.Printf("outbox: batch done total=%d published=%d retried=%d failed=%d", len(batch), published, retried, failed)
}
