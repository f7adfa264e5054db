package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/lenticket/ticketing/internal/clock"
	"github.com/lenticket/ticketing/internal/model"
)

// Settlement is the consumer's write surface.  *repository.PaymentRepo
// implements it.
type Settlement interface {
	InsertDedup(ctx context.Context, eventID string, now time.Time) (bool, error)
	DeleteDedup(ctx context.Context, eventID string) error
	MarkPaidForSeat(ctx context.Context, scheduleID uint64, seatNo string, userID uint64, now time.Time) (bool, error)
}

// ConsumerConfig carries the settlement consumer tunables.
type ConsumerConfig struct {
	URL      string        // broker URL
	MaxAge   time.Duration // skip events older than this; 0 disables
	Prefetch int           // unacked message window
}

// Consumer is the downstream settlement worker: it consumes confirm
// handoffs, dedupes them, and completes any pending payment order for the
// seat.  It runs a reconnect loop and keeps going through broker restarts.
type Consumer struct {
	settle Settlement
	clk    clock.Clock
	cfg    ConsumerConfig
}

// NewConsumer wires a settlement consumer.
func NewConsumer(settle Settlement, clk clock.Clock, cfg ConsumerConfig) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 50
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 2 * time.Minute
	}
	return &Consumer{settle: settle, clk: clk, cfg: cfg}
}

// Run consumes until ctx is cancelled, re-dialing with capped backoff after
// any broker failure.
func (c *Consumer) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := amqp.Dial(c.cfg.URL)
		if err != nil {
			log.Printf("settlement: dial failed: %v; retrying in %s", err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := c.consumeLoop(ctx, conn); err != nil {
			log.Printf("settlement: consume loop ended: %v; reconnecting", err)
		}
		_ = conn.Close()
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	if _, err := ch.QueueDeclare(model.ConfirmTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(model.ConfirmTopic, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			if retryable := c.handle(ctx, d.Body); retryable {
				_ = d.Nack(false, true)
			} else {
				_ = d.Ack(false)
			}
		}
	}
}

// handle processes one confirm handoff.  The return value says whether the
// message should be redelivered: malformed, stale or duplicate events never
// are; storage failures are, after the dedup marker is rolled back.
func (c *Consumer) handle(ctx context.Context, body []byte) (retryable bool) {
	var evt model.ConfirmRequested
	if err := json.Unmarshal(body, &evt); err != nil {
		log.Printf("settlement: skip malformed payload: %v", err)
		return false
	}
	if evt.EventID == "" || evt.ScheduleID == 0 || evt.UserID == 0 || evt.SeatNo == "" {
		log.Printf("settlement: skip event with missing fields: %+v", evt)
		return false
	}

	now := c.clk.Now()
	if c.cfg.MaxAge > 0 && !evt.ConfirmedAt.IsZero() && now.Sub(evt.ConfirmedAt) > c.cfg.MaxAge {
		log.Printf("settlement: skip stale event=%s confirmedAt=%s", evt.EventID, evt.ConfirmedAt)
		return false
	}

	fresh, err := c.settle.InsertDedup(ctx, evt.EventID, now)
	if err != nil {
		log.Printf("settlement: dedup insert failed for event=%s: %v", evt.EventID, err)
		return true
	}
	if !fresh {
		return false // duplicate delivery
	}

	paid, err := c.settle.MarkPaidForSeat(ctx, evt.ScheduleID, evt.SeatNo, evt.UserID, now)
	if err != nil {
		// Roll the dedup marker back so redelivery can retry the write.
		if dErr := c.settle.DeleteDedup(ctx, evt.EventID); dErr != nil {
			log.Printf("settlement: dedup rollback failed for event=%s: %v", evt.EventID, dErr)
		}
		log.Printf("settlement: settle failed for event=%s: %v", evt.EventID, err)
		return true
	}
	if paid {
		log.Printf("settlement: order paid for schedule=%d seat=%s user=%d", evt.ScheduleID, evt.SeatNo, evt.UserID)
	} else {
		log.Printf("settlement: confirm recorded without pending order, schedule=%d seat=%s user=%d", evt.ScheduleID, evt.SeatNo, evt.UserID)
	}
	return false
}
