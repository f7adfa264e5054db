package service

import (
	"context"
	"log"
	"time"

	"github.com/lenticket/ticketing/internal/clock"
	"github.com/lenticket/ticketing/internal/model"
	"github.com/lenticket/ticketing/internal/store"
	"github.com/lenticket/ticketing/internal/stream"
)

// ReaperConfig carries the sweep tunables.
type ReaperConfig struct {
	Interval  time.Duration // sweep period
	BatchSize int           // max holds reclaimed per sweep
}

// Reaper reclaims lapsed holds and queue passes in a single cooperative
// loop.  It goes through the same per-key critical sections as the request
// path, so racing a late client release is safe: whoever loses the race
// observes a no-op.
type Reaper struct {
	reservations ReservationStore
	locks        store.SeatLockStore
	sweepers     []store.Sweeper
	hub          *stream.Hub
	clk          clock.Clock
	cfg          ReaperConfig
}

// NewReaper wires the reaper.  Engines that rely on key TTLs simply are not
// Sweepers and cost the loop nothing.
func NewReaper(reservations ReservationStore, locks store.SeatLockStore, hub *stream.Hub, clk clock.Clock, cfg ReaperConfig, stores ...interface{}) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	r := &Reaper{
		reservations: reservations,
		locks:        locks,
		hub:          hub,
		clk:          clk,
		cfg:          cfg,
	}
	for _, s := range stores {
		if sw, ok := s.(store.Sweeper); ok {
			r.sweepers = append(r.sweepers, sw)
		}
	}
	return r
}

// Run sweeps until ctx is cancelled.  Intended to be launched as a
// goroutine from main.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.SweepOnce(ctx); err != nil {
				log.Printf("reaper: sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("reaper: reclaimed %d expired holds", n)
			}
		}
	}
}

// SweepOnce reclaims one batch of lapsed holds and prunes expired passes.
// It returns how many holds were reclaimed.  Exposed for tests and for
// operational one-shot sweeps.
func (r *Reaper) SweepOnce(ctx context.Context) (int, error) {
	now := r.clk.Now()
	expired, err := r.reservations.ExpireBatch(ctx, now, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, eh := range expired {
		// EXPIRED goes out before the lock is freed so the seat's next HELD
		// cannot overtake it on the stream.
		uid := eh.UserID
		r.hub.Publish(model.SeatEvent{
			Type:       model.EventExpired,
			ScheduleID: eh.ScheduleID,
			SeatNo:     eh.SeatNo,
			Reserved:   false,
			UserID:     &uid,
			OccurredAt: now,
		})
		if err := r.locks.Release(ctx, eh.ScheduleID, eh.SeatNo, eh.UserID); err != nil {
			log.Printf("reaper: lock release failed for seat=%d:%s: %v", eh.ScheduleID, eh.SeatNo, err)
		}
	}
	for _, sw := range r.sweepers {
		if err := sw.Sweep(ctx); err != nil {
			log.Printf("reaper: store sweep failed: %v", err)
		}
	}
	return len(expired), nil
}
