// Package worker hosts the background recount loop that reconciles the
// availability counter against the inventory store.
package worker

import (
	"context"
	"log/slog"
	"time"
)

type EventLister interface {
	ListEvents(ctx context.Context, limit, offset int) ([]EventRef, error)
}

type EventRef struct {
	ID int64
}

type Recomputer interface {
	Recompute(ctx context.Context, eventID int64) (int64, error)
}

// Recounter periodically recomputes every event's availability count.
// Adjustments on the hot path keep the counter accurate under normal
// operation; this loop heals drift after bulk loads or store recovery.
type Recounter struct {
	events   EventLister
	recomp   Recomputer
	interval time.Duration
	logger   *slog.Logger
}

func NewRecounter(events EventLister, recomp Recomputer, interval time.Duration, logger *slog.Logger) *Recounter {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recounter{
		events:   events,
		recomp:   recomp,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled.
func (r *Recounter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.recountAll(ctx)
		}
	}
}

func (r *Recounter) recountAll(ctx context.Context) {
	const page = 100

	for offset := 0; ; offset += page {
		events, err := r.events.ListEvents(ctx, page, offset)
		if err != nil {
			r.logger.Error("recount: listing events failed", "error", err)
			return
		}
		if len(events) == 0 {
			return
		}

		for _, e := range events {
			if _, err := r.recomp.Recompute(ctx, e.ID); err != nil {
				r.logger.Warn("recount failed", "event_id", e.ID, "error", err)
			}
		}

		if len(events) < page {
			return
		}
	}
}
