package service

import (
	"context"
	"time"

	"github.com/diagnosis/library-reservations/pkg/logger"
)

// Janitor removes expired bookkeeping rows.
type Janitor interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// OverdueSweeper periodically flags reservations whose return date passed.
type OverdueSweeper struct {
	reservations ReservationService
	janitor      Janitor
	interval     time.Duration
}

func NewOverdueSweeper(reservations ReservationService, janitor Janitor, interval time.Duration) *OverdueSweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &OverdueSweeper{reservations: reservations, janitor: janitor, interval: interval}
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (s *OverdueSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Sweep(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *OverdueSweeper) Sweep(ctx context.Context) {
	n, err := s.reservations.MarkOverdue(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Overdue sweep failed", "error", err)
	} else if n > 0 {
		logger.InfoContext(ctx, "Reservations marked overdue", "count", n)
	}

	if s.janitor == nil {
		return
	}
	if purged, err := s.janitor.CleanupExpired(ctx); err != nil {
		logger.WarnContext(ctx, "Idempotency cleanup failed", "error", err)
	} else if purged > 0 {
		logger.DebugContext(ctx, "Expired idempotency keys removed", "count", purged)
	}
}
