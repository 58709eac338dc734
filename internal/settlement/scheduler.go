package settlement

import (
	"context"
	"time"

	"trailsbuddy/internal/logger"
)

// Scheduler drives the settlement pass on a fixed interval from a single
// goroutine, so two passes never overlap.
type Scheduler struct {
	settler  *Settler
	interval time.Duration
}

func NewScheduler(settler *Settler, interval time.Duration) *Scheduler {
	return &Scheduler{settler: settler, interval: interval}
}

// Run blocks until ctx is cancelled. The first pass happens immediately so
// contests that ended while the process was down are not delayed a full
// interval.
func (s *Scheduler) Run(ctx context.Context) {
	logger.Info("settlement scheduler started", "interval", s.interval.String())

	s.settler.SettleDue(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("settlement scheduler stopped")
			return
		case <-ticker.C:
			s.settler.SettleDue(ctx)
		}
	}
}
