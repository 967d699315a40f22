package orders

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const sweepBatchSize = 100

// Sweeper periodically cancels PENDING orders whose payment window elapsed,
// so their reserved stock returns even if nobody ever touches them again.
// The opportunistic check in Engine.Pay still handles the common case.
type Sweeper struct {
	Engine   *Engine
	Interval time.Duration
	Log      *zap.Logger
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.Engine.SweepExpired(ctx, sweepBatchSize); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.Log.Error("expiration sweep failed", zap.Error(err))
			}
		}
	}
}
