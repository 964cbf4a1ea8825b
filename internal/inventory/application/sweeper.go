package application

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically reclaims pending reservations whose TTL has passed.
// It runs alongside the saga consumers; the conditional state transition in
// the engine keeps a sweep from double-releasing a reservation that a
// concurrent confirm or cancel is also resolving.
type Sweeper struct {
	log       *slog.Logger
	engine    *Engine
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewSweeper(log *slog.Logger, engine *Engine, interval time.Duration, batchSize int) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{
		log:       log,
		engine:    engine,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
	}
}

func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopping")
			return nil
		case <-t.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass. Failures are logged and do not stop the loop; an
// unreleased reservation is picked up again on the next tick.
func (s *Sweeper) Sweep(ctx context.Context) {
	expired, err := s.engine.ExpireDue(ctx, s.now().UTC(), s.batchSize)
	if err != nil {
		s.log.Error("sweep failed", "err", err)
		return
	}
	if expired > 0 {
		s.log.Info("expired reservations reclaimed", "count", expired)
	}
}
