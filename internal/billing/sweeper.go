package billing

// sweeper.go runs the overdue sweep in the background so invoices that are
// never listed still become overdue. Listing keeps sweeping on its own; the
// background loop only narrows the window in which a stored row lags behind
// the clock.

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically runs Engine.Sweep.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
}

// NewSweeper returns a sweeper for e. An interval of zero or less disables it.
func NewSweeper(e *Engine, interval time.Duration) *Sweeper {
	return &Sweeper{engine: e, interval: interval}
}

// Enabled reports whether Run does anything.
func (s *Sweeper) Enabled() bool { return s.interval > 0 }

// Run sweeps immediately and then every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	slog.Info("overdue sweeper started", "interval", s.interval)

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("overdue sweeper stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	start := time.Now()
	n, err := s.engine.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("overdue sweep failed", "error", err)
		}
		return
	}
	slog.Debug("overdue sweep completed",
		"marked", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
