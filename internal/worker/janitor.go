package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/squad-service/internal/queue"
)

// Janitor prunes terminal jobs once they are older than the retention window.
type Janitor struct {
	queue     *queue.Queue
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
}

// NewJanitor builds a janitor that sweeps every interval.
func NewJanitor(q *queue.Queue, retention, interval time.Duration, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{queue: q, retention: retention, interval: interval, logger: logger}
}

// Run sweeps until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep prunes once and reports how many jobs were removed.
func (j *Janitor) Sweep(ctx context.Context) int {
	n, err := j.queue.Prune(ctx, j.retention)
	if err != nil {
		if ctx.Err() == nil {
			j.logger.Warn("prune jobs failed", zap.Error(err))
		}
		return 0
	}
	if n > 0 {
		j.logger.Debug("pruned jobs", zap.Int("count", n))
	}
	return n
}
