package indexer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Runner serialises indexing passes inside one process. Passes from
// different processes are not coordinated; run a single indexer instance.
type Runner struct {
	indexer *Indexer
	mu      sync.Mutex
	logger  *slog.Logger
}

func NewRunner(ix *Indexer) *Runner {
	return &Runner{
		indexer: ix,
		logger:  slog.Default().With("component", "index-runner"),
	}
}

// Trigger runs one pass, waiting for any pass already in progress.
func (r *Runner) Trigger(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexer.Run(ctx)
}

// Drain runs passes until one finds nothing left to index and returns the
// total processed.
func (r *Runner) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.Trigger(ctx)
		total += n
		if err != nil || n == 0 {
			return total, err
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
}

// Watch drains pending documents immediately and then on every tick until
// ctx is cancelled. Failed passes are logged and retried on the next tick.
func (r *Runner) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("watching for unindexed documents", "interval", interval)
	for {
		if n, err := r.Drain(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error("indexing pass failed", "indexed", n, "error", err)
		} else if n > 0 {
			r.logger.Info("indexing pass finished", "indexed", n)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("watch stopped", "reason", ctx.Err())
			return nil
		case <-ticker.C:
		}
	}
}
