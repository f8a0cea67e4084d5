// Package poll implements the change-marker driven loops shared by the
// metadata enricher and the page generator.
package poll

import (
	"context"
	"log/slog"
	"time"
)

// Ledger reads the shared change marker.
type Ledger interface {
	LastChange(ctx context.Context) (int64, error)
}

type Live struct {
	Ledger Ledger
	Idle   time.Duration
	Busy   time.Duration
	// Work runs once per observed marker change.
	Work func(ctx context.Context) error
}

// Run polls the ledger until ctx is done. While the marker is unchanged it
// sleeps Idle; after each unit of work it sleeps Busy. The first poll
// always runs Work. Marker read errors are logged and retried, Work errors
// end the loop.
func (l Live) Run(ctx context.Context) error {
	var latest int64
	first := true

	for {
		last, err := l.Ledger.LastChange(ctx)
		switch {
		case err != nil:
			slog.Warn("Failed to read change marker", "error", err)
			if !sleep(ctx, l.Idle) {
				return nil
			}
			continue

		case !first && last <= latest:
			slog.Debug("No changes", "last_change", last)
			if !sleep(ctx, l.Idle) {
				return nil
			}
			continue
		}

		first = false
		latest = last
		slog.Debug("Change detected", "last_change", last)

		if err := l.Work(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if !sleep(ctx, l.Busy) {
			return nil
		}
	}
}

// Backlog calls work with limit until it reports fewer items than limit,
// pausing between full batches. It returns the total processed.
func Backlog(ctx context.Context, limit int, pause time.Duration, work func(ctx context.Context, limit int) (int, error)) (int, error) {
	total := 0
	for {
		n, err := work(ctx, limit)
		total += n
		if err != nil {
			return total, err
		}
		if n < limit {
			return total, nil
		}
		if !sleep(ctx, pause) {
			return total, ctx.Err()
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
