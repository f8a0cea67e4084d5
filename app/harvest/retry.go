package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var ErrGaveUp = errors.New("gave up")

// Retry runs an operation up to Attempts times with a fixed Delay between
// failures. A zero Delay retries immediately.
type Retry struct {
	Attempts int
	Delay    time.Duration
	OnRetry  func(attempt int, err error)
}

// Do returns nil on the first success, ctx.Err() if ctx ends during a
// delay, and an error wrapping ErrGaveUp once all attempts failed.
func (r Retry) Do(ctx context.Context, op func() error) error {
	attempts := max(r.Attempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		slog.Warn("Write failed, retrying", "attempt", attempt, "of", attempts, "delay", r.Delay, "error", err)
		if r.OnRetry != nil {
			r.OnRetry(attempt, err)
		}

		if r.Delay > 0 {
			timer := time.NewTimer(r.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrGaveUp, attempts, err)
}
