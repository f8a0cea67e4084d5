package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/url-harvest/app/database"
	"github.com/lysyi3m/url-harvest/app/metrics"
)

// BatchWriter inserts events inside a transaction that is committed every
// size events and on Flush. Each commit that inserted rows also moves the
// change marker.
type BatchWriter struct {
	store   database.Store
	size    int
	retry   Retry
	metrics *metrics.Metrics
	now     func() time.Time

	tx       database.Tx
	pending  int
	inserted int
}

func NewBatchWriter(store database.Store, size int, retry Retry, m *metrics.Metrics) *BatchWriter {
	retry.OnRetry = func(int, error) { m.InsertRetried() }
	return &BatchWriter{
		store:   store,
		size:    max(size, 1),
		retry:   retry,
		metrics: m,
		now:     time.Now,
	}
}

// Write inserts ev. An event whose insert still fails after all retries is
// logged and dropped; only context cancellation and transaction errors are
// returned.
func (w *BatchWriter) Write(ctx context.Context, ev Event) error {
	if w.tx == nil {
		err := w.retry.Do(ctx, func() error {
			tx, err := w.store.Begin(ctx)
			if err != nil {
				return err
			}
			w.tx = tx
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to start batch: %w", err)
		}
	}

	var id int64
	err := w.retry.Do(ctx, func() error {
		var err error
		id, err = w.tx.InsertURL(ctx, ev.Record())
		return err
	})
	switch {
	case errors.Is(err, ErrGaveUp):
		slog.Error("GAVE UP inserting url", "channel", ev.Channel, "nick", ev.Nick, "url", ev.URL, "error", err)
		w.metrics.InsertDropped()
	case err != nil:
		return err
	default:
		slog.Debug("Inserted url", "id", id, "url", ev.URL)
		w.metrics.RowInserted()
		w.inserted++
	}

	w.pending++
	if w.pending >= w.size {
		return w.Flush(ctx)
	}
	return nil
}

// Flush commits the open transaction, if any.
func (w *BatchWriter) Flush(ctx context.Context) error {
	if w.tx == nil {
		return nil
	}
	tx, inserted := w.tx, w.inserted
	w.tx, w.pending, w.inserted = nil, 0, 0

	if inserted > 0 {
		err := w.retry.Do(ctx, func() error { return tx.MarkChange(ctx, w.now()) })
		if err != nil {
			slog.Error("Failed to mark change", "error", err)
		}
	}

	if err := tx.Commit(); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to commit %d rows: %w", inserted, err)
	}

	w.metrics.Committed()
	slog.Debug("Committed batch", "rows", inserted)
	return nil
}

// Abort rolls back the open transaction, if any.
func (w *BatchWriter) Abort() {
	if w.tx != nil {
		w.tx.Rollback()
		w.tx, w.pending, w.inserted = nil, 0, 0
	}
}
