package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type CopyStats struct {
	URLs        int
	Meta        int
	SkippedMeta int
}

// Copy transfers every url and url_meta row from src into dst, committing
// every batch rows. Target ids are assigned by dst; metadata follows its
// url row through the id mapping and is skipped when that row is missing.
func Copy(ctx context.Context, src, dst *DB, batch int) (CopyStats, error) {
	var stats CopyStats
	if batch < 1 {
		batch = 1
	}

	ids, err := copyURLs(ctx, src, dst, batch, &stats)
	if err != nil {
		return stats, err
	}

	if err := copyMeta(ctx, src, dst, batch, ids, &stats); err != nil {
		return stats, err
	}

	if err := dst.MarkChange(ctx, time.Now()); err != nil {
		return stats, err
	}

	return stats, nil
}

func copyURLs(ctx context.Context, src, dst *DB, batch int, stats *CopyStats) (map[int64]int64, error) {
	rows, err := src.x.QueryxContext(ctx, "SELECT id, seen, channel, nick, url FROM url ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to read source urls: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]int64)
	w := &batchTx{db: dst, size: batch}
	defer w.abort()

	for rows.Next() {
		var u URL
		if err := rows.StructScan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan source url: %w", err)
		}

		tx, err := w.tx(ctx)
		if err != nil {
			return nil, err
		}
		newID, err := tx.InsertURL(ctx, u)
		if err != nil {
			return nil, err
		}
		ids[u.ID] = newID
		stats.URLs++

		if err := w.step(); err != nil {
			return nil, err
		}
		if stats.URLs%batch == 0 {
			slog.Info("Copied urls", "count", stats.URLs)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read source urls: %w", err)
	}

	return ids, w.flush()
}

func copyMeta(ctx context.Context, src, dst *DB, batch int, ids map[int64]int64, stats *CopyStats) error {
	rows, err := src.x.QueryxContext(ctx, "SELECT url_id, lang, title, description FROM url_meta ORDER BY id")
	if err != nil {
		return fmt.Errorf("failed to read source meta: %w", err)
	}
	defer rows.Close()

	w := &batchTx{db: dst, size: batch}
	defer w.abort()

	for rows.Next() {
		var m Meta
		if err := rows.StructScan(&m); err != nil {
			return fmt.Errorf("failed to scan source meta: %w", err)
		}

		newID, ok := ids[m.URLID]
		if !ok {
			slog.Warn("Skipping meta for missing url", "url_id", m.URLID)
			stats.SkippedMeta++
			continue
		}
		m.URLID = newID

		tx, err := w.tx(ctx)
		if err != nil {
			return err
		}
		if _, err := tx.InsertMeta(ctx, m); err != nil {
			return err
		}
		stats.Meta++

		if err := w.step(); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read source meta: %w", err)
	}

	return w.flush()
}

// batchTx commits every size writes.
type batchTx struct {
	db      *DB
	size    int
	current Tx
	n       int
}

func (b *batchTx) tx(ctx context.Context) (Tx, error) {
	if b.current == nil {
		tx, err := b.db.Begin(ctx)
		if err != nil {
			return nil, err
		}
		b.current = tx
	}
	return b.current, nil
}

func (b *batchTx) step() error {
	b.n++
	if b.n < b.size {
		return nil
	}
	return b.flush()
}

func (b *batchTx) flush() error {
	if b.current == nil {
		return nil
	}
	tx := b.current
	b.current, b.n = nil, 0
	return tx.Commit()
}

func (b *batchTx) abort() {
	if b.current != nil {
		b.current.Rollback()
		b.current = nil
	}
}
