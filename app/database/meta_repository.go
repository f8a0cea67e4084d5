package database

import (
	"context"
	"fmt"
	"time"
)

// MetaRepository handles url_meta writes
type MetaRepository struct {
	db *DB
}

func NewMetaRepository(db *DB) *MetaRepository {
	return &MetaRepository{db: db}
}

// AddMeta stores metadata for one url row and marks the change in the
// same transaction.
func (r *MetaRepository) AddMeta(ctx context.Context, m Meta) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.InsertMeta(ctx, m); err != nil {
		return err
	}
	if err := tx.MarkChange(ctx, time.Now()); err != nil {
		return err
	}

	return tx.Commit()
}

// RemoveMeta deletes the metadata of url row urlID so it gets fetched again.
func (r *MetaRepository) RemoveMeta(ctx context.Context, urlID int64) (int64, error) {
	d := r.db.dialect
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, d.Rebind("DELETE FROM url_meta WHERE url_id = ?"), urlID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove url meta: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count removed meta: %w", err)
	}

	if _, err := tx.ExecContext(ctx, d.Rebind(markChangeSQL), time.Now().Unix()); err != nil {
		return 0, fmt.Errorf("failed to mark change: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit meta removal: %w", err)
	}
	return n, nil
}
