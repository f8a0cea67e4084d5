package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LastChange returns the change marker, a unix timestamp of the most
// recent committed write. Consumers only compare it for inequality.
func (db *DB) LastChange(ctx context.Context) (int64, error) {
	var last int64
	err := db.QueryRowContext(ctx, db.dialect.Rebind(lastChangeSQL)).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read change marker: %w", err)
	}
	return last, nil
}

// MarkChange overwrites the change marker outside of any transaction.
// Concurrent writers race and the last one wins.
func (db *DB) MarkChange(ctx context.Context, at time.Time) error {
	if _, err := db.ExecContext(ctx, db.dialect.Rebind(markChangeSQL), at.Unix()); err != nil {
		return fmt.Errorf("failed to mark change: %w", err)
	}
	return nil
}
