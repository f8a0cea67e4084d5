package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	insertURLSQL  = "INSERT INTO url (seen, channel, nick, url) VALUES (?, ?, ?, ?) RETURNING id"
	insertMetaSQL = "INSERT INTO url_meta (url_id, lang, title, description) VALUES (?, ?, ?, ?) RETURNING id"
	markChangeSQL = "UPDATE url_changed SET last = ?"
	lastChangeSQL = "SELECT last FROM url_changed LIMIT 1"
)

type writeTx struct {
	tx      *sql.Tx
	dialect Dialect
}

// Begin starts a write transaction.
func (db *DB) Begin(ctx context.Context) (Tx, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &writeTx{tx: tx, dialect: db.dialect}, nil
}

func (t *writeTx) InsertURL(ctx context.Context, u URL) (int64, error) {
	var id int64
	err := t.guarded(ctx, "url_insert", func() error {
		return t.tx.QueryRowContext(ctx, t.dialect.Rebind(insertURLSQL),
			u.Seen, u.Channel, u.Nick, u.URL).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert url: %w", err)
	}
	return id, nil
}

func (t *writeTx) InsertMeta(ctx context.Context, m Meta) (int64, error) {
	var id int64
	err := t.guarded(ctx, "meta_insert", func() error {
		return t.tx.QueryRowContext(ctx, t.dialect.Rebind(insertMetaSQL),
			m.URLID, m.Lang, m.Title, m.Description).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert url meta: %w", err)
	}
	return id, nil
}

func (t *writeTx) MarkChange(ctx context.Context, at time.Time) error {
	if _, err := t.tx.ExecContext(ctx, t.dialect.Rebind(markChangeSQL), at.Unix()); err != nil {
		return fmt.Errorf("failed to mark change: %w", err)
	}
	return nil
}

func (t *writeTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *writeTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

// guarded runs fn inside a savepoint on backends where a failed statement
// aborts the whole transaction.
func (t *writeTx) guarded(ctx context.Context, name string, fn func() error) error {
	if !t.dialect.savepoints {
		return fn()
	}

	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("%w (savepoint rollback: %v)", err, rbErr)
		}
		return err
	}
	_, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return err
}
