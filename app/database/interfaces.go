package database

import (
	"context"
	"time"
)

// Store opens write transactions.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a single write transaction. A failed InsertURL leaves the
// transaction usable so the caller may retry the same row.
type Tx interface {
	InsertURL(ctx context.Context, u URL) (int64, error)
	InsertMeta(ctx context.Context, m Meta) (int64, error)
	MarkChange(ctx context.Context, at time.Time) error
	Commit() error
	Rollback() error
}

type ChangeLedger interface {
	LastChange(ctx context.Context) (int64, error)
	MarkChange(ctx context.Context, at time.Time) error
}

type PendingLister interface {
	ListWithoutMeta(ctx context.Context, limit int, order Order) ([]PendingURL, error)
}

type MetaWriter interface {
	AddMeta(ctx context.Context, m Meta) error
}

type ReportReader interface {
	RecentByChannel(ctx context.Context, since int64) ([]AggregateRow, error)
	RecentUniq(ctx context.Context, since int64) ([]AggregateRow, error)
}

type URLSearcher interface {
	Search(ctx context.Context, f SearchFilter) ([]AggregateRow, error)
	RemoveURL(ctx context.Context, id int64) (int64, error)
}

type MetaRemover interface {
	RemoveMeta(ctx context.Context, urlID int64) (int64, error)
}
