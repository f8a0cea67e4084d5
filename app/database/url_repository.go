package database

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const searchLimit = 255

// URLRepository handles reads and removals of harvested URLs
type URLRepository struct {
	db *DB
}

func NewURLRepository(db *DB) *URLRepository {
	return &URLRepository{db: db}
}

// ListWithoutMeta returns up to limit url rows that have no metadata row.
func (r *URLRepository) ListWithoutMeta(ctx context.Context, limit int, order Order) ([]PendingURL, error) {
	dir := "ASC"
	if order == NewestFirst {
		dir = "DESC"
	}

	query, args, err := r.db.dialect.builder().
		Select("u.id", "u.url", "u.seen").
		From("url AS u").
		Where("NOT EXISTS (SELECT 1 FROM url_meta AS m WHERE m.url_id = u.id)").
		OrderBy("u.seen " + dir).
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build pending query: %w", err)
	}

	var pending []PendingURL
	if err := r.db.x.SelectContext(ctx, &pending, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list urls without meta: %w", err)
	}

	return pending, nil
}

// Search returns URLs with metadata whose fields match all patterns,
// grouped by URL and newest first.
func (r *URLRepository) Search(ctx context.Context, f SearchFilter) ([]AggregateRow, error) {
	d := r.db.dialect
	query, args, err := d.builder().
		Select(
			"min(u.id) AS id",
			"min(u.seen) AS seen_first",
			"max(u.seen) AS seen_last",
			"count(u.seen) AS seen_count",
			d.GroupConcat("u.channel")+" AS channels",
			d.GroupConcat("u.nick")+" AS nicks",
			"u.url",
			"max(m.title) AS title",
		).
		From("url AS u").
		Join("url_meta AS m ON m.url_id = u.id").
		Where(sq.And{
			sq.Like{"lower(u.channel)": likeAll(f.Channel)},
			sq.Like{"lower(u.nick)": likeAll(f.Nick)},
			sq.Like{"lower(u.url)": likeAll(f.URL)},
			sq.Like{"lower(m.title)": likeAll(f.Title)},
		}).
		GroupBy("u.url").
		OrderBy("max(u.seen) DESC").
		Limit(searchLimit).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build search query: %w", err)
	}

	return queryAggregates(ctx, r.db, query, args)
}

// RemoveURL deletes every sighting of the URL recorded under id, along
// with their metadata, and returns the number of url rows removed.
func (r *URLRepository) RemoveURL(ctx context.Context, id int64) (int64, error) {
	d := r.db.dialect
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, d.Rebind(`DELETE FROM url_meta WHERE url_id IN (
		SELECT id FROM url WHERE url IN (SELECT url FROM url WHERE id = ?))`), id); err != nil {
		return 0, fmt.Errorf("failed to remove url meta: %w", err)
	}

	res, err := tx.ExecContext(ctx, d.Rebind("DELETE FROM url WHERE url IN (SELECT url FROM url WHERE id = ?)"), id)
	if err != nil {
		return 0, fmt.Errorf("failed to remove url: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count removed urls: %w", err)
	}

	if _, err := tx.ExecContext(ctx, d.Rebind(markChangeSQL), time.Now().Unix()); err != nil {
		return 0, fmt.Errorf("failed to mark change: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit url removal: %w", err)
	}
	return n, nil
}

func likeAll(pattern string) string {
	if pattern == "" {
		return "%"
	}
	return pattern
}
