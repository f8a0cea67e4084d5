package database

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// ReportRepository serves the aggregate queries behind the generated pages
type ReportRepository struct {
	db *DB
}

func NewReportRepository(db *DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// RecentByChannel groups sightings by channel and URL, keeping groups last
// seen after since.
func (r *ReportRepository) RecentByChannel(ctx context.Context, since int64) ([]AggregateRow, error) {
	return r.recent(ctx, since, "u.channel", "u.channel", "u.url")
}

// RecentUniq groups sightings by URL alone, keeping groups last seen after
// since.
func (r *ReportRepository) RecentUniq(ctx context.Context, since int64) ([]AggregateRow, error) {
	return r.recent(ctx, since, r.db.dialect.GroupConcat("u.channel"), "u.url")
}

func (r *ReportRepository) recent(ctx context.Context, since int64, channelExpr string, groupBy ...string) ([]AggregateRow, error) {
	d := r.db.dialect
	query, args, err := d.builder().
		Select(
			"min(u.id) AS id",
			"min(u.seen) AS seen_first",
			"max(u.seen) AS seen_last",
			"count(u.seen) AS seen_count",
			channelExpr+" AS channels",
			d.GroupConcat("u.nick")+" AS nicks",
			"u.url",
			"max(m.title) AS title",
		).
		From("url AS u").
		Join("url_meta AS m ON m.url_id = u.id").
		GroupBy(groupBy...).
		Having(sq.Gt{"max(u.seen)": since}).
		OrderBy("max(u.seen) DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build report query: %w", err)
	}

	return queryAggregates(ctx, r.db, query, args)
}

// aggregateScan is one aggregate result row as the database returns it.
type aggregateScan struct {
	ID        int64          `db:"id"`
	SeenFirst int64          `db:"seen_first"`
	SeenLast  int64          `db:"seen_last"`
	SeenCount int64          `db:"seen_count"`
	Channels  sql.NullString `db:"channels"`
	Nicks     sql.NullString `db:"nicks"`
	URL       string         `db:"url"`
	Title     sql.NullString `db:"title"`
}

func queryAggregates(ctx context.Context, db *DB, query string, args []any) ([]AggregateRow, error) {
	var scanned []aggregateScan
	if err := db.x.SelectContext(ctx, &scanned, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query urls: %w", err)
	}

	result := make([]AggregateRow, len(scanned))
	for i, s := range scanned {
		result[i] = AggregateRow{
			ID:        s.ID,
			SeenFirst: s.SeenFirst,
			SeenLast:  s.SeenLast,
			SeenCount: s.SeenCount,
			Channels:  splitUnique(s.Channels.String),
			Nicks:     splitUnique(s.Nicks.String),
			URL:       s.URL,
			Title:     s.Title.String,
		}
	}

	return result, nil
}

// splitUnique splits a space separated aggregate into sorted distinct words.
func splitUnique(s string) []string {
	words := strings.Fields(s)
	slices.Sort(words)
	return slices.Compact(words)
}
