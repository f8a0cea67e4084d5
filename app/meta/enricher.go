// Package meta fetches the pages behind harvested URLs and stores their
// title, language and description.
package meta

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/lysyi3m/url-harvest/app/database"
	"github.com/lysyi3m/url-harvest/app/metrics"
	"github.com/lysyi3m/url-harvest/app/poll"
)

const (
	NotAvailable = "(N/A)"
	Failed       = "(Error)"

	titleMaxLen  = 400
	backlogPause = 100 * time.Millisecond
)

type Config struct {
	BacklogBatch int
	LiveBatch    int
	PollIdle     time.Duration
	PollBusy     time.Duration
}

type Enricher struct {
	cfg     Config
	urls    database.PendingLister
	meta    database.MetaWriter
	ledger  poll.Ledger
	fetcher *Fetcher
	metrics *metrics.Metrics
}

func NewEnricher(cfg Config, urls database.PendingLister, meta database.MetaWriter, ledger poll.Ledger, fetcher *Fetcher, m *metrics.Metrics) *Enricher {
	cfg.BacklogBatch = max(cfg.BacklogBatch, 1)
	cfg.LiveBatch = max(cfg.LiveBatch, 1)
	return &Enricher{cfg: cfg, urls: urls, meta: meta, ledger: ledger, fetcher: fetcher, metrics: m}
}

// Backlog processes URLs without metadata oldest first and returns once
// nothing is left.
func (e *Enricher) Backlog(ctx context.Context) error {
	slog.Info("Starting backlog processing", "batch", e.cfg.BacklogBatch)
	total, err := poll.Backlog(ctx, e.cfg.BacklogBatch, backlogPause, func(ctx context.Context, limit int) (int, error) {
		return e.Batch(ctx, limit, database.OldestFirst)
	})
	slog.Info("Backlog processing finished", "processed", total)
	return err
}

// Live processes the newest URLs without metadata whenever the change
// marker moves.
func (e *Enricher) Live(ctx context.Context) error {
	slog.Info("Starting live processing", "batch", e.cfg.LiveBatch)
	return poll.Live{
		Ledger: e.ledger,
		Idle:   e.cfg.PollIdle,
		Busy:   e.cfg.PollBusy,
		Work: func(ctx context.Context) error {
			if _, err := e.Batch(ctx, e.cfg.LiveBatch, database.NewestFirst); err != nil {
				slog.Error("Metadata batch failed", "error", err)
			}
			return nil
		},
	}.Run(ctx)
}

// Batch enriches up to limit pending URLs and returns how many it found.
// Failures of single URLs are logged and recorded as metadata.
func (e *Enricher) Batch(ctx context.Context, limit int, order database.Order) (int, error) {
	pending, err := e.urls.ListWithoutMeta(ctx, limit, order)
	if err != nil {
		return 0, fmt.Errorf("failed to list urls without metadata: %w", err)
	}
	if len(pending) == 0 {
		slog.Debug("No urls need metadata")
		return 0, nil
	}

	slog.Info("*** PROCESSING ***", "count", len(pending), "seen", time.Unix(pending[len(pending)-1].Seen, 0).Format("2006 Jan 02 15:04"))

	successCount, errorCount := 0, 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return len(pending), ctx.Err()
		}

		m := e.Describe(ctx, p)
		if err := e.meta.AddMeta(ctx, m); err != nil {
			slog.Error("URL meta update error", "url_id", p.ID, "url", p.URL, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.Info("Batch completed", "success", successCount, "errors", errorCount)
	return len(pending), nil
}

// Describe fetches p and builds its metadata row. It never fails: fetch
// and parse errors are recorded in the row itself.
func (e *Enricher) Describe(ctx context.Context, p database.PendingURL) database.Meta {
	start := time.Now()
	m := database.Meta{URLID: p.ID}

	data, err := e.fetcher.Fetch(ctx, p.URL)
	switch {
	case errors.Is(err, ErrNotText):
		slog.Debug("Content-type ignored", "url", p.URL, "error", err)
		m.Title, m.Lang, m.Description = NotAvailable, NotAvailable, NotAvailable
		e.metrics.MetaFetched("na", time.Since(start))
		return m
	case err != nil:
		slog.Warn("URL fetch error", "url", p.URL, "error", err)
		m.Title = clampTitle(fmt.Sprintf("(URL fetch error: %v)", err))
		m.Lang, m.Description = Failed, Failed
		e.metrics.MetaFetched("error", time.Since(start))
		return m
	}

	page, err := ParsePage(data, p.URL)
	if err != nil {
		m.Title = clampTitle(fmt.Sprintf("(Webpage HTML error: %v)", err))
		m.Lang, m.Description = Failed, Failed
		e.metrics.MetaFetched("error", time.Since(start))
		return m
	}

	m.Title = clampTitle(orNA(page.Title))
	m.Lang = orNA(page.Lang)
	m.Description = orNA(page.Description)
	e.metrics.MetaFetched("ok", time.Since(start))

	slog.Info("URL metadata", "id", p.ID, "url", p.URL, "lang", m.Lang, "title", m.Title)
	return m
}

func orNA(s string) string {
	if s == "" {
		return NotAvailable
	}
	return s
}

// clampTitle collapses whitespace and cuts titles longer than titleMaxLen
// bytes at a rune boundary, marking the cut with "...".
func clampTitle(title string) string {
	title = collapse(title)
	if len(title) <= titleMaxLen {
		return title
	}

	i := titleMaxLen - 8
	for i < len(title) && !utf8.RuneStart(title[i]) {
		i++
	}
	return title[:i] + "..."
}
