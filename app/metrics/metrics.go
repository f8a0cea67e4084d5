// Package metrics holds the Prometheus collectors shared by the urlharvest
// tools. A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry prometheus.Gatherer

	linesRead      *prometheus.CounterVec
	urlsFound      prometheus.Counter
	urlsSkipped    prometheus.Counter
	rowsInserted   prometheus.Counter
	insertRetries  prometheus.Counter
	insertsDropped prometheus.Counter
	commits        prometheus.Counter
	tailErrors     prometheus.Counter

	metaFetched *prometheus.CounterVec
	metaFetch   prometheus.Observer

	pagesWritten prometheus.Counter
	generate     prometheus.Observer

	searches *prometheus.CounterVec
	removals *prometheus.CounterVec
}

// New registers all collectors on a fresh registry together with the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWith(reg, reg)
}

func NewWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: gatherer,

		linesRead:      f.NewCounterVec(prometheus.CounterOpts{Name: "urlharvest_lines_read_total", Help: "Log lines processed"}, []string{"mode"}),
		urlsFound:      f.NewCounter(prometheus.CounterOpts{Name: "urlharvest_urls_found_total", Help: "URLs extracted from log lines"}),
		urlsSkipped:    f.NewCounter(prometheus.CounterOpts{Name: "urlharvest_urls_blacklisted_total", Help: "URLs skipped by the blacklist"}),
		rowsInserted:   f.NewCounter(prometheus.CounterOpts{Name: "urlharvest_rows_inserted_total", Help: "URL rows inserted"}),
		insertRetries:  f.NewCounter(prometheus.CounterOpts{Name: "urlharvest_insert_retries_total", Help: "Failed insert attempts that were retried"}),
		insertsDropped: f.NewCounter(prometheus.CounterOpts{Name: "urlharvest_inserts_dropped_total", Help: "Events dropped after exhausting retries"}),
		commits:        f.NewCounter(prometheus.CounterOpts{Name: "urlharvest_commits_total", Help: "Committed write transactions"}),
		tailErrors:     f.NewCounter(prometheus.CounterOpts{Name: "urlharvest_tail_errors_total", Help: "Files dropped from tailing after an I/O error"}),

		metaFetched: f.NewCounterVec(prometheus.CounterOpts{Name: "urllog_meta_fetched_total", Help: "Metadata fetches by result"}, []string{"result"}),
		metaFetch:   f.NewHistogram(prometheus.HistogramOpts{Name: "urllog_meta_fetch_duration_seconds", Help: "Metadata fetch duration seconds", Buckets: prometheus.DefBuckets}),

		pagesWritten: f.NewCounter(prometheus.CounterOpts{Name: "urllog_pages_written_total", Help: "Rendered output files written"}),
		generate:     f.NewHistogram(prometheus.HistogramOpts{Name: "urllog_generate_duration_seconds", Help: "Page generation duration seconds", Buckets: prometheus.DefBuckets}),

		searches: f.NewCounterVec(prometheus.CounterOpts{Name: "urllog_search_requests_total", Help: "Search requests by outcome"}, []string{"outcome"}),
		removals: f.NewCounterVec(prometheus.CounterOpts{Name: "urllog_removals_total", Help: "Removal requests by kind"}, []string{"kind"}),
	}
}

func (m *Metrics) LineRead(mode string) {
	if m != nil {
		m.linesRead.WithLabelValues(mode).Inc()
	}
}

func (m *Metrics) URLFound() {
	if m != nil {
		m.urlsFound.Inc()
	}
}

func (m *Metrics) URLBlacklisted() {
	if m != nil {
		m.urlsSkipped.Inc()
	}
}

func (m *Metrics) RowInserted() {
	if m != nil {
		m.rowsInserted.Inc()
	}
}

func (m *Metrics) InsertRetried() {
	if m != nil {
		m.insertRetries.Inc()
	}
}

func (m *Metrics) InsertDropped() {
	if m != nil {
		m.insertsDropped.Inc()
	}
}

func (m *Metrics) Committed() {
	if m != nil {
		m.commits.Inc()
	}
}

func (m *Metrics) TailError() {
	if m != nil {
		m.tailErrors.Inc()
	}
}

func (m *Metrics) MetaFetched(result string, took time.Duration) {
	if m != nil {
		m.metaFetched.WithLabelValues(result).Inc()
		m.metaFetch.Observe(took.Seconds())
	}
}

func (m *Metrics) PagesGenerated(files int, took time.Duration) {
	if m != nil {
		m.pagesWritten.Add(float64(files))
		m.generate.Observe(took.Seconds())
	}
}

func (m *Metrics) Searched(outcome string) {
	if m != nil {
		m.searches.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Removed(kind string) {
	if m != nil {
		m.removals.WithLabelValues(kind).Inc()
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs a /metrics endpoint on addr until ctx is done. An empty addr
// disables it.
func Serve(ctx context.Context, addr string, m *Metrics) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
