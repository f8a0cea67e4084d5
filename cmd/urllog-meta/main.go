package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lysyi3m/url-harvest/app/cfg"
	"github.com/lysyi3m/url-harvest/app/database"
	"github.com/lysyi3m/url-harvest/app/meta"
	"github.com/lysyi3m/url-harvest/app/metrics"
)

func main() {
	c, err := cfg.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if c == nil {
		return
	}

	cfg.SetupLogging(c, "urllog-meta")

	if err := run(c); err != nil {
		slog.Error("Metadata enricher stopped", "error", err)
		os.Exit(1)
	}
}

func run(c *cfg.Cfg) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, c.DBDriver, c.DBURL)
	if err != nil {
		return err
	}
	defer db.Close()

	m := metrics.New()
	go func() {
		if err := metrics.Serve(ctx, c.MetricsListen, m); err != nil {
			slog.Error("Metrics endpoint failed", "error", err)
		}
	}()

	enricher := meta.NewEnricher(meta.Config{
		BacklogBatch: c.MetaBacklogBatch,
		LiveBatch:    c.MetaLiveBatch,
		PollIdle:     c.PollIdle,
		PollBusy:     c.PollBusy,
	},
		database.NewURLRepository(db),
		database.NewMetaRepository(db),
		db,
		meta.NewFetcher(c.MetaTimeout, c.UserAgent, c.MetaInsecureTLS),
		m,
	)

	if c.MetaBacklog {
		return enricher.Backlog(ctx)
	}
	return enricher.Live(ctx)
}
