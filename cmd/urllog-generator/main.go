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
	"github.com/lysyi3m/url-harvest/app/metrics"
	"github.com/lysyi3m/url-harvest/app/pages"
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

	cfg.SetupLogging(c, "urllog-generator")

	if err := run(c); err != nil {
		slog.Error("Page generator stopped", "error", err)
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

	generator := pages.NewGenerator(pages.Config{
		TemplateDir: c.TemplateDir,
		HTMLDir:     c.HTMLDir,
		Skip: []string{
			c.TplSearchIndex,
			c.TplSearchResultHeader,
			c.TplSearchResultRow,
			c.TplSearchResultFooter,
		},
		Timezones: c.TemplateTimezone,
		Location:  c.Location,
		Expire:    c.URLExpire,
		PollIdle:  c.PollIdle,
		PollBusy:  c.PollBusy,
		RSS: pages.RSSConfig{
			File:  c.RSSFile,
			Title: c.RSSTitle,
			Link:  c.RSSLink,
		},
		Version: c.Version,
	}, database.NewReportRepository(db), db, m)

	return generator.Run(ctx)
}
