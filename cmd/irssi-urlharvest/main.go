package main

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/url-harvest/app/cfg"
	"github.com/lysyi3m/url-harvest/app/database"
	"github.com/lysyi3m/url-harvest/app/harvest"
	"github.com/lysyi3m/url-harvest/app/metrics"
	"github.com/lysyi3m/url-harvest/app/tail"
)

func main() {
	c, err := cfg.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if c == nil {
		// Help was shown
		return
	}

	cfg.SetupLogging(c, "irssi-urlharvest")

	if err := run(c); err != nil {
		slog.Error("Harvester stopped", "error", err)
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

	h, err := harvest.New(harvest.Config{
		LogDir:      c.IRCLogDir,
		LogPattern:  c.RegexLog,
		NickPattern: c.RegexNick,
		URLPattern:  c.RegexURL,
		Blacklist:   c.URLBlacklist,
		ReadHistory: c.ReadHistory,
		TxSize:      c.TxSize,
		Retry:       harvest.Retry{Attempts: c.RetryCount, Delay: c.RetryDelay},
		Location:    c.Location,
	}, db, tail.New(cmp.Or(c.PollBusy, time.Second)), m)
	if err != nil {
		return err
	}

	slog.Info("Harvesting", "dir", c.IRCLogDir, "files", len(h.Files()), "read_history", c.ReadHistory)
	if err := h.Run(ctx); err != nil {
		return err
	}

	slog.Info("Harvester shutdown complete")
	return nil
}
