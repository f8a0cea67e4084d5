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
)

type options struct {
	FromDriver string `long:"from-driver" default:"sqlite" description:"Driver of the database to copy from (sqlite or postgres)"`
	FromURL    string `long:"from-url" description:"Database to copy url and url_meta rows from; schema only when empty"`
	BatchSize  int    `long:"batch-size" default:"1000" description:"Rows per transaction while copying"`
}

func main() {
	var opts options
	c, err := cfg.Load(os.Args[1:], &opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if c == nil {
		return
	}

	cfg.SetupLogging(c, "db-migrate")

	if err := run(c, opts); err != nil {
		slog.Error("Migration failed", "error", err)
		os.Exit(1)
	}
}

func run(c *cfg.Cfg, opts options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fromURL := os.ExpandEnv(opts.FromURL)
	if fromURL != "" && database.SameDatabase(opts.FromDriver, fromURL, c.DBDriver, c.DBURL) {
		return fmt.Errorf("source and target are the same database: %s", fromURL)
	}

	dst, err := database.Connect(ctx, c.DBDriver, c.DBURL)
	if err != nil {
		return err
	}
	defer dst.Close()

	if fromURL == "" {
		fmt.Println("Schema is up to date")
		return nil
	}

	src, err := database.Open(ctx, opts.FromDriver, fromURL)
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer src.Close()

	slog.Info("Copying rows", "from", src.Dialect().Name, "to", dst.Dialect().Name, "batch", opts.BatchSize)
	stats, err := database.Copy(ctx, src, dst, opts.BatchSize)
	if err != nil {
		return err
	}

	fmt.Printf("Copied %d urls and %d metadata rows (%d metadata rows without url skipped)\n",
		stats.URLs, stats.Meta, stats.SkippedMeta)
	return nil
}
