package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/url-harvest/app/api"
	"github.com/lysyi3m/url-harvest/app/cfg"
	"github.com/lysyi3m/url-harvest/app/database"
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

	cfg.SetupLogging(c, "urllog-search")

	if err := run(c); err != nil {
		slog.Error("Search server stopped", "error", err)
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
	handler, err := api.NewHandler(
		database.NewURLRepository(db),
		database.NewMetaRepository(db),
		c.TemplateDir,
		api.SearchTemplates{
			Index:        c.TplSearchIndex,
			ResultHeader: c.TplSearchResultHeader,
			ResultRow:    c.TplSearchResultRow,
			ResultFooter: c.TplSearchResultFooter,
		},
		c.Location,
		m,
	)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         c.SearchListen,
		Handler:      api.NewServer(handler, c.APIKey, m),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "addr", c.SearchListen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down server gracefully...")
	case err := <-serverErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	slog.Info("Search server shutdown complete")
	return nil
}
