// Package pages renders the static URL log pages and the RSS feed from the
// recent sightings in the database.
package pages

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/lysyi3m/url-harvest/app/database"
	"github.com/lysyi3m/url-harvest/app/metrics"
	"github.com/lysyi3m/url-harvest/app/poll"
)

type Config struct {
	TemplateDir string
	HTMLDir     string
	// Skip lists template file names that are not pages, such as the
	// search API fragments sharing the directory.
	Skip []string
	// Timezones maps template file names to their display zone. The "*"
	// entry applies to templates without their own.
	Timezones map[string]*time.Location
	Location  *time.Location
	Expire    time.Duration
	PollIdle  time.Duration
	PollBusy  time.Duration
	RSS       RSSConfig
	Version   string
}

// PageData is what every page template receives.
type PageData struct {
	LastChange int64
	Rows       []database.AggregateRow
	NRows      int
	UniqRows   []database.AggregateRow
	UniqNRows  int
}

type Generator struct {
	cfg     Config
	reports database.ReportReader
	ledger  poll.Ledger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewGenerator(cfg Config, reports database.ReportReader, ledger poll.Ledger, m *metrics.Metrics) *Generator {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Generator{cfg: cfg, reports: reports, ledger: ledger, metrics: m, now: time.Now}
}

// Run regenerates the pages whenever the change marker moves, until ctx is
// done. Failed generations are logged and retried on the next change.
func (g *Generator) Run(ctx context.Context) error {
	slog.Info("Starting page generator", "template_dir", g.cfg.TemplateDir, "html_dir", g.cfg.HTMLDir, "expire", g.cfg.Expire)
	return poll.Live{
		Ledger: g.ledger,
		Idle:   g.cfg.PollIdle,
		Busy:   g.cfg.PollBusy,
		Work: func(ctx context.Context) error {
			if _, err := g.Generate(ctx); err != nil {
				slog.Error("Page generation failed", "error", err)
			}
			return nil
		},
	}.Run(ctx)
}

// Generate renders every page template and the RSS feed once and returns
// the number of files written.
func (g *Generator) Generate(ctx context.Context) (int, error) {
	start := g.now()
	since := start.Add(-g.cfg.Expire).Unix()

	rows, err := g.reports.RecentByChannel(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("failed to read channel report: %w", err)
	}
	slog.Info("Got rows", "count", len(rows))

	uniq, err := g.reports.RecentUniq(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("failed to read unique report: %w", err)
	}
	slog.Info("Got uniq rows", "count", len(uniq))

	data := PageData{
		LastChange: start.Unix(),
		Rows:       rows,
		NRows:      len(rows),
		UniqRows:   uniq,
		UniqNRows:  len(uniq),
	}

	names, err := g.templates()
	if err != nil {
		return 0, err
	}

	written := 0
	for _, name := range names {
		if err := g.render(name, data); err != nil {
			return written, err
		}
		written++
	}

	if g.cfg.RSS.File != "" {
		feed := RSS(g.cfg.RSS, g.cfg.Version, uniq, start.In(g.cfg.Location))
		if err := WriteFileAtomic(g.cfg.RSS.File, feed); err != nil {
			return written, err
		}
		written++
	}

	took := g.now().Sub(start)
	g.metrics.PagesGenerated(written, took)
	slog.Info("Pages generated", "files", written, "took", took)
	return written, nil
}

func (g *Generator) templates() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(g.cfg.TemplateDir, "*"+TemplateSuffix))
	if err != nil {
		return nil, fmt.Errorf("failed to find templates: %w", err)
	}

	var names []string
	for _, path := range paths {
		name := filepath.Base(path)
		if slices.Contains(g.cfg.Skip, name) {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		slog.Warn("No page templates found", "template_dir", g.cfg.TemplateDir)
	}
	return names, nil
}

func (g *Generator) render(name string, data PageData) error {
	tpl, err := LoadTemplate(g.cfg.TemplateDir, name, g.location(name))
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render template %s: %w", name, err)
	}

	out := filepath.Join(g.cfg.HTMLDir, OutputName(name))
	if err := WriteFileAtomic(out, buf.Bytes()); err != nil {
		return err
	}
	slog.Debug("Page written", "template", name, "file", out, "bytes", buf.Len())
	return nil
}

// location picks the zone for a template: its own entry, then "*", then
// the process default.
func (g *Generator) location(name string) *time.Location {
	if loc, ok := g.cfg.Timezones[name]; ok {
		return loc
	}
	if loc, ok := g.cfg.Timezones["*"]; ok {
		return loc
	}
	return g.cfg.Location
}

// WriteFileAtomic writes data to a temporary file next to path and renames
// it into place, so readers never see a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename %s to %s: %w", tmpName, path, err)
	}
	return nil
}
