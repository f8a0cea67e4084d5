// Package harvest turns irssi channel logs into url rows. Existing log
// content can be replayed with inferred timestamps before the files are
// followed live.
package harvest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lysyi3m/url-harvest/app/database"
	"github.com/lysyi3m/url-harvest/app/metrics"
	"github.com/lysyi3m/url-harvest/app/tail"
)

// Source delivers live lines for the files registered with Add.
type Source interface {
	Add(path string, offset int64) error
	Run(ctx context.Context) error
	Lines() <-chan tail.Line
	Errors() <-chan error
}

type Config struct {
	LogDir      string
	LogPattern  string
	NickPattern string
	URLPattern  string
	Blacklist   []string
	ReadHistory bool
	TxSize      int
	Retry       Retry
	Location    *time.Location
}

type Harvester struct {
	cfg       Config
	files     []LogFile
	channels  *ChannelMap
	clock     *ClockEngine
	extractor *Extractor
	store     database.Store
	source    Source
	metrics   *metrics.Metrics
	now       func() time.Time
}

// New scans the log directory and compiles all patterns. Any error here is
// a configuration error.
func New(cfg Config, store database.Store, source Source, m *metrics.Metrics) (*Harvester, error) {
	logRe, err := compileCapturing("regex_log", cfg.LogPattern)
	if err != nil {
		return nil, err
	}

	extractor, err := NewExtractor(cfg.NickPattern, cfg.URLPattern, cfg.Blacklist, m)
	if err != nil {
		return nil, err
	}

	files, channels, err := ScanDir(cfg.LogDir, logRe)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		slog.Info("Found log file", "file", f.Name, "channel", f.Channel)
	}

	return &Harvester{
		cfg:       cfg,
		files:     files,
		channels:  channels,
		clock:     NewClockEngine(cfg.Location),
		extractor: extractor,
		store:     store,
		source:    source,
		metrics:   m,
		now:       time.Now,
	}, nil
}

func (h *Harvester) Files() []LogFile {
	return h.files
}

// Run replays history when configured, then processes live lines until ctx
// is done.
func (h *Harvester) Run(ctx context.Context) error {
	if h.cfg.ReadHistory {
		if err := h.replayAll(ctx); err != nil {
			return err
		}
	} else {
		for _, f := range h.files {
			if err := h.source.Add(f.Path, -1); err != nil {
				return err
			}
		}
	}

	return h.live(ctx)
}

func (h *Harvester) replayAll(ctx context.Context) error {
	slog.Info("Reading history...", "files", len(h.files))
	start := time.Now()
	writer := NewBatchWriter(h.store, h.cfg.TxSize, h.cfg.Retry, h.metrics)
	defer writer.Abort()

	for _, f := range h.files {
		offset, err := h.replay(ctx, writer, f)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			// The rest of its history would otherwise arrive as live lines.
			slog.Error("Failed to replay log file, not tailing it", "file", f.Path, "offset", offset, "error", err)
			continue
		}

		// Registered only now so lines appended during replay are
		// picked up from where replay stopped.
		if err := h.source.Add(f.Path, offset); err != nil {
			return err
		}
	}

	slog.Info("History read completed", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// replay processes every complete line of f and returns the byte offset
// just past the last one. Write failures skip the event and replay goes on;
// only open and read failures or cancellation end it early.
func (h *Harvester) replay(ctx context.Context, writer *BatchWriter, f LogFile) (int64, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	clock := h.clock.Start(f.Found)
	reader := bufio.NewReader(file)
	var offset int64

	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return offset, fmt.Errorf("failed to read %s: %w", f.Path, err)
		}
		offset += int64(len(line))

		text := trimEOL(line)
		h.metrics.LineRead("replay")
		clock = h.clock.Observe(clock, text)

		for _, ev := range h.extractor.Run(text, f.Channel, clock) {
			if err := writer.Write(ctx, ev); err != nil {
				if ctx.Err() != nil {
					return offset, ctx.Err()
				}
				slog.Error("Skipped url", "file", f.Path, "url", ev.URL, "error", err)
				h.metrics.InsertDropped()
			}
		}
	}

	if err := writer.Flush(ctx); err != nil {
		if ctx.Err() != nil {
			return offset, ctx.Err()
		}
		slog.Error("Failed to commit replayed urls", "file", f.Path, "error", err)
	}
	return offset, nil
}

func (h *Harvester) live(ctx context.Context) error {
	slog.Info("Starting live processing...")
	writer := NewBatchWriter(h.store, 1, h.cfg.Retry, h.metrics)
	defer writer.Abort()

	done := make(chan error, 1)
	go func() { done <- h.source.Run(ctx) }()

	lines, errs := h.source.Lines(), h.source.Errors()
	for {
		select {
		case <-ctx.Done():
			<-done
			return nil

		case err := <-errs:
			slog.Error("Tailing stopped for file", "error", err)
			h.metrics.TailError()

		case line, ok := <-lines:
			if !ok {
				return <-done
			}
			h.metrics.LineRead("live")
			channel := h.channels.Lookup(line.Path)
			for _, ev := range h.extractor.Run(line.Text, channel, h.now()) {
				if err := writer.Write(ctx, ev); err != nil {
					if ctx.Err() != nil {
						break
					}
					slog.Error("Failed to store url", "url", ev.URL, "error", err)
				}
			}
		}
	}
}

func trimEOL(line string) string {
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}
