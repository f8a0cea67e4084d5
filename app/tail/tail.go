// Package tail follows a set of growing files and delivers their new lines
// in append order per file. Directory events from fsnotify trigger reads;
// a periodic poll covers filesystems where events are not delivered.
package tail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const readChunk = 32 * 1024

// Line is one newline-terminated line read from Path, without the line ending.
type Line struct {
	Path string
	Text string
}

type request struct {
	path   string
	offset int64
}

type Tailer struct {
	poll time.Duration

	mu      sync.Mutex
	pending []request
	wake    chan struct{}

	lines chan Line
	errs  chan error

	// owned by Run
	files map[string]*follower
	dirs  map[string]bool
}

type follower struct {
	path    string
	f       *os.File
	offset  int64
	partial []byte
}

// New creates a tailer that re-checks every file at least once per poll
// interval.
func New(poll time.Duration) *Tailer {
	if poll <= 0 {
		poll = time.Second
	}
	return &Tailer{
		poll:  poll,
		wake:  make(chan struct{}, 1),
		lines: make(chan Line),
		errs:  make(chan error, 16),
		files: make(map[string]*follower),
		dirs:  make(map[string]bool),
	}
}

// Add registers path to be followed from byte offset. A negative offset
// starts at the current end of the file. Add may be called before or while
// Run is active.
func (t *Tailer) Add(path string, offset int64) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	t.mu.Lock()
	t.pending = append(t.pending, request{path: abs, offset: offset})
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
	return nil
}

// Lines delivers tailed lines. It is closed when Run returns.
func (t *Tailer) Lines() <-chan Line {
	return t.lines
}

// Errors reports files that were dropped after an I/O error.
func (t *Tailer) Errors() <-chan error {
	return t.errs
}

// Run follows the registered files until ctx is done.
func (t *Tailer) Run(ctx context.Context) error {
	defer close(t.lines)
	defer t.closeAll()

	var events <-chan fsnotify.Event
	var watchErrs <-chan error

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("File notifications unavailable, polling only", "error", err, "interval", t.poll)
	} else {
		defer watcher.Close()
		events, watchErrs = watcher.Events, watcher.Errors
	}

	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	t.register(ctx, watcher)
	t.checkAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-t.wake:
			t.register(ctx, watcher)
			t.checkAll(ctx)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if fl, tracked := t.files[filepath.Clean(ev.Name)]; tracked {
				slog.Debug("File event", "path", ev.Name, "op", ev.Op.String())
				t.check(ctx, fl)
			}

		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			slog.Warn("File watcher error", "error", err)

		case <-ticker.C:
			t.checkAll(ctx)
		}
	}
}

func (t *Tailer) register(ctx context.Context, watcher *fsnotify.Watcher) {
	t.mu.Lock()
	reqs := t.pending
	t.pending = nil
	t.mu.Unlock()

	for _, req := range reqs {
		if _, exists := t.files[req.path]; exists {
			continue
		}

		fl := &follower{path: req.path, offset: req.offset}
		if err := fl.open(req.offset); err != nil && !errors.Is(err, fs.ErrNotExist) {
			t.fail(ctx, fl, err)
			continue
		}
		t.files[req.path] = fl
		slog.Debug("Tailing file", "path", req.path, "offset", fl.offset)

		dir := filepath.Dir(req.path)
		if watcher != nil && !t.dirs[dir] {
			if err := watcher.Add(dir); err != nil {
				slog.Warn("Failed to watch directory", "dir", dir, "error", err)
				continue
			}
			t.dirs[dir] = true
		}
	}
}

func (t *Tailer) checkAll(ctx context.Context) {
	for _, fl := range t.files {
		if ctx.Err() != nil {
			return
		}
		t.check(ctx, fl)
	}
}

// check reads whatever was appended to fl and handles truncation and
// replacement of the file on disk.
func (t *Tailer) check(ctx context.Context, fl *follower) {
	if fl.f == nil {
		// Waiting for the file to (re)appear.
		if err := fl.open(0); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				t.fail(ctx, fl, err)
			}
			return
		}
		slog.Info("Reopened file", "path", fl.path)
	}

	if err := t.drain(ctx, fl); err != nil {
		t.fail(ctx, fl, err)
		return
	}

	current, err := os.Stat(fl.path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("File removed, waiting for it to reappear", "path", fl.path)
		fl.close()
		return
	}
	if err != nil {
		t.fail(ctx, fl, err)
		return
	}

	open, err := fl.f.Stat()
	if err != nil {
		t.fail(ctx, fl, err)
		return
	}

	switch {
	case !os.SameFile(open, current):
		slog.Info("File rotated", "path", fl.path)
		fl.close()
		t.check(ctx, fl)
	case current.Size() < fl.offset:
		slog.Info("File truncated", "path", fl.path, "size", current.Size(), "offset", fl.offset)
		if _, err := fl.f.Seek(0, io.SeekStart); err != nil {
			t.fail(ctx, fl, err)
			return
		}
		fl.offset = 0
		fl.partial = nil
		if err := t.drain(ctx, fl); err != nil {
			t.fail(ctx, fl, err)
		}
	}
}

// drain reads to EOF and emits complete lines. An unterminated trailing
// fragment is kept until its newline arrives.
func (t *Tailer) drain(ctx context.Context, fl *follower) error {
	buf := make([]byte, readChunk)
	for {
		n, err := fl.f.Read(buf)
		if n > 0 {
			fl.offset += int64(n)
			fl.partial = append(fl.partial, buf[:n]...)
			if !t.emit(ctx, fl) {
				return nil
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (t *Tailer) emit(ctx context.Context, fl *follower) bool {
	for {
		i := bytes.IndexByte(fl.partial, '\n')
		if i < 0 {
			return true
		}
		text := string(bytes.TrimSuffix(fl.partial[:i], []byte{'\r'}))
		fl.partial = fl.partial[i+1:]

		select {
		case t.lines <- Line{Path: fl.path, Text: text}:
		case <-ctx.Done():
			return false
		}
	}
}

// fail stops following fl and reports why. Other files are unaffected.
func (t *Tailer) fail(ctx context.Context, fl *follower, err error) {
	fl.close()
	delete(t.files, fl.path)

	err = fmt.Errorf("stopped tailing %s: %w", fl.path, err)
	select {
	case t.errs <- err:
	case <-ctx.Done():
	default:
		slog.Error("Tail error", "error", err)
	}
}

func (t *Tailer) closeAll() {
	for _, fl := range t.files {
		fl.close()
	}
}

func (fl *follower) open(offset int64) error {
	f, err := os.Open(fl.path)
	if err != nil {
		return err
	}

	whence := io.SeekStart
	if offset < 0 {
		offset, whence = 0, io.SeekEnd
	}
	pos, err := f.Seek(offset, whence)
	if err != nil {
		f.Close()
		return err
	}

	fl.f = f
	fl.offset = pos
	fl.partial = nil
	return nil
}

func (fl *follower) close() {
	if fl.f != nil {
		fl.f.Close()
		fl.f = nil
	}
}
