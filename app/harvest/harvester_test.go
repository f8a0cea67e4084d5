package harvest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lysyi3m/url-harvest/app/cfg"
	"github.com/lysyi3m/url-harvest/app/tail"
)

const replayLog = "--- Log opened Tue Jan 02 09:00:00 2024\n" +
	"13:37 <@alice> check http://example.com/x and http://example.com/y\n" +
	"13:38 <bob> no links\n"

func testConfig(dir string, history bool) Config {
	return Config{
		LogDir:      dir,
		LogPattern:  cfg.DefaultRegexLog,
		NickPattern: cfg.DefaultRegexNick,
		URLPattern:  cfg.DefaultRegexURL,
		ReadHistory: history,
		TxSize:      2,
		Retry:       Retry{Attempts: 2},
		Location:    time.UTC,
	}
}

func runHarvester(t *testing.T, h *Harvester) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestHarvesterReplayThenTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "#test.log")
	content := replayLog + "13:39 <carol> half a line http://unterminated.test"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write log: %v", err)
	}

	store := &fakeStore{}
	source := newFakeSource()
	h, err := New(testConfig(dir, true), store, source, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	liveAt := time.Date(2025, 5, 5, 5, 5, 5, 0, time.UTC)
	h.now = func() time.Time { return liveAt }

	cancel, done := runHarvester(t, h)

	if !waitFor(func() bool { return len(source.Adds()) == 1 }) {
		t.Fatal("File was never registered for tailing")
	}
	add := source.Adds()[0]
	if add.path != path || add.offset != int64(len(replayLog)) {
		t.Errorf("Expected registration at offset %d, got %+v", len(replayLog), add)
	}

	rows := store.Rows()
	if len(rows) != 2 {
		t.Fatalf("Expected 2 replayed rows before tailing, got %+v", rows)
	}
	seen := time.Date(2024, 1, 2, 13, 37, 0, 0, time.UTC).Unix()
	for _, r := range rows {
		if r.Seen != seen || r.Channel != "#test" || r.Nick != "alice" {
			t.Errorf("Unexpected replayed row: %+v", r)
		}
	}

	source.lines <- tail.Line{Path: path, Text: "14:00 <bob> live https://live.test/now"}
	if !waitFor(func() bool { return len(store.Rows()) == 3 }) {
		t.Fatal("Live line was not stored")
	}
	live := store.Rows()[2]
	if live.Seen != liveAt.Unix() || live.Nick != "bob" || live.Channel != "#test" {
		t.Errorf("Unexpected live row: %+v", live)
	}

	source.lines <- tail.Line{Path: "/elsewhere/unmapped.log", Text: "x https://stray.test/"}
	if !waitFor(func() bool { return len(store.Rows()) == 4 }) {
		t.Fatal("Stray line was not stored")
	}
	if ch := store.Rows()[3].Channel; ch != Unknown {
		t.Errorf("Expected channel %s for unmapped file, got %s", Unknown, ch)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHarvesterWithoutHistory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "#test.log"), []byte(replayLog), 0644); err != nil {
		t.Fatalf("Failed to write log: %v", err)
	}

	store := &fakeStore{}
	source := newFakeSource()
	h, err := New(testConfig(dir, false), store, source, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	cancel, done := runHarvester(t, h)
	if !waitFor(func() bool { return len(source.Adds()) == 1 }) {
		t.Fatal("File was never registered for tailing")
	}
	if off := source.Adds()[0].offset; off != -1 {
		t.Errorf("Expected tailing from end of file, got offset %d", off)
	}
	if rows := store.Rows(); len(rows) != 0 {
		t.Errorf("Expected no replayed rows, got %+v", rows)
	}

	cancel()
	<-done
}

func TestHarvesterWithRealTailer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "#test.log")
	if err := os.WriteFile(path, []byte(replayLog), 0644); err != nil {
		t.Fatalf("Failed to write log: %v", err)
	}

	store := &fakeStore{}
	h, err := New(testConfig(dir, true), store, tail.New(20*time.Millisecond), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	runHarvester(t, h)

	if !waitFor(func() bool { return len(store.Rows()) == 2 }) {
		t.Fatal("History was not replayed")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("Failed to open log: %v", err)
	}
	f.WriteString("14:00 <dave> https://appended.test/\n")
	f.Close()

	if !waitFor(func() bool { return len(store.Rows()) == 3 }) {
		t.Fatal("Appended line was not stored")
	}
	if got := store.Rows()[2]; got.URL != "https://appended.test/" || got.Nick != "dave" {
		t.Errorf("Unexpected appended row: %+v", got)
	}
}

func TestNewHarvesterConfigErrors(t *testing.T) {
	dir := t.TempDir()

	bad := testConfig(dir, false)
	bad.LogPattern = `\.log$`
	if _, err := New(bad, &fakeStore{}, newFakeSource(), nil); err == nil {
		t.Error("Expected error for log pattern without capture group")
	}

	missing := testConfig(filepath.Join(dir, "missing"), false)
	if _, err := New(missing, &fakeStore{}, newFakeSource(), nil); err == nil {
		t.Error("Expected error for missing log directory")
	}
}

func TestHarvesterReplayContinuesAfterWriteError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "#test.log")
	content := "--- Log opened Tue Jan 02 09:00:00 2024\n" +
		"10:00 <alice> http://a.test/1\n" +
		"10:01 <alice> http://a.test/2\n" +
		"10:02 <alice> http://a.test/3\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write log: %v", err)
	}

	store := &fakeStore{failBegin: 2}
	source := newFakeSource()
	c := testConfig(dir, true)
	c.TxSize = 1
	c.Retry = Retry{Attempts: 1}
	h, err := New(c, store, source, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	cancel, done := runHarvester(t, h)
	if !waitFor(func() bool { return len(source.Adds()) == 1 }) {
		t.Fatal("File was never registered for tailing")
	}
	if off := source.Adds()[0].offset; off != int64(len(content)) {
		t.Errorf("Expected tailing after all history at %d, got %d", len(content), off)
	}

	rows := store.Rows()
	if len(rows) != 2 || rows[0].URL != "http://a.test/1" || rows[1].URL != "http://a.test/3" {
		t.Fatalf("Expected only the second url to be skipped, got %+v", rows)
	}
	if want := time.Date(2024, 1, 2, 10, 2, 0, 0, time.UTC).Unix(); rows[1].Seen != want {
		t.Errorf("Expected inferred timestamp %d after the failure, got %d", want, rows[1].Seen)
	}

	cancel()
	<-done
}

func TestHarvesterSkipsUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "#gone.log")
	good := filepath.Join(dir, "#test.log")
	for _, p := range []string{bad, good} {
		if err := os.WriteFile(p, []byte(replayLog), 0644); err != nil {
			t.Fatalf("Failed to write log: %v", err)
		}
	}

	store := &fakeStore{}
	source := newFakeSource()
	h, err := New(testConfig(dir, true), store, source, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	// Disappears between discovery and replay.
	if err := os.Remove(bad); err != nil {
		t.Fatalf("Failed to remove log: %v", err)
	}

	cancel, done := runHarvester(t, h)
	if !waitFor(func() bool { return len(source.Adds()) == 1 }) {
		t.Fatal("Readable file was never registered for tailing")
	}
	time.Sleep(50 * time.Millisecond)

	adds := source.Adds()
	if len(adds) != 1 || adds[0].path != good {
		t.Errorf("Expected only %s to be tailed, got %+v", good, adds)
	}

	cancel()
	<-done
}

func TestHarvesterClockStartsAtDiscovery(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "#test.log"), []byte("<alice> http://early.test/\n"), 0644); err != nil {
		t.Fatalf("Failed to write log: %v", err)
	}

	store := &fakeStore{}
	source := newFakeSource()
	h, err := New(testConfig(dir, true), store, source, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	found := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	h.files[0].Found = found

	cancel, done := runHarvester(t, h)
	if !waitFor(func() bool { return len(store.Rows()) == 1 }) {
		t.Fatal("History was not replayed")
	}
	if got := store.Rows()[0].Seen; got != found.Unix() {
		t.Errorf("Expected discovery time %d for a line before any marker, got %d", found.Unix(), got)
	}

	cancel()
	<-done
}

func TestHarvesterKeepsGoingAfterTailError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "#test.log")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("Failed to write log: %v", err)
	}

	store := &fakeStore{}
	source := newFakeSource()
	h, err := New(testConfig(dir, false), store, source, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	cancel, done := runHarvester(t, h)
	source.errs <- errors.New("stopped tailing /logs/#other.log: read error")
	source.lines <- tail.Line{Path: path, Text: "14:00 <bob> https://still.test/"}

	if !waitFor(func() bool { return len(store.Rows()) == 1 }) {
		t.Fatal("Lines from other files were not processed after a tail error")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
