package harvest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lysyi3m/url-harvest/app/database"
	"github.com/lysyi3m/url-harvest/app/tail"
)

type fakeStore struct {
	mu          sync.Mutex
	ops         []string
	rows        []database.URL
	failInserts int
	failBegin   int // 1-based Begin call that fails, 0 for none
	begins      int
	nextID      int64
}

func (s *fakeStore) Begin(context.Context) (database.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.begins++
	if s.begins == s.failBegin {
		s.ops = append(s.ops, "begin-fail")
		return nil, errors.New("database is locked")
	}
	s.ops = append(s.ops, "begin")
	return &fakeTx{s: s}, nil
}

func (s *fakeStore) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, op)
}

func (s *fakeStore) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

func (s *fakeStore) Rows() []database.URL {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]database.URL(nil), s.rows...)
}

type fakeTx struct {
	s    *fakeStore
	rows []database.URL
}

func (t *fakeTx) InsertURL(_ context.Context, u database.URL) (int64, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if t.s.failInserts > 0 {
		t.s.failInserts--
		t.s.ops = append(t.s.ops, "insert-fail")
		return 0, errors.New("database is locked")
	}
	t.s.nextID++
	u.ID = t.s.nextID
	t.rows = append(t.rows, u)
	t.s.ops = append(t.s.ops, "insert "+u.URL)
	return u.ID, nil
}

func (t *fakeTx) InsertMeta(context.Context, database.Meta) (int64, error) {
	return 0, errors.New("not supported")
}

func (t *fakeTx) MarkChange(context.Context, time.Time) error {
	t.s.record("mark")
	return nil
}

func (t *fakeTx) Commit() error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.rows = append(t.s.rows, t.rows...)
	t.s.ops = append(t.s.ops, "commit")
	return nil
}

func (t *fakeTx) Rollback() error {
	t.s.record("rollback")
	return nil
}

type addCall struct {
	path   string
	offset int64
}

type fakeSource struct {
	mu    sync.Mutex
	adds  []addCall
	lines chan tail.Line
	errs  chan error
}

func newFakeSource() *fakeSource {
	return &fakeSource{lines: make(chan tail.Line), errs: make(chan error)}
}

func (s *fakeSource) Add(path string, offset int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adds = append(s.adds, addCall{path, offset})
	return nil
}

func (s *fakeSource) Adds() []addCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]addCall(nil), s.adds...)
}

func (s *fakeSource) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (s *fakeSource) Lines() <-chan tail.Line { return s.lines }
func (s *fakeSource) Errors() <-chan error    { return s.errs }

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}
