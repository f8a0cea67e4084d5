package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMock(t *testing.T, dialect Dialect) (*DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return New(db, dialect), mock
}

func TestInsertURLAndMarkChange(t *testing.T) {
	db, mock := newMock(t, SQLite)
	ctx := context.Background()
	at := time.Unix(1700000000, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(insertURLSQL)).
		WithArgs(int64(1699999000), "#go", "alice", "https://go.dev").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta(markChangeSQL)).
		WithArgs(int64(1700000000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	id, err := tx.InsertURL(ctx, URL{Seen: 1699999000, Channel: "#go", Nick: "alice", URL: "https://go.dev"})
	if err != nil {
		t.Fatalf("InsertURL() error = %v", err)
	}
	if id != 7 {
		t.Errorf("Expected id 7, got %d", id)
	}
	if err := tx.MarkChange(ctx, at); err != nil {
		t.Fatalf("MarkChange() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestInsertURLSavepointRetry(t *testing.T) {
	db, mock := newMock(t, Postgres)
	ctx := context.Background()
	u := URL{Seen: 1, Channel: "#pg", Nick: "bob", URL: "https://postgresql.org"}

	mock.ExpectBegin()
	mock.ExpectExec("^SAVEPOINT url_insert$").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("VALUES ($1, $2, $3, $4) RETURNING id")).
		WillReturnError(errors.New("could not serialize access"))
	mock.ExpectExec("^ROLLBACK TO SAVEPOINT url_insert$").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("^SAVEPOINT url_insert$").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("VALUES ($1, $2, $3, $4) RETURNING id")).
		WithArgs(int64(1), "#pg", "bob", "https://postgresql.org").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectExec("^RELEASE SAVEPOINT url_insert$").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tx, err := db.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := tx.InsertURL(ctx, u); err == nil {
		t.Fatal("Expected first insert to fail")
	}
	id, err := tx.InsertURL(ctx, u)
	if err != nil {
		t.Fatalf("Expected retry to succeed, got: %v", err)
	}
	if id != 42 {
		t.Errorf("Expected id 42, got %d", id)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestLastChange(t *testing.T) {
	db, mock := newMock(t, SQLite)

	mock.ExpectQuery(regexp.QuoteMeta(lastChangeSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"last"}).AddRow(1234))

	last, err := db.LastChange(context.Background())
	if err != nil {
		t.Fatalf("LastChange() error = %v", err)
	}
	if last != 1234 {
		t.Errorf("Expected 1234, got %d", last)
	}

	mock.ExpectQuery(regexp.QuoteMeta(lastChangeSQL)).
		WillReturnError(errors.New("database is locked"))

	if _, err := db.LastChange(context.Background()); err == nil {
		t.Error("Expected error, got nil")
	}
}

func TestRemoveURL(t *testing.T) {
	db, mock := newMock(t, SQLite)
	repo := NewURLRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM url_meta WHERE url_id IN").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM url WHERE url IN (SELECT url FROM url WHERE id = ?)")).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta(markChangeSQL)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := repo.RemoveURL(context.Background(), 5)
	if err != nil {
		t.Fatalf("RemoveURL() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 rows removed, got %d", n)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRemoveMetaRollsBackOnFailure(t *testing.T) {
	db, mock := newMock(t, SQLite)
	repo := NewMetaRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM url_meta WHERE url_id = ?")).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(markChangeSQL)).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	if _, err := repo.RemoveMeta(context.Background(), 9); err == nil {
		t.Error("Expected error, got nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestListWithoutMetaOrder(t *testing.T) {
	db, mock := newMock(t, SQLite)
	repo := NewURLRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY u.seen DESC LIMIT 42")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "url", "seen"}).
			AddRow(2, "https://b.test", 20).
			AddRow(1, "https://a.test", 10))

	pending, err := repo.ListWithoutMeta(context.Background(), 42, NewestFirst)
	if err != nil {
		t.Fatalf("ListWithoutMeta() error = %v", err)
	}
	if len(pending) != 2 || pending[0].ID != 2 {
		t.Errorf("Unexpected pending rows: %+v", pending)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSplitUnique(t *testing.T) {
	got := splitUnique("#b #a #b  #c #a")
	want := []string{"#a", "#b", "#c"}

	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
		}
	}

	if len(splitUnique("")) != 0 {
		t.Error("Expected empty result for empty input")
	}
}
