package database

import (
	"strings"
	"testing"
)

func TestDialectFor(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"sqlite", "sqlite", false},
		{"SQLite3", "sqlite", false},
		{"postgres", "postgres", false},
		{"pgx", "postgres", false},
		{"oracle", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := DialectFor(tt.name)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if d.Name != tt.want {
				t.Errorf("Expected dialect %s, got %s", tt.want, d.Name)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	query := "UPDATE x SET a = ? WHERE b = ?"

	if got := SQLite.Rebind(query); got != query {
		t.Errorf("Expected sqlite query unchanged, got %q", got)
	}
	if got := Postgres.Rebind(query); got != "UPDATE x SET a = $1 WHERE b = $2" {
		t.Errorf("Unexpected postgres query %q", got)
	}
}

func TestGroupConcat(t *testing.T) {
	if got := SQLite.GroupConcat("u.nick"); got != "group_concat(u.nick, ' ')" {
		t.Errorf("Unexpected sqlite aggregate %q", got)
	}
	if got := Postgres.GroupConcat("u.nick"); got != "string_agg(u.nick, ' ')" {
		t.Errorf("Unexpected postgres aggregate %q", got)
	}
}

func TestSQLiteDSN(t *testing.T) {
	dsn := SQLite.dsn("/tmp/urllog.db")
	if !strings.HasPrefix(dsn, "file:/tmp/urllog.db?") {
		t.Errorf("Expected file URI, got %q", dsn)
	}
	if !strings.Contains(dsn, "busy_timeout") || !strings.Contains(dsn, "foreign_keys(1)") {
		t.Errorf("Expected pragmas in %q", dsn)
	}

	custom := "file:/tmp/urllog.db?mode=ro"
	if got := SQLite.dsn(custom); got != custom {
		t.Errorf("Expected DSN with query to be kept, got %q", got)
	}

	pg := "postgres://localhost/urllog"
	if got := Postgres.dsn(pg); got != pg {
		t.Errorf("Expected postgres DSN unchanged, got %q", got)
	}
}

func TestSameDatabase(t *testing.T) {
	tests := []struct {
		name          string
		driverA, dsnA string
		driverB, dsnB string
		want          bool
	}{
		{"same sqlite file", "sqlite", "/tmp/urllog.db", "sqlite3", "file:/tmp/urllog.db?mode=ro", true},
		{"relative sqlite path", "sqlite", "data/../urllog.db", "sqlite", "urllog.db", true},
		{"different sqlite files", "sqlite", "/tmp/a.db", "sqlite", "/tmp/b.db", false},
		{"same postgres", "postgres", "postgres://localhost/urllog", "pgx", "postgres://localhost/urllog", true},
		{"different postgres", "postgres", "postgres://localhost/a", "postgres", "postgres://localhost/b", false},
		{"different drivers", "sqlite", "urllog", "postgres", "urllog", false},
		{"unknown driver", "oracle", "x", "oracle", "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SameDatabase(tt.driverA, tt.dsnA, tt.driverB, tt.dsnB); got != tt.want {
				t.Errorf("SameDatabase() = %v, want %v", got, tt.want)
			}
		})
	}
}
