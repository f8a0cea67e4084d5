package database

import (
	"fmt"
	"path/filepath"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect captures the few places where the SQLite and PostgreSQL backends
// need different SQL.
type Dialect struct {
	Name        string
	driverName  string
	placeholder sq.PlaceholderFormat
	groupConcat string
	savepoints  bool
}

var (
	SQLite = Dialect{
		Name:        "sqlite",
		driverName:  "sqlite",
		placeholder: sq.Question,
		groupConcat: "group_concat(%s, ' ')",
	}
	Postgres = Dialect{
		Name:        "postgres",
		driverName:  "pgx",
		placeholder: sq.Dollar,
		groupConcat: "string_agg(%s, ' ')",
		savepoints:  true,
	}
)

func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver: %s", name)
	}
}

// Rebind rewrites ? placeholders into the dialect's native form.
func (d Dialect) Rebind(query string) string {
	out, err := d.placeholder.ReplacePlaceholders(query)
	if err != nil {
		return query
	}
	return out
}

func (d Dialect) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.placeholder)
}

// GroupConcat aggregates expr into a single space separated string.
func (d Dialect) GroupConcat(expr string) string {
	return fmt.Sprintf(d.groupConcat, expr)
}

func (d Dialect) dsn(dsn string) string {
	if d.Name != SQLite.Name || strings.Contains(dsn, "?") {
		return dsn
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	return dsn + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
}

// SameDatabase reports whether two driver/DSN pairs address the same
// database. SQLite DSNs compare by absolute file path.
func SameDatabase(driverA, dsnA, driverB, dsnB string) bool {
	a, errA := DialectFor(driverA)
	b, errB := DialectFor(driverB)
	if errA != nil || errB != nil || a.Name != b.Name {
		return false
	}
	if a.Name != SQLite.Name {
		return dsnA == dsnB
	}
	return sqlitePath(dsnA) == sqlitePath(dsnB)
}

func sqlitePath(dsn string) string {
	dsn = strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		dsn = dsn[:i]
	}
	if abs, err := filepath.Abs(dsn); err == nil {
		return abs
	}
	return filepath.Clean(dsn)
}
