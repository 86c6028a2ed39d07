package persistence

import (
	"errors"
	"strconv"
	"strings"

	"github.com/lib/pq"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Dialect selects the SQL backend. The value is also the database/sql
// driver name.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// ParseDialect accepts the configured backend name.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case DialectPostgres, DialectSQLite:
		return d, nil
	case "postgresql", "pg":
		return DialectPostgres, nil
	case "sqlite3":
		return DialectSQLite, nil
	default:
		return "", errors.New("unknown store dialect " + strconv.Quote(s))
	}
}

// rebind rewrites ? placeholders to $n for postgres.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate is the row-lock suffix. SQLite transactions take the write
// lock at BEGIN so no suffix is needed.
func (d Dialect) forUpdate() string {
	if d == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func (d Dialect) isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
