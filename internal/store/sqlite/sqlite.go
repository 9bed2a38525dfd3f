// Package sqlite implements internal/store.Store against an embedded
// modernc.org/sqlite database — a pure-Go, cgo-free backend used for local
// development and the test suite.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/nholding/tsingest/internal/schema"
	"github.com/nholding/tsingest/internal/store"
)

// Open returns a Store backed by the shared per-URL connection from
// registry, using the "sqlite" driver. path may be a filesystem path or
// ":memory:".
func Open(ctx context.Context, registry *store.Registry, path string) (store.Store, error) {
	db, err := registry.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	return store.NewSQLStore(db, dialect{}), nil
}

type dialect struct{}

func (dialect) DriverName() string { return "sqlite" }

func (dialect) Placeholder(n int) string { return "?" }

func (dialect) SQLType(t schema.Type) string {
	switch t {
	case schema.Integer:
		return "INTEGER"
	case schema.Real:
		return "REAL"
	case schema.Text:
		return "TEXT"
	case schema.Timestamp:
		return "TIMESTAMP"
	case schema.Bool:
		return "INTEGER" // SQLite has no native boolean type
	default:
		return "TEXT"
	}
}

func (dialect) IsUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (dialect) IsTransient(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "disk I/O error")
}

func (dialect) IsMissingTable(err error) bool {
	return strings.Contains(err.Error(), "no such table")
}
