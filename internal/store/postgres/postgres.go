// Package postgres implements internal/store.Store against PostgreSQL via
// database/sql and github.com/lib/pq, connected either by a plain DSN or by
// the AWS IAM-authenticated RDS client in internal/platform/awsclient.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/nholding/tsingest/internal/schema"
	"github.com/nholding/tsingest/internal/store"
)

// Open returns a Store backed by the shared per-URL connection from
// registry, using the "postgres" driver.
func Open(ctx context.Context, registry *store.Registry, dsn string) (store.Store, error) {
	db, err := registry.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	return store.NewSQLStore(db, dialect{}), nil
}

type dialect struct{}

func (dialect) DriverName() string { return "postgres" }

func (dialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (dialect) SQLType(t schema.Type) string {
	switch t {
	case schema.Integer:
		return "BIGINT"
	case schema.Real:
		return "DOUBLE PRECISION"
	case schema.Text:
		return "TEXT"
	case schema.Timestamp:
		return "TIMESTAMPTZ"
	case schema.Bool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func (dialect) IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" // unique_violation
	}
	return false
}

func (dialect) IsTransient(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08": // connection exception
			return true
		case "53", "57": // insufficient resources, operator intervention
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "driver: bad connection")
}

func (dialect) IsMissingTable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01" // undefined_table
	}
	return strings.Contains(err.Error(), "does not exist")
}
