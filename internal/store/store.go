// Package store defines the abstract Tabular Store contract the Interval
// Processor consumes: no SQL is exposed upward, predicates are a structured
// expression tree rather than a string, and every operation is transactional.
package store

import (
	"context"
	"fmt"

	"github.com/nholding/tsingest/internal/schema"
	"github.com/nholding/tsingest/internal/tserr"
)

// Op is a comparison operator usable in a Predicate.
type Op string

const (
	Eq  Op = "="
	Neq Op = "!="
	Lt  Op = "<"
	Lte Op = "<="
	Gt  Op = ">"
	Gte Op = ">="
)

// Predicate is a restricted boolean expression over columns: a Compare leaf
// or an And of two predicates. There is no free-form string variant — this
// is the structured-predicate design note from the spec, meant to make
// injection and quoting ambiguity structurally impossible.
type Predicate interface {
	isPredicate()
}

// Compare is a single "column op literal" leaf predicate.
type Compare struct {
	Column string
	Op     Op
	Value  any
}

func (Compare) isPredicate() {}

// Conjunction is the logical AND of two predicates.
type Conjunction struct {
	Left, Right Predicate
}

func (Conjunction) isPredicate() {}

// EqP, NeqP, LtP, LteP, GtP, GteP build single-column Compare predicates.
func EqP(col string, v any) Predicate  { return Compare{Column: col, Op: Eq, Value: v} }
func NeqP(col string, v any) Predicate { return Compare{Column: col, Op: Neq, Value: v} }
func LtP(col string, v any) Predicate  { return Compare{Column: col, Op: Lt, Value: v} }
func LteP(col string, v any) Predicate { return Compare{Column: col, Op: Lte, Value: v} }
func GtP(col string, v any) Predicate  { return Compare{Column: col, Op: Gt, Value: v} }
func GteP(col string, v any) Predicate { return Compare{Column: col, Op: Gte, Value: v} }

// And combines a non-empty list of predicates with logical AND. And() with
// no arguments returns nil, meaning "no restriction".
func And(preds ...Predicate) Predicate {
	var acc Predicate
	for _, p := range preds {
		if p == nil {
			continue
		}
		if acc == nil {
			acc = p
			continue
		}
		acc = Conjunction{Left: acc, Right: p}
	}
	return acc
}

// JoinSpec names one table participating in a Join and the predicate
// restricting its rows.
type JoinSpec struct {
	Table     string
	Predicate Predicate
}

// Store is the abstract persistence contract the Interval Processor
// consumes. Every operation executes inside a transaction; on error it
// rolls back and returns the error unchanged.
type Store interface {
	// CreateTable is idempotent only when createMissing is true; otherwise
	// it fails TableMissingError if the table is absent.
	CreateTable(ctx context.Context, name string, sch schema.Schema, primaryKey []string, createMissing bool) error

	// Append adds rows; a uniqueness violation surfaces UniqueViolationError.
	Append(ctx context.Context, name string, rows schema.Batch) error

	// Replace atomically substitutes all rows of a table; used for coverage
	// metadata tables.
	Replace(ctx context.Context, name string, rows schema.Batch) error

	// Query returns a materialized batch matching pred. A nil pred matches
	// every row.
	Query(ctx context.Context, name string, pred Predicate) (schema.Batch, error)

	// Delete removes matching rows and returns the affected count.
	Delete(ctx context.Context, name string, pred Predicate) (int, error)

	// DropTable is idempotent; it succeeds even if the table is absent.
	DropTable(ctx context.Context, name string) error

	// Join left-outer-joins the named tables on a shared column, filtering
	// each with its own predicate; used only by the read side.
	Join(ctx context.Context, names []string, on string, joins []JoinSpec) (schema.Batch, error)

	// Close releases the store's underlying connection.
	Close() error
}

// TableMissingError reports that a table was absent and createMissing was
// false.
type TableMissingError struct{ Table string }

func (e *TableMissingError) Error() string {
	return fmt.Sprintf("store: table %q does not exist and create_missing is false", e.Table)
}

func (e *TableMissingError) Kind() tserr.Kind { return tserr.KindTableMissing }

// UniqueViolationError reports that an Append violated a declared
// uniqueness constraint.
type UniqueViolationError struct {
	Table string
	Cause error
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("store: unique constraint violation on %q: %v", e.Table, e.Cause)
}
func (e *UniqueViolationError) Unwrap() error { return e.Cause }

func (e *UniqueViolationError) Kind() tserr.Kind { return tserr.KindUniqueViolation }

// TransientError wraps a connection or timeout failure the caller may
// retry. Store backends retry these internally (with backoff) before
// surfacing one to the processor.
type TransientError struct{ Cause error }

func (e *TransientError) Error() string { return fmt.Sprintf("store: transient error: %v", e.Cause) }
func (e *TransientError) Unwrap() error { return e.Cause }

func (e *TransientError) Kind() tserr.Kind { return tserr.KindStoreTransient }
