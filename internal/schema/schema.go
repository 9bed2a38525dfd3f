// Package schema declares column names and logical types for a row batch,
// and validates batches against that declaration at the ingress boundary.
package schema

import (
	"fmt"
	"time"

	"github.com/nholding/tsingest/internal/tserr"
)

// Type is one of the logical column types a Schema's columns may declare.
type Type string

const (
	Integer   Type = "integer"
	Real      Type = "real"
	Text      Type = "text"
	Timestamp Type = "timestamp"
	Bool      Type = "bool"
)

// Column is one named, typed field of a Schema.
type Column struct {
	Name string
	Type Type
}

// Schema is an ordered set of columns plus an optional composite
// uniqueness constraint.
type Schema struct {
	Columns          []Column
	UniqueConstraint []string // column names forming a uniqueness key, or nil
}

// ColumnNames returns the schema's column names in declared order.
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Row is one schema-conformant record, keyed by column name.
type Row map[string]any

// Batch is an ordered collection of Rows produced by a collector or read
// back from a store.
type Batch []Row

// MismatchError describes the first offending column/row a batch validation
// encountered.
type MismatchError struct {
	Column string
	Row    int
	Reason string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("schema: row %d column %q: %s", e.Row, e.Column, e.Reason)
}

func (e *MismatchError) Kind() tserr.Kind { return tserr.KindSchemaMismatch }

// ConflictError reports overlapping column names across sub-schemas being
// concatenated into a composite schema.
type ConflictError struct {
	Column string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("schema: duplicate column %q across concatenated schemas", e.Column)
}

func (e *ConflictError) Kind() tserr.Kind { return tserr.KindSchemaConflict }

// Concat builds the composite schema of a parameter schema followed by a
// data schema, as the Processor Descriptor does for its effective schema.
// Duplicate column names across the two are a configuration error.
func Concat(param, data Schema) (Schema, error) {
	seen := make(map[string]bool, len(param.Columns))
	columns := make([]Column, 0, len(param.Columns)+len(data.Columns))

	for _, c := range param.Columns {
		if seen[c.Name] {
			return Schema{}, &ConflictError{Column: c.Name}
		}
		seen[c.Name] = true
		columns = append(columns, c)
	}
	for _, c := range data.Columns {
		if seen[c.Name] {
			return Schema{}, &ConflictError{Column: c.Name}
		}
		seen[c.Name] = true
		columns = append(columns, c)
	}

	return Schema{Columns: columns}, nil
}

// Validate checks a batch against the schema: column names must match
// exactly, every value must conform to its column's logical type, and if a
// UniqueConstraint is set the batch must contain no duplicates on that key.
// Empty batches pass trivially.
func (s Schema) Validate(batch Batch) error {
	if len(batch) == 0 {
		return nil
	}

	want := make(map[string]Type, len(s.Columns))
	for _, c := range s.Columns {
		want[c.Name] = c.Type
	}

	for i, row := range batch {
		if len(row) != len(want) {
			return &MismatchError{Row: i, Reason: fmt.Sprintf("expected %d columns, got %d", len(want), len(row))}
		}
		for name, typ := range want {
			v, ok := row[name]
			if !ok {
				return &MismatchError{Column: name, Row: i, Reason: "missing column"}
			}
			if err := checkType(typ, v); err != nil {
				return &MismatchError{Column: name, Row: i, Reason: err.Error()}
			}
		}
		for name := range row {
			if _, ok := want[name]; !ok {
				return &MismatchError{Column: name, Row: i, Reason: "unexpected column"}
			}
		}
	}

	if len(s.UniqueConstraint) > 0 {
		seen := make(map[string]int, len(batch))
		for i, row := range batch {
			key := compositeKey(row, s.UniqueConstraint)
			if first, dup := seen[key]; dup {
				return &MismatchError{Row: i, Reason: fmt.Sprintf("duplicate unique key %v also present at row %d", s.UniqueConstraint, first)}
			}
			seen[key] = i
		}
	}

	return nil
}

func compositeKey(row Row, cols []string) string {
	key := ""
	for _, c := range cols {
		key += fmt.Sprintf("%v\x00", row[c])
	}
	return key
}

func checkType(typ Type, v any) error {
	switch typ {
	case Integer:
		switch v.(type) {
		case int, int32, int64:
			return nil
		}
		return fmt.Errorf("expected integer, got %T", v)
	case Real:
		switch v.(type) {
		case float32, float64:
			return nil
		}
		return fmt.Errorf("expected real, got %T", v)
	case Text:
		if _, ok := v.(string); ok {
			return nil
		}
		return fmt.Errorf("expected text, got %T", v)
	case Bool:
		if _, ok := v.(bool); ok {
			return nil
		}
		return fmt.Errorf("expected bool, got %T", v)
	case Timestamp:
		if _, ok := v.(time.Time); ok {
			return nil
		}
		return fmt.Errorf("expected timestamp, got %T", v)
	default:
		return fmt.Errorf("unknown logical type %q", typ)
	}
}
