// Package tserr declares the error-kind taxonomy shared across the
// ingestion layer, so callers can branch on what went wrong without
// depending on a specific package's concrete error type.
package tserr

// Kind classifies one of the error conditions named in the processor's
// error-handling design: schema mismatches, store faults, and domain
// algebra failures all resolve to one of these.
type Kind string

const (
	KindSchemaMismatch    Kind = "schema_mismatch"
	KindSchemaConflict    Kind = "schema_conflict"
	KindMalformedDomain   Kind = "malformed_domain"
	KindCollectorFailed   Kind = "collector_failed"
	KindTableMissing      Kind = "table_missing"
	KindUniqueViolation   Kind = "unique_violation"
	KindStoreTransient    Kind = "store_transient"
	KindCoverageUnderflow Kind = "coverage_underflow"
	KindCoverageCorrupt   Kind = "coverage_corrupt"
)

// Error is implemented by every error type the ingestion layer returns at a
// package boundary, letting a caller branch on Kind() instead of type
// assertions against a growing set of concrete error structs.
type Error interface {
	error
	Kind() Kind
}
