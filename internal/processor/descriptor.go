package processor

import (
	"github.com/nholding/tsingest/internal/calendar"
	"github.com/nholding/tsingest/internal/schema"
)

// Descriptor is the immutable configuration of one ingestion endpoint.
// It is created at application startup and never mutated; tables are
// created lazily on first use per CreateMissing.
type Descriptor struct {
	// Name uniquely identifies the processor and doubles as its storage
	// table name. The coverage metadata table is "{Name}_metadata".
	Name string

	Unit calendar.Unit

	// ParamSchema describes the parameter columns identifying one coverage
	// row (e.g. {ticker: text}).
	ParamSchema schema.Schema

	// DataSchema describes the payload columns a collector's batch must
	// conform to, excluding the parameter columns the processor prepends.
	DataSchema schema.Schema

	// TimeColumn names the DataSchema column delete uses to restrict which
	// rows fall inside a requested interval.
	TimeColumn string

	// CreateMissing, when true, lazily creates the data and metadata tables
	// on first use instead of failing TableMissingError.
	CreateMissing bool
}

// Flattened CoverageRow provenance columns appended to every coverage
// metadata row.
const (
	colDomain           = "domain"
	colCollectedItems   = "collected_items"
	colFirstCollectedBy = "first_collected_by"
	colFirstCollectedAt = "first_collected_at"
	colLastTouchedBy    = "last_touched_by"
	colLastTouchedAt    = "last_touched_at"
)

// metaSchema returns the composite schema of the "{Name}_metadata" table:
// parameter columns, then domain/collected_items, then the provenance
// columns, with the parameter columns forming the composite primary key.
func (d Descriptor) metaSchema() (schema.Schema, []string, error) {
	extra := schema.Schema{Columns: []schema.Column{
		{Name: colDomain, Type: schema.Text},
		{Name: colCollectedItems, Type: schema.Integer},
		{Name: colFirstCollectedBy, Type: schema.Text},
		{Name: colFirstCollectedAt, Type: schema.Timestamp},
		{Name: colLastTouchedBy, Type: schema.Text},
		{Name: colLastTouchedAt, Type: schema.Timestamp},
	}}

	sch, err := schema.Concat(d.ParamSchema, extra)
	if err != nil {
		return schema.Schema{}, nil, err
	}

	primaryKey := d.ParamSchema.ColumnNames()
	return sch, primaryKey, nil
}

// effectiveDataSchema returns the composite schema of the "{Name}" data
// table: parameter columns first, then the data columns.
func (d Descriptor) effectiveDataSchema() (schema.Schema, error) {
	return schema.Concat(d.ParamSchema, d.DataSchema)
}
