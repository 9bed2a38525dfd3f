package processor

import (
	"fmt"
	"time"

	"github.com/nholding/tsingest/internal/calendar"
	"github.com/nholding/tsingest/internal/schema"
	"github.com/nholding/tsingest/internal/sparsity"
)

// CoverageRow is the in-memory and persisted record of how much of the
// timeline has been ingested for one parameter tuple (invariant I5: its
// CollectedItems always equals the count of stored rows for Params, and
// every such row's time lies inside Domain).
//
// FirstCollectedBy/At and LastTouchedBy/At are the row's own provenance
// stamp: who first opened this parameter tuple's coverage and when, and who
// last widened or shrank it (via Collect or Delete) and when. Unlike a
// generic record-level audit stamp, LastTouched moves on every successful
// interval of both Collect and Delete, since both operations mutate Domain.
type CoverageRow struct {
	Params         map[string]any
	Domain         sparsity.Map
	CollectedItems int

	FirstCollectedBy string
	FirstCollectedAt time.Time
	LastTouchedBy    string
	LastTouchedAt    time.Time
}

func newCoverageRow(unit calendar.Unit, params map[string]any, actor string) (CoverageRow, error) {
	empty, err := sparsity.Empty(unit)
	if err != nil {
		return CoverageRow{}, err
	}
	now := time.Now().UTC()
	return CoverageRow{
		Params:           params,
		Domain:           empty,
		CollectedItems:   0,
		FirstCollectedBy: actor,
		FirstCollectedAt: now,
		LastTouchedBy:    actor,
		LastTouchedAt:    now,
	}, nil
}

// touch records that actor just widened or shrank Domain.
func (c *CoverageRow) touch(actor string) {
	c.LastTouchedBy = actor
	c.LastTouchedAt = time.Now().UTC()
}

// toRow flattens a CoverageRow into the schema.Row persisted to
// "{name}_metadata".
func (c CoverageRow) toRow() schema.Row {
	row := make(schema.Row, len(c.Params)+6)
	for k, v := range c.Params {
		row[k] = v
	}
	row[colDomain] = c.Domain.String()
	row[colCollectedItems] = int64(c.CollectedItems)
	row[colFirstCollectedBy] = c.FirstCollectedBy
	row[colFirstCollectedAt] = c.FirstCollectedAt
	row[colLastTouchedBy] = c.LastTouchedBy
	row[colLastTouchedAt] = c.LastTouchedAt
	return row
}

// coverageRowFromRow reconstructs a CoverageRow from a "{name}_metadata"
// row, given the names of the parameter columns.
func coverageRowFromRow(unit calendar.Unit, paramCols []string, row schema.Row) (CoverageRow, error) {
	params := make(map[string]any, len(paramCols))
	for _, c := range paramCols {
		params[c] = row[c]
	}

	domainStr, _ := row[colDomain].(string)
	domain, err := sparsity.Parse(unit, domainStr)
	if err != nil {
		return CoverageRow{}, fmt.Errorf("processor: corrupt coverage row for %v: %w", params, err)
	}

	collected, err := asInt(row[colCollectedItems])
	if err != nil {
		return CoverageRow{}, fmt.Errorf("processor: corrupt collected_items for %v: %w", params, err)
	}

	firstBy, _ := row[colFirstCollectedBy].(string)
	firstAt, _ := row[colFirstCollectedAt].(time.Time)
	lastBy, _ := row[colLastTouchedBy].(string)
	lastAt, _ := row[colLastTouchedAt].(time.Time)

	return CoverageRow{
		Params:           params,
		Domain:           domain,
		CollectedItems:   collected,
		FirstCollectedBy: firstBy,
		FirstCollectedAt: firstAt,
		LastTouchedBy:    lastBy,
		LastTouchedAt:    lastAt,
	}, nil
}

func asInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int32:
		return int(x), nil
	case int64:
		return int(x), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}
