package processor

import (
	"fmt"

	"github.com/nholding/tsingest/internal/tserr"
)

// UnderflowError reports that a delete would have driven a coverage row's
// CollectedItems below zero — an invariant breach, fatal per the spec.
type UnderflowError struct {
	Processor string
	Params    map[string]any
	Computed  int
}

func (e *UnderflowError) Error() string {
	return fmt.Sprintf("processor %q: coverage underflow for %v: collected_items would become %d", e.Processor, e.Params, e.Computed)
}

func (e *UnderflowError) Kind() tserr.Kind { return tserr.KindCoverageUnderflow }

// MultipleCoverageRowsError reports that more than one coverage row exists
// for a single parameter tuple — impossible given the metadata table's
// primary key, so observing it indicates the store itself is corrupt.
type MultipleCoverageRowsError struct {
	Processor string
	Params    map[string]any
	Count     int
}

func (e *MultipleCoverageRowsError) Error() string {
	return fmt.Sprintf("processor %q: %d coverage rows found for %v, expected at most one", e.Processor, e.Count, e.Params)
}

func (e *MultipleCoverageRowsError) Kind() tserr.Kind { return tserr.KindCoverageCorrupt }
