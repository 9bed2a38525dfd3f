package processor

import (
	"time"

	"github.com/nholding/tsingest/internal/sparsity"
)

// OutcomeKind classifies what happened to one contiguous interval during a
// collect or delete call.
type OutcomeKind string

const (
	OutcomeIngested     OutcomeKind = "ingested"
	OutcomeEmptySkipped OutcomeKind = "empty_skipped"
	OutcomeDeleted      OutcomeKind = "deleted"
	OutcomeFailed       OutcomeKind = "failed"
)

// IntervalOutcome reports what happened for one interval within a
// Collect/Delete call.
type IntervalOutcome struct {
	Interval sparsity.Interval
	Kind     OutcomeKind
	Rows     int
	Err      error
}

// Run is the result of one collect or delete invocation: a ULID-stamped,
// inspectable record of what happened interval by interval. It supplements
// the spec's bare "total rows plus per-interval outcomes" with a named,
// loggable type.
type Run struct {
	RunID      string
	Processor  string
	Requested  string // the requested domain string, as given by the caller
	StartedAt  time.Time
	Outcomes   []IntervalOutcome
	TotalRows  int
	Successes  int
	Failures   int
}

func (r *Run) record(o IntervalOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Kind {
	case OutcomeIngested, OutcomeDeleted:
		r.Successes++
		r.TotalRows += o.Rows
	case OutcomeFailed:
		r.Failures++
	}
}
