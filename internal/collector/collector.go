// Package collector defines the abstract external data source the Interval
// Processor pulls rows from.
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/nholding/tsingest/internal/calendar"
	"github.com/nholding/tsingest/internal/schema"
	"github.com/nholding/tsingest/internal/tserr"
)

// Interval is the (inclusive) time range a Retrieve call must confine its
// rows' time column to.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Collector must not mutate shared state. It returns rows whose time column
// lies in [interval.Start, interval.End], conforming to a schema compatible
// with the processor's data schema minus the parameter columns — the
// processor prepends those itself.
type Collector interface {
	Retrieve(ctx context.Context, interval Interval, unit calendar.Unit, params map[string]string) (schema.Batch, error)
}

// FailedError distinguishes a collector-reported failure from a
// successfully empty batch, standing in for the spec's "ErrorMessage"
// marker.
type FailedError struct {
	Collector string
	Cause     error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("collector %q failed: %v", e.Collector, e.Cause)
}

func (e *FailedError) Unwrap() error { return e.Cause }

func (e *FailedError) Kind() tserr.Kind { return tserr.KindCollectorFailed }
