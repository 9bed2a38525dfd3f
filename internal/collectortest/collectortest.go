// Package collectortest provides an in-memory, scriptable Collector fake for
// exercising the Interval Processor's scenario tests without any real
// transport.
package collectortest

import (
	"context"
	"fmt"
	"sync"

	"github.com/nholding/tsingest/internal/calendar"
	"github.com/nholding/tsingest/internal/collector"
	"github.com/nholding/tsingest/internal/schema"
)

// Response is one scripted reply for a single Retrieve call: either a batch
// or an error, never both.
type Response struct {
	Batch schema.Batch
	Err   error
}

// Fake is a Collector whose responses are scripted per call, in order. It
// records every interval it was asked about so tests can assert on the
// exact gaps the processor computed.
type Fake struct {
	mu        sync.Mutex
	responses []Response
	calls     []collector.Interval
}

// NewFake builds a Fake that returns responses in order, one per Retrieve
// call. Calling Retrieve more times than there are responses panics —
// scenario tests should script exactly as many responses as expected calls.
func NewFake(responses ...Response) *Fake {
	return &Fake{responses: responses}
}

func (f *Fake) Retrieve(ctx context.Context, interval collector.Interval, unit calendar.Unit, params map[string]string) (schema.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, interval)
	if len(f.calls) > len(f.responses) {
		panic(fmt.Sprintf("collectortest: unscripted call #%d for interval %v", len(f.calls), interval))
	}

	r := f.responses[len(f.calls)-1]
	return r.Batch, r.Err
}

// Calls returns every interval Retrieve was invoked with, in call order.
func (f *Fake) Calls() []collector.Interval {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]collector.Interval(nil), f.calls...)
}

// CallCount reports how many times Retrieve was invoked.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
