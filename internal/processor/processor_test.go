package processor_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nholding/tsingest/internal/calendar"
	"github.com/nholding/tsingest/internal/collectortest"
	"github.com/nholding/tsingest/internal/processor"
	"github.com/nholding/tsingest/internal/schema"
	"github.com/nholding/tsingest/internal/store"
	"github.com/nholding/tsingest/internal/store/sqlite"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "proc.db")
	registry := store.NewRegistry()
	st, err := sqlite.Open(context.Background(), registry, dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testDescriptor() processor.Descriptor {
	return processor.Descriptor{
		Name: "quotes",
		Unit: calendar.Days,
		ParamSchema: schema.Schema{Columns: []schema.Column{
			{Name: "ticker", Type: schema.Text},
		}},
		DataSchema: schema.Schema{Columns: []schema.Column{
			{Name: "ts", Type: schema.Timestamp},
			{Name: "price", Type: schema.Real},
		}},
		TimeColumn:    "ts",
		CreateMissing: true,
	}
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func rowsFor(dates ...string) schema.Batch {
	batch := make(schema.Batch, len(dates))
	for i, d := range dates {
		batch[i] = schema.Row{"ts": day(d), "price": float64(i + 1)}
	}
	return batch
}

func params(ticker string) map[string]any {
	return map[string]any{"ticker": ticker}
}

func TestCollect_FreshDomain(t *testing.T) {
	ctx := context.Background()
	fake := collectortest.NewFake(collectortest.Response{Batch: rowsFor("2024-01-01", "2024-01-02")})

	p, err := processor.New(ctx, testDescriptor(), newTestStore(t), fake, nil)
	require.NoError(t, err)

	run, err := p.Collect(ctx, "tester", "/2024-01-01|2024-01-02", params("ACME"))
	require.NoError(t, err)
	assert.Equal(t, 2, run.TotalRows)
	assert.Equal(t, 1, fake.CallCount())
	require.Len(t, run.Outcomes, 1)
	assert.Equal(t, processor.OutcomeIngested, run.Outcomes[0].Kind)
}

func TestCollect_IdempotentRepeatCallsCollectorZeroTimes(t *testing.T) {
	ctx := context.Background()
	fake := collectortest.NewFake(collectortest.Response{Batch: rowsFor("2024-01-01", "2024-01-02")})

	st := newTestStore(t)
	p, err := processor.New(ctx, testDescriptor(), st, fake, nil)
	require.NoError(t, err)

	_, err = p.Collect(ctx, "tester", "/2024-01-01|2024-01-02", params("ACME"))
	require.NoError(t, err)
	require.Equal(t, 1, fake.CallCount())

	run, err := p.Collect(ctx, "tester", "/2024-01-01|2024-01-02", params("ACME"))
	require.NoError(t, err)
	assert.Equal(t, 1, fake.CallCount(), "fully covered domain must not call the collector again")
	assert.Equal(t, 0, run.TotalRows)
	assert.Empty(t, run.Outcomes)
}

func TestCollect_ExtensionCallsOnlyTheGap(t *testing.T) {
	ctx := context.Background()
	fake := collectortest.NewFake(
		collectortest.Response{Batch: rowsFor("2024-01-01", "2024-01-05")},
		collectortest.Response{Batch: rowsFor("2024-01-06", "2024-01-10")},
	)

	st := newTestStore(t)
	p, err := processor.New(ctx, testDescriptor(), st, fake, nil)
	require.NoError(t, err)

	_, err = p.Collect(ctx, "tester", "/2024-01-01|2024-01-05", params("ACME"))
	require.NoError(t, err)

	run, err := p.Collect(ctx, "tester", "/2024-01-01|2024-01-10", params("ACME"))
	require.NoError(t, err)
	assert.Equal(t, 2, fake.CallCount())
	require.Len(t, run.Outcomes, 1, "only the new gap is requested, not the already-covered prefix")
	assert.Equal(t, day("2024-01-06"), run.Outcomes[0].Interval.Start)
	assert.Equal(t, day("2024-01-10"), run.Outcomes[0].Interval.End)
}

func TestCollect_DisjointThenAdjacentCollectMergesCoverage(t *testing.T) {
	ctx := context.Background()
	fake := collectortest.NewFake(
		collectortest.Response{Batch: rowsFor("2024-01-01", "2024-01-05")},
		collectortest.Response{Batch: rowsFor("2024-01-10", "2024-01-15")},
		collectortest.Response{Batch: rowsFor("2024-01-06", "2024-01-09")},
	)

	st := newTestStore(t)
	p, err := processor.New(ctx, testDescriptor(), st, fake, nil)
	require.NoError(t, err)

	_, err = p.Collect(ctx, "tester", "/2024-01-01|2024-01-05", params("ACME"))
	require.NoError(t, err)
	_, err = p.Collect(ctx, "tester", "/2024-01-10|2024-01-15", params("ACME"))
	require.NoError(t, err)

	run, err := p.Collect(ctx, "tester", "/2024-01-01|2024-01-15", params("ACME"))
	require.NoError(t, err)
	require.Len(t, run.Outcomes, 1)
	assert.Equal(t, day("2024-01-06"), run.Outcomes[0].Interval.Start)
	assert.Equal(t, day("2024-01-09"), run.Outcomes[0].Interval.End)

	snaps := p.CoverageSnapshot()
	require.Len(t, snaps, 1)
	assert.Equal(t, "/2024-01-01|2024-01-15", snaps[0].Domain.String())
}

func TestDelete_MiddleSplitsCoverage(t *testing.T) {
	ctx := context.Background()
	fake := collectortest.NewFake(collectortest.Response{Batch: rowsFor("2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05")})

	st := newTestStore(t)
	p, err := processor.New(ctx, testDescriptor(), st, fake, nil)
	require.NoError(t, err)

	_, err = p.Collect(ctx, "tester", "/2024-01-01|2024-01-05", params("ACME"))
	require.NoError(t, err)

	run, err := p.Delete(ctx, "tester", "/2024-01-03|2024-01-03", params("ACME"))
	require.NoError(t, err)
	require.Len(t, run.Outcomes, 1)
	assert.Equal(t, 1, run.Outcomes[0].Rows)

	snaps := p.CoverageSnapshot()
	require.Len(t, snaps, 1)
	assert.Equal(t, "/2024-01-01|2024-01-02/2024-01-04|2024-01-05", snaps[0].Domain.String())
	assert.Equal(t, 4, snaps[0].CollectedItems)
}

func TestCollect_ErrorMidLoopContinuesRemainingIntervals(t *testing.T) {
	ctx := context.Background()
	boom := assertError("boom")
	fake := collectortest.NewFake(
		collectortest.Response{Batch: rowsFor("2024-01-05")}, // seeds the middle day already covered
		collectortest.Response{Err: boom},                    // the 01-01..01-04 gap fails
		collectortest.Response{Batch: rowsFor("2024-01-06", "2024-01-07", "2024-01-08", "2024-01-09", "2024-01-10")}, // the 01-06..01-10 gap succeeds
	)

	st := newTestStore(t)
	p, err := processor.New(ctx, testDescriptor(), st, fake, nil)
	require.NoError(t, err)

	_, err = p.Collect(ctx, "tester", "/2024-01-05|2024-01-05", params("ACME"))
	require.NoError(t, err)

	run, err := p.Collect(ctx, "tester", "/2024-01-01|2024-01-10", params("ACME"))
	require.NoError(t, err, "a per-interval collector failure must not abort the whole Collect call")
	require.Len(t, run.Outcomes, 2)
	assert.Equal(t, 1, run.Failures)
	assert.Equal(t, 1, run.Successes)
	assert.Equal(t, 5, run.TotalRows)

	snaps := p.CoverageSnapshot()
	require.Len(t, snaps, 1)
	assert.Equal(t, "/2024-01-05|2024-01-10", snaps[0].Domain.String(), "the failed gap never widens coverage")
}

func TestDelete_EmptyDomainIsSafeNoOp(t *testing.T) {
	ctx := context.Background()
	fake := collectortest.NewFake(collectortest.Response{Batch: rowsFor("2024-01-01")})

	st := newTestStore(t)
	p, err := processor.New(ctx, testDescriptor(), st, fake, nil)
	require.NoError(t, err)

	_, err = p.Collect(ctx, "tester", "/2024-01-01|2024-01-01", params("ACME"))
	require.NoError(t, err)

	_, err = p.Delete(ctx, "tester", "/2024-01-01|2024-01-01", params("ACME"))
	require.NoError(t, err)

	run, err := p.Delete(ctx, "tester", "/2024-01-01|2024-01-01", params("ACME"))
	require.NoError(t, err) // nothing left to delete: zero rows, zero collected, never negative
	assert.Equal(t, 0, run.TotalRows)
}

func TestDelete_UnderflowIsFatal(t *testing.T) {
	ctx := context.Background()
	fake := collectortest.NewFake()

	st := newTestStore(t)
	p, err := processor.New(ctx, testDescriptor(), st, fake, nil)
	require.NoError(t, err)

	// Write data rows directly to the store, bypassing Collect, so the
	// coverage cache's CollectedItems (0) disagrees with what's actually on
	// disk for this ticker — the corrupt-state precondition for underflow.
	require.NoError(t, st.Append(ctx, "quotes", schema.Batch{
		{"ticker": "ACME", "ts": day("2024-01-01"), "price": 1.0},
		{"ticker": "ACME", "ts": day("2024-01-02"), "price": 2.0},
		{"ticker": "ACME", "ts": day("2024-01-03"), "price": 3.0},
	}))

	_, err = p.Delete(ctx, "tester", "/2024-01-01|2024-01-03", params("ACME"))
	require.Error(t, err)
	var underflow *processor.UnderflowError
	require.ErrorAs(t, err, &underflow)
	assert.Equal(t, -3, underflow.Computed)
}

type assertError string

func (e assertError) Error() string { return string(e) }
