// Package processor implements the Interval Processor: the coverage-aware
// ETL driver that composes the Sparsity Map algebra with a pluggable
// Collector and a Tabular Store.
package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nholding/tsingest/internal/calendar"
	"github.com/nholding/tsingest/internal/collector"
	"github.com/nholding/tsingest/internal/ids"
	"github.com/nholding/tsingest/internal/schema"
	"github.com/nholding/tsingest/internal/sparsity"
	"github.com/nholding/tsingest/internal/store"
)

const defaultActor = "system@internal"

// Processor orchestrates collect/delete for one Descriptor: it composes
// parameters, existing coverage, gap computation, the collector call, row
// validation, persistence, and the coverage update.
type Processor struct {
	desc     Descriptor
	cal      calendar.Calendar
	dataSch  schema.Schema // parameter columns ‖ data columns
	metaSch  schema.Schema
	metaPK   []string
	store    store.Store
	collect  collector.Collector
	log      *zap.Logger

	mu    sync.Mutex
	cache map[string]CoverageRow // keyed by ids.BusinessKey(paramTuple)
}

// New constructs a Processor, populating its coverage cache from the
// store's "{name}_metadata" table. If the tables are absent and
// desc.CreateMissing is true, both "{name}" and "{name}_metadata" are
// created.
func New(ctx context.Context, desc Descriptor, st store.Store, coll collector.Collector, log *zap.Logger) (*Processor, error) {
	cal, err := calendar.For(desc.Unit)
	if err != nil {
		return nil, err
	}

	dataSch, err := desc.effectiveDataSchema()
	if err != nil {
		return nil, err
	}
	metaSch, metaPK, err := desc.metaSchema()
	if err != nil {
		return nil, err
	}

	if log == nil {
		log = zap.NewNop()
	}

	p := &Processor{
		desc:    desc,
		cal:     cal,
		dataSch: dataSch,
		metaSch: metaSch,
		metaPK:  metaPK,
		store:   st,
		collect: coll,
		log:     log.With(zap.String("processor", desc.Name)),
		cache:   make(map[string]CoverageRow),
	}

	if err := st.CreateTable(ctx, desc.Name, dataSch, nil, desc.CreateMissing); err != nil {
		return nil, fmt.Errorf("processor %q: create data table: %w", desc.Name, err)
	}
	if err := st.CreateTable(ctx, p.metadataTable(), metaSch, metaPK, desc.CreateMissing); err != nil {
		return nil, fmt.Errorf("processor %q: create metadata table: %w", desc.Name, err)
	}

	if err := p.loadCache(ctx); err != nil {
		return nil, fmt.Errorf("processor %q: load coverage cache: %w", desc.Name, err)
	}

	return p, nil
}

func (p *Processor) metadataTable() string { return p.desc.Name + "_metadata" }

func (p *Processor) loadCache(ctx context.Context) error {
	rows, err := p.store.Query(ctx, p.metadataTable(), nil)
	if err != nil {
		return err
	}

	paramCols := p.desc.ParamSchema.ColumnNames()
	seen := make(map[string]int)

	for _, row := range rows {
		cov, err := coverageRowFromRow(p.desc.Unit, paramCols, row)
		if err != nil {
			return err
		}
		key := businessKeyOf(cov.Params)
		if _, dup := p.cache[key]; dup {
			seen[key]++
			return &MultipleCoverageRowsError{Processor: p.desc.Name, Params: cov.Params, Count: seen[key] + 1}
		}
		p.cache[key] = cov
	}
	return nil
}

func businessKeyOf(params map[string]any) string {
	strs := make(map[string]string, len(params))
	for k, v := range params {
		strs[k] = fmt.Sprintf("%v", v)
	}
	return ids.BusinessKey(strs)
}

// persistCoverage writes the entire coverage cache to "{name}_metadata" via
// Replace, per the spec's write-through contract.
func (p *Processor) persistCoverage(ctx context.Context) error {
	batch := make(schema.Batch, 0, len(p.cache))
	for _, cov := range p.cache {
		batch = append(batch, cov.toRow())
	}
	return p.store.Replace(ctx, p.metadataTable(), batch)
}

func paramsToStrings(params map[string]any) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

func paramPredicate(params map[string]any) store.Predicate {
	preds := make([]store.Predicate, 0, len(params))
	for k, v := range params {
		preds = append(preds, store.EqP(k, v))
	}
	return store.And(preds...)
}

// sparsityOf builds a single-interval Map for one gap/requested interval.
func (p *Processor) sparsityOf(iv sparsity.Interval) (sparsity.Map, error) {
	empty, err := sparsity.Empty(p.desc.Unit)
	if err != nil {
		return sparsity.Map{}, err
	}
	one, err := sparsity.Parse(p.desc.Unit, "/"+p.cal.Format(iv.Start)+"|"+p.cal.Format(iv.End))
	if err != nil {
		return sparsity.Map{}, err
	}
	return empty.Add(one)
}

// CoverageSnapshot returns a point-in-time copy of every coverage row on
// record, for callers such as the snapshot exporter that need to read the
// cache without reaching into Processor internals.
func (p *Processor) CoverageSnapshot() []CoverageRow {
	p.mu.Lock()
	defer p.mu.Unlock()

	rows := make([]CoverageRow, 0, len(p.cache))
	for _, cov := range p.cache {
		rows = append(rows, cov)
	}
	return rows
}

func (p *Processor) coverageFor(key string, params map[string]any, actor string) (CoverageRow, error) {
	if cov, ok := p.cache[key]; ok {
		return cov, nil
	}
	return newCoverageRow(p.desc.Unit, params, actor)
}

func actorOr(actor string) string {
	if actor == "" {
		return defaultActor
	}
	return actor
}

// Collect computes the gap between the requested domain and the coverage
// already on record for params, then calls the collector once per gap
// interval, appending each returned batch before widening coverage for that
// interval — never the reverse, so a crash mid-run leaves coverage
// understating what's on disk, never overstating it.
func (p *Processor) Collect(ctx context.Context, actor string, domainStr string, params map[string]any) (*Run, error) {
	actor = actorOr(actor)

	requested, err := sparsity.Parse(p.desc.Unit, domainStr)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := businessKeyOf(params)
	cov, err := p.coverageFor(key, params, actor)
	if err != nil {
		return nil, err
	}

	gap, err := requested.Subtract(cov.Domain)
	if err != nil {
		return nil, err
	}

	run := &Run{
		RunID:     ids.NewRunID(),
		Processor: p.desc.Name,
		Requested: domainStr,
		StartedAt: time.Now().UTC(),
	}

	paramStrs := paramsToStrings(params)

	for _, iv := range gap.Intervals() {
		log := p.log.With(zap.Time("interval_start", iv.Start), zap.Time("interval_end", iv.End))

		batch, err := p.collect.Retrieve(ctx, collector.Interval{Start: iv.Start, End: iv.End}, p.desc.Unit, paramStrs)
		if err != nil {
			log.Warn("collector failed", zap.Error(err))
			run.record(IntervalOutcome{Interval: iv, Kind: OutcomeFailed, Err: &collector.FailedError{Collector: p.desc.Name, Cause: err}})
			continue
		}

		if len(batch) == 0 {
			run.record(IntervalOutcome{Interval: iv, Kind: OutcomeEmptySkipped})
			continue
		}

		if err := p.desc.DataSchema.Validate(batch); err != nil {
			log.Warn("batch failed schema validation", zap.Error(err))
			run.record(IntervalOutcome{Interval: iv, Kind: OutcomeFailed, Err: err})
			continue
		}

		full := make(schema.Batch, len(batch))
		for i, row := range batch {
			fullRow := make(schema.Row, len(row)+len(params))
			for k, v := range params {
				fullRow[k] = v
			}
			for k, v := range row {
				fullRow[k] = v
			}
			full[i] = fullRow
		}

		if err := p.store.Append(ctx, p.desc.Name, full); err != nil {
			log.Warn("append failed", zap.Error(err))
			run.record(IntervalOutcome{Interval: iv, Kind: OutcomeFailed, Err: err})
			continue
		}

		widened, err := p.sparsityOf(iv)
		if err != nil {
			return run, err
		}
		cov.Domain, err = cov.Domain.Add(widened)
		if err != nil {
			return run, err
		}
		cov.CollectedItems += len(batch)
		cov.touch(actor)
		p.cache[key] = cov

		if err := p.persistCoverage(ctx); err != nil {
			return run, fmt.Errorf("processor %q: persist coverage: %w", p.desc.Name, err)
		}

		run.record(IntervalOutcome{Interval: iv, Kind: OutcomeIngested, Rows: len(batch)})
	}

	return run, nil
}

// Delete removes every row in the requested domain for params, shrinking
// coverage only after the corresponding rows are gone. A delete that would
// drive CollectedItems negative is a fatal invariant breach: it halts the
// remainder of the call and returns UnderflowError.
func (p *Processor) Delete(ctx context.Context, actor string, domainStr string, params map[string]any) (*Run, error) {
	actor = actorOr(actor)

	requested, err := sparsity.Parse(p.desc.Unit, domainStr)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := businessKeyOf(params)
	cov, err := p.coverageFor(key, params, actor)
	if err != nil {
		return nil, err
	}

	run := &Run{
		RunID:     ids.NewRunID(),
		Processor: p.desc.Name,
		Requested: domainStr,
		StartedAt: time.Now().UTC(),
	}

	for _, iv := range requested.Intervals() {
		log := p.log.With(zap.Time("interval_start", iv.Start), zap.Time("interval_end", iv.End))

		pred := store.And(
			paramPredicate(params),
			store.GteP(p.desc.TimeColumn, iv.Start),
			store.LteP(p.desc.TimeColumn, iv.End),
		)

		deleted, err := p.store.Delete(ctx, p.desc.Name, pred)
		if err != nil {
			log.Warn("delete failed", zap.Error(err))
			run.record(IntervalOutcome{Interval: iv, Kind: OutcomeFailed, Err: err})
			continue
		}

		computed := cov.CollectedItems - deleted
		if computed < 0 {
			return run, &UnderflowError{Processor: p.desc.Name, Params: params, Computed: computed}
		}

		ivMap, err := p.sparsityOf(iv)
		if err != nil {
			return run, err
		}
		cov.Domain, err = cov.Domain.Subtract(ivMap)
		if err != nil {
			return run, err
		}
		cov.CollectedItems = computed
		cov.touch(actor)
		p.cache[key] = cov

		if err := p.persistCoverage(ctx); err != nil {
			return run, fmt.Errorf("processor %q: persist coverage: %w", p.desc.Name, err)
		}

		run.record(IntervalOutcome{Interval: iv, Kind: OutcomeDeleted, Rows: deleted})
	}

	return run, nil
}
