// Package pipeline runs the load unit of one table: config, filter, extract, transform, stage, merge, bookkeeping.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/relloyd/odsync/config"
	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/etlerrors"
	"github.com/relloyd/odsync/file"
	"github.com/relloyd/odsync/helper"
	"github.com/relloyd/odsync/ledger"
	"github.com/relloyd/odsync/logger"
	"github.com/relloyd/odsync/quality"
	"github.com/relloyd/odsync/rdbms"
	"github.com/relloyd/odsync/resilience"
	"github.com/relloyd/odsync/stats"
	"github.com/relloyd/odsync/stream"
	tabledefinition "github.com/relloyd/odsync/table-definition"
	"github.com/relloyd/odsync/transform"
)

// Deps are the collaborators of a load unit. Cache is optional.
type Deps struct {
	Log     logger.Logger
	Store   config.Store
	Source  SourceReader
	Dest    DestinationWriter
	Ledger  *ledger.Recorder
	Metrics stats.Sink
	Cache   *file.ParquetCache
	Mapper  tabledefinition.Mapper
	Clock   clockwork.Clock
}

type Options struct {
	ExtractPolicy  resilience.RetryPolicy
	ExtractTimeout time.Duration
	// SourceLocation interprets naive source timestamps.
	SourceLocation *time.Location
	// RetryOptions are passed to the extract retry loop.
	RetryOptions []resilience.RetryOption
}

// Result summarises one successful load.
type Result struct {
	Table           string
	Mode            string
	RowsExtracted   int64
	RowsStaged      int64
	Inserted        int64
	Updated         int64
	RetryDelays     []time.Duration
	QualityWarnings int
	Duration        time.Duration
}

type LoadUnit struct {
	Deps
	opts Options
}

func NewLoadUnit(d Deps, o Options) *LoadUnit {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Mapper == nil {
		d.Mapper = tabledefinition.NewMapper()
	}
	if o.SourceLocation == nil {
		o.SourceLocation = time.UTC
	}
	return &LoadUnit{Deps: d, opts: o}
}

// plan is the resolved, validated configuration of one load.
type plan struct {
	cfg    *config.TableLoadConfig
	layout tabledefinition.Layout
	query  rdbms.SourceQuery
	keys   []string
}

// Run loads table in mode. Any stage failure aborts the load and is returned after being written to the ledger.
func (u *LoadUnit) Run(ctx context.Context, table, mode string) (Result, error) {
	return u.run(ctx, table, mode, "")
}

// RunFromCache loads table in mode from the batch an earlier run cached at stage instead of reading the source.
// constants.CacheStageRaw repeats the transform; constants.CacheStageTransformed starts at the stage load.
// The last success time is left alone: the cached rows belong to the earlier extract.
func (u *LoadUnit) RunFromCache(ctx context.Context, table, mode, stage string) (Result, error) {
	return u.run(ctx, table, mode, stage)
}

func (u *LoadUnit) run(ctx context.Context, table, mode, fromCache string) (res Result, err error) {
	log := u.Log.WithFields(map[string]interface{}{"table": table, "runId": u.Ledger.RunID, "mode": mode})
	started := u.Clock.Now()
	res = Result{Table: table, Mode: mode}
	labels := map[string]string{"table": table}
	u.Ledger.Started(ctx, table, constants.StepLoad)
	defer func() {
		res.Duration = u.Clock.Since(started)
		if err != nil {
			u.Ledger.Failed(ctx, table, constants.StepLoad, err, res.Duration)
			u.Metrics.Increment("etl_failed", 1, map[string]string{"table": table, "error": etlerrors.Category(err)})
			log.Error("load failed: ", err)
			return
		}
		u.Ledger.Success(ctx, table, constants.StepLoad, res.RowsStaged, res.Duration)
		u.Metrics.Timing("total_duration", res.Duration, map[string]string{"table": table, "mode": mode})
		secs := res.Duration.Seconds()
		var throughput float64
		if secs > 0 {
			throughput = float64(res.RowsStaged) / secs
		}
		u.Metrics.Gauge("throughput", throughput, map[string]string{"table": table, "unit": "rows/s"})
		u.Metrics.Increment("etl_success", 1, labels)
		log.Info("load complete: ", res.RowsStaged, " rows staged, ", res.Inserted, " inserted, ", res.Updated, " updated in ", res.Duration)
	}()

	p, err := u.resolve(ctx, table, mode)
	if err != nil {
		return res, err
	}
	log.Debug("source query: ", p.query.SQL())

	// Extract, or read back what an earlier run extracted or transformed.
	var raw, enriched *stream.Batch
	switch fromCache {
	case "":
		err = u.step(ctx, table, constants.StepExtract, "extract_duration", func() (int64, error) {
			b, delays, err := u.extract(ctx, log, p)
			res.RetryDelays = delays
			if err != nil {
				return 0, err
			}
			raw = b
			u.cache(log, table, constants.CacheStageRaw, raw)
			return int64(raw.Len()), nil
		})
	case constants.CacheStageRaw:
		err = u.step(ctx, table, constants.StepExtract, "extract_duration", func() (int64, error) {
			b, err := u.restore(log, table, fromCache, p.layout)
			raw = b
			return int64(b.Len()), err
		})
	case constants.CacheStageTransformed:
		enriched, err = u.restore(log, table, fromCache, p.layout.WithTechnicalColumns())
	default:
		err = etlerrors.NewConfigurationError(table, "unknown cache stage %q, use %q or %q",
			fromCache, constants.CacheStageRaw, constants.CacheStageTransformed)
	}
	if err != nil {
		return res, err
	}
	if raw != nil {
		res.RowsExtracted = int64(raw.Len())
	} else {
		res.RowsExtracted = int64(enriched.Len())
	}

	// Transform and check.
	err = u.step(ctx, table, constants.StepTransform, "transform_duration", func() (int64, error) {
		if enriched == nil {
			enriched = u.enrich(p, raw)
			u.cache(log, table, constants.CacheStageTransformed, enriched)
		}
		n, err := u.check(p, enriched)
		res.QualityWarnings = n
		return int64(enriched.Len()), err
	})
	if err != nil {
		return res, err
	}

	// Stage.
	stgSchema, stgTable := p.cfg.StagingTable()
	err = u.step(ctx, table, constants.StepStage, "load_duration", func() (int64, error) {
		if err := u.Dest.EnsureStagingTable(ctx, stgSchema, stgTable, p.layout); err != nil {
			return 0, &etlerrors.StagingError{Table: table, Err: err}
		}
		n, err := u.Dest.BulkInsert(ctx, stgSchema, stgTable, enriched)
		if err != nil {
			return 0, &etlerrors.StagingError{Table: table, Err: err}
		}
		return n, nil
	})
	if err != nil {
		return res, err
	}
	res.RowsStaged = int64(enriched.Len())
	u.Metrics.Increment("rows_processed", float64(res.RowsStaged), labels)

	// Merge.
	odsSchema, odsTable := p.cfg.DestinationSchemaTable()
	err = u.step(ctx, table, constants.StepMerge, "merge_duration", func() (int64, error) {
		if err := u.Dest.EnsureDestinationTable(ctx, odsSchema, odsTable, p.layout); err != nil {
			return 0, &etlerrors.MergeError{Table: table, Err: err}
		}
		mr, err := u.Dest.Merge(ctx, rdbms.MergeSpec{
			TargetSchema:   odsSchema,
			TargetTable:    odsTable,
			SourceSchema:   stgSchema,
			SourceTable:    stgTable,
			KeyCols:        p.keys,
			OtherCols:      nonKeyColumns(p.layout.WithTechnicalColumns()),
			ChangeCol:      constants.ColHashDiff,
			TruncateTarget: mode == constants.ModeFull,
		})
		if err != nil {
			return 0, &etlerrors.MergeError{Table: table, Err: err}
		}
		res.Inserted, res.Updated = mr.Inserted, mr.Updated
		return mr.Affected(), nil
	})
	if err != nil {
		return res, err
	}

	// Bookkeeping is anchored to run time, not to the newest ts_source seen.
	if mode == constants.ModeIncremental && fromCache == "" {
		if err = u.Store.SetLastSuccess(ctx, table, u.Clock.Now()); err != nil {
			return res, fmt.Errorf("error saving last success time for %v: %w", table, err)
		}
	}
	return res, nil
}

// resolve fetches and validates everything the load needs before touching the source.
func (u *LoadUnit) resolve(ctx context.Context, table, mode string) (*plan, error) {
	if mode != constants.ModeFull && mode != constants.ModeIncremental {
		return nil, etlerrors.NewConfigurationError(table, "unknown load mode %q", mode)
	}
	cfg, err := u.Store.GetTableConfig(ctx, table)
	if err != nil {
		return nil, err
	}
	cols, err := u.Store.GetIncludedColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	layout, err := config.BuildLayout(cfg, cols, u.Mapper)
	if err != nil {
		return nil, err
	}
	projection := make([]string, 0, len(layout))
	for _, c := range cols {
		if c.Included {
			projection = append(projection, c.SelectExpression())
		}
	}
	return &plan{
		cfg:    cfg,
		layout: layout,
		query:  rdbms.SourceQuery{Table: cfg.TableName, Columns: projection, Filter: BuildFilter(cfg, mode)},
		keys:   cfg.PrimaryKeyColumns(),
	}, nil
}

// extract reads the source with retry, and a timeout per attempt. Every attempt connects through the guard.
func (u *LoadUnit) extract(ctx context.Context, log logger.Logger, p *plan) (*stream.Batch, []time.Duration, error) {
	delays := make([]time.Duration, 0)
	var b *stream.Batch
	opts := append([]resilience.RetryOption{
		resilience.WithNotify(func(attempt int, err error, d time.Duration) {
			delays = append(delays, d)
			log.Warn("extract attempt ", attempt, " failed, retrying in ", d, ": ", err)
		}),
	}, u.opts.RetryOptions...)
	err := resilience.Retry(ctx, u.opts.ExtractPolicy, func(ctx context.Context) error {
		var err error
		b, err = resilience.CallWithTimeout(ctx, "extract "+p.cfg.TableName, u.opts.ExtractTimeout, func(ctx context.Context) (*stream.Batch, error) {
			return u.Source.Read(ctx, p.query, p.layout)
		})
		return err
	}, opts...)
	if err != nil {
		return nil, delays, err
	}
	if b == nil {
		b = stream.NewBatch(p.layout)
	}
	return b, delays, nil
}

func (u *LoadUnit) enrich(p *plan, b *stream.Batch) *stream.Batch {
	e := transform.Enricher{SourceLocation: u.opts.SourceLocation, Clock: u.Clock}
	if p.cfg.HasTimestamps && p.cfg.DateModifCol != "" {
		e.TsSourceColumn = helper.SafeColumnName(p.cfg.DateModifCol)
	}
	return e.Enrich(b)
}

// check runs the quality gate and returns the number of warning issues.
func (u *LoadUnit) check(p *plan, b *stream.Batch) (int, error) {
	checker, err := quality.NewChecker(u.Log, p.cfg.QualityRules)
	if err != nil {
		return 0, etlerrors.NewConfigurationError(p.cfg.TableName, "%v", err)
	}
	report := checker.Check(p.cfg.TableName, b, p.keys)
	warnings := len(report.Issues) - len(report.Critical())
	if warnings > 0 {
		u.Metrics.Increment("quality_warnings", float64(warnings), map[string]string{"table": p.cfg.TableName})
	}
	if err = report.Error(); err != nil {
		return warnings, &etlerrors.StagingError{Table: p.cfg.TableName, Err: err}
	}
	return warnings, nil
}

func (u *LoadUnit) cache(log logger.Logger, table, stage string, b *stream.Batch) {
	if u.Cache == nil {
		return
	}
	if _, err := u.Cache.Save(table, stage, b); err != nil {
		log.Warn("unable to cache ", stage, " batch: ", err)
	}
}

// restore reads a batch cached by an earlier run. A missing cache is a configuration problem, not a retryable one.
func (u *LoadUnit) restore(log logger.Logger, table, stage string, l tabledefinition.Layout) (*stream.Batch, error) {
	if u.Cache == nil {
		return stream.NewBatch(l), etlerrors.NewConfigurationError(table, "no cache directory to resume the %v stage from", stage)
	}
	b, err := u.Cache.Load(table, stage, l)
	if err != nil {
		return stream.NewBatch(l), etlerrors.NewConfigurationError(table, "unable to resume from the %v cache: %v", stage, err)
	}
	log.Info("resuming from the ", stage, " cache: ", b.Len(), " rows")
	return b, nil
}

// step wraps fn with ledger entries and a timing metric.
func (u *LoadUnit) step(ctx context.Context, table, name, metric string, fn func() (int64, error)) error {
	u.Ledger.Started(ctx, table, name)
	start := u.Clock.Now()
	rows, err := fn()
	d := u.Clock.Since(start)
	if err != nil {
		u.Ledger.Failed(ctx, table, name, err, d)
		return err
	}
	u.Ledger.Success(ctx, table, name, rows, d)
	u.Metrics.Timing(metric, d, map[string]string{"table": table})
	return nil
}

func nonKeyColumns(l tabledefinition.Layout) []string {
	retval := make([]string, 0, len(l))
	for _, c := range l {
		if !c.PrimaryKey {
			retval = append(retval, c.Name)
		}
	}
	return retval
}
