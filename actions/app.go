package actions

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/relloyd/odsync/alert"
	"github.com/relloyd/odsync/aws/s3"
	"github.com/relloyd/odsync/config"
	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/file"
	"github.com/relloyd/odsync/ledger"
	"github.com/relloyd/odsync/logger"
	"github.com/relloyd/odsync/pipeline"
	"github.com/relloyd/odsync/rdbms"
	"github.com/relloyd/odsync/rdbms/shared"
	"github.com/relloyd/odsync/report"
	"github.com/relloyd/odsync/resilience"
	"github.com/relloyd/odsync/scheduler"
	"github.com/relloyd/odsync/stats"
)

// DagOptions are the command line overrides of a DAG run.
type DagOptions struct {
	Mode            string
	ContinueOnError bool
	Concurrency     int
	// Out receives the console summary. Defaults to stdout.
	Out io.Writer
}

// App holds the components shared by every run of one process.
// The source breaker lives here so that all runs, scheduled or not, see the same connector health.
type App struct {
	Log      logger.Logger
	Settings config.Settings
	Clock    clockwork.Clock
	Target   shared.Connector
	Guard    *rdbms.SourceGuard
	Store    config.Store
	Source   pipeline.SourceReader
	Dest     pipeline.DestinationWriter
	Ledger   ledger.Ledger
	Alerts   alert.Sink
	Cache    *file.ParquetCache
	Reports  *report.Writer
	busy     sync.Mutex
	mu       sync.Mutex
	metrics  *stats.Collector
	sched    *scheduler.Scheduler
}

// NewApp opens the warehouse connection and wires every component from s.
// The source connection is opened per extract through the breaker.
func NewApp(ctx context.Context, log logger.Logger, s config.Settings) (*App, error) {
	if err := s.ValidateConnections(); err != nil {
		return nil, err
	}
	clock := clockwork.NewRealClock()
	target, err := rdbms.OpenTargetConnection(ctx, log, s.TargetDsn)
	if err != nil {
		return nil, errors.Wrap(err, "error connecting to the warehouse")
	}
	a := &App{Log: log, Settings: s, Clock: clock, Target: target}
	breaker := resilience.NewCircuitBreaker(log, resilience.BreakerConfig{
		Name:             "source",
		FailureThreshold: s.BreakerFailureThreshold,
		Cooldown:         config.Seconds(s.BreakerCooldownSeconds),
	}, clock)
	a.Guard = rdbms.NewOdbcSourceGuard(log, breaker, s.SourceDsn)
	a.Source = rdbms.NewSourceExtractor(log, a.Guard)
	a.Dest = rdbms.NewSqlServerWriter(log, target)
	if a.Store, err = newStore(log, s, target); err != nil {
		_ = target.Close()
		return nil, err
	}
	a.Ledger = ledger.Multi{ledger.NewSQLLedger(target), ledger.NewLogLedger(log)}
	a.Alerts = newAlertSink(log, s)
	a.Cache = file.NewParquetCache(log, s.CacheDir)
	if a.Reports, err = newReportWriter(log, s); err != nil {
		_ = target.Close()
		return nil, err
	}
	return a, nil
}

func newStore(log logger.Logger, s config.Settings, target shared.Connector) (config.Store, error) {
	switch s.ConfigStore {
	case config.StoreKindSQL, "":
		return config.NewSQLStore(log, target), nil
	case config.StoreKindFile:
		if s.TablesFile == "" {
			return nil, fmt.Errorf("tables-file is required when config-store is %q", config.StoreKindFile)
		}
		return config.NewFileStore(log, s.TablesFile)
	}
	return nil, fmt.Errorf("unsupported config-store %q", s.ConfigStore)
}

func newAlertSink(log logger.Logger, s config.Settings) alert.Sink {
	logSink := alert.NewLogSink(log)
	if s.TeamsWebhookURL == "" {
		return logSink
	}
	teams := alert.NewTeamsSink(log, s.TeamsWebhookURL)
	if host, err := os.Hostname(); err == nil {
		teams.Server = host
	}
	return &alert.Fallback{Primary: teams, Secondary: logSink, Log: log}
}

func newReportWriter(log logger.Logger, s config.Settings) (*report.Writer, error) {
	if s.ReportS3Bucket == "" {
		return report.NewWriter(log, s.ReportDir, nil), nil
	}
	bucket, err := s3.ParseDSN(fmt.Sprintf("%v/%v", s.ReportS3Bucket, s.ReportS3Prefix), s.ReportS3Region)
	if err != nil {
		return nil, errors.Wrap(err, "invalid report bucket")
	}
	up, err := s3.NewBasicClient(bucket)
	if err != nil {
		return nil, err
	}
	log.Debug("DAG reports will be copied to ", bucket)
	return report.NewWriter(log, s.ReportDir, up), nil
}

// run is the per-invocation state: one run ID, one metrics collector.
type run struct {
	id       string
	metrics  *stats.Collector
	recorder *ledger.Recorder
}

func (a *App) newRun() *run {
	r := &run{id: ledger.NewRunID(), metrics: stats.NewCollector(a.Log, a.Clock)}
	r.recorder = ledger.NewRecorder(a.Log, a.Ledger, r.id, a.Clock)
	a.mu.Lock()
	a.metrics = r.metrics
	a.mu.Unlock()
	return r
}

func (a *App) loadUnit(r *run) (*pipeline.LoadUnit, error) {
	loc, err := a.Settings.SourceLocation()
	if err != nil {
		return nil, err
	}
	return pipeline.NewLoadUnit(pipeline.Deps{
		Log:     a.Log.WithField("runId", r.id),
		Store:   a.Store,
		Source:  a.Source,
		Dest:    a.Dest,
		Ledger:  r.recorder,
		Metrics: r.metrics,
		Cache:   a.Cache,
		Clock:   a.Clock,
	}, pipeline.Options{
		ExtractPolicy: resilience.RetryPolicy{
			MaxAttempts:  a.Settings.ExtractRetryAttempts,
			InitialDelay: config.Seconds(a.Settings.ExtractRetryDelaySeconds),
			Factor:       a.Settings.ExtractRetryFactor,
			MaxDelay:     config.Seconds(a.Settings.ExtractRetryMaxDelaySeconds),
		},
		ExtractTimeout: config.Seconds(a.Settings.ExtractTimeoutSeconds),
		SourceLocation: loc,
	}), nil
}

func (a *App) exporters(runID string) []stats.Exporter {
	var retval []stats.Exporter
	if a.Settings.MetricsToSQL {
		retval = append(retval, &stats.SQLExporter{Log: a.Log, Db: a.Target})
	}
	if a.Settings.MetricsTextfile != "" {
		retval = append(retval, &stats.TextfileExporter{Path: a.Settings.MetricsTextfile})
	}
	if a.Settings.MetricsPushGateway != "" {
		retval = append(retval, &stats.PushExporter{URL: a.Settings.MetricsPushGateway, Job: constants.AppName, RunID: runID})
	}
	return retval
}

// LoadTable runs the load unit of one table and exports its metrics.
func (a *App) LoadTable(ctx context.Context, table, mode string) (pipeline.Result, error) {
	return a.LoadTableFromCache(ctx, table, mode, "")
}

// LoadTableFromCache is LoadTable starting from the batch cached at stage ("raw" or "transformed") by an
// earlier run. An empty stage reads the source.
func (a *App) LoadTableFromCache(ctx context.Context, table, mode, stage string) (pipeline.Result, error) {
	r := a.newRun()
	u, err := a.loadUnit(r)
	if err != nil {
		return pipeline.Result{}, err
	}
	var res pipeline.Result
	if stage == "" {
		res, err = u.Run(ctx, table, mode)
	} else {
		res, err = u.RunFromCache(ctx, table, mode, stage)
	}
	stats.ExportAll(ctx, a.Log, r.metrics, a.exporters(r.id)...)
	if err != nil {
		if aerr := a.Alerts.Send(ctx, alert.TableFailure(table, "n/a", 1, err)); aerr != nil {
			a.Log.Warn("error sending alert: ", aerr)
		}
		return res, err
	}
	return res, nil
}

// RunDag runs every configured table, writes the report artifacts and exports metrics.
func (a *App) RunDag(ctx context.Context, o DagOptions) (*scheduler.RunReport, error) {
	r := a.newRun()
	u, err := a.loadUnit(r)
	if err != nil {
		return nil, err
	}
	if o.Concurrency < 1 {
		o.Concurrency = a.Settings.Concurrency
	}
	if o.Out == nil {
		o.Out = os.Stdout
	}
	log := a.Log.WithField("runId", r.id)
	s := scheduler.NewScheduler(scheduler.Deps{
		Log:     log,
		Tables:  a.Store,
		Runner:  u,
		Alerts:  a.Alerts,
		Metrics: r.metrics,
		Stats:   stats.NewRunStats(log, stats.SetClock(a.Clock)),
		Ledger:  r.recorder,
		Clock:   a.Clock,
	}, scheduler.Options{
		Mode:           o.Mode,
		StopOnCritical: a.Settings.StopOnCritical && !o.ContinueOnError,
		NodeRetries:    a.Settings.NodeRetries,
		Concurrency:    o.Concurrency,
	})
	a.mu.Lock()
	a.sched = s
	a.mu.Unlock()
	rep, err := s.Run(ctx)
	if err != nil {
		return nil, err
	}
	if _, werr := a.Reports.Write(ctx, rep); werr != nil {
		log.Error("unable to write the DAG report: ", werr)
	}
	if werr := rep.WriteSummary(o.Out); werr != nil {
		log.Warn("unable to print the DAG summary: ", werr)
	}
	stats.ExportAll(ctx, a.Log, r.metrics, a.exporters(r.id)...)
	return rep, nil
}

// Plan builds the dependency graph without running it.
func (a *App) Plan(ctx context.Context) (*scheduler.Graph, error) {
	return scheduler.NewScheduler(scheduler.Deps{Log: a.Log, Tables: a.Store, Clock: a.Clock}, scheduler.Options{}).Plan(ctx)
}

func (a *App) Breaker() *resilience.CircuitBreaker {
	return a.Guard.Breaker()
}

// Gatherer returns the metrics of the latest run.
func (a *App) Gatherer() prometheus.Gatherer {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.metrics == nil {
		return prometheus.NewRegistry()
	}
	return a.metrics.Registry()
}

// Status returns the nodes of the latest DAG run.
func (a *App) Status() []scheduler.TableNode {
	a.mu.Lock()
	s := a.sched
	a.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Current()
}

// TryBegin claims the process for one run. It returns false while another run holds it.
func (a *App) TryBegin() (done func(), ok bool) {
	if !a.busy.TryLock() {
		return nil, false
	}
	return a.busy.Unlock, true
}

func (a *App) Close() error {
	return a.Target.Close()
}
