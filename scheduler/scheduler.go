package scheduler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/relloyd/odsync/alert"
	"github.com/relloyd/odsync/config"
	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/etlerrors"
	"github.com/relloyd/odsync/helper"
	"github.com/relloyd/odsync/ledger"
	"github.com/relloyd/odsync/logger"
	"github.com/relloyd/odsync/pipeline"
	"github.com/relloyd/odsync/stats"
	"golang.org/x/sync/errgroup"
)

//go:generate mockgen -destination=mocks/runner.go -package=mocks github.com/relloyd/odsync/scheduler Runner

// Runner loads one table.
type Runner interface {
	Run(ctx context.Context, table, mode string) (pipeline.Result, error)
}

// TableLister supplies the tables of a run.
type TableLister interface {
	ListTables(ctx context.Context) ([]config.TableLoadConfig, error)
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Deps struct {
	Log     logger.Logger
	Tables  TableLister
	Runner  Runner
	Alerts  alert.Sink
	Metrics stats.Sink
	// Stats and Ledger are optional.
	Stats  stats.RunStats
	Ledger *ledger.Recorder
	Clock  clockwork.Clock
	Sleep  SleepFunc
}

type Options struct {
	Mode           string
	StopOnCritical bool
	// NodeRetries is the number of extra attempts of a failed table.
	NodeRetries int
	// Concurrency bounds the tables running at once within a level.
	Concurrency int
}

// Scheduler runs every configured table in dependency order.
type Scheduler struct {
	Deps
	opts    Options
	mu      sync.Mutex
	current *Graph
}

func NewScheduler(d Deps, o Options) *Scheduler {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Sleep == nil {
		d.Sleep = ClockSleep(d.Clock)
	}
	if d.Alerts == nil {
		d.Alerts = alert.NewLogSink(d.Log)
	}
	if d.Metrics == nil {
		d.Metrics = stats.NewCollector(d.Log, d.Clock)
	}
	if o.Mode == "" {
		o.Mode = constants.ModeIncremental
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.NodeRetries < 0 {
		o.NodeRetries = 0
	}
	return &Scheduler{Deps: d, opts: o}
}

// ClockSleep sleeps on clock.
func ClockSleep(clock clockwork.Clock) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		select {
		case <-clock.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Plan builds the graph from the current configuration without running it.
func (s *Scheduler) Plan(ctx context.Context) (*Graph, error) {
	tables, err := s.Tables.ListTables(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "error listing tables")
	}
	if len(tables) == 0 {
		return nil, etlerrors.NewConfigurationError("", "no active table is configured")
	}
	return BuildGraph(s.Log, tables)
}

// Run builds a fresh graph and executes it level by level.
// The returned error is only set when the graph cannot be built; table failures are in the report.
func (s *Scheduler) Run(ctx context.Context) (*RunReport, error) {
	g, err := s.Plan(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.current = g
	s.mu.Unlock()
	log := s.Log.WithField("mode", s.opts.Mode)
	report := &RunReport{Mode: s.opts.Mode, StartTime: s.Clock.Now(), Levels: g.LevelNames()}
	if s.Ledger != nil {
		report.RunID = s.Ledger.RunID
		s.Ledger.Started(ctx, constants.StepDag, constants.StepDag)
	}
	watchers := make(map[string]*stats.TableWatcher)
	if s.Stats != nil {
		for _, level := range g.Levels() {
			for _, n := range level {
				watchers[n.Name] = s.Stats.AddTableWatcher(n.Name, string(n.Priority))
			}
		}
		s.Stats.StartDumping()
		defer s.Stats.StopDumping()
	}
	log.Info("starting DAG run of ", len(g.nodes), " tables in ", len(g.levels), " levels")
	var halted atomic.Bool
	for i, level := range g.Levels() {
		llog := log.WithField("level", i+1)
		llog.Info("starting level ", i+1, "/", len(g.levels), " with ", len(level), " tables")
		grp := &errgroup.Group{}
		grp.SetLimit(s.opts.Concurrency)
		for _, n := range level {
			n := n
			grp.Go(func() error {
				nlog := llog.WithFields(map[string]interface{}{"table": n.Name, "priority": string(n.Priority)})
				if halted.Load() {
					s.skip(nlog, n, "run stopped after a critical failure", watchers[n.Name])
					return nil
				}
				if reason := s.failedDependency(g, n); reason != "" {
					s.skip(nlog, n, reason, watchers[n.Name])
					return nil
				}
				s.execute(ctx, nlog, n, watchers[n.Name])
				if s.nodeStatus(n) == StatusFailed && n.Priority == config.PriorityCritical && s.opts.StopOnCritical {
					nlog.Error("critical table failed, no further table will be started")
					halted.Store(true)
				}
				return nil
			})
		}
		_ = grp.Wait()
		if halted.Load() {
			for _, rest := range g.Levels()[i:] {
				for _, n := range rest {
					if s.nodeStatus(n) == StatusPending {
						s.skip(log.WithField("table", n.Name), n, "run stopped after a critical failure", watchers[n.Name])
					}
				}
			}
			break
		}
	}
	report.EndTime = s.Clock.Now()
	report.Nodes = g.Snapshot()
	success, failed, skipped := report.Counts()
	log.Info("DAG run complete: ", success, " success, ", failed, " failed, ", skipped, " skipped in ", report.Duration())
	if s.Ledger != nil {
		if failed > 0 {
			s.Ledger.Failed(ctx, constants.StepDag, constants.StepDag, fmt.Errorf("%d table(s) failed", failed), report.Duration())
		} else {
			s.Ledger.Success(ctx, constants.StepDag, constants.StepDag, int64(success), report.Duration())
		}
	}
	return report, nil
}

// execute runs the load of n, retrying with a sleep of 2^n seconds between attempts.
func (s *Scheduler) execute(ctx context.Context, log logger.Logger, n *TableNode, w *stats.TableWatcher) {
	labels := map[string]string{"table": n.Name, "priority": string(n.Priority)}
	s.update(n, func(n *TableNode) {
		n.Status = StatusRunning
		n.StartTime = s.Clock.Now()
	})
	if w != nil {
		w.StartWatching()
	}
	for {
		s.update(n, func(n *TableNode) { n.Attempts++ })
		log.Info("loading table (attempt ", n.Attempts, "/", s.opts.NodeRetries+1, ")")
		res, err := s.Runner.Run(ctx, n.Name, s.opts.Mode)
		if err == nil {
			s.update(n, func(n *TableNode) {
				n.Status = StatusSuccess
				n.EndTime = s.Clock.Now()
				n.Error = ""
				n.Rows = res.RowsExtracted
				n.Inserted = res.Inserted
				n.Updated = res.Updated
			})
			if w != nil {
				w.AddRows(res.RowsExtracted)
				w.StopWatching(string(StatusSuccess))
			}
			s.Metrics.Increment("table_success", 1, labels)
			s.Metrics.Timing("table_duration", n.Duration(), labels)
			log.Info("table loaded in ", n.Duration())
			return
		}
		s.update(n, func(n *TableNode) { n.Error = helper.Truncate(err.Error(), constants.ErrorTextMaxLen) })
		if n.RetryCount >= s.opts.NodeRetries || !retryableNode(err) || ctx.Err() != nil {
			s.fail(ctx, log, n, err, w, labels)
			return
		}
		s.update(n, func(n *TableNode) { n.RetryCount++ })
		d := time.Duration(math.Pow(2, float64(n.RetryCount))) * time.Second
		log.Warn("table load failed, retrying in ", d, ": ", err)
		if serr := s.Sleep(ctx, d); serr != nil {
			s.fail(ctx, log, n, err, w, labels)
			return
		}
	}
}

func (s *Scheduler) fail(ctx context.Context, log logger.Logger, n *TableNode, err error, w *stats.TableWatcher, labels map[string]string) {
	s.update(n, func(n *TableNode) {
		n.Status = StatusFailed
		n.EndTime = s.Clock.Now()
	})
	if w != nil {
		w.StopWatching(string(StatusFailed))
	}
	s.Metrics.Increment("table_failed", 1, labels)
	s.Metrics.Timing("table_duration", n.Duration(), labels)
	log.Error("table failed after ", n.Attempts, " attempt(s): ", err)
	if n.Priority == config.PriorityCritical {
		if aerr := s.Alerts.Send(ctx, alert.TableFailure(n.Name, string(n.Priority), n.Attempts, err)); aerr != nil {
			log.Warn("error sending alert: ", aerr)
		}
	}
}

func (s *Scheduler) skip(log logger.Logger, n *TableNode, reason string, w *stats.TableWatcher) {
	s.update(n, func(n *TableNode) {
		n.Status = StatusSkipped
		n.SkipReason = reason
	})
	if w != nil {
		w.StopWatching(string(StatusSkipped))
	}
	log.Warn("table skipped: ", reason)
}

// failedDependency names the first dependency of n that failed or was skipped.
// Skips therefore propagate to every descendant of a failed table.
func (s *Scheduler) failedDependency(g *Graph, n *TableNode) string {
	for _, d := range n.Dependencies {
		dep, _ := g.Node(d)
		switch s.nodeStatus(dep) {
		case StatusFailed:
			return fmt.Sprintf("dependency %v failed", d)
		case StatusSkipped:
			return fmt.Sprintf("dependency %v was skipped", d)
		}
	}
	return ""
}

// retryableNode is false for errors that another attempt cannot fix.
func retryableNode(err error) bool {
	var cfg *etlerrors.ConfigurationError
	var stg *etlerrors.StagingError
	var mrg *etlerrors.MergeError
	return !errors.As(err, &cfg) && !errors.As(err, &stg) && !errors.As(err, &mrg)
}

func (s *Scheduler) update(n *TableNode, fn func(n *TableNode)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(n)
}

func (s *Scheduler) nodeStatus(n *TableNode) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return n.Status
}

// Current returns a copy of the nodes of the latest run, or nil before the first run.
func (s *Scheduler) Current() []TableNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.Snapshot()
}
