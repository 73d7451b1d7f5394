package scheduler_test

import (
	"bytes"
	"context"
	"errors"
	"io/ioutil"
	"sync"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/relloyd/odsync/alert"
	alertmocks "github.com/relloyd/odsync/alert/mocks"
	"github.com/relloyd/odsync/config"
	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/etlerrors"
	"github.com/relloyd/odsync/logger"
	"github.com/relloyd/odsync/pipeline"
	"github.com/relloyd/odsync/scheduler"
	"github.com/relloyd/odsync/scheduler/mocks"
	"github.com/relloyd/odsync/stats"
)

type listStore []config.TableLoadConfig

func (l listStore) ListTables(ctx context.Context) ([]config.TableLoadConfig, error) {
	return l, nil
}

func tbl(name string, p config.Priority, deps ...string) config.TableLoadConfig {
	return config.TableLoadConfig{TableName: name, Priority: p, DependsOn: deps}
}

// fakeRunner fails a table for its first failures[table] attempts (-1 for always) and
// advances the clock by took[table] on every attempt.
type fakeRunner struct {
	mu       sync.Mutex
	clock    *clockwork.FakeClock
	failures map[string]int
	errs     map[string]error
	took     map[string]time.Duration
	attempts map[string]int
	calls    []string
	modes    []string
}

func newFakeRunner(clock *clockwork.FakeClock) *fakeRunner {
	return &fakeRunner{
		clock:    clock,
		failures: make(map[string]int),
		errs:     make(map[string]error),
		took:     make(map[string]time.Duration),
		attempts: make(map[string]int),
	}
}

func (f *fakeRunner) Run(ctx context.Context, table, mode string) (pipeline.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, table)
	f.modes = append(f.modes, mode)
	f.attempts[table]++
	f.clock.Advance(f.took[table])
	if n := f.failures[table]; n < 0 || f.attempts[table] <= n {
		if err, ok := f.errs[table]; ok {
			return pipeline.Result{}, err
		}
		return pipeline.Result{}, &etlerrors.TransientConnectionError{Err: errors.New("connection reset by peer")}
	}
	return pipeline.Result{Table: table, Mode: mode, RowsExtracted: 10, Inserted: 10}, nil
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

type runnerFunc func(ctx context.Context, table, mode string) (pipeline.Result, error)

func (f runnerFunc) Run(ctx context.Context, table, mode string) (pipeline.Result, error) {
	return f(ctx, table, mode)
}

var _ = Describe("BuildGraph", func() {
	var (
		logOutput *bytes.Buffer
		log       logger.Logger
	)

	BeforeEach(func() {
		logOutput = bytes.NewBufferString("")
		log = logger.NewTestLogger(logOutput)
	})

	It("Should reject a cycle with a ConfigurationError", func() {
		_, err := scheduler.BuildGraph(log, []config.TableLoadConfig{
			tbl("A", config.PriorityNormal, "B"),
			tbl("B", config.PriorityNormal, "C"),
			tbl("C", config.PriorityNormal, "A"),
		})
		Expect(err).To(HaveOccurred())
		var cfgErr *etlerrors.ConfigurationError
		Expect(errors.As(err, &cfgErr)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("cyclic dependency: A -> B -> C -> A"))
	})

	It("Should treat a self dependency as a cycle", func() {
		_, err := scheduler.BuildGraph(log, []config.TableLoadConfig{tbl("A", config.PriorityNormal, "A")})
		var cfgErr *etlerrors.ConfigurationError
		Expect(errors.As(err, &cfgErr)).To(BeTrue())
	})

	It("Should reject a table configured twice", func() {
		_, err := scheduler.BuildGraph(log, []config.TableLoadConfig{
			tbl("A", config.PriorityNormal),
			tbl("A", config.PriorityHigh),
		})
		var cfgErr *etlerrors.ConfigurationError
		Expect(errors.As(err, &cfgErr)).To(BeTrue())
	})

	It("Should drop dangling dependencies with a warning", func() {
		g, err := scheduler.BuildGraph(log, []config.TableLoadConfig{
			tbl("A", config.PriorityNormal, "ghost"),
			tbl("B", config.PriorityNormal, "A"),
		})
		Expect(err).NotTo(HaveOccurred())
		a, ok := g.Node("A")
		Expect(ok).To(BeTrue())
		Expect(a.Dependencies).To(BeEmpty())
		Expect(logOutput.String()).To(ContainSubstring("ghost"))
		Expect(g.LevelNames()).To(Equal([][]string{{"A"}, {"B"}}))
	})

	It("Should peel levels and order each level by priority then name", func() {
		g, err := scheduler.BuildGraph(log, []config.TableLoadConfig{
			tbl("A", config.PriorityNormal),
			tbl("B", config.PriorityCritical),
			tbl("C", config.PriorityCritical, "A", "B"),
			tbl("D", config.PriorityHigh),
			tbl("E", config.PriorityNormal, "C"),
			tbl("F", ""),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(g.LevelNames()).To(Equal([][]string{{"B", "D", "A", "F"}, {"C"}, {"E"}}))
		f, _ := g.Node("F")
		Expect(f.Priority).To(Equal(config.PriorityNormal))
		Expect(g.Dependents("A")).To(Equal([]string{"C"}))
	})
})

var _ = Describe("Scheduler", func() {
	var (
		ctrl     *gomock.Controller
		log      logger.Logger
		clock    *clockwork.FakeClock
		runner   *fakeRunner
		alerts   *alertmocks.MockSink
		metrics  *stats.Collector
		runStats *stats.RunStatsManager
		sleepsMu sync.Mutex
		sleeps   []time.Duration
	)

	newScheduler := func(tables listStore, r scheduler.Runner, o scheduler.Options) *scheduler.Scheduler {
		return scheduler.NewScheduler(scheduler.Deps{
			Log:     log,
			Tables:  tables,
			Runner:  r,
			Alerts:  alerts,
			Metrics: metrics,
			Stats:   runStats,
			Clock:   clock,
			Sleep: func(ctx context.Context, d time.Duration) error {
				sleepsMu.Lock()
				defer sleepsMu.Unlock()
				sleeps = append(sleeps, d)
				return nil
			},
		}, o)
	}

	statusOf := func(r *scheduler.RunReport) map[string]scheduler.Status {
		retval := make(map[string]scheduler.Status)
		for _, n := range r.Nodes {
			retval[n.Name] = n.Status
		}
		return retval
	}

	nodeOf := func(r *scheduler.RunReport, name string) scheduler.TableNode {
		for _, n := range r.Nodes {
			if n.Name == name {
				return n
			}
		}
		Fail("no node " + name)
		return scheduler.TableNode{}
	}

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		log = logger.NewTestLogger(ioutil.Discard)
		clock = clockwork.NewFakeClockAt(time.Date(2024, 2, 1, 2, 0, 0, 0, time.UTC))
		runner = newFakeRunner(clock)
		alerts = alertmocks.NewMockSink(ctrl)
		metrics = stats.NewCollector(log, clock)
		runStats = stats.NewRunStats(log, stats.SetStatsDumpFrequency(0), stats.SetClock(clock))
		sleeps = nil
	})

	AfterEach(func() {
		ctrl.Finish()
	})

	It("Should run nothing when the graph is cyclic", func() {
		s := newScheduler(listStore{
			tbl("A", config.PriorityCritical, "B"),
			tbl("B", config.PriorityNormal, "C"),
			tbl("C", config.PriorityNormal, "A"),
		}, runner, scheduler.Options{StopOnCritical: true})
		report, err := s.Run(context.Background())
		Expect(err).To(HaveOccurred())
		Expect(report).To(BeNil())
		Expect(runner.Calls()).To(BeEmpty())
	})

	It("Should fail when no table is configured", func() {
		_, err := newScheduler(listStore{}, runner, scheduler.Options{}).Run(context.Background())
		var cfgErr *etlerrors.ConfigurationError
		Expect(errors.As(err, &cfgErr)).To(BeTrue())
	})

	It("Should run levels in priority order and pass the mode", func() {
		s := newScheduler(listStore{
			tbl("A", config.PriorityNormal),
			tbl("B", config.PriorityCritical),
			tbl("C", config.PriorityNormal, "A", "B"),
			tbl("D", config.PriorityHigh),
		}, runner, scheduler.Options{Mode: constants.ModeFull})
		report, err := s.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(runner.Calls()).To(Equal([]string{"B", "D", "A", "C"}))
		Expect(runner.modes).To(ConsistOf(constants.ModeFull, constants.ModeFull, constants.ModeFull, constants.ModeFull))
		Expect(report.HasFailures()).To(BeFalse())
		Expect(report.Levels).To(Equal([][]string{{"B", "D", "A"}, {"C"}}))
		Expect(metrics.Sum("table_success")).To(Equal(4.0))
		Expect(nodeOf(report, "C").Rows).To(Equal(int64(10)))
	})

	It("Should skip everything pending after a critical failure when stopping on critical", func() {
		runner.failures["A"] = -1
		var sent []alert.Alert
		alerts.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, a alert.Alert) error {
			sent = append(sent, a)
			return nil
		}).Times(1)
		s := newScheduler(listStore{
			tbl("A", config.PriorityCritical),
			tbl("B", config.PriorityNormal),
			tbl("C", config.PriorityNormal, "A", "B"),
		}, runner, scheduler.Options{StopOnCritical: true, NodeRetries: 2})
		report, err := s.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(runner.Calls()).To(Equal([]string{"A", "A", "A"}))
		Expect(statusOf(report)).To(Equal(map[string]scheduler.Status{
			"A": scheduler.StatusFailed,
			"B": scheduler.StatusSkipped,
			"C": scheduler.StatusSkipped,
		}))
		c := nodeOf(report, "C")
		Expect(c.Attempts).To(Equal(0))
		Expect(c.StartTime.IsZero()).To(BeTrue())
		Expect(nodeOf(report, "A").Attempts).To(Equal(3))
		Expect(nodeOf(report, "A").Error).To(ContainSubstring("connection reset by peer"))
		Expect(sent).To(HaveLen(1))
		Expect(sent[0].Subject).To(Equal("ETL failure: A"))
		Expect(sent[0].Severity).To(Equal(alert.SeverityCritical))
		Expect(report.HasFailures()).To(BeTrue())
		Expect(metrics.Sum("table_failed")).To(Equal(1.0))
	})

	It("Should skip only descendants of a failure when continuing on error", func() {
		runner.failures["A"] = -1
		alerts.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("webhook down")).Times(1)
		s := newScheduler(listStore{
			tbl("A", config.PriorityCritical),
			tbl("B", config.PriorityNormal),
			tbl("C", config.PriorityNormal, "A", "B"),
			tbl("D", config.PriorityHigh, "C"),
			tbl("E", config.PriorityNormal, "B"),
		}, runner, scheduler.Options{StopOnCritical: false, NodeRetries: 0})
		report, err := s.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(statusOf(report)).To(Equal(map[string]scheduler.Status{
			"A": scheduler.StatusFailed,
			"B": scheduler.StatusSuccess,
			"C": scheduler.StatusSkipped,
			"D": scheduler.StatusSkipped,
			"E": scheduler.StatusSuccess,
		}))
		Expect(nodeOf(report, "C").SkipReason).To(Equal("dependency A failed"))
		Expect(nodeOf(report, "D").SkipReason).To(Equal("dependency C was skipped"))
		Expect(runner.Calls()).NotTo(ContainElement("C"))
		Expect(sleeps).To(BeEmpty())
	})

	It("Should not alert when a non critical table fails", func() {
		runner.failures["B"] = -1
		s := newScheduler(listStore{tbl("B", config.PriorityHigh)}, runner, scheduler.Options{StopOnCritical: true})
		report, err := s.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(statusOf(report)["B"]).To(Equal(scheduler.StatusFailed))
	})

	It("Should retry a failed table with exponential sleeps", func() {
		runner.failures["A"] = 2
		s := newScheduler(listStore{tbl("A", config.PriorityNormal)}, runner, scheduler.Options{NodeRetries: 2})
		report, err := s.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		a := nodeOf(report, "A")
		Expect(a.Status).To(Equal(scheduler.StatusSuccess))
		Expect(a.RetryCount).To(Equal(2))
		Expect(a.Attempts).To(Equal(3))
		Expect(a.Error).To(BeEmpty())
		Expect(sleeps).To(Equal([]time.Duration{2 * time.Second, 4 * time.Second}))
	})

	It("Should not retry a merge failure", func() {
		runner.failures["A"] = -1
		runner.errs["A"] = &etlerrors.MergeError{Table: "A", Err: errors.New("PRIMARY KEY violation")}
		s := newScheduler(listStore{tbl("A", config.PriorityNormal)}, runner, scheduler.Options{NodeRetries: 2})
		report, err := s.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(runner.Calls()).To(Equal([]string{"A"}))
		Expect(nodeOf(report, "A").Status).To(Equal(scheduler.StatusFailed))
		Expect(sleeps).To(BeEmpty())
	})

	It("Should update the run stats watchers", func() {
		runner.failures["B"] = -1
		s := newScheduler(listStore{
			tbl("A", config.PriorityNormal),
			tbl("B", config.PriorityNormal),
			tbl("C", config.PriorityNormal, "B"),
		}, runner, scheduler.Options{})
		_, err := s.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		got := make(map[string]string)
		for _, st := range runStats.GetStats() {
			got[st.Table] = st.StatusText
		}
		Expect(got).To(Equal(map[string]string{"A": "success", "B": "failed", "C": "skipped"}))
		Expect(s.Current()).To(HaveLen(3))
	})

	It("Should run the tables of a level concurrently and join before the next level", func() {
		var mu sync.Mutex
		var events []string
		started := make(chan struct{}, 2)
		release := make(chan struct{})
		r := runnerFunc(func(ctx context.Context, table, mode string) (pipeline.Result, error) {
			mu.Lock()
			events = append(events, "start "+table)
			mu.Unlock()
			if table != "C" {
				started <- struct{}{}
				select {
				case <-release:
				case <-time.After(5 * time.Second):
					return pipeline.Result{}, errors.New("level was not run concurrently")
				}
			}
			mu.Lock()
			events = append(events, "end "+table)
			mu.Unlock()
			return pipeline.Result{Table: table}, nil
		})
		go func() {
			<-started
			<-started
			close(release)
		}()
		s := newScheduler(listStore{
			tbl("A", config.PriorityNormal),
			tbl("B", config.PriorityNormal),
			tbl("C", config.PriorityNormal, "A", "B"),
		}, r, scheduler.Options{Concurrency: 2})
		report, err := s.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(report.HasFailures()).To(BeFalse())
		Expect(events).To(HaveLen(6))
		Expect(events[4:]).To(Equal([]string{"start C", "end C"}))
	})

	It("Should accept a gomock runner", func() {
		m := mocks.NewMockRunner(ctrl)
		gomock.InOrder(
			m.EXPECT().Run(gomock.Any(), "A", constants.ModeIncremental).Return(pipeline.Result{RowsExtracted: 3}, nil),
			m.EXPECT().Run(gomock.Any(), "B", constants.ModeIncremental).Return(pipeline.Result{RowsExtracted: 4}, nil),
		)
		report, err := newScheduler(listStore{
			tbl("A", config.PriorityNormal),
			tbl("B", config.PriorityNormal, "A"),
		}, m, scheduler.Options{}).Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(nodeOf(report, "B").Rows).To(Equal(int64(4)))
	})
})

var _ = Describe("RunReport", func() {
	var report *scheduler.RunReport

	BeforeEach(func() {
		clock := clockwork.NewFakeClockAt(time.Date(2024, 2, 1, 2, 0, 0, 0, time.UTC))
		runner := newFakeRunner(clock)
		runner.took = map[string]time.Duration{"A": 3 * time.Second, "B": time.Second, "C": 5 * time.Second, "D": 2 * time.Second}
		runner.failures["D"] = -1
		s := scheduler.NewScheduler(scheduler.Deps{
			Log:    logger.NewTestLogger(ioutil.Discard),
			Tables: listStore{tbl("A", config.PriorityCritical), tbl("B", config.PriorityHigh), tbl("C", config.PriorityNormal), tbl("D", config.PriorityNormal), tbl("E", config.PriorityNormal, "D")},
			Runner: runner,
			Clock:  clock,
		}, scheduler.Options{})
		var err error
		report, err = s.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
	})

	It("Should count outcomes per tier", func() {
		success, failed, skipped := report.Counts()
		Expect([]int{success, failed, skipped}).To(Equal([]int{3, 1, 1}))
		Expect(report.SuccessRate()).To(BeNumerically("~", 60.0, 0.001))
		Expect(report.Tiers()).To(Equal([]scheduler.TierCount{
			{Priority: config.PriorityCritical, Success: 1},
			{Priority: config.PriorityHigh, Success: 1},
			{Priority: config.PriorityNormal, Success: 1, Failed: 1, Skipped: 1},
		}))
		Expect(report.Duration()).To(Equal(11 * time.Second))
	})

	It("Should list the slowest tables first", func() {
		slow := report.Slowest(2)
		Expect(slow).To(HaveLen(2))
		Expect(slow[0].Name).To(Equal("C"))
		Expect(slow[1].Name).To(Equal("A"))
	})

	It("Should write a summary with failed tables", func() {
		b := &bytes.Buffer{}
		Expect(report.WriteSummary(b)).To(Succeed())
		Expect(b.String()).To(ContainSubstring("Success rate: 60.0%"))
		Expect(b.String()).To(ContainSubstring("- D (normal, 1 attempt(s)): transient connection error: connection reset by peer"))
		Expect(b.String()).To(ContainSubstring("1. C"))
	})
})
