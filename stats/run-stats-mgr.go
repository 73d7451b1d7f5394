package stats

import (
	"sync"
	"time"

	"github.com/cevaris/ordered_map"
	"github.com/jonboulle/clockwork"
	"github.com/relloyd/odsync/logger"
)

type StatsFetcher interface {
	GetStats() []Stats
}

// RunStats is used by the scheduler to report per-table progress.
type RunStats interface {
	StatsFetcher
	AddTableWatcher(table, priority string) *TableWatcher
	StartDumping()
	StopDumping()
}

var DefaultStatsDumpFrequencySeconds = 30

// RunStatsManager implements RunStats and periodically logs the progress of every table in a run.
type RunStatsManager struct {
	ticker          *time.Ticker
	tickerDone      chan struct{}
	tickerIsRunning bool
	tickerFrequency int
	clock           clockwork.Clock
	mu              sync.Mutex
	log             logger.Logger
	tables          *ordered_map.OrderedMap // table name -> *TableWatcher, in scheduling order.
}

// SetStatsDumpFrequency returns an option for NewRunStats. Zero disables dumping.
func SetStatsDumpFrequency(seconds int) func(t *RunStatsManager) {
	return func(t *RunStatsManager) {
		t.tickerFrequency = seconds
	}
}

func SetClock(clock clockwork.Clock) func(t *RunStatsManager) {
	return func(t *RunStatsManager) {
		t.clock = clock
	}
}

func NewRunStats(log logger.Logger, options ...func(t *RunStatsManager)) *RunStatsManager {
	t := &RunStatsManager{log: log, tickerFrequency: DefaultStatsDumpFrequencySeconds, clock: clockwork.NewRealClock()}
	for _, option := range options {
		option(t)
	}
	t.tickerDone = make(chan struct{})
	t.tables = ordered_map.NewOrderedMap()
	return t
}

// AddTableWatcher creates and saves a watcher for table.
func (t *RunStatsManager) AddTableWatcher(table, priority string) *TableWatcher {
	t.mu.Lock()
	defer t.mu.Unlock()
	w := NewTableWatcher(t.log, t.clock, table, priority)
	t.tables.Set(table, w)
	return w
}

func (t *RunStatsManager) StartDumping() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tickerIsRunning {
		t.log.Debug("stats dumper ticker already running")
		return
	}
	if t.tickerFrequency <= 0 {
		t.log.Debug("stats dumper disabled")
		return
	}
	t.ticker = time.NewTicker(time.Second * time.Duration(t.tickerFrequency))
	t.tickerIsRunning = true
	go func(ticker *time.Ticker) {
		t.log.Debug("stats dumper ticker started")
		for {
			select {
			case <-t.tickerDone:
				t.log.Debug("stats dumper ticker stopped")
				return
			case <-ticker.C:
				t.logStats()
			}
		}
	}(t.ticker)
}

// StopDumping stops the ticker and dumps the final stats, only if StartDumping started it.
func (t *RunStatsManager) StopDumping() {
	t.mu.Lock()
	running := t.tickerIsRunning
	if running {
		t.tickerIsRunning = false
		t.ticker.Stop()
	}
	t.mu.Unlock()
	if running {
		t.tickerDone <- struct{}{}
		t.logStats()
	}
}

func (t *RunStatsManager) logStats() {
	for _, s := range t.GetStats() {
		t.log.WithField("table", s.Table).Info(s.StatusEmoji, " ", s.StatusText, " rows=", s.TotalRowsProcessed, " elapsed=", s.ElapsedTimeSec, "s")
	}
}

// GetStats implements interface StatsFetcher.
func (t *RunStatsManager) GetStats() []Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	statsList := make([]Stats, 0, t.tables.Len())
	iter := t.tables.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		statsList = append(statsList, kv.Value.(*TableWatcher).RenderStats())
	}
	return statsList
}
