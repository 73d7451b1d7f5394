package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/logger"
)

// TableWatcher tracks the progress of one table load within a run.
type TableWatcher struct {
	log       logger.Logger
	clock     clockwork.Clock
	table     string
	priority  string
	totalRows int64
	mu        sync.Mutex
	status    string
	startTime time.Time
	endTime   time.Time
}

type Stats struct {
	Table              string `json:"table"`
	Priority           string `json:"priority"`
	StatusText         string `json:"statusText"`
	StatusEmoji        string `json:"statusEmoji"`
	ElapsedTimeSec     int    `json:"elapsedTimeSec"`
	TotalRowsProcessed int    `json:"totalRowsProcessed"`
	RowsPerSecondAvg   int    `json:"rowsPerSecondAvg"`
}

func NewTableWatcher(log logger.Logger, clock clockwork.Clock, table, priority string) *TableWatcher {
	return &TableWatcher{log: log, clock: clock, table: table, priority: priority, status: "pending"}
}

func (n *TableWatcher) StartWatching() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.startTime = n.clock.Now()
	n.endTime = time.Time{}
	n.status = "running"
	atomic.StoreInt64(&n.totalRows, 0) // a retried node starts counting again.
}

func (n *TableWatcher) AddRows(rows int64) {
	atomic.AddInt64(&n.totalRows, rows)
}

// StopWatching freezes the elapsed time with the final node status.
func (n *TableWatcher) StopWatching(status string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.startTime.IsZero() {
		n.startTime = n.clock.Now()
	}
	n.endTime = n.clock.Now()
	n.status = status
	n.log.Debug("STATS: ", n.table, " ", status, " after ", n.endTime.Sub(n.startTime), " with ", atomic.LoadInt64(&n.totalRows), " rows")
}

// RenderStats gets a struct filled with stats at the point of time it is called.
func (n *TableWatcher) RenderStats() Stats {
	n.mu.Lock()
	status, start, end := n.status, n.startTime, n.endTime
	n.mu.Unlock()
	var elapsed time.Duration
	switch {
	case start.IsZero():
	case end.IsZero():
		elapsed = n.clock.Since(start)
	default:
		elapsed = end.Sub(start)
	}
	rows := atomic.LoadInt64(&n.totalRows)
	secs := int64(elapsed.Seconds())
	if secs < 1 {
		secs = 1
	}
	return Stats{
		Table:              n.table,
		Priority:           n.priority,
		StatusText:         status,
		StatusEmoji:        statusEmoji(status),
		ElapsedTimeSec:     int(elapsed.Seconds()),
		TotalRowsProcessed: int(rows),
		RowsPerSecondAvg:   int(rows / secs),
	}
}

func statusEmoji(status string) string {
	switch status {
	case "running":
		return "\U0000231B" // hour glass
	case constants.StatusSuccess:
		return "\U00002705" // green tick
	case constants.StatusFailed:
		return "\U0000274C" // cross
	case "skipped":
		return "\U000023ED" // skip
	}
	return "\U0001F552" // clock
}
