//go:generate mockgen -package mocks -destination mocks/ledger.go -source=ledger.go
package ledger

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/helper"
	"github.com/relloyd/odsync/logger"
	"github.com/rs/xid"
)

// Entry is one step transition of one table in one run.
type Entry struct {
	RunID    string
	Table    string
	Step     string
	Status   string // started, success or failed
	Rows     *int64
	Error    string
	Duration *time.Duration
	At       time.Time
}

// Ledger persists run progress.
type Ledger interface {
	Record(ctx context.Context, e Entry) error
}

// NewRunID returns a sortable globally unique run identifier.
func NewRunID() string {
	return xid.New().String()
}

// Recorder stamps entries with a run ID and swallows ledger failures.
// A run must never fail because its progress could not be written.
type Recorder struct {
	log    logger.Logger
	ledger Ledger
	clock  clockwork.Clock
	RunID  string
}

func NewRecorder(log logger.Logger, l Ledger, runID string, clock clockwork.Clock) *Recorder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if runID == "" {
		runID = NewRunID()
	}
	return &Recorder{log: log, ledger: l, clock: clock, RunID: runID}
}

func (r *Recorder) Started(ctx context.Context, table, step string) {
	r.record(ctx, Entry{Table: table, Step: step, Status: constants.StatusStarted})
}

func (r *Recorder) Success(ctx context.Context, table, step string, rows int64, d time.Duration) {
	r.record(ctx, Entry{Table: table, Step: step, Status: constants.StatusSuccess, Rows: &rows, Duration: &d})
}

// Failed records err truncated to the storable length.
func (r *Recorder) Failed(ctx context.Context, table, step string, err error, d time.Duration) {
	msg := ""
	if err != nil {
		msg = helper.Truncate(err.Error(), constants.ErrorTextMaxLen)
	}
	r.record(ctx, Entry{Table: table, Step: step, Status: constants.StatusFailed, Error: msg, Duration: &d})
}

func (r *Recorder) record(ctx context.Context, e Entry) {
	e.RunID = r.RunID
	e.At = r.clock.Now()
	if err := r.ledger.Record(ctx, e); err != nil {
		r.log.WithFields(map[string]interface{}{"table": e.Table, "step": e.Step}).Warn("error writing run ledger: ", err)
	}
}
