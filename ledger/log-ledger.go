package ledger

import (
	"context"

	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/logger"
)

// LogLedger writes entries to the logger.
type LogLedger struct {
	log logger.Logger
}

func NewLogLedger(log logger.Logger) *LogLedger {
	return &LogLedger{log: log}
}

func (l *LogLedger) Record(ctx context.Context, e Entry) error {
	fields := map[string]interface{}{
		"runId":  e.RunID,
		"table":  e.Table,
		"step":   e.Step,
		"status": e.Status,
	}
	if e.Rows != nil {
		fields["rows"] = *e.Rows
	}
	if e.Duration != nil {
		fields["durationSeconds"] = e.Duration.Seconds()
	}
	log := l.log.WithFields(fields)
	switch e.Status {
	case constants.StatusFailed:
		log.Error("step failed: ", e.Error)
	case constants.StatusStarted:
		log.Debug("step started")
	default:
		log.Info("step complete")
	}
	return nil
}

// Multi fans entries out to every ledger.
// All ledgers are written; the first error is returned.
type Multi []Ledger

func (m Multi) Record(ctx context.Context, e Entry) error {
	var first error
	for _, l := range m {
		if err := l.Record(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
