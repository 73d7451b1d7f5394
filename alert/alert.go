//go:generate mockgen -package mocks -destination mocks/sink.go -source=alert.go
package alert

import (
	"context"
	"fmt"

	"github.com/relloyd/odsync/helper"
	"github.com/relloyd/odsync/logger"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Detail is one labelled line of an alert. Details keep the order they were added in.
type Detail struct {
	Key   string
	Value string
}

type Alert struct {
	Subject  string
	Message  string
	Severity Severity
	Details  []Detail
}

// Sink delivers alerts.
type Sink interface {
	Send(ctx context.Context, a Alert) error
}

// TableFailure builds the alert raised when a table load fails for good.
func TableFailure(table, priority string, attempts int, err error) Alert {
	msg := ""
	if err != nil {
		msg = helper.Truncate(err.Error(), 200)
	}
	return Alert{
		Subject:  fmt.Sprintf("ETL failure: %v", table),
		Message:  fmt.Sprintf("The load of table %v failed.", table),
		Severity: SeverityCritical,
		Details: []Detail{
			{Key: "Table", Value: table},
			{Key: "Priority", Value: priority},
			{Key: "Attempts", Value: fmt.Sprintf("%d", attempts)},
			{Key: "Error", Value: msg},
			{Key: "Action", Value: "check the run log and rerun the table"},
		},
	}
}

// LogSink writes alerts to the logger. It is used when no webhook is configured.
type LogSink struct {
	log logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Send(ctx context.Context, a Alert) error {
	fields := map[string]interface{}{"severity": string(a.Severity)}
	for _, d := range a.Details {
		fields[d.Key] = d.Value
	}
	log := s.log.WithFields(fields)
	switch a.Severity {
	case SeverityCritical:
		log.Error("ALERT ", a.Subject, ": ", a.Message)
	case SeverityWarning:
		log.Warn("ALERT ", a.Subject, ": ", a.Message)
	default:
		log.Info("ALERT ", a.Subject, ": ", a.Message)
	}
	return nil
}
