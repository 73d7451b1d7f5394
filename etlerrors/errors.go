// Package etlerrors holds the typed errors raised by the load engine and the classification used by retry loops.
package etlerrors

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"
)

// ConfigurationError is raised for missing table config, zero active columns, an empty primary key
// or a cyclic dependency graph.
type ConfigurationError struct {
	Table string
	Msg   string
	Err   error
}

func (e *ConfigurationError) Error() string {
	s := "configuration error"
	if e.Table != "" {
		s = fmt.Sprintf("%v for table %v", s, e.Table)
	}
	s = fmt.Sprintf("%v: %v", s, e.Msg)
	if e.Err != nil {
		s = fmt.Sprintf("%v: %v", s, e.Err)
	}
	return s
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError builds a ConfigurationError for table.
func NewConfigurationError(table string, format string, args ...interface{}) error {
	return &ConfigurationError{Table: table, Msg: fmt.Sprintf(format, args...)}
}

// TransientConnectionError marks a source connection failure that is worth retrying.
type TransientConnectionError struct {
	Err error
}

func (e *TransientConnectionError) Error() string {
	return fmt.Sprintf("transient connection error: %v", e.Err)
}

func (e *TransientConnectionError) Unwrap() error { return e.Err }

// TimeoutError is returned when an operation exceeds its wall-clock budget.
type TimeoutError struct {
	Op     string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%v timed out after %v", e.Op, e.Budget)
}

// CircuitOpenError is returned while a breaker rejects calls.
// TrialInFlight is set when a half-open breaker rejects a call because its single trial call is still running.
type CircuitOpenError struct {
	Name          string
	Remaining     time.Duration
	TrialInFlight bool
}

func (e *CircuitOpenError) Error() string {
	if e.TrialInFlight {
		return fmt.Sprintf("circuit breaker %v is half-open: a trial call is already in progress", e.Name)
	}
	return fmt.Sprintf("circuit breaker %v is open: retry in %.0fs", e.Name, e.Remaining.Seconds())
}

// StagingError is a destination-side failure while loading the staging table.
type StagingError struct {
	Table string
	Err   error
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("staging failed for table %v: %v", e.Table, e.Err)
}

func (e *StagingError) Unwrap() error { return e.Err }

// MergeError is a destination-side failure while merging staging into the ODS table.
type MergeError struct {
	Table string
	Err   error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge failed for table %v: %v", e.Table, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// Outcome tags the result of one attempt of an operation.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// Classify maps err to an Outcome.
// Transient connection errors and timeouts are retryable. An open circuit, configuration and
// destination-side errors are fatal.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var (
		co *CircuitOpenError
		ce *ConfigurationError
		se *StagingError
		me *MergeError
		te *TransientConnectionError
		to *TimeoutError
	)
	switch {
	case errors.As(err, &co), errors.As(err, &ce), errors.As(err, &se), errors.As(err, &me):
		return OutcomeFatal
	case errors.As(err, &te), errors.As(err, &to):
		return OutcomeRetryable
	}
	return OutcomeFatal
}

// Category names the kind of err for use as a metric label. Unknown errors are "other".
func Category(err error) string {
	var (
		co *CircuitOpenError
		ce *ConfigurationError
		se *StagingError
		me *MergeError
		te *TransientConnectionError
		to *TimeoutError
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &ce):
		return "configuration"
	case errors.As(err, &co):
		return "circuit_open"
	case errors.As(err, &to):
		return "timeout"
	case errors.As(err, &te):
		return "transient_connection"
	case errors.As(err, &se):
		return "staging"
	case errors.As(err, &me):
		return "merge"
	}
	return "other"
}

// IsTransientConnection reports whether err looks like a network blip or a dropped connection.
func IsTransientConnection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
