package rdbms

import (
	"context"
	"errors"

	"github.com/relloyd/odsync/etlerrors"
	"github.com/relloyd/odsync/logger"
	"github.com/relloyd/odsync/rdbms/shared"
	"github.com/relloyd/odsync/resilience"
)

// ConnectionFactory opens a new source connection.
type ConnectionFactory func(ctx context.Context) (shared.Connector, error)

// SourceGuard routes every source connection through one shared circuit breaker.
type SourceGuard struct {
	log     logger.Logger
	breaker *resilience.CircuitBreaker
	open    ConnectionFactory
}

func NewSourceGuard(log logger.Logger, breaker *resilience.CircuitBreaker, open ConnectionFactory) *SourceGuard {
	return &SourceGuard{log: log, breaker: breaker, open: open}
}

// NewOdbcSourceGuard guards OpenSourceConnection for dsn.
func NewOdbcSourceGuard(log logger.Logger, breaker *resilience.CircuitBreaker, dsn string) *SourceGuard {
	return NewSourceGuard(log, breaker, func(ctx context.Context) (shared.Connector, error) {
		return OpenSourceConnection(ctx, log, dsn)
	})
}

// Connect opens a connection unless the breaker is open.
// Failures to connect count against the breaker and are reported as transient.
func (g *SourceGuard) Connect(ctx context.Context) (shared.Connector, error) {
	var conn shared.Connector
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		c, err := g.open(ctx)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		var open *etlerrors.CircuitOpenError
		if errors.As(err, &open) {
			g.log.Warn("source connection rejected: ", err)
			return nil, err
		}
		return nil, &etlerrors.TransientConnectionError{Err: err}
	}
	return conn, nil
}

// Breaker exposes the shared breaker for status reporting.
func (g *SourceGuard) Breaker() *resilience.CircuitBreaker {
	return g.breaker
}
