package rdbms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alexbrainman/odbc"
	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/etlerrors"
	"github.com/relloyd/odsync/helper"
	"github.com/relloyd/odsync/logger"
	"github.com/relloyd/odsync/rdbms/shared"
	"github.com/relloyd/odsync/stream"
	tabledefinition "github.com/relloyd/odsync/table-definition"
)

// SourceQuery is a projection of one source table with an optional filter.
type SourceQuery struct {
	Table   string
	Columns []string // select expressions, each aliased to its destination-safe name
	Filter  string
}

// SQL renders the query against the PUB schema.
func (q SourceQuery) SQL() string {
	s := fmt.Sprintf("SELECT %v FROM %v.%v", strings.Join(q.Columns, ", "), constants.SourceSchema, helper.QuoteSourceIdentifier(q.Table))
	if f := strings.TrimSpace(q.Filter); f != "" {
		s += " WHERE " + f
	}
	return s
}

// SourceExtractor reads from the legacy source through the guard.
type SourceExtractor struct {
	log   logger.Logger
	guard *SourceGuard
}

func NewSourceExtractor(log logger.Logger, guard *SourceGuard) *SourceExtractor {
	return &SourceExtractor{log: log, guard: guard}
}

// Read runs q and returns values canonicalised to layout l.
// Zero rows yields an empty batch with layout l.
func (e *SourceExtractor) Read(ctx context.Context, q SourceQuery, l tabledefinition.Layout) (*stream.Batch, error) {
	conn, err := e.guard.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = conn.Close()
	}()
	b, err := ReadBatch(ctx, conn, q.SQL(), l)
	if err != nil {
		return nil, ClassifySourceError(err)
	}
	e.log.WithField("table", q.Table).Debug("extracted rows: ", b.Len())
	return b, nil
}

// ReadBatch scans every row of sqltext into a batch shaped by l.
func ReadBatch(ctx context.Context, db shared.Connector, sqltext string, l tabledefinition.Layout) (*stream.Batch, error) {
	rows, err := db.QueryContext(ctx, sqltext)
	if err != nil {
		return nil, fmt.Errorf("error during database query using SQL: '%v': %w", sqltext, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(cols) != len(l) {
		return nil, fmt.Errorf("query returned %v columns, expected %v", len(cols), len(l))
	}
	scanVals := make([]interface{}, len(cols))
	scanPtrs := make([]interface{}, len(cols))
	for idx := range scanVals {
		scanPtrs[idx] = &scanVals[idx]
	}
	b := stream.NewBatch(l)
	for rows.Next() {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		if err = rows.Scan(scanPtrs...); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		row := make([]interface{}, len(cols))
		for idx, v := range scanVals {
			if row[idx], err = tabledefinition.Canonical(l[idx], v); err != nil {
				return nil, fmt.Errorf("row %v: %w", b.Len()+1, err)
			}
		}
		if err = b.Append(row); err != nil {
			return nil, err
		}
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return b, nil
}

// ClassifySourceError marks connection-shaped failures as transient so the extract retry applies.
// ODBC SQLSTATE class 08 is a connection exception and HYT00/HYT01 are timeouts.
func ClassifySourceError(err error) error {
	if err == nil {
		return nil
	}
	var te *etlerrors.TransientConnectionError
	if errors.As(err, &te) {
		return err
	}
	if IsTransientOdbcError(err) || etlerrors.IsTransientConnection(err) {
		return &etlerrors.TransientConnectionError{Err: err}
	}
	return err
}

// IsTransientOdbcError reports whether err carries a connection or timeout SQLSTATE.
func IsTransientOdbcError(err error) bool {
	var oe *odbc.Error
	if !errors.As(err, &oe) {
		return false
	}
	for _, d := range oe.Diag {
		if isTransientSqlState(d.State) {
			return true
		}
	}
	return false
}

func isTransientSqlState(state string) bool {
	return strings.HasPrefix(state, "08") || state == "HYT00" || state == "HYT01"
}
