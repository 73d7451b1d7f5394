package ledger

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/relloyd/odsync/rdbms/shared"
)

const sqlInsertEtlLog = `INSERT INTO etl.ETL_Log (RunId, TableName, StepName, Status, RowsProcessed, ErrorMessage, DurationSeconds)
VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7)`

// SQLLedger inserts entries into etl.ETL_Log in the warehouse.
type SQLLedger struct {
	db shared.Connector
}

func NewSQLLedger(db shared.Connector) *SQLLedger {
	return &SQLLedger{db: db}
}

func (l *SQLLedger) Record(ctx context.Context, e Entry) error {
	var (
		rows     sql.NullInt64
		errText  sql.NullString
		duration sql.NullFloat64
	)
	if e.Rows != nil {
		rows = sql.NullInt64{Int64: *e.Rows, Valid: true}
	}
	if e.Error != "" {
		errText = sql.NullString{String: e.Error, Valid: true}
	}
	if e.Duration != nil {
		duration = sql.NullFloat64{Float64: e.Duration.Seconds(), Valid: true}
	}
	_, err := l.db.ExecContext(ctx, sqlInsertEtlLog, e.RunID, e.Table, e.Step, e.Status, rows, errText, duration)
	return errors.Wrap(err, "error inserting into etl.ETL_Log")
}
