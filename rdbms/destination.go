package rdbms

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/helper"
	"github.com/relloyd/odsync/logger"
	"github.com/relloyd/odsync/rdbms/shared"
	"github.com/relloyd/odsync/stream"
	tabledefinition "github.com/relloyd/odsync/table-definition"
)

// MergeSpec describes a primary-key merge from a staging table into a destination table.
type MergeSpec struct {
	TargetSchema   string
	TargetTable    string
	SourceSchema   string
	SourceTable    string
	KeyCols        []string
	OtherCols      []string // non-key columns including the technical columns
	ChangeCol      string
	TruncateTarget bool // full mode: empty the destination in the same transaction
}

// MergeResult counts the rows written by a merge. Unchanged rows are not counted.
type MergeResult struct {
	Inserted int64
	Updated  int64
}

func (m MergeResult) Affected() int64 {
	return m.Inserted + m.Updated
}

// SqlServerWriter implements the warehouse side of a load: DDL, truncate, bulk insert and merge.
type SqlServerWriter struct {
	log       logger.Logger
	db        shared.Connector
	BatchRows int
	MaxParams int
}

func NewSqlServerWriter(log logger.Logger, db shared.Connector) *SqlServerWriter {
	return &SqlServerWriter{log: log, db: db, BatchRows: constants.StageBatchRows, MaxParams: constants.SqlServerMaxParams}
}

func (w *SqlServerWriter) ensureSchema(ctx context.Context, schema string) error {
	q := fmt.Sprintf("IF SCHEMA_ID(N'%v') IS NULL EXEC('CREATE SCHEMA %v')", escapeLiteral(schema), helper.QuoteIdentifier(schema))
	_, err := w.db.ExecContext(ctx, q)
	return err
}

// EnsureStagingTable recreates the staging table with layout l plus the technical columns.
// Staging is transient so it is always rebuilt to match the current column set.
func (w *SqlServerWriter) EnsureStagingTable(ctx context.Context, schema, table string, l tabledefinition.Layout) error {
	if err := w.ensureSchema(ctx, schema); err != nil {
		return errors.Wrapf(err, "error creating schema %v", schema)
	}
	full := helper.QuoteSchemaTable(schema, table)
	drop := fmt.Sprintf("IF OBJECT_ID(N'%v', N'U') IS NOT NULL DROP TABLE %v", escapeLiteral(full), full)
	if _, err := w.db.ExecContext(ctx, drop); err != nil {
		return errors.Wrapf(err, "error dropping %v", full)
	}
	create, err := tabledefinition.CreateTableStatement(schema, table, l.WithTechnicalColumns(), "", nil)
	if err != nil {
		return err
	}
	if _, err = w.db.ExecContext(ctx, create); err != nil {
		return errors.Wrapf(err, "error creating %v", full)
	}
	if keys := primaryKeyNames(l); len(keys) > 0 {
		if _, err = w.db.ExecContext(ctx, tabledefinition.CreateClusteredIndexStatement(schema, table, keys)); err != nil {
			return errors.Wrapf(err, "error indexing %v", full)
		}
	}
	w.log.WithField("table", table).Debug("staging table ready: ", full)
	return nil
}

// EnsureDestinationTable creates the destination table with primary key PK_<table> when it does not exist.
func (w *SqlServerWriter) EnsureDestinationTable(ctx context.Context, schema, table string, l tabledefinition.Layout) error {
	if err := w.ensureSchema(ctx, schema); err != nil {
		return errors.Wrapf(err, "error creating schema %v", schema)
	}
	full := helper.QuoteSchemaTable(schema, table)
	create, err := tabledefinition.CreateTableStatement(schema, table, l.WithTechnicalColumns(), "PK_"+table, primaryKeyNames(l))
	if err != nil {
		return err
	}
	q := fmt.Sprintf("IF OBJECT_ID(N'%v', N'U') IS NULL\n%v", escapeLiteral(full), create)
	if _, err = w.db.ExecContext(ctx, q); err != nil {
		return errors.Wrapf(err, "error creating %v", full)
	}
	return nil
}

func (w *SqlServerWriter) Truncate(ctx context.Context, schema, table string) error {
	_, err := w.db.ExecContext(ctx, "TRUNCATE TABLE "+helper.QuoteSchemaTable(schema, table))
	return err
}

// BulkInsert coerces every row to the layout of b and inserts it in multi-row statements inside one transaction.
func (w *SqlServerWriter) BulkInsert(ctx context.Context, schema, table string, b *stream.Batch) (int64, error) {
	if b.Len() == 0 {
		return 0, nil
	}
	gen, err := w.db.GetDmlGenerator().NewInsertGenerator(&shared.SqlStatementGeneratorConfig{
		Log:             w.log,
		OutputSchema:    schema,
		OutputTable:     table,
		TargetKeyCols:   helper.StringSliceToOrderedMap(nil),
		TargetOtherCols: helper.StringSliceToOrderedMap(b.Layout.Names()),
	})
	if err != nil {
		return 0, err
	}
	rowsPerStmt := shared.MaxRowsPerStatement(len(b.Layout), w.MaxParams, w.BatchRows)
	tx, err := w.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	flush := func() error {
		if gen.RowsInBatch() == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, gen.GetStatement(), gen.GetValues()...); err != nil {
			return err
		}
		total += int64(gen.RowsInBatch())
		gen.InitBatch(rowsPerStmt)
		return nil
	}
	gen.InitBatch(rowsPerStmt)
	for i, row := range b.Rows {
		values, err := tabledefinition.CoerceRow(b.Layout, row)
		if err != nil {
			_ = tx.Rollback()
			return 0, errors.Wrapf(err, "row %v", i+1)
		}
		full, err := gen.AddValuesToBatch(values)
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		if full {
			if err = flush(); err != nil {
				_ = tx.Rollback()
				return 0, err
			}
		}
	}
	if err = flush(); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

// Merge runs the staging to destination MERGE and returns the inserted and updated counts.
func (w *SqlServerWriter) Merge(ctx context.Context, m MergeSpec) (MergeResult, error) {
	gen, err := w.db.GetDmlGenerator().NewMergeGenerator(&shared.SqlStatementGeneratorConfig{
		Log:             w.log,
		OutputSchema:    m.TargetSchema,
		OutputTable:     m.TargetTable,
		SourceSchema:    m.SourceSchema,
		SourceTable:     m.SourceTable,
		TargetKeyCols:   helper.StringSliceToOrderedMap(m.KeyCols),
		TargetOtherCols: helper.StringSliceToOrderedMap(m.OtherCols),
		ChangeCol:       m.ChangeCol,
		CountActions:    true,
	})
	if err != nil {
		return MergeResult{}, err
	}
	tx, err := w.db.Begin(ctx)
	if err != nil {
		return MergeResult{}, err
	}
	if m.TruncateTarget {
		if _, err = tx.ExecContext(ctx, "TRUNCATE TABLE "+helper.QuoteSchemaTable(m.TargetSchema, m.TargetTable)); err != nil {
			_ = tx.Rollback()
			return MergeResult{}, err
		}
	}
	res, err := readMergeCounts(ctx, tx, gen.GetStatement())
	if err != nil {
		_ = tx.Rollback()
		return MergeResult{}, err
	}
	if err = tx.Commit(); err != nil {
		return MergeResult{}, err
	}
	return res, nil
}

func readMergeCounts(ctx context.Context, tx shared.Transacter, q string) (MergeResult, error) {
	rows, err := tx.QueryContext(ctx, q)
	if err != nil {
		return MergeResult{}, err
	}
	defer func() {
		_ = rows.Close()
	}()
	var res MergeResult
	if rows.Next() {
		if err = rows.Scan(&res.Inserted, &res.Updated); err != nil {
			return MergeResult{}, err
		}
	}
	return res, rows.Err()
}

func primaryKeyNames(l tabledefinition.Layout) []string {
	retval := make([]string, 0)
	for _, c := range l {
		if c.PrimaryKey {
			retval = append(retval, c.Name)
		}
	}
	return retval
}

func escapeLiteral(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\'' {
			out = append(out, '\'')
		}
		out = append(out, r)
	}
	return string(out)
}
