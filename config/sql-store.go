package config

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/odsync/etlerrors"
	"github.com/relloyd/odsync/helper"
	"github.com/relloyd/odsync/logger"
	"github.com/relloyd/odsync/quality"
	"github.com/relloyd/odsync/rdbms/shared"
)

const (
	sqlGetTable = `SELECT TableName, DestinationTable, PrimaryKeyCols, HasTimestamps, DateCreaCol, DateModifCol,
       FilterClause, LastSuccessTs, DateModifPrecision, LookbackInterval, IsDimension, IsFact, Notes
FROM config.ETL_Tables
WHERE TableName = @p1 AND ISNULL(IsActive, 1) = 1`
	sqlListTables = `SELECT TableName, IsDimension, IsFact, Notes
FROM config.ETL_Tables
WHERE ISNULL(IsActive, 1) = 1
ORDER BY TableName`
	sqlListDependencies = `SELECT TableName, DependsOn
FROM config.ETL_Dependencies
WHERE ISNULL(IsActive, 1) = 1`
	sqlGetColumns = `SELECT c.ColumnName, c.SqlName, c.SourceExpression, m.DataType, m.Width, m.Scale, m.NullFlag
FROM config.ETL_Columns c
LEFT JOIN <META> m ON m.TableName = c.TableName AND m.ColumnName = c.ColumnName
WHERE c.TableName = @p1 AND ISNULL(c.IsExcluded, 0) = 0
ORDER BY c.ColumnName`
	sqlGetRules = `SELECT RuleName, Logic, Severity
FROM config.ETL_QualityRules
WHERE TableName = @p1 AND ISNULL(IsActive, 1) = 1
ORDER BY RuleName`
	sqlSetLastSuccess = `UPDATE config.ETL_Tables SET LastSuccessTs = @p1 WHERE TableName = @p2`
)

// DefaultMetaColumnsTable holds the source column types harvested from the legacy catalogue.
const DefaultMetaColumnsTable = "meta.ProginovColumns"

// SQLStore reads table configuration from the config schema in the warehouse.
type SQLStore struct {
	log              logger.Logger
	db               shared.Connector
	MetaColumnsTable string
}

func NewSQLStore(log logger.Logger, db shared.Connector) *SQLStore {
	return &SQLStore{log: log, db: db, MetaColumnsTable: DefaultMetaColumnsTable}
}

func (s *SQLStore) GetTableConfig(ctx context.Context, table string) (*TableLoadConfig, error) {
	rows, err := s.db.QueryContext(ctx, sqlGetTable, table)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading config for table %v", table)
	}
	defer func() {
		_ = rows.Close()
	}()
	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return nil, errors.Wrapf(err, "error reading config for table %v", table)
		}
		return nil, etlerrors.NewConfigurationError(table, "table not found in config.ETL_Tables")
	}
	var (
		name, dest, pk, creaCol, modifCol, filter, precision, lookback, notes sql.NullString
		hasTs, isDim, isFact                                                 sql.NullBool
		lastSuccess                                                          sql.NullTime
	)
	if err = rows.Scan(&name, &dest, &pk, &hasTs, &creaCol, &modifCol, &filter, &lastSuccess, &precision, &lookback, &isDim, &isFact, &notes); err != nil {
		return nil, errors.Wrapf(err, "error scanning config for table %v", table)
	}
	t := &TableLoadConfig{
		TableName:          name.String,
		DestinationTable:   dest.String,
		PrimaryKeys:        helper.CsvToStringSliceTrimSpaces(pk.String),
		HasTimestamps:      hasTs.Bool,
		DateCreaCol:        creaCol.String,
		DateModifCol:       modifCol.String,
		FilterClause:       strings.TrimSpace(filter.String),
		DateModifPrecision: precision.String,
		LookbackInterval:   lookback.String,
		IsDimension:        isDim.Bool,
		IsFact:             isFact.Bool,
		Notes:              notes.String,
	}
	if lastSuccess.Valid {
		ts := lastSuccess.Time
		t.LastSuccessTs = &ts
	}
	if t.QualityRules, err = s.getRules(ctx, table); err != nil {
		return nil, err
	}
	if err = t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// getRules loads optional JSON Logic rules. A missing rules table is not an error.
func (s *SQLStore) getRules(ctx context.Context, table string) ([]quality.Rule, error) {
	rows, err := s.db.QueryContext(ctx, sqlGetRules, table)
	if err != nil {
		s.log.WithField("table", table).Debug("no quality rules loaded: ", err)
		return nil, nil
	}
	defer func() {
		_ = rows.Close()
	}()
	retval := make([]quality.Rule, 0)
	for rows.Next() {
		var name, logic, severity sql.NullString
		if err = rows.Scan(&name, &logic, &severity); err != nil {
			return nil, errors.Wrapf(err, "error scanning quality rules for table %v", table)
		}
		retval = append(retval, quality.Rule{Name: name.String, Logic: logic.String, Severity: quality.Severity(strings.ToLower(severity.String))})
	}
	return retval, rows.Err()
}

func (s *SQLStore) GetIncludedColumns(ctx context.Context, table string) ([]ColumnSpec, error) {
	q := strings.Replace(sqlGetColumns, "<META>", s.MetaColumnsTable, 1)
	rows, err := s.db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading columns for table %v", table)
	}
	defer func() {
		_ = rows.Close()
	}()
	retval := make([]ColumnSpec, 0)
	for rows.Next() {
		var (
			name, sqlName, expr, dataType, nullFlag sql.NullString
			width, scale                            sql.NullInt64
		)
		if err = rows.Scan(&name, &sqlName, &expr, &dataType, &width, &scale, &nullFlag); err != nil {
			return nil, errors.Wrapf(err, "error scanning columns for table %v", table)
		}
		retval = append(retval, ColumnSpec{
			ColumnName:       name.String,
			SqlName:          sqlName.String,
			SourceExpression: strings.TrimSpace(expr.String),
			Included:         true,
			DataType:         dataType.String,
			Width:            int(width.Int64),
			Scale:            int(scale.Int64),
			Nullable:         isNullableFlag(nullFlag),
		})
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	if len(retval) == 0 {
		return nil, etlerrors.NewConfigurationError(table, "no active columns in config.ETL_Columns")
	}
	return retval, nil
}

func (s *SQLStore) SetLastSuccess(ctx context.Context, table string, ts time.Time) error {
	res, err := s.db.ExecContext(ctx, sqlSetLastSuccess, ts, table)
	if err != nil {
		return errors.Wrapf(err, "error saving LastSuccessTs for table %v", table)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.log.WithField("table", table).Warn("LastSuccessTs update matched no rows")
	}
	return nil
}

func (s *SQLStore) ListTables(ctx context.Context) ([]TableLoadConfig, error) {
	rows, err := s.db.QueryContext(ctx, sqlListTables)
	if err != nil {
		return nil, errors.Wrap(err, "error listing tables")
	}
	retval := make([]TableLoadConfig, 0)
	for rows.Next() {
		var name, notes sql.NullString
		var isDim, isFact sql.NullBool
		if err = rows.Scan(&name, &isDim, &isFact, &notes); err != nil {
			_ = rows.Close()
			return nil, errors.Wrap(err, "error scanning tables")
		}
		retval = append(retval, TableLoadConfig{
			TableName:   name.String,
			IsDimension: isDim.Bool,
			IsFact:      isFact.Bool,
			Notes:       notes.String,
			Priority:    DerivePriority(notes.String, isDim.Bool, isFact.Bool),
		})
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return nil, err
	}
	deps, err := s.listDependencies(ctx)
	if err != nil {
		s.log.Warn("config.ETL_Dependencies not readable, dependencies ignored: ", err)
		deps = nil
	}
	for i := range retval {
		retval[i].DependsOn = deps[retval[i].TableName]
	}
	return retval, nil
}

func (s *SQLStore) listDependencies(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, sqlListDependencies)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()
	retval := make(map[string][]string)
	for rows.Next() {
		var table, dependsOn sql.NullString
		if err = rows.Scan(&table, &dependsOn); err != nil {
			return nil, err
		}
		if dependsOn.String != "" {
			retval[table.String] = append(retval[table.String], strings.TrimSpace(dependsOn.String))
		}
	}
	for k := range retval {
		sort.Strings(retval[k])
	}
	return retval, rows.Err()
}

// isNullableFlag reads the catalogue NullFlag; unknown values are treated as nullable.
func isNullableFlag(f sql.NullString) bool {
	switch strings.ToLower(strings.TrimSpace(f.String)) {
	case "n", "no", "0", "false", "f":
		return false
	}
	return true
}
