package shared

import (
	"errors"
	"fmt"

	om "github.com/cevaris/ordered_map"
	"github.com/relloyd/odsync/helper"
	"github.com/relloyd/odsync/logger"
)

// DmlGeneratorTxtBatch generates SQL Server text statements with @pN binds.
type DmlGeneratorTxtBatch struct{}

type SqlStatementGeneratorConfig struct {
	Log             logger.Logger
	OutputSchema    string
	OutputTable     string
	SourceSchema    string         // MERGE only: the staging schema.
	SourceTable     string         // MERGE only: the staging table.
	TargetKeyCols   *om.OrderedMap // ordered map of: key = batch field name; value = target table column name
	TargetOtherCols *om.OrderedMap // ordered map of: key = batch field name; value = target table column name
	ChangeCol       string         // MERGE only: rows are updated when this column differs.
	CountActions    bool           // MERGE only: return one row with the inserted and updated counts.
}

func (cfg *SqlStatementGeneratorConfig) validate() error {
	if cfg.OutputTable == "" {
		return errors.New("missing output table name")
	}
	if cfg.TargetKeyCols == nil {
		cfg.TargetKeyCols = om.NewOrderedMap()
	}
	if cfg.TargetOtherCols == nil {
		cfg.TargetOtherCols = om.NewOrderedMap()
	}
	if cfg.TargetKeyCols.Len()+cfg.TargetOtherCols.Len() == 0 {
		return fmt.Errorf("no columns supplied for table %v", cfg.OutputTable)
	}
	return nil
}

type sqlCoreCfg struct {
	sqlStmt                string
	sqlStmtTemplate        string
	sqlValues              []interface{} // slice to hold data values for all rows in batch
	batchSize              int
	rowsInBatch            int
	previousNumRowsInBatch int
}

// targetColumns returns the target column names: key columns followed by other columns.
func targetColumns(keys, others *om.OrderedMap) []string {
	retval := make([]string, 0, keys.Len()+others.Len())
	for _, m := range []*om.OrderedMap{keys, others} {
		iter := m.IterFunc()
		for kv, ok := iter(); ok; kv, ok = iter() {
			retval = append(retval, fmt.Sprintf("%v", kv.Value))
		}
	}
	return retval
}

// MaxRowsPerStatement returns how many rows of numCols fit in one statement under the SQL Server bind limit.
func MaxRowsPerStatement(numCols int, maxParams int, wanted int) int {
	if numCols <= 0 {
		return wanted
	}
	n := maxParams / numCols
	if n < 1 {
		n = 1
	}
	if wanted > 0 && wanted < n {
		n = wanted
	}
	return n
}

// quoteCols quotes each name as a SQL Server identifier, optionally prefixed by alias.
func quoteCols(cols []string, alias string) []string {
	retval := make([]string, len(cols))
	for i, c := range cols {
		if alias != "" {
			retval[i] = alias + "." + helper.QuoteIdentifier(c)
		} else {
			retval[i] = helper.QuoteIdentifier(c)
		}
	}
	return retval
}

func emptyMap() *om.OrderedMap {
	return om.NewOrderedMap()
}
