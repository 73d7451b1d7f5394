package shared

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/odsync/helper"
)

// SqlInsertTxtBatch implements SqlStmtTxtBatcher:
// it generates multi-row INSERT statements with batches of rows supplied.
type SqlInsertTxtBatch struct {
	SqlStatementGeneratorConfig // mandatory to be populated.
	sqlCoreCfg
	ColList []string // list of columns extracted from SqlStatementGeneratorConfig.
}

// NewInsertGenerator creates a new SqlStmtGenerator that implements interface SqlStmtTxtBatcher.
func (*DmlGeneratorTxtBatch) NewInsertGenerator(cfg *SqlStatementGeneratorConfig) (SqlStmtTxtBatcher, error) {
	o := &SqlInsertTxtBatch{SqlStatementGeneratorConfig: *cfg}
	if err := o.validate(); err != nil {
		return nil, err
	}
	o.setupSqlStatement()
	return o, nil
}

func (o *SqlInsertTxtBatch) setupSqlStatement() {
	o.ColList = targetColumns(o.TargetKeyCols, o.TargetOtherCols)
	// Populate the SQL template.
	o.sqlStmtTemplate = `insert into <TABLE> (<TGT-COLS>) values <VALUES>`
	o.sqlStmtTemplate = strings.Replace(o.sqlStmtTemplate, "<TABLE>", helper.QuoteSchemaTable(o.OutputSchema, o.OutputTable), 1)
	o.sqlStmtTemplate = strings.Replace(o.sqlStmtTemplate, "<TGT-COLS>", strings.Join(quoteCols(o.ColList, ""), ","), 1)
	o.Log.Debug("setup INSERT generator with SQL (VALUES pending): ", o.sqlStmtTemplate)
}

func (o *SqlInsertTxtBatch) InitBatch(batchSize int) {
	o.batchSize = batchSize
	o.rowsInBatch = 0
	// Allocate a new buffer to hold all values (args) to exec.
	o.sqlValues = make([]interface{}, 0, o.batchSize*len(o.ColList)) // many values per row in a batch.
}

func (o *SqlInsertTxtBatch) AddValuesToBatch(values []interface{}) (batchIsFull bool, err error) {
	if o.rowsInBatch >= o.batchSize {
		err = errors.New("no more rows allowed in INSERT batch")
		batchIsFull = true
		return
	}
	if len(values) != len(o.ColList) {
		err = fmt.Errorf("the number of values supplied (%v) does not match the number of table columns (%v)", len(values), len(o.ColList))
		return
	}
	o.sqlValues = append(o.sqlValues, values...)
	o.rowsInBatch++ // keep track of how close we are to the batch limit.
	batchIsFull = o.rowsInBatch >= o.batchSize
	return
}

func (o *SqlInsertTxtBatch) GetValues() []interface{} {
	return o.sqlValues
}

func (o *SqlInsertTxtBatch) RowsInBatch() int {
	return o.rowsInBatch
}

// GetStatement returns the INSERT for the rows currently in the batch.
// The text is cached while the number of rows stays the same.
func (o *SqlInsertTxtBatch) GetStatement() string {
	if o.previousNumRowsInBatch != o.rowsInBatch || o.sqlStmt == "" {
		allRows := strings.Builder{}
		valIdx := 1
		for rowIdx := 0; rowIdx < o.rowsInBatch; rowIdx++ {
			// Build the current row of bind variables: ,( @p1,@p2 )
			row := strings.Builder{}
			for idy := 0; idy < len(o.ColList); idy++ {
				row.WriteString(fmt.Sprintf(",@p%v", valIdx))
				valIdx++
			}
			allRows.WriteString(fmt.Sprintf(",( %v )", strings.TrimLeft(row.String(), ",")))
		}
		o.sqlStmt = strings.Replace(o.sqlStmtTemplate, "<VALUES>", strings.TrimLeft(allRows.String(), ","), 1)
		o.previousNumRowsInBatch = o.rowsInBatch
	}
	return o.sqlStmt
}
