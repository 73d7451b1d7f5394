package shared

import (
	"errors"
	"fmt"
	"strings"

	"github.com/relloyd/odsync/helper"
)

// SqlMergeStaged generates a set-based MERGE from a staging table into the destination.
// Matched rows are only updated when the change column differs, so unchanged rows produce no writes.
type SqlMergeStaged struct {
	SqlStatementGeneratorConfig // mandatory to be populated.
	KeyCols                     []string
	OtherCols                   []string
	sqlStmt                     string
}

// NewMergeGenerator validates cfg and returns a staging-to-destination MERGE generator.
func (o *DmlGeneratorTxtBatch) NewMergeGenerator(cfg *SqlStatementGeneratorConfig) (SqlStmtGenerator, error) {
	m := &SqlMergeStaged{SqlStatementGeneratorConfig: *cfg}
	if err := m.validate(); err != nil {
		return nil, err
	}
	if m.TargetKeyCols.Len() == 0 {
		return nil, errors.New("MERGE requires at least one key column")
	}
	if m.SourceTable == "" || m.ChangeCol == "" {
		return nil, errors.New("MERGE requires a source table and change column")
	}
	m.KeyCols = targetColumns(m.TargetKeyCols, emptyMap())
	m.OtherCols = targetColumns(emptyMap(), m.TargetOtherCols)
	return m, nil
}

func (o *SqlMergeStaged) getSqlTemplate() string {
	return `merge into <TABLE> with (holdlock) as <TGT-ALIAS>
using <SOURCE> as <SRC-ALIAS>
on (<KEY-COLS-EQUALS>)
when matched and <TGT-ALIAS>.<CHANGE-COL> <> <SRC-ALIAS>.<CHANGE-COL> then update set
<OTHER-COLS-EQUALS>
when not matched by target then insert
(<ALL-COLS>)
values (<SRC-COLS>)<OUTPUT>;`
}

// actionCountsTemplate wraps a MERGE so the batch returns (inserted, updated).
const actionCountsTemplate = `declare @merge_actions table (merge_action nvarchar(10));
<MERGE>
select
  isnull(sum(case when merge_action = 'INSERT' then 1 else 0 end), 0) as inserted,
  isnull(sum(case when merge_action = 'UPDATE' then 1 else 0 end), 0) as updated
from @merge_actions;`

func (o *SqlMergeStaged) GetStatement() string {
	if o.sqlStmt != "" {
		return o.sqlStmt
	}
	srcAlias := "src"
	tgtAlias := "tgt"
	allCols := append(append([]string{}, o.KeyCols...), o.OtherCols...)
	keyColsEquals := colsEqualsCols(o.KeyCols, tgtAlias, srcAlias, " and ")
	otherColsEquals := colsEqualsCols(o.OtherCols, tgtAlias, srcAlias, ",\n")
	s := o.getSqlTemplate()
	s = strings.Replace(s, "<TABLE>", helper.QuoteSchemaTable(o.OutputSchema, o.OutputTable), 1)
	s = strings.Replace(s, "<SOURCE>", helper.QuoteSchemaTable(o.SourceSchema, o.SourceTable), 1)
	s = strings.Replace(s, "<SRC-ALIAS>", srcAlias, -1)
	s = strings.Replace(s, "<TGT-ALIAS>", tgtAlias, -1)
	s = strings.Replace(s, "<CHANGE-COL>", helper.QuoteIdentifier(o.ChangeCol), -1)
	s = strings.Replace(s, "<KEY-COLS-EQUALS>", keyColsEquals, 1)
	s = strings.Replace(s, "<OTHER-COLS-EQUALS>", otherColsEquals, 1)
	s = strings.Replace(s, "<ALL-COLS>", strings.Join(quoteCols(allCols, ""), ","), 1)
	s = strings.Replace(s, "<SRC-COLS>", strings.Join(quoteCols(allCols, srcAlias), ","), 1)
	if o.CountActions {
		s = strings.Replace(s, "<OUTPUT>", "\noutput $action into @merge_actions", 1)
		s = strings.Replace(actionCountsTemplate, "<MERGE>", s, 1)
	} else {
		s = strings.Replace(s, "<OUTPUT>", "", 1)
	}
	o.Log.Debug("SQL Merge Generator returning SQL: ", s)
	o.sqlStmt = s
	return o.sqlStmt
}

// colsEqualsCols generates "a.[c1] = b.[c1]<sep>a.[c2] = b.[c2]".
func colsEqualsCols(cols []string, leftAlias, rightAlias, sep string) string {
	x := make([]string, len(cols))
	for i, c := range cols {
		q := helper.QuoteIdentifier(c)
		x[i] = fmt.Sprintf("%v.%v = %v.%v", leftAlias, q, rightAlias, q)
	}
	return strings.Join(x, sep)
}
