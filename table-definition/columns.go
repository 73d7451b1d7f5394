package tabledefinition

import (
	"fmt"
	"strings"

	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/helper"
)

// Kind is the in-memory representation used for a column's values between extract and stage.
type Kind uint32

const (
	KindString   Kind = iota + 1 // string
	KindInt                      // int64
	KindDecimal                  // exact decimal text
	KindFloat                    // float64
	KindBool                     // bool
	KindDate                     // time.Time, date part only
	KindDateTime                 // time.Time
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	case KindDateTime:
		return "datetime"
	}
	return "unknown"
}

// IsTemporal reports whether values of kind k are time.Time.
func (k Kind) IsTemporal() bool {
	return k == KindDate || k == KindDateTime
}

// Column is the warehouse layout of one column.
type Column struct {
	Name       string // destination-safe name
	SQLType    string // e.g. NVARCHAR(255)
	Kind       Kind
	MaxLen     int // rune limit for string columns, 0 for none
	Precision  int
	Scale      int
	Nullable   bool
	PrimaryKey bool
}

// Definition returns the column clause used in CREATE TABLE.
func (c Column) Definition() string {
	n := "NULL"
	if !c.Nullable || c.PrimaryKey {
		n = "NOT NULL"
	}
	return fmt.Sprintf("%v %v %v", helper.QuoteIdentifier(c.Name), c.SQLType, n)
}

// TechnicalColumns are appended to every staging and destination table.
func TechnicalColumns() []Column {
	return []Column{
		{Name: constants.ColHashDiff, SQLType: fmt.Sprintf("NVARCHAR(%d)", constants.HashDiffLen), Kind: KindString, MaxLen: constants.HashDiffLen},
		{Name: constants.ColTsSource, SQLType: "DATETIME2", Kind: KindDateTime, Nullable: true},
		{Name: constants.ColLoadTs, SQLType: "DATETIME2", Kind: KindDateTime},
	}
}

// IsTechnicalColumn reports whether name is one of hashdiff, ts_source or load_ts.
func IsTechnicalColumn(name string) bool {
	switch strings.ToLower(name) {
	case constants.ColHashDiff, constants.ColTsSource, constants.ColLoadTs:
		return true
	}
	return false
}

// Layout is the ordered set of columns for a table.
type Layout []Column

// Names returns the column names in order.
func (l Layout) Names() []string {
	retval := make([]string, len(l))
	for i, c := range l {
		retval[i] = c.Name
	}
	return retval
}

// Index returns the position of the named column or -1.
func (l Layout) Index(name string) int {
	for i, c := range l {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// WithTechnicalColumns returns a copy of l with the technical columns appended.
func (l Layout) WithTechnicalColumns() Layout {
	retval := make(Layout, 0, len(l)+3)
	retval = append(retval, l...)
	return append(retval, TechnicalColumns()...)
}

// SourceColumns returns l without technical columns.
func (l Layout) SourceColumns() Layout {
	retval := make(Layout, 0, len(l))
	for _, c := range l {
		if !IsTechnicalColumn(c.Name) {
			retval = append(retval, c)
		}
	}
	return retval
}

// CreateTableStatement returns CREATE TABLE DDL for schema.table.
// A primary key constraint named pkName is added when both pkName and primaryKeys are supplied.
func CreateTableStatement(schema, table string, l Layout, pkName string, primaryKeys []string) (string, error) {
	if len(l) == 0 {
		return "", fmt.Errorf("no columns found to build CREATE TABLE DDL for %v.%v", schema, table)
	}
	fields := make([]string, 0, len(l)+1)
	for _, c := range l {
		fields = append(fields, c.Definition())
	}
	if pkName != "" && len(primaryKeys) > 0 {
		fields = append(fields, fmt.Sprintf("CONSTRAINT %v PRIMARY KEY (%v)", helper.QuoteIdentifier(pkName), quoteAll(primaryKeys)))
	}
	return fmt.Sprintf("CREATE TABLE %v (%v)", helper.QuoteSchemaTable(schema, table), strings.Join(fields, ", ")), nil
}

// CreateClusteredIndexStatement returns DDL for a non-unique clustered index on cols.
func CreateClusteredIndexStatement(schema, table string, cols []string) string {
	return fmt.Sprintf("CREATE CLUSTERED INDEX %v ON %v (%v)",
		helper.QuoteIdentifier(fmt.Sprintf("IX_%v_%v", schema, table)), helper.QuoteSchemaTable(schema, table), quoteAll(cols))
}

func quoteAll(cols []string) string {
	q := make([]string, len(cols))
	for i, c := range cols {
		q[i] = helper.QuoteIdentifier(c)
	}
	return strings.Join(q, ", ")
}
