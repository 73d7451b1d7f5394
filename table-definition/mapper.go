package tabledefinition

import (
	"fmt"
	"strings"
)

const (
	maxNVarcharLen     = 500
	defaultNVarcharLen = 255
	defaultPrecision   = 18
	maxPrecision       = 38
)

// sanitiserFuncT converts data length, precision and scale into the type suffix used in CREATE TABLE DDL.
// It also returns the effective length/precision/scale applied by the suffix.
type sanitiserFuncT func(width, scale int) (suffix string, maxLen, precision, outScale int)

type dataTypeLink struct {
	SourceDataType string
	TargetDataType string
	SanitiserFunc  sanitiserFuncT
	Kind           Kind
}

// ProgressToSqlServerDataTypeMapping maps legacy source column types to SQL Server types.
var ProgressToSqlServerDataTypeMapping = []dataTypeLink{
	{SourceDataType: "varchar", TargetDataType: "NVARCHAR", SanitiserFunc: sanitiseNVarchar, Kind: KindString},
	{SourceDataType: "character", TargetDataType: "NVARCHAR", SanitiserFunc: sanitiseNVarchar, Kind: KindString},
	{SourceDataType: "char", TargetDataType: "NVARCHAR", SanitiserFunc: sanitiseNVarchar, Kind: KindString},
	{SourceDataType: "integer", TargetDataType: "INT", SanitiserFunc: sanitiseBlank, Kind: KindInt},
	{SourceDataType: "int", TargetDataType: "INT", SanitiserFunc: sanitiseBlank, Kind: KindInt},
	{SourceDataType: "smallint", TargetDataType: "INT", SanitiserFunc: sanitiseBlank, Kind: KindInt},
	{SourceDataType: "bigint", TargetDataType: "BIGINT", SanitiserFunc: sanitiseBlank, Kind: KindInt},
	{SourceDataType: "int64", TargetDataType: "BIGINT", SanitiserFunc: sanitiseBlank, Kind: KindInt},
	{SourceDataType: "bit", TargetDataType: "BIT", SanitiserFunc: sanitiseBlank, Kind: KindBool},
	{SourceDataType: "logical", TargetDataType: "BIT", SanitiserFunc: sanitiseBlank, Kind: KindBool},
	{SourceDataType: "numeric", TargetDataType: "DECIMAL", SanitiserFunc: sanitisePrecisionScale, Kind: KindDecimal},
	{SourceDataType: "decimal", TargetDataType: "DECIMAL", SanitiserFunc: sanitisePrecisionScale, Kind: KindDecimal},
	{SourceDataType: "float", TargetDataType: "FLOAT", SanitiserFunc: sanitiseBlank, Kind: KindFloat},
	{SourceDataType: "double precision", TargetDataType: "FLOAT", SanitiserFunc: sanitiseBlank, Kind: KindFloat},
	{SourceDataType: "date", TargetDataType: "DATE", SanitiserFunc: sanitiseBlank, Kind: KindDate},
	{SourceDataType: "datetime", TargetDataType: "DATETIME2", SanitiserFunc: sanitiseBlank, Kind: KindDateTime},
	{SourceDataType: "datetime-tz", TargetDataType: "DATETIME2", SanitiserFunc: sanitiseBlank, Kind: KindDateTime},
	{SourceDataType: "timestamp", TargetDataType: "DATETIME2", SanitiserFunc: sanitiseBlank, Kind: KindDateTime},
}

// Mapper converts a source column type into a warehouse Column.
type Mapper interface {
	Map(name string, sourceDataType string, width, scale int, nullable bool) Column
}

type dataTypeMap struct {
	links map[string]dataTypeLink
}

// NewMapper returns the Progress to SQL Server mapper.
func NewMapper() Mapper {
	return newDataTypeMapper(ProgressToSqlServerDataTypeMapping)
}

func newDataTypeMapper(types []dataTypeLink) dataTypeMap {
	dtm := dataTypeMap{links: make(map[string]dataTypeLink, len(types))}
	for _, row := range types {
		dtm.links[row.SourceDataType] = row
	}
	return dtm
}

// Map looks up the lower case source type. Unknown types fall back to NVARCHAR(500).
func (o dataTypeMap) Map(name string, sourceDataType string, width, scale int, nullable bool) Column {
	link, ok := o.links[strings.ToLower(strings.TrimSpace(sourceDataType))]
	if !ok {
		return Column{Name: name, SQLType: fmt.Sprintf("NVARCHAR(%d)", maxNVarcharLen), Kind: KindString, MaxLen: maxNVarcharLen, Nullable: nullable}
	}
	suffix, maxLen, precision, s := link.SanitiserFunc(width, scale)
	return Column{
		Name:      name,
		SQLType:   link.TargetDataType + suffix,
		Kind:      link.Kind,
		MaxLen:    maxLen,
		Precision: precision,
		Scale:     s,
		Nullable:  nullable,
	}
}

// SANITISER FUNCTIONS.

func sanitiseBlank(width, scale int) (string, int, int, int) {
	return "", 0, 0, 0
}

// sanitiseNVarchar caps declared widths at 500 characters.
func sanitiseNVarchar(width, scale int) (string, int, int, int) {
	n := defaultNVarcharLen
	if width > 0 {
		n = width
		if n > maxNVarcharLen {
			n = maxNVarcharLen
		}
	}
	return fmt.Sprintf("(%d)", n), n, 0, 0
}

// sanitisePrecisionScale defaults precision to 18 and clamps it to 38 with scale <= precision.
func sanitisePrecisionScale(width, scale int) (string, int, int, int) {
	p := defaultPrecision
	if width > 0 {
		p = width
	}
	if p > maxPrecision {
		p = maxPrecision
	}
	if scale < 0 {
		scale = 0
	}
	if scale > p {
		scale = p
	}
	return fmt.Sprintf("(%d,%d)", p, scale), 0, p, scale
}
