package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/etlerrors"
	"github.com/relloyd/odsync/helper"
	"github.com/relloyd/odsync/quality"
	tabledefinition "github.com/relloyd/odsync/table-definition"
)

// Priority is the scheduling tier of a table.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
)

// Rank orders tiers: critical first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	default:
		return 2
	}
}

// ParsePriority accepts a tier name, defaulting to normal when empty.
func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityCritical:
		return PriorityCritical, nil
	case PriorityHigh:
		return PriorityHigh, nil
	case PriorityNormal, "":
		return PriorityNormal, nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// DerivePriority applies the ETL_Tables convention: notes mentioning critical win,
// then dimension and fact tables are high, everything else normal.
func DerivePriority(notes string, isDimension, isFact bool) Priority {
	n := strings.ToLower(notes)
	if strings.Contains(n, "critical") || strings.Contains(n, "critique") {
		return PriorityCritical
	}
	if isDimension || isFact {
		return PriorityHigh
	}
	return PriorityNormal
}

// Precision of the incremental timestamp bound.
const (
	PrecisionDate     = "date"
	PrecisionDateTime = "datetime"
)

// TableLoadConfig is the validated load configuration of one source table.
type TableLoadConfig struct {
	TableName          string         `yaml:"table" json:"table"`
	DestinationTable   string         `yaml:"destination" json:"destination"`
	PrimaryKeys        []string       `yaml:"primaryKeys" json:"primaryKeys"`
	HasTimestamps      bool           `yaml:"hasTimestamps" json:"hasTimestamps"`
	DateCreaCol        string         `yaml:"dateCreaCol,omitempty" json:"dateCreaCol,omitempty"`
	DateModifCol       string         `yaml:"dateModifCol,omitempty" json:"dateModifCol,omitempty"`
	FilterClause       string         `yaml:"filter,omitempty" json:"filter,omitempty"`
	LastSuccessTs      *time.Time     `yaml:"lastSuccessTs,omitempty" json:"lastSuccessTs,omitempty"`
	DateModifPrecision string         `yaml:"precision,omitempty" json:"precision,omitempty"`
	LookbackInterval   string         `yaml:"lookback,omitempty" json:"lookback,omitempty"`
	IsDimension        bool           `yaml:"isDimension,omitempty" json:"isDimension,omitempty"`
	IsFact             bool           `yaml:"isFact,omitempty" json:"isFact,omitempty"`
	Notes              string         `yaml:"notes,omitempty" json:"notes,omitempty"`
	Priority           Priority       `yaml:"priority,omitempty" json:"priority,omitempty"`
	DependsOn          []string       `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
	QualityRules       []quality.Rule `yaml:"rules,omitempty" json:"rules,omitempty"`
	Lookback           time.Duration  `yaml:"-" json:"-"`
}

// DestinationSchemaTable splits DestinationTable, defaulting the schema to ods and the table to TableName.
func (t *TableLoadConfig) DestinationSchemaTable() (schema, table string) {
	d := t.DestinationTable
	if d == "" {
		d = t.TableName
	}
	schema, table = helper.SplitSchemaTable(d, constants.DefaultDestinationSchema)
	return schema, helper.SafeColumnName(table)
}

// StagingTable returns the table-scoped staging table name.
func (t *TableLoadConfig) StagingTable() (schema, table string) {
	_, table = t.DestinationSchemaTable()
	return constants.StagingSchema, table
}

// Validate checks the config once at the boundary and fills derived fields.
func (t *TableLoadConfig) Validate() error {
	if strings.TrimSpace(t.TableName) == "" {
		return etlerrors.NewConfigurationError("", "table name is empty")
	}
	keys := make([]string, 0, len(t.PrimaryKeys))
	for _, k := range t.PrimaryKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return etlerrors.NewConfigurationError(t.TableName, "primary key list is empty")
	}
	t.PrimaryKeys = keys
	d, err := ParseLookback(t.LookbackInterval)
	if err != nil {
		return etlerrors.NewConfigurationError(t.TableName, "%v", err)
	}
	t.Lookback = d
	switch strings.ToLower(t.DateModifPrecision) {
	case "", PrecisionDateTime:
		t.DateModifPrecision = PrecisionDateTime
	case PrecisionDate:
		t.DateModifPrecision = PrecisionDate
	default:
		return etlerrors.NewConfigurationError(t.TableName, "unknown timestamp precision %q", t.DateModifPrecision)
	}
	if t.Priority == "" {
		t.Priority = DerivePriority(t.Notes, t.IsDimension, t.IsFact)
	} else if t.Priority, err = ParsePriority(string(t.Priority)); err != nil {
		return etlerrors.NewConfigurationError(t.TableName, "%v", err)
	}
	return nil
}

// PrimaryKeyColumns returns the destination-safe primary key names.
func (t *TableLoadConfig) PrimaryKeyColumns() []string {
	retval := make([]string, len(t.PrimaryKeys))
	for i, k := range t.PrimaryKeys {
		retval[i] = helper.SafeColumnName(k)
	}
	return retval
}

// IncrementalLowerBound returns LastSuccessTs minus the lookback, or false when there is no bound to apply.
func (t *TableLoadConfig) IncrementalLowerBound() (time.Time, bool) {
	if !t.HasTimestamps || t.DateModifCol == "" || t.LastSuccessTs == nil || t.LastSuccessTs.IsZero() {
		return time.Time{}, false
	}
	return t.LastSuccessTs.Add(-t.Lookback), true
}

var lookbackRegexp = regexp.MustCompile(`^(\d+)\s*([dhm])$`)

// ParseLookback parses "<n>d", "<n>h" or "<n>m". Empty means no lookback.
func ParseLookback(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	m := lookbackRegexp.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid lookback interval %q: expected <n>d, <n>h or <n>m", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("invalid lookback interval %q: %w", s, err)
	}
	switch m[2] {
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	default:
		return time.Duration(n) * time.Minute, nil
	}
}

// ColumnSpec describes one source column as configured in ETL_Columns, with its source type.
type ColumnSpec struct {
	ColumnName       string `yaml:"name" json:"name"`
	SqlName          string `yaml:"sqlName,omitempty" json:"sqlName,omitempty"`
	SourceExpression string `yaml:"expression,omitempty" json:"expression,omitempty"`
	Included         bool   `yaml:"-" json:"included"`
	DataType         string `yaml:"type,omitempty" json:"type,omitempty"`
	Width            int    `yaml:"width,omitempty" json:"width,omitempty"`
	Scale            int    `yaml:"scale,omitempty" json:"scale,omitempty"`
	Nullable         bool   `yaml:"nullable,omitempty" json:"nullable,omitempty"`
}

// DestinationName is the destination-safe alias of the column.
func (c ColumnSpec) DestinationName() string {
	if c.SqlName != "" {
		return helper.SafeColumnName(c.SqlName)
	}
	return helper.SafeColumnName(c.ColumnName)
}

// SelectExpression is the projection used in the source SELECT.
func (c ColumnSpec) SelectExpression() string {
	expr := c.SourceExpression
	if expr == "" {
		expr = helper.QuoteSourceIdentifier(c.ColumnName)
	}
	return fmt.Sprintf(`%v AS "%v"`, expr, c.DestinationName())
}

// BuildLayout maps included columns into the warehouse layout, flagging primary keys.
// The layout comes from configuration so that empty extracts are still correctly shaped.
func BuildLayout(t *TableLoadConfig, cols []ColumnSpec, m tabledefinition.Mapper) (tabledefinition.Layout, error) {
	pk := make(map[string]bool, len(t.PrimaryKeys))
	for _, k := range t.PrimaryKeyColumns() {
		pk[strings.ToLower(k)] = true
	}
	l := make(tabledefinition.Layout, 0, len(cols))
	for _, c := range cols {
		if !c.Included {
			continue
		}
		name := c.DestinationName()
		if tabledefinition.IsTechnicalColumn(name) {
			return nil, etlerrors.NewConfigurationError(t.TableName, "column %q clashes with a technical column", name)
		}
		col := m.Map(name, c.DataType, c.Width, c.Scale, c.Nullable)
		if pk[strings.ToLower(name)] {
			col.PrimaryKey = true
			col.Nullable = false
			delete(pk, strings.ToLower(name))
		}
		l = append(l, col)
	}
	if len(l) == 0 {
		return nil, etlerrors.NewConfigurationError(t.TableName, "no active columns")
	}
	if len(pk) > 0 {
		missing := make([]string, 0, len(pk))
		for _, k := range t.PrimaryKeyColumns() {
			if pk[strings.ToLower(k)] {
				missing = append(missing, k)
			}
		}
		return nil, etlerrors.NewConfigurationError(t.TableName, "primary key columns %v are not included columns", missing)
	}
	return l, nil
}
