package config

import (
	"errors"
	"testing"
	"time"

	"github.com/relloyd/odsync/etlerrors"
	tabledefinition "github.com/relloyd/odsync/table-definition"
)

func TestParseLookback(t *testing.T) {
	cases := []struct {
		in       string
		expected time.Duration
		wantErr  bool
	}{
		{"", 0, false},
		{"0d", 0, false},
		{"2h", 2 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"30m", 30 * time.Minute, false},
		{" 3D ", 72 * time.Hour, false},
		{"2w", 0, true},
		{"h", 0, true},
		{"-1d", 0, true},
	}
	for _, c := range cases {
		got, err := ParseLookback(c.in)
		if c.wantErr {
			if err == nil {
				t.Fatalf("ParseLookback(%q): expected error", c.in)
			}
			continue
		}
		if err != nil || got != c.expected {
			t.Fatalf("ParseLookback(%q): expected %v; got %v, %v", c.in, c.expected, got, err)
		}
	}
}

func TestDerivePriority(t *testing.T) {
	cases := []struct {
		notes        string
		dim, fact    bool
		expectedTier Priority
	}{
		{"Table CRITIQUE pour la paie", false, false, PriorityCritical},
		{"critical path", true, false, PriorityCritical},
		{"", true, false, PriorityHigh},
		{"", false, true, PriorityHigh},
		{"misc", false, false, PriorityNormal},
	}
	for _, c := range cases {
		if got := DerivePriority(c.notes, c.dim, c.fact); got != c.expectedTier {
			t.Fatalf("DerivePriority(%q, %v, %v): expected %v; got %v", c.notes, c.dim, c.fact, c.expectedTier, got)
		}
	}
	if PriorityCritical.Rank() >= PriorityHigh.Rank() || PriorityHigh.Rank() >= PriorityNormal.Rank() {
		t.Fatal("priority ranks are out of order")
	}
}

func TestTableLoadConfigValidate(t *testing.T) {
	c := &TableLoadConfig{TableName: "client", PrimaryKeys: []string{" client_id ", ""}, LookbackInterval: "2h", IsDimension: true}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if len(c.PrimaryKeys) != 1 || c.PrimaryKeys[0] != "client_id" {
		t.Fatalf("unexpected keys %v", c.PrimaryKeys)
	}
	if c.Lookback != 2*time.Hour || c.DateModifPrecision != PrecisionDateTime || c.Priority != PriorityHigh {
		t.Fatalf("derived fields not set: %+v", c)
	}
	schema, table := c.DestinationSchemaTable()
	if schema != "ods" || table != "client" {
		t.Fatalf("unexpected destination %v.%v", schema, table)
	}
	schema, table = c.StagingTable()
	if schema != "stg" || table != "client" {
		t.Fatalf("unexpected staging table %v.%v", schema, table)
	}

	bad := []*TableLoadConfig{
		{TableName: "t"},
		{TableName: "t", PrimaryKeys: []string{"id"}, LookbackInterval: "5y"},
		{TableName: "t", PrimaryKeys: []string{"id"}, DateModifPrecision: "week"},
		{TableName: "t", PrimaryKeys: []string{"id"}, Priority: "urgent"},
		{PrimaryKeys: []string{"id"}},
	}
	for _, b := range bad {
		err := b.Validate()
		var ce *etlerrors.ConfigurationError
		if !errors.As(err, &ce) {
			t.Fatalf("expected ConfigurationError for %+v; got %v", b, err)
		}
	}
}

func TestIncrementalLowerBound(t *testing.T) {
	t0 := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	c := &TableLoadConfig{TableName: "t", PrimaryKeys: []string{"id"}, HasTimestamps: true, DateModifCol: "date-modif", LastSuccessTs: &t0, LookbackInterval: "1d"}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	got, ok := c.IncrementalLowerBound()
	if !ok || !got.Equal(t0.Add(-24*time.Hour)) {
		t.Fatalf("unexpected bound %v %v", got, ok)
	}
	c.HasTimestamps = false
	if _, ok = c.IncrementalLowerBound(); ok {
		t.Fatal("expected no bound without timestamps")
	}
	c.HasTimestamps = true
	c.LastSuccessTs = nil
	if _, ok = c.IncrementalLowerBound(); ok {
		t.Fatal("expected no bound without a last success")
	}
}

func TestColumnSpecExpressions(t *testing.T) {
	c := ColumnSpec{ColumnName: "date-modif", Included: true}
	if c.DestinationName() != "date_modif" {
		t.Fatalf("unexpected destination name %v", c.DestinationName())
	}
	if got := c.SelectExpression(); got != `"date-modif" AS "date_modif"` {
		t.Fatalf("unexpected select expression %v", got)
	}
	c = ColumnSpec{ColumnName: "name", SqlName: "client_name", SourceExpression: `RTRIM("name")`}
	if got := c.SelectExpression(); got != `RTRIM("name") AS "client_name"` {
		t.Fatalf("unexpected select expression %v", got)
	}
}

func TestBuildLayout(t *testing.T) {
	c := &TableLoadConfig{TableName: "client", PrimaryKeys: []string{"client-id"}}
	cols := []ColumnSpec{
		{ColumnName: "client-id", DataType: "integer", Included: true, Nullable: true},
		{ColumnName: "name", DataType: "varchar", Width: 2000, Included: true, Nullable: true},
		{ColumnName: "skipped", DataType: "varchar", Included: false},
	}
	l, err := BuildLayout(c, cols, tabledefinition.NewMapper())
	if err != nil {
		t.Fatal(err)
	}
	if len(l) != 2 {
		t.Fatalf("expected 2 columns; got %v", l.Names())
	}
	if !l[0].PrimaryKey || l[0].Nullable || l[0].Name != "client_id" || l[0].SQLType != "INT" {
		t.Fatalf("unexpected key column %+v", l[0])
	}
	if l[1].SQLType != "NVARCHAR(500)" || l[1].MaxLen != 500 {
		t.Fatalf("unexpected name column %+v", l[1])
	}

	// Zero included columns.
	if _, err = BuildLayout(c, cols[2:], tabledefinition.NewMapper()); err == nil {
		t.Fatal("expected error for no active columns")
	}
	// Key not among the included columns.
	c2 := &TableLoadConfig{TableName: "client", PrimaryKeys: []string{"code"}}
	if _, err = BuildLayout(c2, cols, tabledefinition.NewMapper()); err == nil {
		t.Fatal("expected error for a missing key column")
	}
	// Technical column clash.
	clash := []ColumnSpec{{ColumnName: "client-id", Included: true}, {ColumnName: "hashdiff", Included: true}}
	if _, err = BuildLayout(c, clash, tabledefinition.NewMapper()); err == nil {
		t.Fatal("expected error for a technical column clash")
	}
}
