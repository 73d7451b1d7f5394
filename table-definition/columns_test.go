package tabledefinition

import (
	"strings"
	"testing"
	"time"
)

func TestTableDefinitionMapper(t *testing.T) {
	m := NewMapper()
	cases := []struct {
		srcType  string
		width    int
		scale    int
		wantType string
		wantKind Kind
	}{
		{"varchar", 30, 0, "NVARCHAR(30)", KindString},
		{"VARCHAR", 2000, 0, "NVARCHAR(500)", KindString},
		{"varchar", 0, 0, "NVARCHAR(255)", KindString},
		{"integer", 0, 0, "INT", KindInt},
		{"bigint", 0, 0, "BIGINT", KindInt},
		{"bit", 0, 0, "BIT", KindBool},
		{"numeric", 0, 2, "DECIMAL(18,2)", KindDecimal},
		{"numeric", 50, 4, "DECIMAL(38,4)", KindDecimal},
		{"numeric", 5, 9, "DECIMAL(5,5)", KindDecimal},
		{"date", 0, 0, "DATE", KindDate},
		{"datetime", 0, 0, "DATETIME2", KindDateTime},
		{"blob", 0, 0, "NVARCHAR(500)", KindString},
	}
	for _, c := range cases {
		col := m.Map("x", c.srcType, c.width, c.scale, true)
		if col.SQLType != c.wantType || col.Kind != c.wantKind {
			t.Fatalf("Map(%v,%v,%v) = %v/%v, want %v/%v", c.srcType, c.width, c.scale, col.SQLType, col.Kind, c.wantType, c.wantKind)
		}
	}
}

func TestCreateTableStatement(t *testing.T) {
	m := NewMapper()
	l := Layout{
		m.Map("client_id", "integer", 0, 0, true),
		m.Map("name", "varchar", 40, 0, true),
	}
	l[0].PrimaryKey = true
	ddl, err := CreateTableStatement("ods", "client", l.WithTechnicalColumns(), "PK_client", []string{"client_id"})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"CREATE TABLE [ods].[client] (",
		"[client_id] INT NOT NULL",
		"[name] NVARCHAR(40) NULL",
		"[hashdiff] NVARCHAR(40) NOT NULL",
		"[ts_source] DATETIME2 NULL",
		"[load_ts] DATETIME2 NOT NULL",
		"CONSTRAINT [PK_client] PRIMARY KEY ([client_id])",
	} {
		if !strings.Contains(ddl, want) {
			t.Fatalf("expected %q in DDL: %v", want, ddl)
		}
	}
	if _, err := CreateTableStatement("ods", "empty", nil, "", nil); err == nil {
		t.Fatal("expected error for empty layout")
	}
	idx := CreateClusteredIndexStatement("stg", "client", []string{"client_id"})
	if idx != "CREATE CLUSTERED INDEX [IX_stg_client] ON [stg].[client] ([client_id])" {
		t.Fatalf("unexpected index DDL: %v", idx)
	}
}

func TestLayoutHelpers(t *testing.T) {
	l := Layout{{Name: "a"}, {Name: "b"}}.WithTechnicalColumns()
	if len(l) != 5 || l.Index("HASHDIFF") != 2 || l.Index("missing") != -1 {
		t.Fatalf("unexpected layout %v", l.Names())
	}
	if src := l.SourceColumns(); len(src) != 2 {
		t.Fatalf("expected 2 source columns, got %v", src.Names())
	}
}

func TestCoerce(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	cases := []struct {
		col  Column
		in   interface{}
		want interface{}
	}{
		{Column{Name: "s", Kind: KindString, MaxLen: 3}, "abcdef", "abc"},
		{Column{Name: "s", Kind: KindString, MaxLen: 3}, []byte("xy"), "xy"},
		{Column{Name: "i", Kind: KindInt}, "12", int64(12)},
		{Column{Name: "i", Kind: KindInt}, "12.0", int64(12)},
		{Column{Name: "i", Kind: KindInt}, int32(7), int64(7)},
		{Column{Name: "d", Kind: KindDecimal}, []byte("10.50"), "10.50"},
		{Column{Name: "d", Kind: KindDecimal}, 2.25, "2.25"},
		{Column{Name: "b", Kind: KindBool}, int64(1), true},
		{Column{Name: "b", Kind: KindBool}, "false", false},
		{Column{Name: "t", Kind: KindDateTime}, ts, ts},
		{Column{Name: "t", Kind: KindDate}, ts, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)},
		{Column{Name: "n", Kind: KindInt}, nil, nil},
	}
	for _, c := range cases {
		got, err := Coerce(c.col, c.in)
		if err != nil {
			t.Fatalf("Coerce(%v, %v) error: %v", c.col.Kind, c.in, err)
		}
		if gt, ok := got.(time.Time); ok {
			if !gt.Equal(c.want.(time.Time)) {
				t.Fatalf("Coerce(%v, %v) = %v, want %v", c.col.Kind, c.in, got, c.want)
			}
			continue
		}
		if got != c.want {
			t.Fatalf("Coerce(%v, %v) = %#v, want %#v", c.col.Kind, c.in, got, c.want)
		}
	}
}

func TestCoerceRejectsBadValues(t *testing.T) {
	if _, err := Coerce(Column{Name: "i", Kind: KindInt}, "abc"); err == nil {
		t.Fatal("expected error for non-numeric integer")
	}
	if _, err := Coerce(Column{Name: "i", Kind: KindInt}, "1.5"); err == nil {
		t.Fatal("expected error for fractional integer")
	}
	if _, err := CoerceRow(Layout{{Name: "a", Kind: KindString}}, []interface{}{"x", "y"}); err == nil {
		t.Fatal("expected width mismatch error")
	}
}
