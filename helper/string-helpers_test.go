package helper

import (
	"testing"
	"time"
)

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"abc", 5, "abc"},
		{"abcdef", 3, "abc"},
		{"héllo", 2, "hé"},
		{"", 3, ""},
	}
	for _, c := range cases {
		if got := Truncate(c.in, c.n); got != c.want {
			t.Fatalf("Truncate(%q, %v) = %q, want %q", c.in, c.n, got, c.want)
		}
	}
}

func TestCsvToStringSliceTrimSpaces(t *testing.T) {
	got := CsvToStringSliceTrimSpaces(" a, b ,,c ")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected tokens: %v", got)
	}
	if got := CsvToStringSliceTrimSpaces(""); len(got) != 0 {
		t.Fatalf("expected no tokens, got %v", got)
	}
}

func TestStringSliceToOrderedMapKeepsOrder(t *testing.T) {
	m := StringSliceToOrderedMap([]string{"z", "a", "m"})
	keys := OrderedMapKeys(m)
	if len(keys) != 3 || keys[0] != "z" || keys[1] != "a" || keys[2] != "m" {
		t.Fatalf("unexpected key order: %v", keys)
	}
}

func TestQuoteSourceIdentifier(t *testing.T) {
	if got := QuoteSourceIdentifier("cli-num"); got != `"cli-num"` {
		t.Fatalf("expected quoted name, got %v", got)
	}
	if got := QuoteSourceIdentifier("client_id"); got != "client_id" {
		t.Fatalf("expected bare name, got %v", got)
	}
	if got := SafeColumnName(` "cli-num" `); got != "cli_num" {
		t.Fatalf("unexpected safe name %v", got)
	}
}

func TestQuoteSchemaTable(t *testing.T) {
	if got := QuoteSchemaTable("stg", "client"); got != "[stg].[client]" {
		t.Fatalf("unexpected %v", got)
	}
	if got := QuoteIdentifier("a]b"); got != "[a]]b]" {
		t.Fatalf("unexpected %v", got)
	}
	s, tb := SplitSchemaTable("dbo.client", "ods")
	if s != "dbo" || tb != "client" {
		t.Fatalf("unexpected split %v.%v", s, tb)
	}
	s, tb = SplitSchemaTable("client", "ods")
	if s != "ods" || tb != "client" {
		t.Fatalf("unexpected default split %v.%v", s, tb)
	}
}

func TestGetStringFromInterface(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	cases := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{[]uint8("bytes"), "bytes"},
		{int64(42), "42"},
		{1.5, "1.5"},
		{true, "true"},
		{ts, "2024-01-02T02:04:05Z"},
	}
	for _, c := range cases {
		if got := GetStringFromInterface(c.in); got != c.want {
			t.Fatalf("GetStringFromInterface(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
