package file

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/relloyd/odsync/logger"
	tabledefinition "github.com/relloyd/odsync/table-definition"
)

var cacheLayout = tabledefinition.Layout{
	{Name: "client_id", Kind: tabledefinition.KindInt},
	{Name: "name", Kind: tabledefinition.KindString},
	{Name: "balance", Kind: tabledefinition.KindDecimal},
	{Name: "active", Kind: tabledefinition.KindBool},
	{Name: "load_ts", Kind: tabledefinition.KindDateTime},
}

func TestBuildParquetSchema(t *testing.T) {
	var schema struct {
		Tag    string
		Fields []map[string]string
	}
	if err := json.Unmarshal([]byte(buildParquetSchema(cacheLayout)), &schema); err != nil {
		t.Fatal(err)
	}
	if schema.Tag != "name=parquet_go_root, repetitiontype=REQUIRED" {
		t.Fatalf("unexpected root tag %v", schema.Tag)
	}
	want := []string{
		"name=client_id, type=INT64, repetitiontype=OPTIONAL",
		"name=name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL",
		"name=balance, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL",
		"name=active, type=BOOLEAN, repetitiontype=OPTIONAL",
		"name=load_ts, type=INT64, convertedtype=TIMESTAMP_MICROS, repetitiontype=OPTIONAL",
	}
	for i, w := range want {
		if schema.Fields[i]["Tag"] != w {
			t.Fatalf("field %v tag = %q, want %q", i, schema.Fields[i]["Tag"], w)
		}
	}
}

func TestParquetValueMapping(t *testing.T) {
	ts := time.Date(2024, 2, 3, 4, 5, 6, 7000, time.UTC)
	rec := projectParquetRow(cacheLayout, []interface{}{int64(1), "Alice", "10.50", true, ts})
	if rec["load_ts"] != ts.UnixMicro() {
		t.Fatalf("expected micros, got %v", rec["load_ts"])
	}
	back, err := fromParquet(cacheLayout[4], rec["load_ts"])
	if err != nil || !back.(time.Time).Equal(ts) {
		t.Fatalf("unexpected timestamp round trip %v, %v", back, err)
	}
	if v, _ := fromParquet(cacheLayout[0], int64(5)); v != int64(5) {
		t.Fatalf("unexpected int %v", v)
	}
	if v, _ := fromParquet(cacheLayout[2], "10.50"); v != "10.50" {
		t.Fatalf("decimal text must be preserved, got %v", v)
	}
	if v, _ := fromParquet(cacheLayout[1], nil); v != nil {
		t.Fatalf("expected nil, got %v", v)
	}
}

func touch(t *testing.T, dir, name string, mod time.Time) {
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(p, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func TestParquetCacheHousekeeping(t *testing.T) {
	dir := t.TempDir()
	c := NewParquetCache(logger.NewTestLogger(&bytes.Buffer{}), dir)
	if !strings.HasSuffix(c.Path("client", "raw"), filepath.Join(dir, "client_raw.parquet")) {
		t.Fatalf("unexpected path %v", c.Path("client", "raw"))
	}
	now := time.Now()
	touch(t, dir, "client_raw.parquet", now.Add(-10*24*time.Hour))
	touch(t, dir, "client_transformed.parquet", now)
	touch(t, dir, "orders_raw.parquet", now)
	touch(t, dir, "notes.txt", now.Add(-30*24*time.Hour))

	info, err := c.Info()
	if err != nil || len(info) != 3 || info[0].Name != "client_raw.parquet" {
		t.Fatalf("unexpected info %v, %v", info, err)
	}
	n, err := c.Cleanup(7*24*time.Hour, now)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 stale file removed, got %v, %v", n, err)
	}
	n, err = c.Clear("client")
	if err != nil || n != 1 {
		t.Fatalf("expected 1 client file removed, got %v, %v", n, err)
	}
	n, err = c.Clear("")
	if err != nil || n != 1 {
		t.Fatalf("expected remaining parquet file removed, got %v, %v", n, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Fatal("non-cache files must be left alone")
	}
}

func TestParquetCacheMissingDirectory(t *testing.T) {
	c := NewParquetCache(logger.NewTestLogger(&bytes.Buffer{}), filepath.Join(t.TempDir(), "nope"))
	info, err := c.Info()
	if err != nil || len(info) != 0 {
		t.Fatalf("expected empty info, got %v, %v", info, err)
	}
}
