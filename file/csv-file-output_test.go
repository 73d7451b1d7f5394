package file

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/relloyd/odsync/logger"
)

func TestNewCsvFileOutput(t *testing.T) {
	log := logger.NewTestLogger(&bytes.Buffer{})
	dir := filepath.Join(t.TempDir(), "reports")
	f, err := NewCSVFileOutput(log, dir, "dag.csv")
	if err != nil {
		t.Fatal(err)
	}
	f.SetHeader([]string{"table", "status"})
	if err := f.WriteRecord([]string{"client", "success"}); err != nil {
		t.Fatal(err)
	}
	if err := f.WriteRecord([]string{"order, line", "failed"}); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	want := "table,status\nclient,success\n\"order, line\",failed\n"
	if string(b) != want {
		t.Fatalf("unexpected CSV content:\n%v", string(b))
	}
}

func TestCsvFileOutputHeaderOnly(t *testing.T) {
	log := logger.NewTestLogger(&bytes.Buffer{})
	f, err := NewCSVFileOutput(log, t.TempDir(), "empty.csv")
	if err != nil {
		t.Fatal(err)
	}
	f.SetHeader([]string{"a"})
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	b, _ := os.ReadFile(f.Name())
	if string(b) != "a\n" {
		t.Fatalf("expected header only, got %q", string(b))
	}
}
