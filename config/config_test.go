package config

import (
	"errors"
	"io/ioutil"
	"os"
	"path"
	"reflect"
	"testing"
)

func TestFileSetGetDelete(t *testing.T) {
	dir, err := ioutil.TempDir("", "odsync-config")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	f := NewConfigFileWithDir(path.Join(dir, "sub"), "config.yaml")
	if f.FilePrefix != "config" || f.FileExt != "yaml" {
		t.Fatalf("unexpected file name parts: %v %v", f.FilePrefix, f.FileExt)
	}
	// Missing file is empty.
	keys, err := f.GetAllKeys()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no keys; got %v", keys)
	}
	if err = f.Set("target-dsn", "sqlserver://u:p@h?database=d"); err != nil {
		t.Fatal(err)
	}
	if err = f.Set("concurrency", 4); err != nil {
		t.Fatal(err)
	}

	// A fresh File reads what was saved.
	g := NewConfigFileWithDir(path.Join(dir, "sub"), "config.yaml")
	var dsn string
	if err = g.Get("target-dsn", &dsn); err != nil {
		t.Fatal(err)
	}
	if dsn != "sqlserver://u:p@h?database=d" {
		t.Fatalf("unexpected value %q", dsn)
	}
	var n int
	if err = g.Get("concurrency", &n); err != nil || n != 4 {
		t.Fatalf("unexpected concurrency %v: %v", n, err)
	}
	keys, _ = g.GetAllKeys()
	if !reflect.DeepEqual(keys, []string{"concurrency", "target-dsn"}) {
		t.Fatalf("unexpected keys %v", keys)
	}

	// Missing keys and non-pointers.
	err = g.Get("nope", &dsn)
	if !errors.As(err, &KeyNotFoundError{}) {
		t.Fatalf("expected KeyNotFoundError; got %v", err)
	}
	if err = g.Get("target-dsn", dsn); err == nil {
		t.Fatal("expected error for non-pointer out")
	}

	if err = g.Delete("concurrency"); err != nil {
		t.Fatal(err)
	}
	if err = g.Delete("concurrency"); err == nil {
		t.Fatal("expected error deleting a missing key")
	}
	h := NewConfigFileWithDir(path.Join(dir, "sub"), "config.yaml")
	all, err := h.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one key after delete; got %v", all)
	}
}

func TestFileBadYaml(t *testing.T) {
	dir, err := ioutil.TempDir("", "odsync-config")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	if err = ioutil.WriteFile(path.Join(dir, "config.yaml"), []byte("a: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	f := NewConfigFileWithDir(dir, "config.yaml")
	if _, err = f.GetAllKeys(); err == nil {
		t.Fatal("expected parse error")
	}
}
