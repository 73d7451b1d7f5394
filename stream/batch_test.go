package stream

import (
	"testing"

	tabledefinition "github.com/relloyd/odsync/table-definition"
)

func TestBatch(t *testing.T) {
	b := NewBatch(tabledefinition.Layout{
		{Name: "client_id", Kind: tabledefinition.KindInt},
		{Name: "name", Kind: tabledefinition.KindString},
	})
	if b.Len() != 0 || len(b.Layout) != 2 {
		t.Fatal("expected an empty batch with a layout")
	}
	if err := b.Append([]interface{}{int64(1)}); err == nil {
		t.Fatal("expected width error")
	}
	if err := b.Append([]interface{}{int64(1), "Alice"}); err != nil {
		t.Fatal(err)
	}
	if b.Value(0, "name") != "Alice" || b.Value(0, "missing") != nil {
		t.Fatalf("unexpected values %v", b.Rows[0])
	}
	r := b.Record(0)
	if r["client_id"] != int64(1) || r["name"] != "Alice" {
		t.Fatalf("unexpected record %v", r)
	}
}
