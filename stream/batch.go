package stream

import (
	"fmt"

	tabledefinition "github.com/relloyd/odsync/table-definition"
)

// Batch is an ordered, column-typed row set.
// The layout comes from configuration so an empty batch still has a schema.
type Batch struct {
	Layout tabledefinition.Layout
	Rows   [][]interface{}
}

func NewBatch(l tabledefinition.Layout) *Batch {
	return &Batch{Layout: l, Rows: make([][]interface{}, 0)}
}

// Append adds row after checking its width.
func (b *Batch) Append(row []interface{}) error {
	if len(row) != len(b.Layout) {
		return fmt.Errorf("row has %v values but batch has %v columns", len(row), len(b.Layout))
	}
	b.Rows = append(b.Rows, row)
	return nil
}

func (b *Batch) Len() int {
	return len(b.Rows)
}

// Value returns the value of the named column in row i, or nil if the column does not exist.
func (b *Batch) Value(i int, name string) interface{} {
	idx := b.Layout.Index(name)
	if idx < 0 {
		return nil
	}
	return b.Rows[i][idx]
}

// Record returns row i as a map keyed by column name.
func (b *Batch) Record(i int) map[string]interface{} {
	m := make(map[string]interface{}, len(b.Layout))
	for idx, c := range b.Layout {
		m[c.Name] = b.Rows[i][idx]
	}
	return m
}
