package pipeline

import (
	"context"

	"github.com/relloyd/odsync/rdbms"
	"github.com/relloyd/odsync/stream"
	tabledefinition "github.com/relloyd/odsync/table-definition"
)

// SourceReader returns the rows of a source projection. Zero rows must yield an empty batch shaped by l.
type SourceReader interface {
	Read(ctx context.Context, q rdbms.SourceQuery, l tabledefinition.Layout) (*stream.Batch, error)
}

// DestinationWriter is the warehouse side of a load.
type DestinationWriter interface {
	EnsureStagingTable(ctx context.Context, schema, table string, l tabledefinition.Layout) error
	EnsureDestinationTable(ctx context.Context, schema, table string, l tabledefinition.Layout) error
	Truncate(ctx context.Context, schema, table string) error
	BulkInsert(ctx context.Context, schema, table string, b *stream.Batch) (int64, error)
	Merge(ctx context.Context, m rdbms.MergeSpec) (rdbms.MergeResult, error)
}
