package config

import (
	"context"
	"time"
)

// Store is the persisted table configuration.
type Store interface {
	// GetTableConfig returns the validated config of an active table or a ConfigurationError.
	GetTableConfig(ctx context.Context, table string) (*TableLoadConfig, error)
	// GetIncludedColumns returns the included columns in configured order or a ConfigurationError when there are none.
	GetIncludedColumns(ctx context.Context, table string) ([]ColumnSpec, error)
	// SetLastSuccess persists the last successful incremental load time.
	SetLastSuccess(ctx context.Context, table string, ts time.Time) error
	// ListTables returns every active table with its priority and declared dependencies.
	ListTables(ctx context.Context) ([]TableLoadConfig, error)
}
