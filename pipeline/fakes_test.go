package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/relloyd/odsync/config"
	"github.com/relloyd/odsync/etlerrors"
	"github.com/relloyd/odsync/ledger"
	"github.com/relloyd/odsync/rdbms"
	"github.com/relloyd/odsync/stream"
	tabledefinition "github.com/relloyd/odsync/table-definition"
)

// memStore is an in-memory config.Store.
type memStore struct {
	mu          sync.Mutex
	tables      map[string]config.TableLoadConfig
	columns     map[string][]config.ColumnSpec
	lastSuccess map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{tables: map[string]config.TableLoadConfig{}, columns: map[string][]config.ColumnSpec{}, lastSuccess: map[string]time.Time{}}
}

func (s *memStore) add(t config.TableLoadConfig, cols ...config.ColumnSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[t.TableName] = t
	s.columns[t.TableName] = cols
}

func (s *memStore) GetTableConfig(ctx context.Context, table string) (*config.TableLoadConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[table]
	if !ok {
		return nil, etlerrors.NewConfigurationError(table, "table not found")
	}
	if ts, ok := s.lastSuccess[table]; ok {
		t.LastSuccessTs = &ts
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *memStore) GetIncludedColumns(ctx context.Context, table string) ([]config.ColumnSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	retval := make([]config.ColumnSpec, 0)
	for _, c := range s.columns[table] {
		if c.Included {
			retval = append(retval, c)
		}
	}
	if len(retval) == 0 {
		return nil, etlerrors.NewConfigurationError(table, "no active columns")
	}
	return retval, nil
}

func (s *memStore) SetLastSuccess(ctx context.Context, table string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSuccess[table] = ts
	return nil
}

func (s *memStore) ListTables(ctx context.Context) ([]config.TableLoadConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	retval := make([]config.TableLoadConfig, 0, len(s.tables))
	for _, t := range s.tables {
		retval = append(retval, t)
	}
	return retval, nil
}

// memSource answers reads from a function and records every query.
type memSource struct {
	mu      sync.Mutex
	queries []rdbms.SourceQuery
	read    func(attempt int, q rdbms.SourceQuery, l tabledefinition.Layout) (*stream.Batch, error)
}

func (s *memSource) Read(ctx context.Context, q rdbms.SourceQuery, l tabledefinition.Layout) (*stream.Batch, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	attempt := len(s.queries)
	s.mu.Unlock()
	return s.read(attempt, q, l)
}

func (s *memSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

// rowsSource returns a source that always yields rows.
func rowsSource(rows ...[]interface{}) *memSource {
	return &memSource{read: func(attempt int, q rdbms.SourceQuery, l tabledefinition.Layout) (*stream.Batch, error) {
		b := stream.NewBatch(l)
		for _, r := range rows {
			if err := b.Append(r); err != nil {
				return nil, err
			}
		}
		return b, nil
	}}
}

// memWarehouse implements DestinationWriter with MERGE semantics: insert when not matched,
// update when matched with a different hashdiff and leave the row untouched otherwise.
type memWarehouse struct {
	mu        sync.Mutex
	staging   map[string]*stream.Batch
	dest      map[string]map[string]map[string]interface{} // table -> key -> record
	keyOrder  map[string][]string
	writes    int
	failStage error
	failMerge error
}

func newMemWarehouse() *memWarehouse {
	return &memWarehouse{staging: map[string]*stream.Batch{}, dest: map[string]map[string]map[string]interface{}{}, keyOrder: map[string][]string{}}
}

func (w *memWarehouse) EnsureStagingTable(ctx context.Context, schema, table string, l tabledefinition.Layout) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.staging[schema+"."+table] = stream.NewBatch(l.WithTechnicalColumns())
	return nil
}

func (w *memWarehouse) EnsureDestinationTable(ctx context.Context, schema, table string, l tabledefinition.Layout) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.dest[schema+"."+table]; !ok {
		w.dest[schema+"."+table] = map[string]map[string]interface{}{}
	}
	return nil
}

func (w *memWarehouse) Truncate(ctx context.Context, schema, table string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dest[schema+"."+table] = map[string]map[string]interface{}{}
	return nil
}

func (w *memWarehouse) BulkInsert(ctx context.Context, schema, table string, b *stream.Batch) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failStage != nil {
		return 0, w.failStage
	}
	stg := w.staging[schema+"."+table]
	for i := range b.Rows {
		row, err := tabledefinition.CoerceRow(b.Layout, b.Rows[i])
		if err != nil {
			return 0, err
		}
		if err = stg.Append(row); err != nil {
			return 0, err
		}
	}
	return int64(b.Len()), nil
}

func (w *memWarehouse) Merge(ctx context.Context, m rdbms.MergeSpec) (rdbms.MergeResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failMerge != nil {
		return rdbms.MergeResult{}, w.failMerge
	}
	name := m.TargetSchema + "." + m.TargetTable
	if m.TruncateTarget {
		w.dest[name] = map[string]map[string]interface{}{}
	}
	target := w.dest[name]
	stg := w.staging[m.SourceSchema+"."+m.SourceTable]
	var res rdbms.MergeResult
	for i := range stg.Rows {
		rec := stg.Record(i)
		parts := make([]string, len(m.KeyCols))
		for j, k := range m.KeyCols {
			parts[j] = fmt.Sprintf("%v", rec[k])
		}
		key := strings.Join(parts, "|")
		existing, ok := target[key]
		switch {
		case !ok:
			target[key] = rec
			w.keyOrder[name] = append(w.keyOrder[name], key)
			res.Inserted++
			w.writes++
		case existing[m.ChangeCol] != rec[m.ChangeCol]:
			for _, c := range m.OtherCols {
				existing[c] = rec[c]
			}
			res.Updated++
			w.writes++
		}
	}
	return res, nil
}

func (w *memWarehouse) row(table, key string) map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dest[table][key]
}

func (w *memWarehouse) count(table string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.dest[table])
}

// memLedger keeps every entry.
type memLedger struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (l *memLedger) Record(ctx context.Context, e ledger.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

func (l *memLedger) statuses(step string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	retval := make([]string, 0)
	for _, e := range l.entries {
		if e.Step == step {
			retval = append(retval, e.Status)
		}
	}
	return retval
}

// immediateTimer fires at once so retry tests do not sleep.
type immediateTimer struct {
	c chan time.Time
}

func (t *immediateTimer) Start(d time.Duration) {
	t.c = make(chan time.Time, 1)
	t.c <- time.Now()
}

func (t *immediateTimer) Stop() {}

func (t *immediateTimer) C() <-chan time.Time {
	return t.c
}

