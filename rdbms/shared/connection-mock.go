package shared

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
)

// MockStatement is one statement seen by a MockConnection.
type MockStatement struct {
	Query string
	Args  []interface{}
}

// MockResultSet is returned for queries that contain its key.
type MockResultSet struct {
	Columns []string
	Rows    [][]interface{}
}

// MockConnection is an in-memory Connector for tests.
// It records every statement and answers queries from scripted result sets matched by substring.
type MockConnection struct {
	DbType       string
	mu           sync.Mutex
	statements   []MockStatement
	results      map[string]*MockResultSet
	failures     map[string]error
	rowsAffected map[string]int64
	closed       bool
}

func NewMockConnection(dbType string) *MockConnection {
	return &MockConnection{
		DbType:       dbType,
		results:      make(map[string]*MockResultSet),
		failures:     make(map[string]error),
		rowsAffected: make(map[string]int64),
	}
}

// AddResult answers queries containing match with the given columns and rows.
func (m *MockConnection) AddResult(match string, cols []string, rows ...[]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[match] = &MockResultSet{Columns: cols, Rows: rows}
}

// FailOn makes any statement containing match return err.
func (m *MockConnection) FailOn(match string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[match] = err
}

// SetRowsAffected sets the RowsAffected reported for statements containing match.
func (m *MockConnection) SetRowsAffected(match string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rowsAffected[match] = n
}

// Statements returns a copy of every statement recorded so far.
func (m *MockConnection) Statements() []MockStatement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockStatement{}, m.statements...)
}

// StatementsContaining returns the recorded statements whose text contains match.
func (m *MockConnection) StatementsContaining(match string) []MockStatement {
	retval := make([]MockStatement, 0)
	for _, s := range m.Statements() {
		if strings.Contains(s.Query, match) {
			retval = append(retval, s)
		}
	}
	return retval
}

func (m *MockConnection) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockConnection) record(query string, args []interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statements = append(m.statements, MockStatement{Query: query, Args: args})
	for k, err := range m.failures {
		if strings.Contains(query, k) {
			return err
		}
	}
	return nil
}

func (m *MockConnection) Begin(ctx context.Context) (Transacter, error) {
	if err := m.record("BEGIN", nil); err != nil {
		return nil, err
	}
	return &mockTx{conn: m}, nil
}

func (m *MockConnection) ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.record(query, args); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, n := range m.rowsAffected {
		if strings.Contains(query, k) {
			return mockResult(n), nil
		}
	}
	return mockResult(0), nil
}

func (m *MockConnection) QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.record(query, args); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, rs := range m.results {
		if strings.Contains(query, k) {
			return &MockRows{set: rs, idx: -1}, nil
		}
	}
	return &MockRows{set: &MockResultSet{}, idx: -1}, nil
}

func (m *MockConnection) PingContext(ctx context.Context) error {
	return m.record("PING", nil)
}

func (m *MockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockConnection) GetType() string {
	return m.DbType
}

func (m *MockConnection) GetDmlGenerator() DmlGenerator {
	return &DmlGeneratorTxtBatch{}
}

type mockResult int64

func (r mockResult) RowsAffected() (int64, error) {
	return int64(r), nil
}

type mockTx struct {
	conn *MockConnection
}

func (t *mockTx) ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error) {
	return t.conn.ExecContext(ctx, query, args...)
}

func (t *mockTx) QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	return t.conn.QueryContext(ctx, query, args...)
}

func (t *mockTx) Commit() error {
	return t.conn.record("COMMIT", nil)
}

func (t *mockTx) Rollback() error {
	return t.conn.record("ROLLBACK", nil)
}

// MockRows iterates a MockResultSet.
type MockRows struct {
	set *MockResultSet
	idx int
}

func (r *MockRows) Columns() ([]string, error) {
	return r.set.Columns, nil
}

func (r *MockRows) Next() bool {
	r.idx++
	return r.idx < len(r.set.Rows)
}

func (r *MockRows) Err() error {
	return nil
}

func (r *MockRows) Close() error {
	return nil
}

// Scan copies the current row into dest, supporting sql.Scanner and plain pointers.
func (r *MockRows) Scan(dest ...interface{}) error {
	if r.idx < 0 || r.idx >= len(r.set.Rows) {
		return io.EOF
	}
	row := r.set.Rows[r.idx]
	if len(dest) != len(row) {
		return fmt.Errorf("expected %v destination arguments in Scan, not %v", len(row), len(dest))
	}
	for i, d := range dest {
		if err := assign(d, row[i]); err != nil {
			return fmt.Errorf("column %v: %w", i, err)
		}
	}
	return nil
}

func assign(dest interface{}, v interface{}) error {
	if s, ok := dest.(sql.Scanner); ok {
		return s.Scan(v)
	}
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return fmt.Errorf("destination is not a pointer")
	}
	target := dv.Elem()
	if v == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}
	sv := reflect.ValueOf(v)
	switch {
	case sv.Type().AssignableTo(target.Type()):
		target.Set(sv)
	case sv.Type().ConvertibleTo(target.Type()) && sv.Kind() != reflect.String && target.Kind() != reflect.String:
		target.Set(sv.Convert(target.Type()))
	case target.Kind() == reflect.String:
		target.SetString(fmt.Sprintf("%v", v))
	default:
		return fmt.Errorf("cannot assign %T to %v", v, target.Type())
	}
	return nil
}
