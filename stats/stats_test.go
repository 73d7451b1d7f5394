package stats

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/relloyd/odsync/logger"
	"github.com/relloyd/odsync/rdbms/shared"
)

func newTestCollector() *Collector {
	return NewCollector(logger.NewTestLogger(ioutil.Discard), clockwork.NewFakeClock())
}

func TestCollectorRecordsSamples(t *testing.T) {
	c := newTestCollector()
	c.Increment("rows_processed", 10, map[string]string{"table": "client"})
	c.Increment("rows_processed", 5, map[string]string{"table": "invoice"})
	c.Increment("rows_processed", 1, nil) // missing label is recorded as empty
	c.Gauge("throughput", 42.5, map[string]string{"table": "client"})
	c.Timing("extract_duration", 1500*time.Millisecond, map[string]string{"table": "client"})

	if got := c.Sum("rows_processed"); got != 16 {
		t.Fatalf("expected 16 rows, got %v", got)
	}
	samples := c.Samples()
	if len(samples) != 5 {
		t.Fatalf("expected 5 samples, got %v", len(samples))
	}
	if samples[4].Kind != KindTiming || samples[4].Value != 1.5 {
		t.Fatalf("unexpected timing sample %+v", samples[4])
	}
	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0)
	for _, f := range families {
		names = append(names, f.GetName())
	}
	joined := strings.Join(names, ",")
	for _, want := range []string{"odsync_rows_processed_total", "odsync_throughput", "odsync_extract_duration_seconds"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected metric %v in %v", want, joined)
		}
	}
}

func TestSQLExporterInsertsSamples(t *testing.T) {
	c := newTestCollector()
	c.Increment("table_success", 1, map[string]string{"table": "client"})
	c.Timing("table_duration", time.Second, map[string]string{"table": "client"})
	db := shared.NewMockConnection("sqlserver")
	e := &SQLExporter{Log: logger.NewTestLogger(ioutil.Discard), Db: db}
	if err := e.Export(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	if len(db.StatementsContaining("CREATE TABLE etl.Metrics")) != 1 {
		t.Fatal("expected etl.Metrics to be created")
	}
	inserts := db.StatementsContaining("insert into [etl].[Metrics]")
	if len(inserts) != 1 || len(inserts[0].Args) != 10 {
		t.Fatalf("expected one insert of 2 rows, got %v", inserts)
	}
	if inserts[0].Args[3] != `{"table":"client"}` {
		t.Fatalf("unexpected tags %v", inserts[0].Args[3])
	}
}

func TestSQLExporterNoSamples(t *testing.T) {
	db := shared.NewMockConnection("sqlserver")
	e := &SQLExporter{Log: logger.NewTestLogger(ioutil.Discard), Db: db}
	if err := e.Export(context.Background(), newTestCollector()); err != nil {
		t.Fatal(err)
	}
	if len(db.Statements()) != 0 {
		t.Fatal("expected no statements")
	}
}

func TestTextfileExporter(t *testing.T) {
	dir, err := ioutil.TempDir("", "odsync-metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	c := newTestCollector()
	c.Increment("etl_success", 1, nil)
	path := filepath.Join(dir, "odsync.prom")
	if err = (&TextfileExporter{Path: path}).Export(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	b, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "odsync_etl_success_total 1") {
		t.Fatalf("unexpected textfile content:\n%s", b)
	}
}

func TestPushExporter(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	c := newTestCollector()
	c.Increment("etl_success", 1, nil)
	e := &PushExporter{URL: srv.URL, RunID: "run1"}
	if err := e.Export(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/metrics/job/odsync/run_id/run1" {
		t.Fatalf("unexpected push path %v", gotPath)
	}
}

func TestRunStatsManagerRendersWatchers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewRunStats(logger.NewTestLogger(ioutil.Discard), SetStatsDumpFrequency(0), SetClock(clock))
	a := m.AddTableWatcher("client", "critical")
	m.AddTableWatcher("invoice", "normal")
	a.StartWatching()
	a.AddRows(100)
	clock.Advance(10 * time.Second)
	a.StopWatching("success")
	clock.Advance(time.Minute)

	s := m.GetStats()
	if len(s) != 2 || s[0].Table != "client" || s[1].Table != "invoice" {
		t.Fatalf("unexpected stats %+v", s)
	}
	if s[0].ElapsedTimeSec != 10 || s[0].TotalRowsProcessed != 100 || s[0].RowsPerSecondAvg != 10 {
		t.Fatalf("unexpected client stats %+v", s[0])
	}
	if s[1].StatusText != "pending" || s[1].ElapsedTimeSec != 0 {
		t.Fatalf("unexpected invoice stats %+v", s[1])
	}
	m.StartDumping() // disabled, must not block StopDumping
	m.StopDumping()
}
