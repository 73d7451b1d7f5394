package report

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/relloyd/odsync/aws/s3/mocks"
	"github.com/relloyd/odsync/config"
	"github.com/relloyd/odsync/logger"
	"github.com/relloyd/odsync/scheduler"
)

func sampleReport() *scheduler.RunReport {
	start := time.Date(2024, 2, 1, 2, 0, 0, 0, time.UTC)
	return &scheduler.RunReport{
		RunID:     "run1",
		Mode:      "incremental",
		StartTime: start,
		EndTime:   start.Add(3 * time.Minute),
		Levels:    [][]string{{"client", "produit"}, {"lignecli"}},
		Nodes: []scheduler.TableNode{
			{Name: "client", Priority: config.PriorityCritical, Level: 0, Status: scheduler.StatusSuccess,
				StartTime: start, EndTime: start.Add(90 * time.Second), Attempts: 1, Rows: 12, Inserted: 2, Updated: 1},
			{Name: "produit", Priority: config.PriorityNormal, Level: 0, Status: scheduler.StatusFailed,
				StartTime: start, EndTime: start.Add(4 * time.Second), Attempts: 3, RetryCount: 2, Error: "transient connection error: reset"},
			{Name: "lignecli", Priority: config.PriorityHigh, Level: 1, Dependencies: []string{"client", "produit"},
				Status: scheduler.StatusSkipped, SkipReason: "dependency produit failed"},
		},
	}
}

func TestTextGroupsByLevel(t *testing.T) {
	txt := Text(sampleReport())
	for _, want := range []string{
		"Mode: incremental",
		"Start: 2024-02-01 02:00:00",
		"Duration: 3.0 min",
		"LEVEL 1",
		"LEVEL 2",
		"   Error: transient connection error: reset",
		"   Skipped: dependency produit failed",
	} {
		if !strings.Contains(txt, want) {
			t.Fatalf("expected %q in report:\n%v", want, txt)
		}
	}
	if strings.Index(txt, "client") > strings.Index(txt, "LEVEL 2") {
		t.Fatal("expected client under level 1")
	}
	if !strings.Contains(txt, "90.0s") || !strings.Contains(txt, "N/A") {
		t.Fatalf("expected durations in report:\n%v", txt)
	}
}

func TestWriteSavesTextAndCsv(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	w := NewWriter(logger.NewTestLogger(ioutil.Discard), dir, nil)
	f, err := w.Write(context.Background(), sampleReport())
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(f.Text) != "dag_20240201_020000.txt" || filepath.Base(f.CSV) != "dag_20240201_020000.csv" {
		t.Fatalf("unexpected file names %+v", f)
	}
	b, err := os.ReadFile(f.CSV)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header and 3 rows, got %v", len(lines))
	}
	if lines[0] != strings.Join(csvHeader, ",") {
		t.Fatalf("unexpected header %v", lines[0])
	}
	if lines[1] != "client,critical,1,success,90.0,1,0,12,2,1,,," {
		t.Fatalf("unexpected client row %v", lines[1])
	}
	if lines[3] != `lignecli,high,2,skipped,,0,0,0,0,0,"client,produit",,dependency produit failed` {
		t.Fatalf("unexpected lignecli row %v", lines[3])
	}
}

func TestWriteUploadsBothFiles(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	up := mocks.NewMockUploader(ctrl)
	var keys []string
	up.EXPECT().BufferPut(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, key string, buf io.ReadSeeker) error {
		b, _ := ioutil.ReadAll(buf)
		if len(b) == 0 {
			t.Errorf("empty upload for %v", key)
		}
		keys = append(keys, key)
		return nil
	}).Times(2)
	w := NewWriter(logger.NewTestLogger(ioutil.Discard), t.TempDir(), up)
	if _, err := w.Write(context.Background(), sampleReport()); err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "dag_20240201_020000.txt" || keys[1] != "dag_20240201_020000.csv" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestUploadFailureIsLogged(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	up := mocks.NewMockUploader(ctrl)
	up.EXPECT().BufferPut(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("AccessDenied")).Times(2)
	buf := &bytes.Buffer{}
	w := NewWriter(logger.NewTestLogger(buf), t.TempDir(), up)
	if _, err := w.Write(context.Background(), sampleReport()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "report upload failed: AccessDenied") {
		t.Fatalf("expected upload warning, got %v", buf.String())
	}
}
