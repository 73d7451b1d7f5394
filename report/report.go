// Package report writes the durable artifacts of a DAG run: a text report grouped by level and a CSV
// of every table, optionally copied to S3.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/odsync/aws/s3"
	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/file"
	"github.com/relloyd/odsync/logger"
	"github.com/relloyd/odsync/scheduler"
)

var csvHeader = []string{
	"table", "priority", "level", "status", "duration_seconds", "attempts", "retry_count",
	"rows", "inserted", "updated", "dependencies", "error", "skip_reason",
}

// Files are the paths written for one run.
type Files struct {
	Text string
	CSV  string
}

type Writer struct {
	log      logger.Logger
	dir      string
	uploader s3.Uploader
}

// NewWriter writes into dir. uploader may be nil.
func NewWriter(log logger.Logger, dir string, uploader s3.Uploader) *Writer {
	return &Writer{log: log, dir: dir, uploader: uploader}
}

// Write saves dag_<yyyymmdd_hhmmss>.txt and .csv for r and uploads them when an uploader is set.
// Upload failures are logged and do not fail the run.
func (w *Writer) Write(ctx context.Context, r *scheduler.RunReport) (Files, error) {
	base := fmt.Sprintf("dag_%v", r.StartTime.Format(constants.TimeFormatYearSeconds))
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return Files{}, errors.Wrapf(err, "unable to create report directory %v", w.dir)
	}
	f := Files{Text: filepath.Join(w.dir, base+".txt")}
	if err := os.WriteFile(f.Text, []byte(Text(r)), 0o644); err != nil {
		return Files{}, errors.Wrapf(err, "error writing report %v", f.Text)
	}
	csvFile, err := w.writeCSV(base+".csv", r)
	if err != nil {
		return Files{}, err
	}
	f.CSV = csvFile
	w.log.Info("DAG report saved to ", f.Text, " and ", f.CSV)
	if w.uploader != nil {
		for _, name := range []string{f.Text, f.CSV} {
			if err := w.upload(ctx, name); err != nil {
				w.log.Warn("report upload failed: ", err)
			}
		}
	}
	return f, nil
}

func (w *Writer) upload(ctx context.Context, name string) error {
	fh, err := os.Open(name)
	if err != nil {
		return err
	}
	defer func() {
		_ = fh.Close()
	}()
	if err = w.uploader.BufferPut(ctx, filepath.Base(name), fh); err != nil {
		return err
	}
	w.log.Debug("uploaded report ", filepath.Base(name))
	return nil
}

func (w *Writer) writeCSV(name string, r *scheduler.RunReport) (string, error) {
	out, err := file.NewCSVFileOutput(w.log, w.dir, name)
	if err != nil {
		return "", err
	}
	out.SetHeader(csvHeader)
	for _, n := range r.Nodes {
		rec := []string{
			n.Name,
			string(n.Priority),
			strconv.Itoa(n.Level + 1),
			string(n.Status),
			durationSeconds(n),
			strconv.Itoa(n.Attempts),
			strconv.Itoa(n.RetryCount),
			strconv.FormatInt(n.Rows, 10),
			strconv.FormatInt(n.Inserted, 10),
			strconv.FormatInt(n.Updated, 10),
			strings.Join(n.Dependencies, ","),
			n.Error,
			n.SkipReason,
		}
		if err = out.WriteRecord(rec); err != nil {
			_ = out.Close()
			return "", err
		}
	}
	if err = out.Close(); err != nil {
		return "", err
	}
	return out.Name(), nil
}

func durationSeconds(n scheduler.TableNode) string {
	if n.Duration() == 0 {
		return ""
	}
	return strconv.FormatFloat(n.Duration().Seconds(), 'f', 1, 64)
}

func statusIcon(s scheduler.Status) string {
	switch s {
	case scheduler.StatusSuccess:
		return "\U00002705"
	case scheduler.StatusFailed:
		return "\U0000274C"
	case scheduler.StatusSkipped:
		return "\U000023ED"
	}
	return "\U000023F8"
}

// Text renders r grouped by level.
func Text(r *scheduler.RunReport) string {
	nodes := make(map[string]scheduler.TableNode, len(r.Nodes))
	for _, n := range r.Nodes {
		nodes[n.Name] = n
	}
	b := &strings.Builder{}
	fmt.Fprintf(b, "DAG REPORT\n")
	fmt.Fprintf(b, "Run: %v\n", r.RunID)
	fmt.Fprintf(b, "Mode: %v\n", r.Mode)
	fmt.Fprintf(b, "Start: %v\n", r.StartTime.Format(constants.TimeFormatDateTime))
	fmt.Fprintf(b, "Duration: %.1f min\n", r.Duration().Minutes())
	b.WriteString(strings.Repeat("=", 80) + "\n")
	for i, level := range r.Levels {
		fmt.Fprintf(b, "\nLEVEL %d\n", i+1)
		b.WriteString(strings.Repeat("-", 80) + "\n")
		for _, name := range level {
			n := nodes[name]
			d := "N/A"
			if s := durationSeconds(n); s != "" {
				d = s + "s"
			}
			fmt.Fprintf(b, "%v %-30v %-10v %10v\n", statusIcon(n.Status), n.Name, n.Priority, d)
			if n.Error != "" {
				fmt.Fprintf(b, "   Error: %v\n", n.Error)
			}
			if n.SkipReason != "" {
				fmt.Fprintf(b, "   Skipped: %v\n", n.SkipReason)
			}
		}
	}
	return b.String()
}
