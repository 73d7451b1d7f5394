package stats

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/helper"
	"github.com/relloyd/odsync/logger"
	"github.com/relloyd/odsync/rdbms/shared"
)

// Exporter ships the collected metrics somewhere durable at the end of a run.
type Exporter interface {
	Name() string
	Export(ctx context.Context, c *Collector) error
}

// ExportAll runs every exporter, logging failures. Metrics must never fail a run.
func ExportAll(ctx context.Context, log logger.Logger, c *Collector, exporters ...Exporter) {
	for _, e := range exporters {
		if err := e.Export(ctx, c); err != nil {
			log.Warn("error exporting metrics to ", e.Name(), ": ", err)
			continue
		}
		log.Debug("exported metrics to ", e.Name())
	}
}

const sqlCreateMetrics = `IF NOT EXISTS (SELECT * FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = 'etl' AND TABLE_NAME = 'Metrics')
CREATE TABLE etl.Metrics (
MetricId BIGINT IDENTITY(1,1) PRIMARY KEY,
MetricName NVARCHAR(100) NOT NULL,
MetricValue FLOAT NOT NULL,
Unit NVARCHAR(20),
Tags NVARCHAR(MAX),
MetricTs DATETIME2 NOT NULL)`

var metricsColumns = []string{"MetricName", "MetricValue", "Unit", "Tags", "MetricTs"}

// SQLExporter inserts every sample into etl.Metrics.
type SQLExporter struct {
	Log logger.Logger
	Db  shared.Connector
}

func (e *SQLExporter) Name() string {
	return "etl.Metrics"
}

func (e *SQLExporter) Export(ctx context.Context, c *Collector) error {
	samples := c.Samples()
	if len(samples) == 0 {
		return nil
	}
	if _, err := e.Db.ExecContext(ctx, sqlCreateMetrics); err != nil {
		return errors.Wrap(err, "error creating etl.Metrics")
	}
	gen, err := e.Db.GetDmlGenerator().NewInsertGenerator(&shared.SqlStatementGeneratorConfig{
		Log:             e.Log,
		OutputSchema:    "etl",
		OutputTable:     "Metrics",
		TargetOtherCols: helper.StringSliceToOrderedMap(metricsColumns),
	})
	if err != nil {
		return err
	}
	batchSize := shared.MaxRowsPerStatement(len(metricsColumns), constants.SqlServerMaxParams, constants.StageBatchRows)
	flush := func() error {
		if gen.RowsInBatch() == 0 {
			return nil
		}
		if _, err := e.Db.ExecContext(ctx, gen.GetStatement(), gen.GetValues()...); err != nil {
			return errors.Wrap(err, "error inserting into etl.Metrics")
		}
		gen.InitBatch(batchSize)
		return nil
	}
	gen.InitBatch(batchSize)
	for _, s := range samples {
		tags, err := json.Marshal(s.Labels)
		if err != nil {
			return err
		}
		full, err := gen.AddValuesToBatch([]interface{}{s.Name, s.Value, string(s.Kind), string(tags), s.At})
		if err != nil {
			return err
		}
		if full {
			if err = flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// TextfileExporter writes the registry in the text exposition format for node_exporter's textfile collector.
type TextfileExporter struct {
	Path string
}

func (e *TextfileExporter) Name() string {
	return "textfile " + e.Path
}

func (e *TextfileExporter) Export(ctx context.Context, c *Collector) error {
	return prometheus.WriteToTextfile(e.Path, c.Registry())
}

// PushExporter pushes the registry to a Prometheus Pushgateway, grouped by run ID.
type PushExporter struct {
	URL   string
	Job   string
	RunID string
}

func (e *PushExporter) Name() string {
	return "pushgateway " + e.URL
}

func (e *PushExporter) Export(ctx context.Context, c *Collector) error {
	job := e.Job
	if job == "" {
		job = constants.AppName
	}
	p := push.New(e.URL, job).Gatherer(c.Registry())
	if e.RunID != "" {
		p = p.Grouping("run_id", e.RunID)
	}
	return p.PushContext(ctx)
}
