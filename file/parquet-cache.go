package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/odsync/logger"
	"github.com/relloyd/odsync/stream"
	tabledefinition "github.com/relloyd/odsync/table-definition"
	"github.com/spf13/cast"
	"github.com/xitongsys/parquet-go-source/local"
	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

const (
	parquetRoot     = "parquet_go_root"
	parquetSuffix   = ".parquet"
	parquetParallel = 4
)

// ParquetCache stores extracted and transformed batches between pipeline stages so a stage can be re-run
// without re-extracting. Files are named <table>_<stage>.parquet.
type ParquetCache struct {
	log logger.Logger
	dir string
}

// CacheEntry describes one cached file.
type CacheEntry struct {
	Name     string
	Size     int64
	Modified time.Time
}

func NewParquetCache(log logger.Logger, dir string) *ParquetCache {
	return &ParquetCache{log: log, dir: dir}
}

func (c *ParquetCache) Dir() string {
	return c.dir
}

// Path returns the cache file for table and stage.
func (c *ParquetCache) Path(table, stage string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%v_%v%v", table, stage, parquetSuffix))
}

// Save writes b to the cache, replacing any previous file for the same table and stage.
func (c *ParquetCache) Save(table, stage string, b *stream.Batch) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "unable to create cache directory %v", c.dir)
	}
	target := c.Path(table, stage)
	tmp := target + ".tmp"
	fh, err := os.Create(tmp)
	if err != nil {
		return "", errors.Wrapf(err, "unable to create cache file %v", tmp)
	}
	if err := writeParquet(fh, b); err != nil {
		_ = fh.Close()
		_ = os.Remove(tmp)
		return "", errors.Wrapf(err, "unable to write cache file for %v (%v)", table, stage)
	}
	if err := fh.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", errors.Wrap(err, "unable to close cache file")
	}
	if err := os.Rename(tmp, target); err != nil {
		return "", errors.Wrap(err, "unable to move cache file into place")
	}
	c.log.Debug("cached ", b.Len(), " rows to ", target)
	return target, nil
}

func writeParquet(fh *os.File, b *stream.Batch) error {
	pfw := writerfile.NewWriterFile(fh)
	pw, err := writer.NewJSONWriter(buildParquetSchema(b.Layout), pfw, parquetParallel)
	if err != nil {
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range b.Rows {
		rec, err := json.Marshal(projectParquetRow(b.Layout, row))
		if err != nil {
			_ = pw.WriteStop()
			return err
		}
		if err := pw.Write(string(rec)); err != nil {
			_ = pw.WriteStop()
			return err
		}
	}
	return pw.WriteStop()
}

// Load reads a cached batch. The layout comes from configuration, the file only supplies values.
func (c *ParquetCache) Load(table, stage string, l tabledefinition.Layout) (*stream.Batch, error) {
	path := c.Path(table, stage)
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open cache file %v", path)
	}
	defer fr.Close()
	pr, err := reader.NewParquetColumnReader(fr, parquetParallel)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read cache file %v", path)
	}
	defer pr.ReadStop()
	num := pr.GetNumRows()
	b := stream.NewBatch(l)
	if num == 0 {
		return b, nil
	}
	columns := make([][]interface{}, len(l))
	for idx, col := range l {
		values, _, _, err := pr.ReadColumnByPath(common.ReformPathStr(parquetRoot+"."+col.Name), num)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to read column %v from %v", col.Name, path)
		}
		if int64(len(values)) != num {
			return nil, fmt.Errorf("column %v in %v has %v values, expected %v", col.Name, path, len(values), num)
		}
		columns[idx] = values
	}
	b.Rows = make([][]interface{}, num)
	for i := int64(0); i < num; i++ {
		row := make([]interface{}, len(l))
		for idx, col := range l {
			v, err := fromParquet(col, columns[idx][i])
			if err != nil {
				return nil, err
			}
			row[idx] = v
		}
		b.Rows[i] = row
	}
	c.log.Debug("loaded ", num, " rows from ", path)
	return b, nil
}

// Info lists cached files ordered by name.
func (c *ParquetCache) Info() ([]CacheEntry, error) {
	files, err := c.list()
	if err != nil {
		return nil, err
	}
	retval := make([]CacheEntry, 0, len(files))
	for _, f := range files {
		retval = append(retval, CacheEntry{Name: f.Name(), Size: f.Size(), Modified: f.ModTime()})
	}
	sort.Slice(retval, func(i, j int) bool { return retval[i].Name < retval[j].Name })
	return retval, nil
}

// Clear deletes the cached files of table, or every cached file if table is empty.
func (c *ParquetCache) Clear(table string) (int, error) {
	files, err := c.list()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range files {
		if table != "" && !strings.HasPrefix(f.Name(), table+"_") {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, f.Name())); err != nil {
			return n, errors.Wrapf(err, "unable to remove %v", f.Name())
		}
		n++
	}
	return n, nil
}

// Cleanup deletes cached files last modified more than maxAge before now.
func (c *ParquetCache) Cleanup(maxAge time.Duration, now time.Time) (int, error) {
	files, err := c.list()
	if err != nil {
		return 0, err
	}
	cutoff := now.Add(-maxAge)
	n := 0
	for _, f := range files {
		if f.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(c.dir, f.Name())); err != nil {
				return n, errors.Wrapf(err, "unable to remove %v", f.Name())
			}
			c.log.Info("removed stale cache file ", f.Name())
			n++
		}
	}
	return n, nil
}

func (c *ParquetCache) list() ([]os.FileInfo, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "unable to read cache directory %v", c.dir)
	}
	retval := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), parquetSuffix) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		retval = append(retval, fi)
	}
	return retval, nil
}

// buildParquetSchema returns the JSON schema used by the parquet JSON writer.
// Every column is OPTIONAL so nulls survive the round trip.
func buildParquetSchema(l tabledefinition.Layout) string {
	fields := make([]map[string]string, 0, len(l))
	for _, col := range l {
		fields = append(fields, map[string]string{
			"Tag": fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", col.Name, parquetPhysicalType(col.Kind)),
		})
	}
	out := map[string]interface{}{
		"Tag":    "name=" + parquetRoot + ", repetitiontype=REQUIRED",
		"Fields": fields,
	}
	b, _ := json.Marshal(out)
	return string(b)
}

func parquetPhysicalType(k tabledefinition.Kind) string {
	switch k {
	case tabledefinition.KindInt:
		return "type=INT64"
	case tabledefinition.KindFloat:
		return "type=DOUBLE"
	case tabledefinition.KindBool:
		return "type=BOOLEAN"
	case tabledefinition.KindDate, tabledefinition.KindDateTime:
		return "type=INT64, convertedtype=TIMESTAMP_MICROS"
	default: // strings and exact decimals
		return "type=BYTE_ARRAY, convertedtype=UTF8"
	}
}

func projectParquetRow(l tabledefinition.Layout, row []interface{}) map[string]interface{} {
	rec := make(map[string]interface{}, len(l))
	for idx, col := range l {
		v := row[idx]
		if t, ok := v.(time.Time); ok {
			v = t.UTC().UnixMicro()
		}
		rec[col.Name] = v
	}
	return rec
}

func fromParquet(col tabledefinition.Column, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if col.Kind.IsTemporal() {
		micros, err := cast.ToInt64E(v)
		if err != nil {
			return nil, errors.Wrapf(err, "column %v: bad cached timestamp", col.Name)
		}
		return time.UnixMicro(micros).UTC(), nil
	}
	return tabledefinition.Canonical(col, v)
}
