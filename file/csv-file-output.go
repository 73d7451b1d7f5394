package file

import (
	"bufio"
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/relloyd/odsync/logger"
)

// CSVFileOutput writes records to a single CSV file with an optional header row.
type CSVFileOutput struct {
	log          logger.Logger
	name         string
	file         *os.File
	fWriter      *bufio.Writer
	csvWriter    *csv.Writer
	headerRecord []string
	needHeader   bool
	rowCount     int
}

// NewCSVFileOutput creates fileName under directory, creating the directory if needed.
func NewCSVFileOutput(log logger.Logger, directory string, fileName string) (*CSVFileOutput, error) {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, errors.Wrapf(err, "unable to create CSV output directory %v", directory)
	}
	name := filepath.Join(directory, fileName)
	fh, err := os.Create(name)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create CSV file %v", name)
	}
	f := &CSVFileOutput{log: log, name: name, file: fh, needHeader: true}
	f.fWriter = bufio.NewWriter(fh)
	f.csvWriter = csv.NewWriter(f.fWriter)
	log.Debug("CSVFileOutput created file ", name)
	return f, nil
}

// SetHeader will store the supplied record for output before the first row.
func (f *CSVFileOutput) SetHeader(record []string) {
	f.headerRecord = record
}

// WriteRecord writes record to the CSV file, writing the header first if one was set.
func (f *CSVFileOutput) WriteRecord(record []string) error {
	if f.needHeader {
		f.needHeader = false
		if f.headerRecord != nil {
			if err := f.csvWriter.Write(f.headerRecord); err != nil {
				return errors.Wrap(err, "error writing CSV header")
			}
		}
	}
	if err := f.csvWriter.Write(record); err != nil {
		return errors.Wrap(err, "error writing CSV record")
	}
	f.rowCount++
	return nil
}

// Name returns the full path of the CSV file.
func (f *CSVFileOutput) Name() string {
	return f.name
}

// Close flushes buffered rows and closes the file. A header-only file is written when no rows were supplied.
func (f *CSVFileOutput) Close() error {
	if f.needHeader && f.headerRecord != nil {
		_ = f.csvWriter.Write(f.headerRecord)
	}
	f.csvWriter.Flush()
	if err := f.csvWriter.Error(); err != nil {
		_ = f.file.Close()
		return errors.Wrap(err, "error flushing CSV writer")
	}
	if err := f.fWriter.Flush(); err != nil {
		_ = f.file.Close()
		return errors.Wrap(err, "error flushing CSV file")
	}
	f.log.Debug("CSVFileOutput wrote ", f.rowCount, " rows to ", f.name)
	return f.file.Close()
}
