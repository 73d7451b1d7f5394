package config

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/odsync/etlerrors"
	"github.com/relloyd/odsync/logger"
	"gopkg.in/yaml.v2"
)

// fileColumn is a column entry in the tables file; columns are included unless excluded.
type fileColumn struct {
	ColumnSpec `yaml:",inline"`
	Excluded   bool `yaml:"excluded,omitempty"`
}

type fileTable struct {
	TableLoadConfig `yaml:",inline"`
	Active          *bool        `yaml:"active,omitempty"`
	Columns         []fileColumn `yaml:"columns"`
}

func (t fileTable) isActive() bool {
	return t.Active == nil || *t.Active
}

type fileTables struct {
	Tables []fileTable `yaml:"tables"`
}

// FileStore reads table configuration from a YAML file with the same shape as the config schema.
// SetLastSuccess rewrites the file in place.
type FileStore struct {
	log  logger.Logger
	path string
	mu   sync.Mutex
	data fileTables
}

func NewFileStore(log logger.Logger, path string) (*FileStore, error) {
	s := &FileStore{log: log, path: path}
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading tables file %v", path)
	}
	if err = yaml.Unmarshal(b, &s.data); err != nil {
		return nil, errors.Wrapf(err, "error parsing tables file %v", path)
	}
	seen := make(map[string]bool)
	for _, t := range s.data.Tables {
		if seen[t.TableName] {
			return nil, etlerrors.NewConfigurationError(t.TableName, "table is declared more than once in %v", path)
		}
		seen[t.TableName] = true
	}
	return s, nil
}

func (s *FileStore) find(table string) (*fileTable, bool) {
	for i := range s.data.Tables {
		if s.data.Tables[i].TableName == table && s.data.Tables[i].isActive() {
			return &s.data.Tables[i], true
		}
	}
	return nil, false
}

func (s *FileStore) GetTableConfig(ctx context.Context, table string) (*TableLoadConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.find(table)
	if !ok {
		return nil, etlerrors.NewConfigurationError(table, "table not found in %v", s.path)
	}
	c := t.TableLoadConfig
	c.PrimaryKeys = append([]string{}, t.PrimaryKeys...)
	if t.LastSuccessTs != nil {
		ts := *t.LastSuccessTs
		c.LastSuccessTs = &ts
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *FileStore) GetIncludedColumns(ctx context.Context, table string) ([]ColumnSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.find(table)
	if !ok {
		return nil, etlerrors.NewConfigurationError(table, "table not found in %v", s.path)
	}
	retval := make([]ColumnSpec, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Excluded {
			continue
		}
		spec := c.ColumnSpec
		spec.Included = true
		retval = append(retval, spec)
	}
	if len(retval) == 0 {
		return nil, etlerrors.NewConfigurationError(table, "no active columns")
	}
	return retval, nil
}

func (s *FileStore) SetLastSuccess(ctx context.Context, table string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.find(table)
	if !ok {
		return etlerrors.NewConfigurationError(table, "table not found in %v", s.path)
	}
	ts = ts.UTC()
	t.LastSuccessTs = &ts
	return s.save()
}

func (s *FileStore) ListTables(ctx context.Context) ([]TableLoadConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	retval := make([]TableLoadConfig, 0, len(s.data.Tables))
	for _, t := range s.data.Tables {
		if !t.isActive() {
			continue
		}
		c := t.TableLoadConfig
		if c.Priority == "" {
			c.Priority = DerivePriority(c.Notes, c.IsDimension, c.IsFact)
		} else {
			p, err := ParsePriority(string(c.Priority))
			if err != nil {
				return nil, etlerrors.NewConfigurationError(c.TableName, "%v", err)
			}
			c.Priority = p
		}
		c.DependsOn = append([]string{}, t.DependsOn...)
		retval = append(retval, c)
	}
	sort.Slice(retval, func(i, j int) bool { return retval[i].TableName < retval[j].TableName })
	return retval, nil
}

// save writes the file via a temporary file and rename. The caller holds s.mu.
func (s *FileStore) save() error {
	b, err := yaml.Marshal(s.data)
	if err != nil {
		return errors.Wrap(err, "error marshalling tables file")
	}
	tmp := fmt.Sprintf("%v.tmp", s.path)
	if err = ioutil.WriteFile(tmp, b, 0644); err != nil {
		return errors.Wrapf(err, "error writing %v", tmp)
	}
	if err = os.Rename(tmp, s.path); err != nil {
		return errors.Wrapf(err, "error replacing %v", filepath.Base(s.path))
	}
	return nil
}
