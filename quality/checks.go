// Package quality validates enriched batches before they reach the staging table.
package quality

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/diegoholiveira/jsonlogic"
	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/helper"
	"github.com/relloyd/odsync/logger"
	"github.com/relloyd/odsync/stream"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Rule is a row-level JSON Logic expression that must evaluate to true for a row to pass.
type Rule struct {
	Name     string   `yaml:"name" json:"name"`
	Logic    string   `yaml:"logic" json:"logic"`
	Severity Severity `yaml:"severity" json:"severity"`
}

// Issue records one failed check.
type Issue struct {
	Check      string
	Severity   Severity
	FailedRows int
	Message    string
}

type Report struct {
	Table  string
	Rows   int
	Issues []Issue
}

// Critical returns the issues that must stop the load.
func (r Report) Critical() []Issue {
	retval := make([]Issue, 0)
	for _, i := range r.Issues {
		if i.Severity == SeverityCritical {
			retval = append(retval, i)
		}
	}
	return retval
}

// Error summarises critical issues, or returns nil when there are none.
func (r Report) Error() error {
	c := r.Critical()
	if len(c) == 0 {
		return nil
	}
	msgs := make([]string, len(c))
	for i, issue := range c {
		msgs[i] = issue.Message
	}
	return fmt.Errorf("data quality checks failed for %v: %v", r.Table, strings.Join(msgs, "; "))
}

type Checker struct {
	log   logger.Logger
	rules []Rule
}

// NewChecker validates the JSON Logic of every rule. Rules without a severity are warnings.
func NewChecker(log logger.Logger, rules []Rule) (*Checker, error) {
	for i, r := range rules {
		if !jsonlogic.IsValid(strings.NewReader(r.Logic)) {
			return nil, fmt.Errorf("invalid JSON Logic rule %q: %v", r.Name, r.Logic)
		}
		if r.Severity == "" {
			rules[i].Severity = SeverityWarning
		}
	}
	return &Checker{log: log, rules: rules}, nil
}

// Check runs the built-in integrity checks followed by the configured rules.
// Built-in checks: primary key not null, primary key unique in the batch, hashdiff not null, load_ts >= ts_source.
func (c *Checker) Check(table string, b *stream.Batch, primaryKeys []string) Report {
	r := Report{Table: table, Rows: b.Len()}
	add := func(check string, sev Severity, n int, format string, args ...interface{}) {
		if n == 0 {
			return
		}
		issue := Issue{Check: check, Severity: sev, FailedRows: n, Message: fmt.Sprintf(format, args...)}
		r.Issues = append(r.Issues, issue)
		c.log.WithFields(map[string]interface{}{"table": table, "check": check, "severity": sev}).Warn(issue.Message)
	}

	pkIdx := make([]int, 0, len(primaryKeys))
	for _, k := range primaryKeys {
		idx := b.Layout.Index(k)
		if idx < 0 {
			add("pk_present", SeverityCritical, 1, "primary key column %v missing from batch", k)
			continue
		}
		pkIdx = append(pkIdx, idx)
	}
	hashIdx := b.Layout.Index(constants.ColHashDiff)
	tsIdx := b.Layout.Index(constants.ColTsSource)
	loadIdx := b.Layout.Index(constants.ColLoadTs)

	var nullPk, nullHash, dupPk, skew int
	seen := make(map[string]struct{}, b.Len())
	for _, row := range b.Rows {
		var key strings.Builder
		hasNull := false
		for _, idx := range pkIdx {
			if row[idx] == nil {
				hasNull = true
				break
			}
			s := helper.GetStringFromInterface(row[idx])
			fmt.Fprintf(&key, "%d:%s|", len(s), s)
		}
		if hasNull {
			nullPk++
		} else if len(pkIdx) > 0 {
			if _, ok := seen[key.String()]; ok {
				dupPk++
			}
			seen[key.String()] = struct{}{}
		}
		if hashIdx >= 0 && row[hashIdx] == nil {
			nullHash++
		}
		if tsIdx >= 0 && loadIdx >= 0 {
			ts, ok1 := row[tsIdx].(time.Time)
			lt, ok2 := row[loadIdx].(time.Time)
			if ok1 && ok2 && lt.Before(ts) {
				skew++
			}
		}
	}
	add("pk_not_null", SeverityCritical, nullPk, "%v rows with a null primary key", nullPk)
	add("pk_unique", SeverityCritical, dupPk, "%v duplicate primary keys", dupPk)
	add("hashdiff_not_null", SeverityCritical, nullHash, "%v rows without hashdiff", nullHash)
	add("load_ts_after_ts_source", SeverityCritical, skew, "%v rows with ts_source later than load_ts", skew)

	for _, rule := range c.rules {
		failed, err := c.countFailures(rule, b)
		if err != nil {
			add(rule.Name, rule.Severity, b.Len(), "rule %v could not be evaluated: %v", rule.Name, err)
			continue
		}
		add(rule.Name, rule.Severity, failed, "rule %v failed for %v rows", rule.Name, failed)
	}
	return r
}

func (c *Checker) countFailures(rule Rule, b *stream.Batch) (int, error) {
	var result bytes.Buffer
	failed := 0
	for i := 0; i < b.Len(); i++ {
		data, err := json.Marshal(b.Record(i))
		if err != nil {
			return 0, fmt.Errorf("error marshalling data before applying JSON logic: %v", err)
		}
		result.Reset()
		if err := jsonlogic.Apply(strings.NewReader(rule.Logic), bytes.NewReader(data), &result); err != nil {
			return 0, fmt.Errorf("error applying JSON logic: %v", err)
		}
		if strings.TrimSpace(result.String()) != "true" {
			failed++
		}
	}
	return failed, nil
}
