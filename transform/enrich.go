package transform

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/helper"
	"github.com/relloyd/odsync/stream"
	tabledefinition "github.com/relloyd/odsync/table-definition"
	"github.com/relvacode/iso8601"
)

var naiveLayouts = []string{
	constants.TimeFormatDateTime,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	constants.TimeFormatDate,
}

// Enricher adds hashdiff, ts_source and load_ts to extracted batches.
type Enricher struct {
	// TsSourceColumn is the destination-safe name of the modification timestamp column. Empty disables ts_source.
	TsSourceColumn string
	// SourceLocation interprets timestamps that carry no zone. Defaults to UTC.
	SourceLocation *time.Location
	Clock          clockwork.Clock
}

// Normalize returns a copy of b with surrounding whitespace trimmed from string columns.
// Numeric and temporal values keep their native types.
func Normalize(b *stream.Batch) *stream.Batch {
	out := &stream.Batch{Layout: b.Layout, Rows: make([][]interface{}, len(b.Rows))}
	for i, row := range b.Rows {
		nr := make([]interface{}, len(row))
		for idx, v := range row {
			if s, ok := v.(string); ok && b.Layout[idx].Kind == tabledefinition.KindString {
				v = strings.TrimSpace(s)
			}
			nr[idx] = v
		}
		out.Rows[i] = nr
	}
	return out
}

// HashRow returns the 40 character hex SHA-1 of the ordered values.
// Each value is length-prefixed so that neither separators inside values nor nulls can collide.
func HashRow(values []interface{}) string {
	var sb strings.Builder
	for _, v := range values {
		if v == nil {
			sb.WriteString("-1:|")
			continue
		}
		s := helper.GetStringFromInterface(v)
		sb.WriteString(strconv.Itoa(len(s)))
		sb.WriteByte(':')
		sb.WriteString(s)
		sb.WriteByte('|')
	}
	sum := sha1.Sum([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Enrich normalizes b and appends the technical columns.
// hashdiff covers the source columns only, in layout order.
func (e Enricher) Enrich(b *stream.Batch) *stream.Batch {
	clock := e.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	loc := e.SourceLocation
	if loc == nil {
		loc = time.UTC
	}
	n := Normalize(b)
	tsIdx := -1
	if e.TsSourceColumn != "" {
		tsIdx = n.Layout.Index(e.TsSourceColumn)
	}
	loadTs := clock.Now().UTC()
	out := &stream.Batch{Layout: n.Layout.WithTechnicalColumns(), Rows: make([][]interface{}, len(n.Rows))}
	for i, row := range n.Rows {
		var tsSource interface{}
		if tsIdx >= 0 {
			if t, ok := ParseSourceTimestamp(row[tsIdx], loc); ok {
				tsSource = t
			}
		}
		nr := make([]interface{}, 0, len(row)+3)
		nr = append(nr, row...)
		nr = append(nr, HashRow(row), tsSource, loadTs)
		out.Rows[i] = nr
	}
	return out
}

// ParseSourceTimestamp converts a source modification value into UTC.
// Values without a zone are read as wall-clock time in loc. Unparseable values return false.
func ParseSourceTimestamp(v interface{}, loc *time.Location) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return time.Time{}, false
		}
		if x.Location() == time.UTC || x.Location() == time.Local { // drivers hand back naive values in one of these.
			x = time.Date(x.Year(), x.Month(), x.Day(), x.Hour(), x.Minute(), x.Second(), x.Nanosecond(), loc)
		}
		return x.UTC(), true
	case []byte:
		return ParseSourceTimestamp(string(x), loc)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range naiveLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t.UTC(), true
			}
		}
		if t, err := iso8601.ParseString(s); err == nil { // zoned ISO-8601
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
