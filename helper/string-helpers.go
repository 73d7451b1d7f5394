package helper

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	om "github.com/cevaris/ordered_map"
)

// Truncate returns s cut to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Convert a string of the form, 'f1,f2,f3...' into a slice of string values.
// 1) Split on comma.
// 2) Remove leading and trailing spaces.
// 3) Drop empty tokens.
func CsvToStringSliceTrimSpaces(s string) []string {
	tokens := strings.Split(s, ",")
	retval := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			retval = append(retval, t)
		}
	}
	return retval
}

// StringSliceToOrderedMap adds each value in s to an ordered map with key and value set to the value in s.
func StringSliceToOrderedMap(s []string) *om.OrderedMap {
	retval := om.NewOrderedMap()
	for _, v := range s {
		retval.Set(v, v)
	}
	return retval
}

// OrderedMapKeys returns the string keys of m in insertion order.
func OrderedMapKeys(m *om.OrderedMap) []string {
	retval := make([]string, 0, m.Len())
	iter := m.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		retval = append(retval, kv.Key.(string))
	}
	return retval
}

// QuoteSourceIdentifier double-quotes legacy column names that contain a dash.
func QuoteSourceIdentifier(name string) string {
	if strings.Contains(name, "-") && !strings.HasPrefix(name, `"`) {
		return fmt.Sprintf("%q", name)
	}
	return name
}

// SafeColumnName converts a source column name into a warehouse-safe identifier.
func SafeColumnName(name string) string {
	return strings.ReplaceAll(strings.Trim(strings.TrimSpace(name), `"`), "-", "_")
}

// QuoteIdentifier wraps a SQL Server identifier in brackets.
func QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// QuoteSchemaTable returns [schema].[table].
func QuoteSchemaTable(schema, table string) string {
	if schema == "" {
		return QuoteIdentifier(table)
	}
	return QuoteIdentifier(schema) + "." + QuoteIdentifier(table)
}

// SplitSchemaTable splits "schema.table" using defaultSchema when no schema is given.
func SplitSchemaTable(s string, defaultSchema string) (schema string, table string) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "."); i >= 0 {
		return s[:i], s[i+1:]
	}
	return defaultSchema, s
}

// GetStringFromInterface will convert interface{} value to a string.
// Times are rendered in UTC with nanosecond precision.
func GetStringFromInterface(input interface{}) string {
	switch v := input.(type) {
	case nil:
		return ""
	case string:
		return v
	case []uint8: // github.com/alexbrainman/odbc returns some values as bytes.
		return string(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int32, int16, int8, uint8, uint16, uint32, uint64, uint:
		return fmt.Sprintf("%d", v)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32) // use 'f' to preserve all decimal points without an exponent.
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}
