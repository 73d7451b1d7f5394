package tabledefinition

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/odsync/helper"
	"github.com/spf13/cast"
)

// Canonical converts a driver value into the in-memory representation for col.Kind.
// Strings are not trimmed or truncated here.
func Canonical(col Column, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok { // drivers return text and decimals as bytes.
		v = string(b)
	}
	var (
		out interface{}
		err error
	)
	switch col.Kind {
	case KindString:
		out, err = cast.ToStringE(v)
	case KindInt:
		out, err = toInt64(v)
	case KindDecimal:
		out, err = toDecimalText(v)
	case KindFloat:
		out, err = cast.ToFloat64E(v)
	case KindBool:
		out, err = toBool(v)
	case KindDate:
		var t time.Time
		t, err = cast.ToTimeE(v)
		out = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	case KindDateTime:
		out, err = cast.ToTimeE(v)
	default:
		out = v
	}
	if err != nil {
		return nil, errors.Wrapf(err, "column %v: cannot convert %T to %v", col.Name, v, col.Kind)
	}
	return out, nil
}

// Coerce converts v for insertion into col, truncating strings to the declared width.
func Coerce(col Column, v interface{}) (interface{}, error) {
	out, err := Canonical(col, v)
	if err != nil || out == nil {
		return out, err
	}
	if s, ok := out.(string); ok && col.Kind == KindString && col.MaxLen > 0 {
		out = helper.Truncate(s, col.MaxLen)
	}
	return out, nil
}

// CoerceRow applies Coerce to every value in row using layout l.
func CoerceRow(l Layout, row []interface{}) ([]interface{}, error) {
	if len(row) != len(l) {
		return nil, fmt.Errorf("row has %v values but layout has %v columns", len(row), len(l))
	}
	out := make([]interface{}, len(row))
	for i, c := range l {
		v, err := Coerce(c, row[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func toInt64(v interface{}) (int64, error) {
	if s, ok := v.(string); ok { // "12.0" is a valid integer in legacy exports.
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		if f != float64(int64(f)) {
			return 0, fmt.Errorf("%q is not an integer", s)
		}
		return int64(f), nil
	}
	return cast.ToInt64E(v)
}

func toDecimalText(v interface{}) (string, error) {
	switch x := v.(type) {
	case string:
		if _, err := strconv.ParseFloat(x, 64); err != nil {
			return "", err
		}
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	}
	i, err := cast.ToInt64E(v)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(i, 10), nil
}

func toBool(v interface{}) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return cast.ToBoolE(strings.TrimSpace(x))
	}
	i, err := cast.ToInt64E(v)
	return i != 0, err
}
