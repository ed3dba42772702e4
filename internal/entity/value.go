// Package entity implements the tagged-variant value model that flows
// through the ingestion pipeline: entities with named properties, data
// sets, and the factory machinery that validates and converts them.
package entity

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Value holds one of: nil, bool, int64, float64, string, time.Time,
// Vector, DataSet, *Entity, or EntityList.
type Value = any

// Vector is an ordered sequence of doubles (time series, 3D samples).
type Vector []float64

// EntityList is an ordered list of child entities.
type EntityList []*Entity

// Kind discriminates the variants of Value.
type Kind int

const (
	KindNone Kind = iota
	KindBool
	KindInteger
	KindDouble
	KindString
	KindTimestamp
	KindVector
	KindDataSet
	KindTable
	KindEntity
	KindEntityList
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "NONE"
	case KindBool:
		return "BOOL"
	case KindInteger:
		return "INTEGER"
	case KindDouble:
		return "DOUBLE"
	case KindString:
		return "STRING"
	case KindTimestamp:
		return "TIMESTAMP"
	case KindVector:
		return "VECTOR"
	case KindDataSet:
		return "DATA_SET"
	case KindTable:
		return "TABLE"
	case KindEntity:
		return "ENTITY"
	case KindEntityList:
		return "ENTITY_LIST"
	}
	return "UNKNOWN"
}

// KindOf reports the runtime kind of a value.
func KindOf(v Value) Kind {
	switch v.(type) {
	case nil:
		return KindNone
	case bool:
		return KindBool
	case int64, int, int32:
		return KindInteger
	case float64, float32:
		return KindDouble
	case string:
		return KindString
	case time.Time:
		return KindTimestamp
	case Vector:
		return KindVector
	case DataSet:
		return KindDataSet
	case *Entity:
		return KindEntity
	case EntityList:
		return KindEntityList
	}
	return KindNone
}

// Convert coerces v to kind k. Entities never convert to scalars, vectors
// never convert to entities, and entity lists only convert to entity lists.
func Convert(v Value, k Kind) (Value, error) {
	if KindOf(v) == k || (k == KindTable && KindOf(v) == KindDataSet) {
		return normalize(v), nil
	}

	switch k {
	case KindString:
		return toString(v)
	case KindInteger:
		return toInteger(v)
	case KindDouble:
		return toDouble(v)
	case KindBool:
		return toBool(v)
	case KindTimestamp:
		return toTimestamp(v)
	case KindVector:
		return toVector(v)
	case KindDataSet:
		return toDataSet(v, false)
	case KindTable:
		return toDataSet(v, true)
	case KindEntity, KindEntityList:
		return nil, &PropertyConversionError{From: KindOf(v), To: k}
	}
	return nil, &PropertyConversionError{From: KindOf(v), To: k}
}

// normalize widens the supported integer and float aliases.
func normalize(v Value) Value {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	}
	return v
}

func toString(v Value) (Value, error) {
	switch t := v.(type) {
	case bool:
		return strconv.FormatBool(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case int:
		return strconv.Itoa(t), nil
	case float64:
		return FormatDouble(t), nil
	case time.Time:
		return FormatTimestamp(t), nil
	case Vector:
		parts := make([]string, len(t))
		for i, d := range t {
			parts[i] = FormatDouble(d)
		}
		return strings.Join(parts, " "), nil
	case DataSet:
		return t.String(), nil
	}
	return nil, &PropertyConversionError{From: KindOf(v), To: KindString}
}

func toInteger(v Value) (Value, error) {
	switch t := v.(type) {
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return int64(f), nil
		}
	case float64:
		return int64(t), nil
	case bool:
		if t {
			return int64(1), nil
		}
		return int64(0), nil
	}
	return nil, &PropertyConversionError{From: KindOf(v), To: KindInteger}
}

func toDouble(v Value) (Value, error) {
	switch t := v.(type) {
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f, nil
		}
	case int64:
		return float64(t), nil
	case int:
		return float64(t), nil
	case bool:
		if t {
			return 1.0, nil
		}
		return 0.0, nil
	}
	return nil, &PropertyConversionError{From: KindOf(v), To: KindDouble}
}

func toBool(v Value) (Value, error) {
	switch t := v.(type) {
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "1":
			return true, nil
		case "false", "no", "0":
			return false, nil
		}
	case int64:
		return t != 0, nil
	case float64:
		return t != 0.0, nil
	}
	return nil, &PropertyConversionError{From: KindOf(v), To: KindBool}
}

func toTimestamp(v Value) (Value, error) {
	if s, ok := v.(string); ok {
		if ts, err := ParseTimestamp(s); err == nil {
			return ts, nil
		}
	}
	return nil, &PropertyConversionError{From: KindOf(v), To: KindTimestamp}
}

func toVector(v Value) (Value, error) {
	switch t := v.(type) {
	case string:
		fields := strings.Fields(t)
		vec := make(Vector, 0, len(fields))
		for _, f := range fields {
			d, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, &PropertyConversionError{From: KindString, To: KindVector}
			}
			vec = append(vec, d)
		}
		return vec, nil
	case float64:
		return Vector{t}, nil
	case int64:
		return Vector{float64(t)}, nil
	}
	return nil, &PropertyConversionError{From: KindOf(v), To: KindVector}
}

func toDataSet(v Value, table bool) (Value, error) {
	if s, ok := v.(string); ok {
		return ParseDataSet(s, table)
	}
	return nil, &PropertyConversionError{From: KindOf(v), To: KindDataSet}
}

// FormatDouble renders a double without trailing zeros.
func FormatDouble(d float64) string {
	return strconv.FormatFloat(d, 'f', -1, 64)
}

// FormatTimestamp renders a UTC instant at microsecond resolution with a
// trailing Z, the wire form used throughout MTConnect.
func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format("2006-01-02T15:04:05.000000Z")
}

// ParseTimestamp parses an ISO-8601 instant. The fraction and zone suffix
// are optional; the result is UTC at microsecond resolution.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
	} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC().Truncate(time.Microsecond), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp %q", s)
}
