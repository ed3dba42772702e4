package entity

import (
	"sort"
	"strconv"
	"strings"
)

// Entry is one member of a data set. A nil Value with Removed set marks a
// deletion; a DataSet value is a table row.
type Entry struct {
	Value   Value
	Removed bool
}

// DataSet is a set of entries keyed by name.
type DataSet map[string]Entry

// Same reports whether two entries carry the same value and removal state.
func (e Entry) Same(o Entry) bool {
	if e.Removed != o.Removed {
		return false
	}
	ds, ok := e.Value.(DataSet)
	ods, ook := o.Value.(DataSet)
	if ok || ook {
		return ok && ook && ds.Equal(ods)
	}
	return e.Value == o.Value
}

// Equal reports whether two data sets have the same entries.
func (ds DataSet) Equal(o DataSet) bool {
	if len(ds) != len(o) {
		return false
	}
	for k, e := range ds {
		oe, ok := o[k]
		if !ok || !e.Same(oe) {
			return false
		}
	}
	return true
}

// Copy returns a shallow copy of the set.
func (ds DataSet) Copy() DataSet {
	n := make(DataSet, len(ds))
	for k, e := range ds {
		n[k] = e
	}
	return n
}

// Merge applies an update to a base set: changed entries replace existing
// ones, removed entries are deleted. The receiver is unchanged. Applying
// the same update twice yields the same result as applying it once.
func (ds DataSet) Merge(update DataSet) DataSet {
	merged := ds.Copy()
	for k, e := range update {
		if e.Removed {
			delete(merged, k)
		} else {
			merged[k] = e
		}
	}
	return merged
}

// String renders the set in SHDR key=value form with sorted keys.
func (ds DataSet) String() string {
	keys := make([]string, 0, len(ds))
	for k := range ds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		e := ds[k]
		b.WriteString(k)
		if e.Removed {
			continue
		}
		b.WriteByte('=')
		switch v := e.Value.(type) {
		case DataSet:
			b.WriteByte('{')
			b.WriteString(v.String())
			b.WriteByte('}')
		case string:
			if strings.ContainsAny(v, " \t=") {
				b.WriteByte('\'')
				b.WriteString(v)
				b.WriteByte('\'')
			} else {
				b.WriteString(v)
			}
		case int64:
			b.WriteString(strconv.FormatInt(v, 10))
		case float64:
			b.WriteString(FormatDouble(v))
		}
	}
	return b.String()
}

// ParseDataSet parses the SHDR data-set token form: space-separated
// key=value pairs. A bare key (or key=) marks a removal; values may be
// quoted with single or double quotes, and for tables a {...} value parses
// as a nested row.
func ParseDataSet(s string, table bool) (DataSet, error) {
	ds := make(DataSet)
	i := 0
	n := len(s)
	for i < n {
		for i < n && isSpace(s[i]) {
			i++
		}
		if i >= n {
			break
		}
		// key runs to '=' or whitespace
		ks := i
		for i < n && s[i] != '=' && !isSpace(s[i]) {
			i++
		}
		key := s[ks:i]
		if key == "" {
			return nil, &PropertyError{Property: "VALUE", Reason: "empty data set key"}
		}
		if i >= n || isSpace(s[i]) {
			ds[key] = Entry{Removed: true}
			continue
		}
		i++ // consume '='
		if i >= n || isSpace(s[i]) {
			ds[key] = Entry{Removed: true}
			continue
		}
		switch s[i] {
		case '{':
			depth := 0
			vs := i + 1
			for ; i < n; i++ {
				if s[i] == '{' {
					depth++
				} else if s[i] == '}' {
					depth--
					if depth == 0 {
						break
					}
				}
			}
			if depth != 0 {
				return nil, &PropertyError{Property: key, Reason: "unterminated row"}
			}
			inner := s[vs:i]
			i++
			if table {
				row, err := ParseDataSet(inner, false)
				if err != nil {
					return nil, err
				}
				ds[key] = Entry{Value: row}
			} else {
				ds[key] = Entry{Value: inner}
			}
		case '\'', '"':
			q := s[i]
			i++
			var b strings.Builder
			closed := false
			for i < n {
				if s[i] == '\\' && i+1 < n {
					b.WriteByte(s[i+1])
					i += 2
					continue
				}
				if s[i] == q {
					closed = true
					i++
					break
				}
				b.WriteByte(s[i])
				i++
			}
			if !closed {
				return nil, &PropertyError{Property: key, Reason: "unterminated quote"}
			}
			ds[key] = Entry{Value: b.String()}
		default:
			vs := i
			for i < n && !isSpace(s[i]) {
				i++
			}
			ds[key] = Entry{Value: coerceScalar(s[vs:i])}
		}
	}
	return ds, nil
}

// coerceScalar narrows a textual value to int64 or float64 when it parses
// cleanly, otherwise leaves it a string.
func coerceScalar(s string) Value {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return s
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
