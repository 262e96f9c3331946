package parser

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind tags a cell value so downstream code can branch without reflection.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindOther
)

// Value is one cell of a row. CSV cells are always KindString; JSON cells
// carry the decoded scalar kind, with nested objects/arrays collapsed to
// KindOther holding their raw text.
type Value struct {
	Kind Kind
	Str  string  // KindString text; raw literal for KindNumber and KindOther
	Num  float64 // KindNumber
	Bool bool    // KindBool
}

// Field is a named cell.
type Field struct {
	Name  string
	Value Value
}

// Row is an ordered record of named cells. Field order follows the source
// document (CSV header order, JSON object key order).
type Row struct {
	Fields []Field
}

// IsNull reports whether the value counts as null: the null sentinel or a
// string of only whitespace.
func (v Value) IsNull() bool {
	switch v.Kind {
	case KindNull:
		return true
	case KindString:
		return strings.TrimSpace(v.Str) == ""
	default:
		return false
	}
}

// Numeric coerces the value to a finite float64. Booleans are not numeric;
// strings qualify only when they parse as integer or float literals.
func (v Value) Numeric() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		if math.IsInf(v.Num, 0) || math.IsNaN(v.Num) {
			return 0, false
		}
		return v.Num, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func (v Value) canonical() string {
	switch v.Kind {
	case KindNull:
		return "z"
	case KindString:
		return "s:" + v.Str
	case KindNumber:
		return "n:" + strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindBool:
		return "b:" + strconv.FormatBool(v.Bool)
	default:
		return "o:" + v.Str
	}
}

// CanonicalKey serializes the row with field names sorted so that records
// differing only in key order compare equal for duplicate counting.
func (r Row) CanonicalKey() string {
	fields := make([]Field, len(r.Fields))
	copy(fields, r.Fields)
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('\x1e')
		}
		b.WriteString(strconv.Quote(f.Name))
		b.WriteByte('=')
		b.WriteString(f.Value.canonical())
	}
	return b.String()
}
