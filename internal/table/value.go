// Package table provides the tabular batch shared by every pipeline stage.
package table

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the type held by a Value.
type Kind uint8

// Supported value kinds. The order is used when comparing values of different kinds.
const (
	KindNull Kind = iota
	KindNumber
	KindTime
	KindString
	KindBool
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindTime:
		return "time"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "null"
	}
}

// Value is a single typed cell. The zero value is null.
type Value struct {
	when time.Time
	str  string
	num  float64
	kind Kind
	flag bool
}

// Null returns the null value.
func Null() Value {
	return Value{}
}

// Num returns a numeric value. NaN and infinities are stored as null.
func Num(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}
	}

	return Value{kind: KindNumber, num: f}
}

// Str returns a text value.
func Str(s string) Value {
	return Value{kind: KindString, str: s}
}

// Bool returns a boolean value.
func Bool(b bool) Value {
	return Value{kind: KindBool, flag: b}
}

// Time returns a timestamp value. The zero time is stored as null.
func Time(t time.Time) Value {
	if t.IsZero() {
		return Value{}
	}

	return Value{kind: KindTime, when: t}
}

// Of converts a Go value into a Value.
func Of(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case float64:
		return Num(x)
	case float32:
		return Num(float64(x))
	case int:
		return Num(float64(x))
	case int32:
		return Num(float64(x))
	case int64:
		return Num(float64(x))
	case uint:
		return Num(float64(x))
	case uint64:
		return Num(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Str(x.String())
		}

		return Num(f)
	case string:
		return Str(x)
	case []byte:
		return Str(string(x))
	case bool:
		return Bool(x)
	case time.Time:
		return Time(x)
	case *time.Time:
		if x == nil {
			return Null()
		}

		return Time(*x)
	default:
		return Null()
	}
}

// Kind returns the kind of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Float returns the numeric payload and whether the value is a number.
func (v Value) Float() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// Text returns the string payload and whether the value is a string.
func (v Value) Text() (string, bool) {
	return v.str, v.kind == KindString
}

// Flag returns the boolean payload and whether the value is a bool.
func (v Value) Flag() (bool, bool) {
	return v.flag, v.kind == KindBool
}

// When returns the time payload and whether the value is a time.
func (v Value) When() (time.Time, bool) {
	return v.when, v.kind == KindTime
}

// Interface returns the payload as a plain Go value, nil for null.
func (v Value) Interface() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindBool:
		return v.flag
	case KindTime:
		return v.when
	default:
		return nil
	}
}

// String renders the value for display and text export. Null renders empty.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindString:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.flag)
	case KindTime:
		if h, m, s := v.when.Clock(); h == 0 && m == 0 && s == 0 && v.when.Nanosecond() == 0 {
			return v.when.Format(time.DateOnly)
		}

		return v.when.Format(time.RFC3339)
	default:
		return ""
	}
}

// Key returns a grouping key. Numbers and numeric-looking strings share keys
// so identifiers from differently typed sources still join.
func (v Value) Key() string {
	switch v.kind {
	case KindNull:
		return "\x00null"
	case KindString:
		s := strings.TrimSpace(v.str)
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}

		return v.str
	case KindTime:
		return v.when.UTC().Format(time.RFC3339Nano)
	default:
		return v.String()
	}
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}

	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindBool:
		return v.flag == o.flag
	case KindTime:
		return v.when.Equal(o.when)
	default:
		return true
	}
}

// Compare orders two values. Nulls sort after everything else.
func Compare(a, b Value) int {
	switch {
	case a.IsNull() && b.IsNull():
		return 0
	case a.IsNull():
		return 1
	case b.IsNull():
		return -1
	}

	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}

		return 1
	}

	switch a.kind {
	case KindNumber:
		return cmpOrdered(a.num, b.num)
	case KindTime:
		return a.when.Compare(b.when)
	case KindBool:
		switch {
		case a.flag == b.flag:
			return 0
		case !a.flag:
			return -1
		default:
			return 1
		}
	default:
		return strings.Compare(a.str, b.str)
	}
}

func cmpOrdered(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
