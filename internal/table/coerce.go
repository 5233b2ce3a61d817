package table

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// timeLayouts are tried in order when parsing text into timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
	"01/02/2006",
	"2006/01/02",
	"Jan 2, 2006",
	"02-Jan-2006",
}

// ToNumber coerces a value to a number. Anything unparseable becomes null.
func ToNumber(v Value) Value {
	switch v.kind {
	case KindNumber:
		return v
	case KindBool:
		if v.flag {
			return Num(1)
		}

		return Num(0)
	case KindString:
		s := strings.TrimSpace(v.str)
		if s == "" {
			return Null()
		}

		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Null()
		}

		return Num(f)
	default:
		return Null()
	}
}

// ToTime coerces a value to a timestamp. Anything unparseable becomes null.
func ToTime(v Value) Value {
	switch v.kind {
	case KindTime:
		return v
	case KindString:
		s := strings.TrimSpace(v.str)
		if s == "" {
			return Null()
		}

		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return Time(t)
			}
		}

		return Null()
	default:
		return Null()
	}
}

// Sum adds the non-NaN entries.
func Sum(xs []float64) float64 {
	total := 0.0

	for _, x := range xs {
		if !math.IsNaN(x) {
			total += x
		}
	}

	return total
}

// Count returns the number of non-NaN entries.
func Count(xs []float64) int {
	n := 0

	for _, x := range xs {
		if !math.IsNaN(x) {
			n++
		}
	}

	return n
}

// Mean averages the non-NaN entries. It returns NaN when there are none.
func Mean(xs []float64) float64 {
	n := Count(xs)
	if n == 0 {
		return math.NaN()
	}

	return Sum(xs) / float64(n)
}

// Median returns the 0.5 quantile of the non-NaN entries.
func Median(xs []float64) float64 {
	return Quantile(xs, 0.5)
}

// Quantile returns the q-th quantile of the non-NaN entries using linear
// interpolation between closest ranks. It returns NaN when there are none.
func Quantile(xs []float64, q float64) float64 {
	clean := make([]float64, 0, len(xs))

	for _, x := range xs {
		if !math.IsNaN(x) {
			clean = append(clean, x)
		}
	}

	if len(clean) == 0 {
		return math.NaN()
	}

	sort.Float64s(clean)

	pos := q * float64(len(clean)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))

	if lo == hi {
		return clean[lo]
	}

	frac := pos - float64(lo)

	return clean[lo] + (clean[hi]-clean[lo])*frac
}

// Min returns the smallest non-NaN entry, NaN when there are none.
func Min(xs []float64) float64 {
	out := math.NaN()

	for _, x := range xs {
		if !math.IsNaN(x) && (math.IsNaN(out) || x < out) {
			out = x
		}
	}

	return out
}

// Max returns the largest non-NaN entry, NaN when there are none.
func Max(xs []float64) float64 {
	out := math.NaN()

	for _, x := range xs {
		if !math.IsNaN(x) && (math.IsNaN(out) || x > out) {
			out = x
		}
	}

	return out
}

// Round rounds half away from zero to the given number of decimal places.
// NaN and infinities are returned unchanged.
func Round(x float64, places int32) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}

	f, _ := decimal.NewFromFloat(x).Round(places).Float64()

	return f
}

// Ratio divides a by b. A zero denominator or a non-finite result yields 0.
func Ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}

	r := a / b
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}

	return r
}
