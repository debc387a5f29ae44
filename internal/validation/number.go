package validation

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// NumberState tags how an optional numeric field was supplied.
type NumberState int

const (
	NumberAbsent NumberState = iota
	NumberPresent
	NumberInvalid
)

// Integral values must lie in [-2^63, 2^63) to fit an int64.
const (
	minInt64Float = -(1 << 63)
	maxInt64Float = 1 << 63
)

// Number is an optional numeric field resolved once at the request boundary.
// JSON numbers and numeric strings are both accepted as present values.
type Number struct {
	State   NumberState
	Value   float64
	Int     int64
	Integer bool
}

// ParseNumber resolves raw into a Number. Integer fields only accept integral
// values that fit an int64; booleans, objects and arrays are always invalid.
func ParseNumber(raw any, integer bool) Number {
	n := Number{Integer: integer}
	switch v := raw.(type) {
	case nil:
		n.State = NumberAbsent
		return n
	case float64:
		n.Value = v
	case float32:
		n.Value = float64(v)
	case int:
		return n.exact(int64(v))
	case int64:
		return n.exact(v)
	case json.Number:
		if integer {
			if i, err := v.Int64(); err == nil {
				return n.exact(i)
			}
		}
		f, err := v.Float64()
		if err != nil {
			n.State = NumberInvalid
			return n
		}
		n.Value = f
	case string:
		s := strings.TrimSpace(v)
		if integer {
			i, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				n.State = NumberInvalid
				return n
			}
			return n.exact(i)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			n.State = NumberInvalid
			return n
		}
		n.Value = f
	default:
		n.State = NumberInvalid
		return n
	}
	if math.IsNaN(n.Value) || math.IsInf(n.Value, 0) {
		n.State = NumberInvalid
		return n
	}
	if integer {
		if n.Value != math.Trunc(n.Value) || n.Value < minInt64Float || n.Value >= maxInt64Float {
			n.State = NumberInvalid
			return n
		}
		n.Int = int64(n.Value)
	}
	n.State = NumberPresent
	return n
}

func (n Number) exact(i int64) Number {
	n.Int = i
	n.Value = float64(i)
	n.State = NumberPresent
	return n
}

// Provided reports whether the field carried a usable value.
func (n Number) Provided() bool {
	return n.State == NumberPresent
}

// JSONValue renders the number for a normalized payload: nil when absent,
// int64 for integer fields and float64 otherwise.
func (n Number) JSONValue() any {
	if !n.Provided() {
		return nil
	}
	if n.Integer {
		return n.Int
	}
	return n.Value
}

// CheckNumber resolves data[field] and applies the type and range rules for
// optional non-negative amounts and counts.
func CheckNumber(data map[string]any, field string, integer bool) (Number, error) {
	n := ParseNumber(data[field], integer)
	switch {
	case n.State == NumberInvalid && integer:
		return n, FieldFail(field, field+" must be a valid integer")
	case n.State == NumberInvalid:
		return n, FieldFail(field, field+" must be a valid number")
	case n.Provided() && n.Value < 0:
		return n, FieldFail(field, field+" must be non-negative")
	}
	return n, nil
}
