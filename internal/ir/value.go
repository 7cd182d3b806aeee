package ir

import (
	"fmt"
	"strconv"
)

// Value is a sealed interface representing a typed attribute value.
// Only Null, String, Int, Bool, Decimal, Date and Timestamp implement it.
// There is no float variant: fractional numbers travel as Decimal.
type Value interface {
	irValue() // Sealed - only these types implement it
}

// Null represents a missing attribute value (SQL NULL).
type Null struct{}

func (Null) irValue() {}

// String is an NFC-normalized text value.
type String string

func (String) irValue() {}

// Int is a 64-bit integer value. Parent surrogate refs are Ints too.
type Int int64

func (Int) irValue() {}

// Bool is a boolean value, stored as 0/1.
type Bool bool

func (Bool) irValue() {}

// Decimal is an exact number in canonical form: no exponent, no trailing
// fractional zeros, "0" for zero.
type Decimal string

func (Decimal) irValue() {}

// Date is a calendar date rendered as YYYY-MM-DD.
type Date string

func (Date) irValue() {}

// Timestamp is a UTC instant rendered with TimeLayout.
type Timestamp string

func (Timestamp) irValue() {}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Param converts a Value to a database/sql parameter.
// Bools are bound as integers so that stored rows compare cleanly.
func Param(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		if val {
			return int64(1)
		}
		return int64(0)
	case Decimal:
		return string(val)
	case Date:
		return string(val)
	case Timestamp:
		return string(val)
	default:
		panic(fmt.Sprintf("ir.Param: unknown Value type %T", v))
	}
}

// Format renders a Value for display (CLI output, golden reports).
func Format(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "null"
	case String:
		return strconv.Quote(string(val))
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Bool:
		return strconv.FormatBool(bool(val))
	case Decimal:
		return string(val)
	case Date:
		return string(val)
	case Timestamp:
		return string(val)
	default:
		return fmt.Sprintf("<%T>", v)
	}
}
