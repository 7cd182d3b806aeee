package ir

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/text/unicode/norm"
)

// Coerce converts a raw driver value into the typed Value for an attribute.
// Raw values are whatever database/sql hands back from SQLite: int64,
// float64, string, []byte, bool, time.Time or nil.
//
// Coerce is the single normalization point: a source value and the same
// value read back from a target table coerce to identical Values, which is
// what makes key matching and hash comparison stable across runs.
func Coerce(t AttrType, raw any) (Value, error) {
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	if raw == nil {
		return Null{}, nil
	}

	switch t {
	case TypeString:
		return coerceString(raw)
	case TypeInt, TypeRef:
		return coerceInt(raw)
	case TypeBool:
		return coerceBool(raw)
	case TypeDecimal:
		return coerceDecimal(raw)
	case TypeDate:
		return coerceDate(raw)
	case TypeTimestamp:
		return coerceTimestamp(raw)
	default:
		return nil, fmt.Errorf("unknown attribute type %q", t)
	}
}

func coerceString(raw any) (Value, error) {
	switch v := raw.(type) {
	case string:
		return String(norm.NFC.String(v)), nil
	case int64:
		return String(strconv.FormatInt(v, 10)), nil
	case float64:
		d, err := decimalFromFloat(v)
		if err != nil {
			return nil, err
		}
		return String(d), nil
	case bool:
		return String(strconv.FormatBool(v)), nil
	case time.Time:
		return String(FormatTime(v)), nil
	default:
		return nil, fmt.Errorf("cannot use %T as string", raw)
	}
}

func coerceInt(raw any) (Value, error) {
	switch v := raw.(type) {
	case int64:
		return Int(v), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, fmt.Errorf("cannot use non-integral %v as int", v)
		}
		if v < math.MinInt64 || v >= 1<<63 {
			return nil, fmt.Errorf("cannot use %v as int: out of int64 range", v)
		}
		return Int(int64(v)), nil
	case bool:
		if v {
			return Int(1), nil
		}
		return Int(0), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot use %q as int: %w", v, err)
		}
		return Int(n), nil
	default:
		return nil, fmt.Errorf("cannot use %T as int", raw)
	}
}

func coerceBool(raw any) (Value, error) {
	switch v := raw.(type) {
	case bool:
		return Bool(v), nil
	case int64:
		return Bool(v != 0), nil
	case float64:
		return Bool(v != 0), nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("cannot use %q as bool: %w", v, err)
		}
		return Bool(b), nil
	default:
		return nil, fmt.Errorf("cannot use %T as bool", raw)
	}
}

func coerceDecimal(raw any) (Value, error) {
	switch v := raw.(type) {
	case int64:
		return Decimal(strconv.FormatInt(v, 10)), nil
	case float64:
		d, err := decimalFromFloat(v)
		if err != nil {
			return nil, err
		}
		return Decimal(d), nil
	case string:
		d, _, err := apd.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("cannot use %q as decimal: %w", v, err)
		}
		return Decimal(canonicalDecimal(d)), nil
	default:
		return nil, fmt.Errorf("cannot use %T as decimal", raw)
	}
}

func coerceDate(raw any) (Value, error) {
	switch v := raw.(type) {
	case time.Time:
		return Date(v.UTC().Format(DateLayout)), nil
	case string:
		t, err := ParseTime(v)
		if err != nil {
			return nil, fmt.Errorf("cannot use %q as date: %w", v, err)
		}
		return Date(t.Format(DateLayout)), nil
	default:
		return nil, fmt.Errorf("cannot use %T as date", raw)
	}
}

func coerceTimestamp(raw any) (Value, error) {
	switch v := raw.(type) {
	case time.Time:
		return Timestamp(FormatTime(v)), nil
	case string:
		t, err := ParseTime(v)
		if err != nil {
			return nil, fmt.Errorf("cannot use %q as timestamp: %w", v, err)
		}
		return Timestamp(FormatTime(t)), nil
	default:
		return nil, fmt.Errorf("cannot use %T as timestamp", raw)
	}
}

func decimalFromFloat(f float64) (string, error) {
	var d apd.Decimal
	if _, err := d.SetFloat64(f); err != nil {
		return "", fmt.Errorf("cannot use %v as decimal: %w", f, err)
	}
	return canonicalDecimal(&d), nil
}

// canonicalDecimal strips trailing zeros and renders without an exponent.
func canonicalDecimal(d *apd.Decimal) string {
	var r apd.Decimal
	r.Reduce(d)
	if r.IsZero() {
		return "0"
	}
	return r.Text('f')
}
