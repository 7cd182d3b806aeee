package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces the canonical JSON array for an ordered tuple
// of values. It is the ONLY serialization used for content hashes and
// natural-key identity.
//
// Encoding rules:
//  1. Strings are NFC normalized and never HTML-escaped
//  2. Null encodes as null
//  3. Bools encode as true/false, Ints as bare integers
//  4. Decimal, Date and Timestamp encode as JSON strings of their canonical form
//
// Attribute order is fixed by the caller, so element position carries the
// attribute identity and the type of each position never varies.
func MarshalCanonical(values []Value) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := marshalCanonicalValue(v)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalCanonicalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case String:
		return marshalCanonicalString(string(val))
	case Int:
		return []byte(strconv.FormatInt(int64(val), 10)), nil
	case Bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case Decimal:
		return marshalCanonicalString(string(val))
	case Date:
		return marshalCanonicalString(string(val))
	case Timestamp:
		return marshalCanonicalString(string(val))
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// marshalCanonicalString produces a JSON string with NFC normalization and
// without HTML escaping.
func marshalCanonicalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
