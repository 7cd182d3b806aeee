package ir

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainRow = "pitwall/row/v" + HashVersion
)

// HashLength is the hex length of a row hash (SHA-384).
const HashLength = 96

// hashWithDomain computes a SHA-384 hash with domain separation.
// Format: SHA384(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha512.New384()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RowHash computes the content hash over the hash attributes of a row,
// in the entity's declared hash order.
func RowHash(values []Value) (string, error) {
	canonical, err := MarshalCanonical(values)
	if err != nil {
		return "", fmt.Errorf("RowHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRow, canonical), nil
}

// KeyOf returns the identity string of a natural key tuple. Two tuples have
// the same identity exactly when their canonical encodings match.
func KeyOf(values []Value) (string, error) {
	canonical, err := MarshalCanonical(values)
	if err != nil {
		return "", fmt.Errorf("KeyOf: failed to marshal: %w", err)
	}
	return string(canonical), nil
}

// MustRowHash is like RowHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRowHash(values []Value) string {
	h, err := RowHash(values)
	if err != nil {
		panic(err)
	}
	return h
}
