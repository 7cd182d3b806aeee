// Package ir provides the canonical intermediate representation for pitwall.
//
// This package contains the entity descriptor (the configuration table that
// drives the generic load engine), typed scalar values, their canonical
// encoding and the content hash. All other internal packages import ir; ir
// imports nothing internal.
//
// Key design constraints:
//   - NO float values: floats are converted to canonical decimal strings
//   - Strings are NFC normalized before they are hashed or stored
//   - Timestamps are UTC and rendered with a fixed microsecond layout
//   - All JSON tags use snake_case
package ir
