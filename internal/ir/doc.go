// Package ir provides the value model and declarative representation types
// for chartflow.
//
// This package contains the foundational types only: values, rows, tables,
// compiled chart declarations, canonical JSON and content hashes. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Value is a sealed interface (Null, String, Number, Bool, List, Object)
//   - A missing field is absent from the Row map; Null is an explicit value
//   - Canonical JSON (RFC 8785 key order, NFC strings) is the only encoding
//     used for hashes and golden snapshots
//   - All JSON tags use snake_case
package ir
