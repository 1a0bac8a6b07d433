// Package ir provides the canonical value types shared by every stage of the
// Bifrost guard pipeline.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the data model the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Column is an immutable value type compared by (table, column)
//   - Every user-facing failure is a *GuardError with a stable string Code
//   - Canonical JSON (RFC 8785 key order, NFC strings) is the only encoding
//     used for fingerprints and golden reports
package ir
