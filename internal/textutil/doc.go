// Package textutil provides filename sanitization and truncation helpers for
// episode artifacts and lock files.
package textutil
