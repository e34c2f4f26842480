// Package feeddoc reads and writes a show's podcast feed document.
//
// The document is RSS 2.0 with the iTunes namespace. Channel metadata is
// regenerated from show configuration on every write, while existing item
// elements are carried over verbatim and in order so appending an episode
// never rewrites history. Items are keyed by guid; appending a guid that is
// already present is a no-op.
package feeddoc
