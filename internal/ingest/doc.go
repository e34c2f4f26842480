// Package ingest fetches a show's source feeds and turns their newest entries
// into ledger items.
//
// Feeds are parsed with gofeed. Each entry link is fetched and reduced to
// readable text with go-readability; when that text is too short the entry
// summary, stripped of markup with bluemonday, is used instead. Entries with
// neither are skipped. A failing feed is logged and skipped so one broken
// source does not starve the rest of the show.
package ingest
