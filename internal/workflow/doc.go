// Package workflow runs the production pipeline for every configured show.
//
// The Orchestrator walks shows one at a time. For each show it takes the
// per-show lock, builds the show's collaborators, ingests its feeds, and then
// carries every pending item through claim, compose, synthesize, stitch,
// upload and publish. Items whose claim finds an uploaded artifact resume at
// the feed step without new synthesis.
//
// Failures are contained at the narrowest level that is safe: an item failure
// is recorded in the ledger and the loop continues, a configuration failure
// skips the rest of that show, and a ledger failure aborts the run because
// nothing further could be recorded reliably. Every run produces a RunSummary
// whose Failed method drives the CLI exit status.
package workflow
