// Package dedup is the durable ledger that keeps feedcaster from producing an
// episode twice.
//
// Every (show, item guid) pair moves through in_progress, uploaded, done and
// failed. Claim is a single conditional upsert so two concurrent runs can
// never both win the same item, and a record only reaches done after its
// episode has been appended to the show feed. The uploaded state remembers
// the published artifact so a run that crashed between upload and feed update
// resumes at the feed step instead of paying for synthesis again.
//
// The store also keeps the discovered items themselves so pending work
// survives restarts and can be listed oldest first. Every failure surfaced by
// this package is tagged with services.ErrStore; callers treat that as fatal
// for the run.
package dedup
