// Package services defines shared utilities consumed by the pipeline stages
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp show ids, item guids, stage names, and
//     correlation identifiers for logging.
//   - The error taxonomy (service, script parse, synthesis, publish,
//     configuration, store) plus the Wrap helper and KindOf classifier used
//     when recording failed ledger records.
//   - RetryPolicy, the exponential backoff loop shared by every provider and
//     storage call.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
