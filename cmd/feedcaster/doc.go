// Package main hosts the feedcaster CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration (and any .env files next to it),
// builds the run logger, opens the ledger, and hands off to the workflow
// orchestrator for `run`. The remaining commands inspect and repair the
// ledger, scaffold and validate configuration, and check that the external
// tools and providers a run needs are reachable.
//
// Keep this package thin: behavior belongs in the internal packages and is
// only surfaced here through commands and flags.
package main
