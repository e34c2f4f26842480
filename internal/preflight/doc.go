// Package preflight provides readiness checks for the directories, binaries
// and remote endpoints a feedcaster run depends on.
//
// The CLI "feedcaster check" command prints every result. Checks never
// mutate state; the generation check sends one tiny completion request.
package preflight
