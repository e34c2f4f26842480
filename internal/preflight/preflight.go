package preflight

import (
	"context"
	"fmt"

	"feedcaster/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every readiness check for cfg. gen may be nil, in which case
// the generation check reports the missing client.
func RunAll(ctx context.Context, cfg *config.Config, gen HealthChecker) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results,
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	)

	for _, show := range cfg.Shows {
		if show.Storage.Backend == config.BackendLocal {
			results = append(results, CheckCreatableDirectory(fmt.Sprintf("Show %s storage", show.ID), show.Storage.Dir))
		}
	}

	for _, st := range CheckSystemDeps(cfg) {
		results = append(results, Result{Name: st.Name, Passed: st.Available, Detail: depDetail(st.Command, st.Detail)})
	}

	results = append(results, CheckSpeech(cfg), CheckGeneration(ctx, cfg, gen))
	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}

func depDetail(command, detail string) string {
	if detail == "" {
		return command
	}
	return detail
}
