package workflow

import (
	"time"

	"feedcaster/internal/ingest"
	"feedcaster/internal/services"
)

// Outcome is what happened to one pending item during a run.
type Outcome string

const (
	OutcomePublished Outcome = "published"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomePlanned   Outcome = "planned"
)

// ItemResult reports the processing of one item.
type ItemResult struct {
	GUID     string
	Title    string
	Outcome  Outcome
	Resumed  bool
	Kind     services.ErrorKind
	Error    string
	Reason   string
	URI      string
	Duration time.Duration
}

// ShowSummary reports one show of a run. Err is set when the show stopped
// early; items processed before that remain listed.
type ShowSummary struct {
	ShowID    string
	Name      string
	Items     []ItemResult
	Ingest    ingest.Result
	IngestErr error
	Reclaimed int64
	Skipped   string
	Kind      services.ErrorKind
	Err       error
}

// Count returns the number of items with outcome.
func (s ShowSummary) Count(outcome Outcome) int {
	n := 0
	for _, it := range s.Items {
		if it.Outcome == outcome {
			n++
		}
	}
	return n
}

// Failed reports whether the show stopped early. Item failures are contained
// and recorded in the ledger; they do not fail the show.
func (s ShowSummary) Failed() bool {
	return s.Err != nil
}

// RunSummary reports a whole run.
type RunSummary struct {
	RunID    string
	DryRun   bool
	Started  time.Time
	Finished time.Time
	Shows    []ShowSummary
	Aborted  bool
	AbortErr error
}

// Elapsed is the wall time of the run.
func (r RunSummary) Elapsed() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Count sums items with outcome across shows.
func (r RunSummary) Count(outcome Outcome) int {
	n := 0
	for _, s := range r.Shows {
		n += s.Count(outcome)
	}
	return n
}

// Failed reports whether the run must exit with a failure status.
func (r RunSummary) Failed() bool {
	if r.Aborted {
		return true
	}
	for _, s := range r.Shows {
		if s.Failed() {
			return true
		}
	}
	return false
}
