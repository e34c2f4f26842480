package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"feedcaster/internal/ingest"
	"feedcaster/internal/services"
	"feedcaster/internal/workflow"
)

func TestWriteRunSummary(t *testing.T) {
	started := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	summary := workflow.RunSummary{
		Started:  started,
		Finished: started.Add(95 * time.Second),
		Shows: []workflow.ShowSummary{
			{
				ShowID: "tech",
				Ingest: ingest.Result{Entries: 4, Added: 2},
				Items: []workflow.ItemResult{
					{GUID: "a", Title: "Chips get faster", Outcome: workflow.OutcomePublished, Duration: 312 * time.Second, Resumed: true},
					{GUID: "b", Title: "Rust in the kernel", Outcome: workflow.OutcomeFailed, Kind: services.KindSynthesis, Error: "voice rejected"},
				},
			},
			{ShowID: "news", Skipped: "locked by another run"},
			{ShowID: "sports", Kind: services.KindConfiguration, Err: errors.New("storage backend unset")},
		},
	}

	var buf bytes.Buffer
	writeRunSummary(&buf, summary)
	out := buf.String()

	for _, want := range []string{
		"== Run summary ==",
		"[WARN] 2 new of 4 fetched, 1 published, 1 failed",
		"5m12s (resumed)",
		"synthesis: voice rejected",
		"[WARN] skipped: locked by another run",
		"[ERROR] configuration: storage backend unset",
		"Published 1, failed 1, skipped 0 in 1m35s",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("summary written to a buffer must not be colorized")
	}
}

func TestWriteRunSummaryDryRun(t *testing.T) {
	summary := workflow.RunSummary{
		DryRun: true,
		Shows: []workflow.ShowSummary{{
			ShowID: "tech",
			Ingest: ingest.Result{Entries: 3, Added: 1},
			Items: []workflow.ItemResult{
				{GUID: "a", Title: "New article", Outcome: workflow.OutcomePlanned, Reason: "new"},
			},
		}},
	}

	var buf bytes.Buffer
	writeRunSummary(&buf, summary)
	out := buf.String()
	if !strings.Contains(out, "== Dry run ==") || !strings.Contains(out, "1 to process") {
		t.Fatalf("unexpected dry-run summary:\n%s", out)
	}
	if strings.Contains(out, "Published") {
		t.Fatalf("dry run must not print publish totals:\n%s", out)
	}
}

func TestTruncateCell(t *testing.T) {
	if got := truncateCell("short", 10); got != "short" {
		t.Fatalf("truncateCell short = %q", got)
	}
	if got := truncateCell("abcdefghijklmnop", 10); got != "abcdefg..." {
		t.Fatalf("truncateCell long = %q", got)
	}
}
