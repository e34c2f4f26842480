package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"feedcaster/internal/config"
	"feedcaster/internal/dedup"
	"feedcaster/internal/logging"
	"feedcaster/internal/textutil"
	"feedcaster/internal/workflow"
)

// errRunFailed is returned after the summary was printed so main exits
// non-zero without repeating it.
var errRunFailed = errors.New("run finished with failures")

func newRunCommand(ctx *commandContext) *cobra.Command {
	var showIDs []string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch feeds and publish episodes for new items",
		Long: "Fetch every configured feed, then turn each new item into an episode: " +
			"script, speech, stitched audio, upload and feed entry. Items already " +
			"published are never processed twice.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !dryRun {
				if err := cfg.ValidateProviders(); err != nil {
					return err
				}
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return ctx.withStore(func(cfg *config.Config, store *dedup.Store) error {
				if !dryRun {
					imported, err := store.ImportLegacy(runCtx, cfg.Paths.LegacyLedgerPath, dedup.LegacyShowID)
					if err != nil {
						return err
					}
					if imported.Imported > 0 {
						logger.Info("legacy ledger imported",
							logging.String(logging.FieldEventType, "legacy_import"),
							logging.Int("imported", imported.Imported),
							logging.Int("skipped", imported.Skipped),
							logging.String("backup", imported.BackupPath),
						)
					}
				}

				orch := workflow.New(cfg, store, workflow.WithLogger(logger))
				summary, runErr := orch.Run(runCtx, workflow.RunOptions{ShowIDs: showIDs, DryRun: dryRun})
				if len(summary.Shows) > 0 || runErr == nil {
					writeRunSummary(cmd.OutOrStdout(), summary)
				}
				if runErr != nil {
					return runErr
				}
				if summary.Failed() {
					return errRunFailed
				}
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVarP(&showIDs, "show", "s", nil, "Limit the run to this show id (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be processed without claiming or publishing anything")
	return cmd
}

func writeRunSummary(out io.Writer, summary workflow.RunSummary) {
	colorize := shouldColorize(out)
	title := "Run summary"
	if summary.DryRun {
		title = "Dry run"
	}
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(out, line)
	}

	for _, show := range summary.Shows {
		fmt.Fprintln(out, renderStatusLine(show.ShowID, showStatusKind(show), showStatusMessage(show, summary.DryRun), colorize))
		if len(show.Items) == 0 {
			continue
		}
		rows := make([][]string, 0, len(show.Items))
		for _, item := range show.Items {
			rows = append(rows, []string{
				string(item.Outcome),
				truncateCell(item.Title, 48),
				itemDetail(item),
			})
		}
		fmt.Fprint(out, renderTable([]string{"Outcome", "Title", "Detail"}, rows, nil))
	}

	if !summary.DryRun {
		fmt.Fprintf(out, "Published %d, failed %d, skipped %d in %s\n",
			summary.Count(workflow.OutcomePublished),
			summary.Count(workflow.OutcomeFailed),
			summary.Count(workflow.OutcomeSkipped),
			summary.Elapsed().Round(time.Second),
		)
	}
	if summary.Aborted && summary.AbortErr != nil {
		fmt.Fprintln(out, renderStatusLine("run", statusError, "aborted: "+summary.AbortErr.Error(), colorize))
	}
}

func showStatusKind(show workflow.ShowSummary) statusKind {
	switch {
	case show.Err != nil:
		return statusError
	case show.Skipped != "":
		return statusWarn
	case show.Count(workflow.OutcomeFailed) > 0:
		return statusWarn
	case show.IngestErr != nil:
		return statusWarn
	default:
		return statusOK
	}
}

func showStatusMessage(show workflow.ShowSummary, dryRun bool) string {
	if show.Err != nil {
		return fmt.Sprintf("%s: %v", show.Kind, show.Err)
	}
	if show.Skipped != "" {
		return "skipped: " + show.Skipped
	}
	parts := []string{fmt.Sprintf("%d new of %d fetched", show.Ingest.Added, show.Ingest.Entries)}
	if dryRun {
		parts = append(parts, fmt.Sprintf("%d to process", show.Count(workflow.OutcomePlanned)))
	} else {
		parts = append(parts, fmt.Sprintf("%d published", show.Count(workflow.OutcomePublished)))
		if n := show.Count(workflow.OutcomeFailed); n > 0 {
			parts = append(parts, fmt.Sprintf("%d failed", n))
		}
	}
	if show.Reclaimed > 0 {
		parts = append(parts, fmt.Sprintf("%d stale claims reclaimed", show.Reclaimed))
	}
	if show.IngestErr != nil {
		parts = append(parts, "ingest: "+show.IngestErr.Error())
	}
	return strings.Join(parts, ", ")
}

func itemDetail(item workflow.ItemResult) string {
	switch item.Outcome {
	case workflow.OutcomePublished:
		detail := item.Duration.Round(time.Second).String()
		if item.Resumed {
			detail += " (resumed)"
		}
		return detail
	case workflow.OutcomeFailed:
		return fmt.Sprintf("%s: %s", item.Kind, truncateCell(item.Error, 80))
	default:
		return item.Reason
	}
}

func truncateCell(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len([]rune(value)) <= limit {
		return value
	}
	return textutil.Truncate(value, limit-3) + "..."
}
