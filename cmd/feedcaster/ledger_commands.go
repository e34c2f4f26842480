package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"feedcaster/internal/config"
	"feedcaster/internal/dedup"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and repair the processed-item ledger",
	}

	ledgerCmd.AddCommand(newLedgerListCommand(ctx))
	ledgerCmd.AddCommand(newLedgerEpisodesCommand(ctx))
	ledgerCmd.AddCommand(newLedgerRetryCommand(ctx))
	ledgerCmd.AddCommand(newLedgerStatsCommand(ctx))
	ledgerCmd.AddCommand(newLedgerImportLegacyCommand(ctx))

	return ledgerCmd
}

func newLedgerListCommand(ctx *commandContext) *cobra.Command {
	var showID string
	var statusFlags []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List processing records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatusFilters(statusFlags)
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *dedup.Store) error {
				records, err := store.List(cmd.Context(), strings.TrimSpace(showID), statuses...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No ledger records")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					rows = append(rows, []string{
						rec.ShowID,
						rec.GUID,
						string(rec.Status),
						strconv.Itoa(rec.AttemptCount),
						recordError(rec),
						formatStamp(rec.UpdatedAt),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"Show", "GUID", "Status", "Attempts", "Last error", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&showID, "show", "s", "", "Only list records of this show")
	cmd.Flags().StringSliceVar(&statusFlags, "status", nil, "Filter by status (in_progress, uploaded, done, failed)")
	return cmd
}

func newLedgerEpisodesCommand(ctx *commandContext) *cobra.Command {
	var showID string

	cmd := &cobra.Command{
		Use:   "episodes",
		Short: "List published episodes of a show, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *dedup.Store) error {
				ids, err := selectLedgerShows(cfg, showID)
				if err != nil {
					return err
				}
				var rows [][]string
				for _, id := range ids {
					episodes, err := store.Episodes(cmd.Context(), id)
					if err != nil {
						return err
					}
					for _, ep := range episodes {
						rows = append(rows, []string{
							ep.ShowID,
							truncateCell(ep.Title, 48),
							ep.Duration.Round(time.Second).String(),
							formatStamp(ep.PublishedAt),
							ep.URI,
						})
					}
				}
				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintln(out, "No episodes published")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"Show", "Title", "Length", "Published", "URI"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&showID, "show", "s", "", "Show id (default: every configured show)")
	return cmd
}

func newLedgerRetryCommand(ctx *commandContext) *cobra.Command {
	var showID string

	cmd := &cobra.Command{
		Use:   "retry [guid...]",
		Short: "Reset the attempt budget of failed items so the next run retries them",
		RunE: func(cmd *cobra.Command, args []string) error {
			showID = strings.TrimSpace(showID)
			if showID == "" {
				return errors.New("--show is required")
			}
			return ctx.withStore(func(cfg *config.Config, store *dedup.Store) error {
				n, err := store.RetryFailed(cmd.Context(), showID, args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d items of %s for retry\n", n, showID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&showID, "show", "s", "", "Show id whose items are retried")
	return cmd
}

func newLedgerStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the ledger per show",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *dedup.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(stats) == 0 {
					fmt.Fprintln(out, "Ledger is empty")
					return nil
				}
				rows := make([][]string, 0, len(stats))
				for _, st := range stats {
					_, configured := cfg.Show(st.ShowID)
					rows = append(rows, []string{
						st.ShowID,
						strconv.Itoa(st.Discovered),
						strconv.Itoa(st.Pending()),
						strconv.Itoa(st.Counts[dedup.StatusInProgress]),
						strconv.Itoa(st.Counts[dedup.StatusUploaded]),
						strconv.Itoa(st.Counts[dedup.StatusFailed]),
						strconv.Itoa(st.Exhausted),
						strconv.Itoa(st.Counts[dedup.StatusDone]),
						yesNo(configured),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"Show", "Discovered", "Pending", "In progress", "Uploaded", "Failed", "Exhausted", "Done", "Configured"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}

func newLedgerImportLegacyCommand(ctx *commandContext) *cobra.Command {
	var sourcePath string
	var showID string

	cmd := &cobra.Command{
		Use:   "import-legacy",
		Short: "Import a flat processed-id file as published records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *dedup.Store) error {
				path := strings.TrimSpace(sourcePath)
				if path == "" {
					path = cfg.Paths.LegacyLedgerPath
				} else {
					expanded, err := config.ExpandPath(path)
					if err != nil {
						return fmt.Errorf("resolve legacy path: %w", err)
					}
					path = expanded
				}
				result, err := store.ImportLegacy(cmd.Context(), path, strings.TrimSpace(showID))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if result.BackupPath == "" {
					fmt.Fprintf(out, "No legacy ledger at %s\n", path)
					return nil
				}
				fmt.Fprintf(out, "Imported %d ids (%d skipped); original moved to %s\n",
					result.Imported, result.Skipped, result.BackupPath)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&sourcePath, "path", "p", "", "Legacy file (default: paths.legacy_ledger_path)")
	cmd.Flags().StringVarP(&showID, "show", "s", "", "Show id that owns the imported ids (default: legacy)")
	return cmd
}

func parseStatusFilters(values []string) ([]dedup.Status, error) {
	statuses := make([]dedup.Status, 0, len(values))
	for _, value := range values {
		status, ok := dedup.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func selectLedgerShows(cfg *config.Config, showID string) ([]string, error) {
	showID = strings.TrimSpace(showID)
	if showID == "" {
		return cfg.ShowIDs(), nil
	}
	if _, ok := cfg.Show(showID); !ok && showID != dedup.LegacyShowID {
		return nil, fmt.Errorf("show %q is not configured", showID)
	}
	return []string{showID}, nil
}

func recordError(rec dedup.Record) string {
	if rec.LastError == "" {
		return ""
	}
	return truncateCell(rec.LastErrorKind+": "+rec.LastError, 60)
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
