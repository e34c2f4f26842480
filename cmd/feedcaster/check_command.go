package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"feedcaster/internal/preflight"
	"feedcaster/internal/services/providers"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check directories, ffmpeg and provider access before a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			var gen preflight.HealthChecker
			client, genErr := providers.NewGenerator(cfg, nil)
			if genErr == nil {
				gen = client
			}

			results := preflight.RunAll(cmd.Context(), cfg, gen)
			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			if genErr != nil {
				fmt.Fprintln(out, renderStatusLine("Generation provider", statusError, genErr.Error(), colorize))
			}

			for _, line := range renderSectionHeader("Shows", colorize) {
				fmt.Fprintln(out, line)
			}
			showsFailed := false
			for _, show := range cfg.Shows {
				if err := show.Validate(); err != nil {
					showsFailed = true
					fmt.Fprintln(out, renderStatusLine(show.ID, statusError, err.Error(), colorize))
					continue
				}
				detail := fmt.Sprintf("%d feeds, storage %s, feed host %s", len(show.Feeds), show.Storage.Backend, show.Feed.Backend)
				fmt.Fprintln(out, renderStatusLine(show.ID, statusOK, detail, colorize))
			}
			if len(cfg.Shows) == 0 {
				fmt.Fprintln(out, renderStatusLine("shows", statusWarn, "no shows configured", colorize))
			}

			if preflight.Failed(results) || genErr != nil || showsFailed {
				return errors.New("preflight checks failed")
			}
			return nil
		},
	}
}
