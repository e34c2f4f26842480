package workflow

import (
	"context"
	"errors"
	"log/slog"

	"feedcaster/internal/config"
	"feedcaster/internal/dedup"
	"feedcaster/internal/logging"
	"feedcaster/internal/notifications"
	"feedcaster/internal/services"
	"feedcaster/internal/showlock"
)

// runShow processes one show under its lock. It returns an error only when
// the run must abort.
func (o *Orchestrator) runShow(ctx context.Context, locker showlock.Locker, show config.Show) (ShowSummary, error) {
	ctx = services.WithShowID(ctx, show.ID)
	logger := logging.WithContext(ctx, o.logger)
	summary := ShowSummary{ShowID: show.ID, Name: show.DisplayName()}

	lock, err := locker.Acquire(ctx, show.ID)
	if err != nil {
		if errors.Is(err, showlock.ErrHeld) {
			summary.Skipped = "another run holds the show lock"
			logging.WarnWithContext(logger, "show skipped; lock held elsewhere", "show_locked",
				logging.String(logging.FieldErrorHint, "wait for the other run to finish"),
			)
			return summary, nil
		}
		o.showFailed(ctx, &summary, services.Wrap(services.ErrService, "workflow", "acquire lock", show.ID, err))
		return summary, nil
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logging.WarnWithContext(logger, "show lock release failed", "lock_release_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the lock expires on its own; check the lock backend"),
			)
		}
	}()

	if err := show.Validate(); err != nil {
		o.showFailed(ctx, &summary, services.Wrap(services.ErrConfiguration, "workflow", "validate show", show.ID, err))
		return summary, nil
	}
	tk, err := o.toolkits(ctx, show)
	if err == nil {
		err = tk.validate(show.ID)
	}
	if err != nil {
		if !errors.Is(err, services.ErrConfiguration) {
			err = services.Wrap(services.ErrConfiguration, "workflow", "build collaborators", show.ID, err)
		}
		o.showFailed(ctx, &summary, err)
		return summary, nil
	}

	if err := o.ingestShow(ctx, logger, show, &summary); err != nil {
		return summary, err
	}

	reclaimed, err := o.ledger.ReclaimStale(ctx, show.ID)
	if err != nil {
		return summary, err
	}
	summary.Reclaimed = reclaimed
	if reclaimed > 0 {
		logging.WarnWithContext(logger, "stale claims released", "claims_reclaimed",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldErrorHint, "a previous run was interrupted; its items will be retried"),
		)
	}

	pending, err := o.ledger.ListPending(ctx, show.ID)
	if err != nil {
		return summary, err
	}
	logger.Info("show started",
		logging.String(logging.FieldEventType, "show_start"),
		logging.Int("pending", len(pending)),
	)

	for _, item := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := lock.Refresh(ctx); err != nil {
			o.showFailed(ctx, &summary, services.Wrap(services.ErrService, "workflow", "refresh lock", show.ID, err))
			return summary, nil
		}
		result, err := o.processItem(ctx, show, tk, item)
		summary.Items = append(summary.Items, result)
		if services.IsFatalForRun(err) {
			return summary, err
		}
		if services.IsFatalForShow(err) {
			o.showFailed(ctx, &summary, err)
			return summary, nil
		}
	}

	logger.Info("show complete",
		logging.String(logging.FieldEventType, "show_complete"),
		logging.Int("published", summary.Count(OutcomePublished)),
		logging.Int("failed", summary.Count(OutcomeFailed)),
		logging.Int("skipped", summary.Count(OutcomeSkipped)),
	)
	return summary, nil
}

// ingestShow discovers new items. Feed trouble is reported but does not stop
// the show, which still works through its backlog.
func (o *Orchestrator) ingestShow(ctx context.Context, logger *slog.Logger, show config.Show, summary *ShowSummary) error {
	res, err := o.ingester.Ingest(ctx, show, o.ledger)
	summary.Ingest = res
	if err == nil {
		return nil
	}
	if services.IsFatalForRun(err) {
		return err
	}
	summary.IngestErr = err
	logging.WarnWithContext(logger, "feed ingest failed; processing backlog only", "ingest_failed",
		logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the show's feed URLs"),
	)
	return nil
}

// planShow reports what a real run would process without changing the ledger.
func (o *Orchestrator) planShow(ctx context.Context, show config.Show) (ShowSummary, error) {
	ctx = services.WithShowID(ctx, show.ID)
	logger := logging.WithContext(ctx, o.logger)
	summary := ShowSummary{ShowID: show.ID, Name: show.DisplayName()}

	if err := show.Validate(); err != nil {
		err = services.Wrap(services.ErrConfiguration, "workflow", "validate show", show.ID, err)
		summary.Err = err
		summary.Kind = services.KindOf(err)
		return summary, nil
	}
	if _, err := o.toolkits(ctx, show); err != nil {
		if !errors.Is(err, services.ErrConfiguration) {
			err = services.Wrap(services.ErrConfiguration, "workflow", "build collaborators", show.ID, err)
		}
		summary.Err = err
		summary.Kind = services.KindOf(err)
		return summary, nil
	}

	fetched := &collectingSink{}
	res, err := o.ingester.Ingest(ctx, show, fetched)
	summary.Ingest = res
	if err != nil {
		summary.IngestErr = err
	}

	pending, err := o.ledger.ListPending(ctx, show.ID)
	if err != nil {
		return summary, err
	}
	seen := make(map[string]bool, len(pending))
	candidates := make([]dedup.Item, 0, len(pending)+len(fetched.items))
	for _, item := range pending {
		seen[item.GUID] = true
		candidates = append(candidates, item)
	}
	for _, item := range fetched.items {
		if !seen[item.GUID] {
			seen[item.GUID] = true
			candidates = append(candidates, item)
		}
	}

	for _, item := range candidates {
		rec, err := o.ledger.Get(ctx, item.Key())
		if err != nil {
			return summary, err
		}
		result := ItemResult{GUID: item.GUID, Title: item.Title, Outcome: OutcomePlanned}
		switch {
		case rec == nil:
			result.Reason = "new"
		case rec.Status == dedup.StatusDone:
			continue
		case rec.Exhausted(o.ledger.MaxAttempts()):
			result.Outcome = OutcomeSkipped
			result.Reason = "retry budget exhausted"
		case rec.Status == dedup.StatusUploaded:
			result.Reason = "resume at feed update"
		default:
			result.Reason = string(rec.Status)
		}
		summary.Items = append(summary.Items, result)
	}
	logger.Info("show planned",
		logging.String(logging.FieldEventType, "show_planned"),
		logging.Int("planned", summary.Count(OutcomePlanned)),
		logging.Int("skipped", summary.Count(OutcomeSkipped)),
	)
	return summary, nil
}

func (o *Orchestrator) showFailed(ctx context.Context, summary *ShowSummary, err error) {
	summary.Err = err
	summary.Kind = services.KindOf(err)
	logging.ErrorWithContext(logging.WithContext(ctx, o.logger), "show failed", "show_failed",
		logging.String(logging.FieldErrorKind, string(summary.Kind)),
		logging.Error(err),
		logging.Alert("show_failure"),
		logging.String(logging.FieldErrorHint, "fix the show configuration; other shows continue"),
	)
	o.metrics.ShowFailed(summary.ShowID, string(summary.Kind))
	o.notify(ctx, notifications.EventShowFailed, notifications.Payload{
		"show":  summary.Name,
		"error": err,
	})
}

type collectingSink struct {
	items []dedup.Item
}

func (c *collectingSink) Discover(_ context.Context, items []dedup.Item) (int, error) {
	c.items = append(c.items, items...)
	return len(items), nil
}
