package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"feedcaster/internal/config"
	"feedcaster/internal/dedup"
	"feedcaster/internal/ingest"
	"feedcaster/internal/logging"
	"feedcaster/internal/metrics"
	"feedcaster/internal/notifications"
	"feedcaster/internal/services"
	"feedcaster/internal/showlock"
)

// Ledger is the part of the dedup store a run drives.
type Ledger interface {
	Discover(ctx context.Context, items []dedup.Item) (int, error)
	ReclaimStale(ctx context.Context, showID string) (int64, error)
	ListPending(ctx context.Context, showID string) ([]dedup.Item, error)
	Claim(ctx context.Context, key dedup.Key) (bool, error)
	Get(ctx context.Context, key dedup.Key) (*dedup.Record, error)
	MarkUploaded(ctx context.Context, key dedup.Key, artifact dedup.Artifact) error
	MarkDone(ctx context.Context, key dedup.Key, episode dedup.Episode) error
	MarkFailed(ctx context.Context, key dedup.Key, kind, message string) error
	ReleaseClaim(ctx context.Context, key dedup.Key, kind, message string) error
	MaxAttempts() int
}

// Ingester discovers new items of a show.
type Ingester interface {
	Ingest(ctx context.Context, show config.Show, sink ingest.Sink) (ingest.Result, error)
}

// RunOptions selects what a run does.
type RunOptions struct {
	// ShowIDs limits the run to these shows, in configuration order. Empty
	// means every show.
	ShowIDs []string
	// DryRun fetches feeds and reports the items a real run would process
	// without claiming them or calling any generation, speech or storage
	// service.
	DryRun bool
}

// Orchestrator runs the pipeline for the configured shows.
type Orchestrator struct {
	cfg      *config.Config
	ledger   Ledger
	locker   showlock.Locker
	ingester Ingester
	toolkits ToolkitFactory
	notifier notifications.Service
	metrics  *metrics.Recorder
	policy   *services.RetryPolicy
	now      func() time.Time
	logger   *slog.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithNotifier(n notifications.Service) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.metrics = r
		}
	}
}

// WithLocker overrides the lock backend selected by configuration.
func WithLocker(l showlock.Locker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

func WithIngester(i Ingester) Option {
	return func(o *Orchestrator) {
		if i != nil {
			o.ingester = i
		}
	}
}

func WithToolkits(f ToolkitFactory) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.toolkits = f
		}
	}
}

// WithRetryPolicy applies one retry policy to every external call instead of
// the policy derived from configuration.
func WithRetryPolicy(policy services.RetryPolicy) Option {
	return func(o *Orchestrator) { o.policy = &policy }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New builds an orchestrator over ledger. Collaborators not supplied through
// options are built from cfg.
func New(cfg *config.Config, ledger Ledger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		ledger: ledger,
		now:    time.Now,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "workflow")
	if o.ingester == nil {
		o.ingester = ingest.New(cfg, ingest.WithLogger(o.logger))
	}
	if o.toolkits == nil {
		o.toolkits = DefaultToolkits(cfg, nil, o.logger)
	}
	if o.notifier == nil {
		o.notifier = notifications.NewService(cfg)
	}
	if o.metrics == nil {
		o.metrics = metrics.NewRecorder()
	}
	return o
}

// Metrics exposes the recorder the run reports into.
func (o *Orchestrator) Metrics() *metrics.Recorder { return o.metrics }

// Run processes the selected shows one after another. The returned error is
// non-nil only when the run could not start or was aborted by a ledger
// failure; item and show failures are reported in the summary.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (RunSummary, error) {
	summary := RunSummary{
		RunID:   uuid.NewString(),
		DryRun:  opts.DryRun,
		Started: o.now(),
	}
	ctx = services.WithRequestID(ctx, summary.RunID)
	if timeout := o.cfg.RunTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	logger := logging.WithContext(ctx, o.logger)

	shows, err := o.selectShows(opts.ShowIDs)
	if err != nil {
		return o.abort(ctx, summary, err)
	}
	locker := o.locker
	if locker == nil {
		locker, err = showlock.New(o.cfg)
		if err != nil {
			return o.abort(ctx, summary, services.Wrap(services.ErrConfiguration, "workflow", "lock backend", "", err))
		}
		defer locker.Close()
	}

	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("shows", len(shows)),
		logging.Bool("dry_run", opts.DryRun),
	)

	for _, show := range shows {
		if ctx.Err() != nil {
			logging.WarnWithContext(logger, "run stopped before all shows were processed", "run_interrupted",
				logging.String(logging.FieldShowID, show.ID),
				logging.Error(ctx.Err()),
				logging.String(logging.FieldErrorHint, "raise pipeline.run_timeout_minutes or rerun to continue"),
			)
			break
		}
		var (
			showSummary ShowSummary
			err         error
		)
		if opts.DryRun {
			showSummary, err = o.planShow(ctx, show)
		} else {
			showSummary, err = o.runShow(ctx, locker, show)
		}
		summary.Shows = append(summary.Shows, showSummary)
		if services.IsFatalForRun(err) {
			return o.abort(ctx, summary, err)
		}
	}

	summary.Finished = o.now()
	o.finish(ctx, summary)
	return summary, nil
}

func (o *Orchestrator) selectShows(ids []string) ([]config.Show, error) {
	if len(ids) == 0 {
		return o.cfg.Shows, nil
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := o.cfg.Show(id); !ok {
			return nil, services.Wrap(services.ErrConfiguration, "workflow", "select shows", fmt.Sprintf("unknown show %q", id), nil)
		}
		wanted[id] = true
	}
	shows := make([]config.Show, 0, len(ids))
	for _, show := range o.cfg.Shows {
		if wanted[show.ID] {
			shows = append(shows, show)
		}
	}
	return shows, nil
}

func (o *Orchestrator) abort(ctx context.Context, summary RunSummary, err error) (RunSummary, error) {
	summary.Aborted = true
	summary.AbortErr = err
	summary.Finished = o.now()
	logging.ErrorWithContext(logging.WithContext(ctx, o.logger), "run aborted", "run_aborted",
		logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
		logging.Error(err),
		logging.Alert("run_aborted"),
		logging.String(logging.FieldErrorHint, abortHint(err)),
	)
	o.metrics.RunFinished(summary.Finished, summary.Elapsed(), true)
	o.writeMetrics(ctx)
	o.notify(ctx, notifications.EventRunAborted, notifications.Payload{"error": err})
	return summary, err
}

func abortHint(err error) string {
	if errors.Is(err, services.ErrStore) {
		return "check the ledger database file, its disk and permissions"
	}
	return "fix the configuration and rerun"
}

func (o *Orchestrator) finish(ctx context.Context, summary RunSummary) {
	published := summary.Count(OutcomePublished)
	failed := summary.Count(OutcomeFailed)
	skipped := summary.Count(OutcomeSkipped)
	logging.WithContext(ctx, o.logger).Info("run complete",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("published", published),
		logging.Int("failed", failed),
		logging.Int("skipped", skipped),
		logging.Int("planned", summary.Count(OutcomePlanned)),
		logging.Bool("ok", !summary.Failed()),
		logging.Duration("elapsed", summary.Elapsed()),
	)
	if summary.DryRun {
		return
	}
	o.metrics.RunFinished(summary.Finished, summary.Elapsed(), false)
	o.writeMetrics(ctx)
	o.notify(ctx, notifications.EventRunCompleted, notifications.Payload{
		"published": published,
		"failed":    failed,
		"skipped":   skipped,
		"duration":  summary.Elapsed(),
	})
}

func (o *Orchestrator) writeMetrics(ctx context.Context) {
	if err := o.metrics.WriteTextfile(o.cfg.Metrics.TextfilePath); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "metrics textfile write failed", "metrics_write_failed",
			logging.String("path", o.cfg.Metrics.TextfilePath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check metrics.textfile_path permissions"),
		)
	}
}

func (o *Orchestrator) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := o.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}

func errMissing(what string) error {
	return fmt.Errorf("%s not configured", what)
}
