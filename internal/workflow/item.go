package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"feedcaster/internal/config"
	"feedcaster/internal/dedup"
	"feedcaster/internal/logging"
	"feedcaster/internal/notifications"
	"feedcaster/internal/publish"
	"feedcaster/internal/script"
	"feedcaster/internal/services"
	"feedcaster/internal/stitch"
	"feedcaster/internal/synth"
	"feedcaster/internal/textutil"
)

const (
	stageCompose    = "compose"
	stageSynthesize = "synthesize"
	stageStitch     = "stitch"
	stagePublish    = "publish"
)

// processItem claims item and carries it to done. Failures after the claim
// are recorded against the item; the caller only decides containment.
func (o *Orchestrator) processItem(ctx context.Context, show config.Show, tk Toolkit, item dedup.Item) (ItemResult, error) {
	ctx = services.WithItemGUID(ctx, item.GUID)
	logger := logging.WithContext(ctx, o.logger)
	result := ItemResult{GUID: item.GUID, Title: item.Title}
	key := item.Key()

	claimed, err := o.ledger.Claim(ctx, key)
	if err != nil {
		return o.itemFailed(ctx, show, result, err), err
	}
	if !claimed {
		reason, err := o.skipReason(ctx, key)
		if err != nil {
			return o.itemFailed(ctx, show, result, err), err
		}
		result.Outcome = OutcomeSkipped
		result.Reason = reason
		o.metrics.ItemSkipped(show.ID)
		logger.Info("item skipped",
			logging.String(logging.FieldEventType, "item_skipped"),
			logging.String("reason", reason),
		)
		return result, nil
	}

	record, err := o.ledger.Get(ctx, key)
	if err != nil {
		return o.itemFailed(ctx, show, result, err), err
	}

	pub := publish.New(o.cfg, show, o.ledger, tk.Backends, o.publishOptions()...)
	var episode dedup.Episode
	if record != nil && record.Status == dedup.StatusUploaded && record.Artifact != nil {
		result.Resumed = true
		logger.Info("resuming uploaded item at feed update",
			logging.String(logging.FieldEventType, "item_resume"),
			logging.String("uri", record.Artifact.URI),
		)
		episode, err = timed(ctx, o, stagePublish, func(stageCtx context.Context) (dedup.Episode, error) {
			return pub.Resume(stageCtx, item, *record)
		})
	} else {
		episode, err = o.produce(ctx, show, tk, pub, item)
	}
	if err != nil {
		if markErr := o.recordFailure(ctx, key, err); markErr != nil {
			return o.itemFailed(ctx, show, result, markErr), markErr
		}
		return o.itemFailed(ctx, show, result, err), err
	}

	result.Outcome = OutcomePublished
	result.URI = episode.URI
	result.Duration = episode.Duration
	o.metrics.ItemPublished(show.ID, episode.Duration)
	o.notify(ctx, notifications.EventEpisodePublished, notifications.Payload{
		"show":     show.DisplayName(),
		"title":    episode.Title,
		"duration": episode.Duration,
		"uri":      episode.URI,
	})
	return result, nil
}

// produce runs compose, synthesize, stitch and deliver for a fresh claim.
func (o *Orchestrator) produce(ctx context.Context, show config.Show, tk Toolkit, pub *publish.Publisher, item dedup.Item) (dedup.Episode, error) {
	workDir := filepath.Join(o.cfg.Paths.WorkDir, show.ID, workKey(item.GUID))
	if !o.cfg.Pipeline.KeepWorkDir {
		defer os.RemoveAll(workDir)
	}

	composer := script.NewComposer(o.cfg.ForShow(show), show, tk.Generator, o.composerOptions()...)
	sc, err := timed(ctx, o, stageCompose, func(stageCtx context.Context) (script.Script, error) {
		return composer.Compose(stageCtx, item.ArticleText)
	})
	if err != nil {
		return dedup.Episode{}, err
	}

	synthesizer := synth.New(o.cfg, show, tk.Speaker, tk.Prober, o.synthOptions()...)
	layout, err := timed(ctx, o, stageSynthesize, func(stageCtx context.Context) (stitch.Layout, error) {
		intro, err := o.intro(stageCtx, show, synthesizer, workDir, item)
		if err != nil {
			return stitch.Layout{}, err
		}
		clips, err := synthesizer.Lines(stageCtx, filepath.Join(workDir, "clips"), sc.Lines)
		if err != nil {
			return stitch.Layout{}, err
		}
		layout, err := stitch.Plan(intro, clips, o.cfg.PauseDuration())
		if err != nil {
			return stitch.Layout{}, services.Wrap(services.ErrSynthesis, "stitch", "plan", "", err)
		}
		return layout, nil
	})
	if err != nil {
		return dedup.Episode{}, err
	}

	rendered, err := timed(ctx, o, stageStitch, func(stageCtx context.Context) (stitch.Artifact, error) {
		now := o.now()
		return tk.Stitcher.Stitch(stageCtx, layout, filepath.Join(workDir, EpisodeFileName(item, now)), stitch.Metadata{
			Title:     item.Title,
			Artist:    o.cfg.Audio.Artist,
			Album:     show.DisplayName(),
			Comment:   item.SourceURL,
			Published: now,
		})
	})
	if err != nil {
		return dedup.Episode{}, err
	}

	return timed(ctx, o, stagePublish, func(stageCtx context.Context) (dedup.Episode, error) {
		return pub.Deliver(stageCtx, item, rendered)
	})
}

func (o *Orchestrator) intro(ctx context.Context, show config.Show, s *synth.Synthesizer, dir string, item dedup.Item) (*synth.Clip, error) {
	if show.IntroAudio != "" {
		clip, err := s.Recorded(ctx, dir, show.IntroAudio)
		if err != nil {
			return nil, err
		}
		return &clip, nil
	}
	text, err := script.RenderIntro(show.IntroTemplate, item.Title, item.FeedTitle, show.DisplayName(), item.PublishedAt)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "synthesize", "intro", "render intro template", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	voice, ok := show.Voice(show.IntroSpeaker())
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "synthesize", "intro", fmt.Sprintf("no voice for intro role %q", show.IntroSpeaker()), nil)
	}
	clip, err := s.Intro(ctx, dir, voice.Voice, text)
	if err != nil {
		return nil, err
	}
	return &clip, nil
}

// timed runs fn as stage, tagging the context and observing its duration.
// Go has no generic methods, so the orchestrator is passed in.
func timed[T any](ctx context.Context, o *Orchestrator, stage string, fn func(context.Context) (T, error)) (T, error) {
	stageCtx := services.WithStage(ctx, stage)
	started := time.Now()
	out, err := fn(stageCtx)
	o.metrics.ObserveStage(stage, time.Since(started))
	if err == nil {
		logging.WithContext(stageCtx, o.logger).Debug("stage complete",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("elapsed", time.Since(started)),
		)
	}
	return out, err
}

// recordFailure releases the claim with the error kind. It uses a context
// that survives cancellation so an interrupted item is never left claimed.
// Configuration failures are not the item's fault and cost no attempt.
func (o *Orchestrator) recordFailure(ctx context.Context, key dedup.Key, cause error) error {
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	kind := services.KindOf(cause)
	if kind == services.KindConfiguration {
		return o.ledger.ReleaseClaim(markCtx, key, string(kind), cause.Error())
	}
	return o.ledger.MarkFailed(markCtx, key, string(kind), cause.Error())
}

func (o *Orchestrator) itemFailed(ctx context.Context, show config.Show, result ItemResult, err error) ItemResult {
	kind := services.KindOf(err)
	result.Outcome = OutcomeFailed
	result.Kind = kind
	result.Error = err.Error()
	o.metrics.ItemFailed(show.ID, string(kind))

	logging.ErrorWithContext(logging.WithContext(ctx, o.logger), "item failed", "item_failed",
		logging.String(logging.FieldErrorKind, string(kind)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, failureHint(err)),
	)
	return result
}

func failureHint(err error) string {
	switch services.KindOf(err) {
	case services.KindScriptParse:
		return "the model reply broke the ROLE: text format; the item will be retried next run"
	case services.KindSynthesis:
		return "check speech voices and ffmpeg; the item will be retried next run"
	case services.KindPublish:
		return "the episode is uploaded; the next run only retries the feed update"
	case services.KindConfiguration:
		return "fix the show configuration"
	case services.KindStore:
		return "check the ledger database"
	case services.KindCanceled:
		return "run interrupted; the item will be retried next run"
	default:
		return "provider unavailable after retries; the item will be retried next run"
	}
}

func (o *Orchestrator) skipReason(ctx context.Context, key dedup.Key) (string, error) {
	rec, err := o.ledger.Get(ctx, key)
	if err != nil {
		return "", err
	}
	switch {
	case rec == nil:
		return "not claimable", nil
	case rec.Status == dedup.StatusDone:
		return "already published", nil
	case rec.Exhausted(o.ledger.MaxAttempts()):
		return fmt.Sprintf("retry budget exhausted after %d attempts (%s)", rec.AttemptCount, rec.LastErrorKind), nil
	default:
		return "claimed by another run", nil
	}
}

func (o *Orchestrator) composerOptions() []script.Option {
	opts := []script.Option{script.WithLogger(o.logger)}
	if o.policy != nil {
		opts = append(opts, script.WithRetryPolicy(*o.policy))
	}
	return opts
}

func (o *Orchestrator) synthOptions() []synth.Option {
	opts := []synth.Option{synth.WithLogger(o.logger)}
	if o.policy != nil {
		opts = append(opts, synth.WithRetryPolicy(*o.policy))
	}
	return opts
}

func (o *Orchestrator) publishOptions() []publish.Option {
	opts := []publish.Option{publish.WithLogger(o.logger), publish.WithClock(o.now)}
	if o.policy != nil {
		opts = append(opts, publish.WithRetryPolicy(*o.policy))
	}
	return opts
}

// EpisodeFileName names the rendered file:
// "<feed> - <title> - <YYYY-MM-DD>.mp3", with titles over 50 characters cut.
func EpisodeFileName(item dedup.Item, day time.Time) string {
	title := textutil.SanitizeFileName(item.Title)
	if len([]rune(title)) > 50 {
		title = textutil.Truncate(title, 47) + "..."
	}
	if title == "" {
		title = workKey(item.GUID)
	}
	feed := textutil.SanitizeFileName(item.FeedTitle)
	if feed == "" {
		feed = "feed"
	}
	return fmt.Sprintf("%s - %s - %s.mp3", feed, title, day.Format("2006-01-02"))
}

func workKey(guid string) string {
	sum := sha256.Sum256([]byte(guid))
	return hex.EncodeToString(sum[:8])
}
