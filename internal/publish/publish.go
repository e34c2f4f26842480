// Package publish delivers rendered episodes: it uploads the audio file,
// records the upload in the ledger, and appends the episode to the show's
// feed document.
//
// The two halves are separable. An item whose upload succeeded but whose feed
// update failed stays in the uploaded state and is later finished with Resume,
// which never touches the audio again.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"feedcaster/internal/config"
	"feedcaster/internal/dedup"
	"feedcaster/internal/feeddoc"
	"feedcaster/internal/logging"
	"feedcaster/internal/services"
	"feedcaster/internal/stitch"
	"feedcaster/internal/storage"
)

// Ledger is the part of the dedup store the publisher advances.
type Ledger interface {
	MarkUploaded(ctx context.Context, key dedup.Key, artifact dedup.Artifact) error
	MarkDone(ctx context.Context, key dedup.Key, episode dedup.Episode) error
}

// Publisher uploads and publishes episodes for one show.
type Publisher struct {
	show    config.Show
	ledger  Ledger
	dest    storage.Destination
	feed    storage.FeedHost
	mirror  storage.FeedHost
	channel feeddoc.Channel
	policy  services.RetryPolicy
	now     func() time.Time
	logger  *slog.Logger
}

// Option customizes a Publisher.
type Option func(*Publisher)

func WithRetryPolicy(policy services.RetryPolicy) Option {
	return func(p *Publisher) { p.policy = policy }
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New builds a publisher for show.
func New(cfg *config.Config, show config.Show, ledger Ledger, backends storage.Backends, opts ...Option) *Publisher {
	p := &Publisher{
		show:    show,
		ledger:  ledger,
		dest:    backends.Destination,
		feed:    backends.Feed,
		mirror:  backends.Mirror,
		channel: feeddoc.ChannelFor(show),
		policy: services.RetryPolicy{
			Attempts:    cfg.Pipeline.ServiceAttempts,
			BaseDelay:   cfg.RetryBaseDelay(),
			MaxDelay:    cfg.RetryMaxDelay(),
			CallTimeout: cfg.CallTimeout(),
		},
		now:    time.Now,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "publish")
	return p
}

// Deliver uploads the rendered file and publishes it.
func (p *Publisher) Deliver(ctx context.Context, item dedup.Item, rendered stitch.Artifact) (dedup.Episode, error) {
	artifact, err := p.Upload(ctx, item, rendered)
	if err != nil {
		return dedup.Episode{}, err
	}
	return p.Publish(ctx, item, artifact)
}

// Upload stores the rendered file and marks the item uploaded. Storage
// failures are service errors; ledger failures are store errors.
func (p *Publisher) Upload(ctx context.Context, item dedup.Item, rendered stitch.Artifact) (dedup.Artifact, error) {
	if p.dest == nil {
		return dedup.Artifact{}, services.Wrap(services.ErrConfiguration, "upload", "destination", p.show.ID, errors.New("no storage destination"))
	}
	name := filepath.Base(rendered.Path)
	started := p.now()
	uri, err := services.Retry(ctx, p.policy, "upload "+name, func(ctx context.Context) (string, error) {
		f, err := os.Open(rendered.Path)
		if err != nil {
			return "", services.Wrap(services.ErrSynthesis, "upload", "open artifact", rendered.Path, err)
		}
		defer f.Close()
		return p.dest.Put(ctx, name, f, rendered.Bytes)
	})
	if err != nil {
		return dedup.Artifact{}, err
	}
	artifact := dedup.Artifact{
		URI:      uri,
		Name:     name,
		Bytes:    rendered.Bytes,
		Duration: rendered.Duration,
	}
	if err := p.ledger.MarkUploaded(ctx, item.Key(), artifact); err != nil {
		return dedup.Artifact{}, err
	}
	logging.WithContext(ctx, p.logger).Info("episode uploaded",
		logging.String(logging.FieldEventType, "episode_uploaded"),
		logging.String("uri", uri),
		logging.Int64("bytes", rendered.Bytes),
		logging.Duration("elapsed", p.now().Sub(started)),
	)
	return artifact, nil
}

// Resume publishes an item left in the uploaded state by an earlier run.
func (p *Publisher) Resume(ctx context.Context, item dedup.Item, record dedup.Record) (dedup.Episode, error) {
	if record.Status != dedup.StatusUploaded || record.Artifact == nil || record.Artifact.URI == "" {
		return dedup.Episode{}, services.Wrap(services.ErrPublish, "publish", "resume", item.Key().String(),
			fmt.Errorf("record in status %s has no uploaded artifact", record.Status))
	}
	logging.WithContext(ctx, p.logger).Info("resuming publish of uploaded episode",
		logging.String(logging.FieldEventType, "publish_resumed"),
		logging.String("uri", record.Artifact.URI),
	)
	return p.Publish(ctx, item, *record.Artifact)
}

// Publish appends the episode to the feed document and marks the item done.
// An episode already present in the document is not appended twice.
func (p *Publisher) Publish(ctx context.Context, item dedup.Item, artifact dedup.Artifact) (dedup.Episode, error) {
	if p.feed == nil {
		return dedup.Episode{}, services.Wrap(services.ErrConfiguration, "publish", "feed host", p.show.ID, errors.New("no feed host"))
	}
	episode := dedup.Episode{
		ShowID:      item.ShowID,
		GUID:        item.GUID,
		Title:       item.Title,
		URI:         artifact.URI,
		Bytes:       artifact.Bytes,
		Duration:    artifact.Duration,
		PublishedAt: p.now().UTC(),
	}
	entry := feeddoc.Entry{
		GUID:        item.GUID,
		Title:       episodeTitle(item),
		Description: episodeDescription(item),
		URL:         artifact.URI,
		Bytes:       artifact.Bytes,
		Duration:    artifact.Duration,
		Published:   episode.PublishedAt,
	}

	written, err := services.Retry(ctx, p.policy, "publish feed", func(ctx context.Context) (feedWrite, error) {
		return p.appendEntry(ctx, entry)
	})
	if err != nil {
		if errors.Is(err, services.ErrPublish) {
			return dedup.Episode{}, err
		}
		return dedup.Episode{}, services.Wrap(services.ErrPublish, "publish", "feed update", p.show.ID, err)
	}
	if err := p.ledger.MarkDone(ctx, item.Key(), episode); err != nil {
		return dedup.Episode{}, err
	}

	logger := logging.WithContext(ctx, p.logger)
	if written.appended {
		logger.Info("episode published",
			logging.String(logging.FieldEventType, "episode_published"),
			logging.String("uri", artifact.URI),
			logging.Duration("duration", artifact.Duration),
		)
	} else {
		logging.WarnWithContext(logger, "feed already listed episode; ledger completed without append", "episode_already_listed",
			logging.String("uri", artifact.URI),
			logging.String(logging.FieldErrorHint, "a previous run appended the entry before it could finish"),
		)
	}
	p.syncMirror(ctx, written.data)
	return episode, nil
}

// feedWrite is the outcome of one feed update: whether the entry was added
// and the document the primary host now holds.
type feedWrite struct {
	appended bool
	data     []byte
}

// appendEntry performs one read-modify-write of the feed document.
func (p *Publisher) appendEntry(ctx context.Context, entry feeddoc.Entry) (feedWrite, error) {
	current, err := p.feed.Get(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		current = nil
	} else if err != nil {
		return feedWrite{}, err
	}
	doc, err := feeddoc.Parse(current, p.channel)
	if err != nil {
		return feedWrite{}, services.Wrap(services.ErrPublish, "publish", "parse feed", p.show.ID, err)
	}
	appended, err := doc.Append(entry)
	if err != nil {
		return feedWrite{}, services.Wrap(services.ErrPublish, "publish", "append entry", entry.GUID, err)
	}
	if !appended {
		return feedWrite{data: current}, nil
	}
	data, err := doc.Render()
	if err != nil {
		return feedWrite{}, services.Wrap(services.ErrPublish, "publish", "render feed", p.show.ID, err)
	}
	if err := p.feed.Put(ctx, data); err != nil {
		return feedWrite{}, err
	}
	return feedWrite{appended: true, data: data}, nil
}

// syncMirror copies the primary document to the mirror host. The primary is
// authoritative and every publish rewrites the whole document, so a failed
// mirror write is reported and caught up by the next publish.
func (p *Publisher) syncMirror(ctx context.Context, data []byte) {
	if p.mirror == nil || len(data) == 0 {
		return
	}
	logger := logging.WithContext(ctx, p.logger)
	_, err := services.Retry(ctx, p.policy, "mirror feed", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.mirror.Put(ctx, data)
	})
	if err != nil {
		logging.WarnWithContext(logger, "feed mirror update failed", "feed_mirror_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the primary feed is current; the mirror catches up on the next publish"),
		)
		return
	}
	logger.Debug("feed mirror updated",
		logging.String(logging.FieldEventType, "feed_mirror_updated"),
		logging.Int("bytes", len(data)),
	)
}

func episodeTitle(item dedup.Item) string {
	if title := strings.TrimSpace(item.Title); title != "" {
		return title
	}
	return item.GUID
}

func episodeDescription(item dedup.Item) string {
	var b strings.Builder
	summary := strings.TrimSpace(item.Summary)
	if summary == "" {
		summary = episodeTitle(item)
	}
	b.WriteString(summary)
	if item.FeedTitle != "" {
		b.WriteString("\n\nFrom ")
		b.WriteString(item.FeedTitle)
		b.WriteByte('.')
	}
	if item.SourceURL != "" {
		b.WriteString("\nSource: ")
		b.WriteString(item.SourceURL)
	}
	return b.String()
}
