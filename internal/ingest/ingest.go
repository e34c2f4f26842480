package ingest

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"feedcaster/internal/config"
	"feedcaster/internal/dedup"
	"feedcaster/internal/logging"
	"feedcaster/internal/services"
)

const maxPageBytes = 5 << 20

// Sink receives discovered items. *dedup.Store satisfies it.
type Sink interface {
	Discover(ctx context.Context, items []dedup.Item) (int, error)
}

// Result summarizes one show's ingest pass.
type Result struct {
	Feeds      int
	FeedErrors int
	Entries    int
	Skipped    int
	Added      int
}

// Ingestor fetches feeds and article pages over HTTP.
type Ingestor struct {
	cfg    config.Ingest
	client *http.Client
	policy *bluemonday.Policy
	logger *slog.Logger
}

// Option customizes an Ingestor.
type Option func(*Ingestor)

// WithHTTPClient overrides the HTTP client used for feeds and pages.
func WithHTTPClient(client *http.Client) Option {
	return func(i *Ingestor) {
		if client != nil {
			i.client = client
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingestor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// New builds an Ingestor from the ingest section of cfg.
func New(cfg *config.Config, opts ...Option) *Ingestor {
	timeout := time.Duration(cfg.Ingest.FetchTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	i := &Ingestor{
		cfg:    cfg.Ingest,
		client: &http.Client{Timeout: timeout},
		policy: bluemonday.StrictPolicy(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = logging.NewComponentLogger(i.logger, "ingest")
	return i
}

// Ingest fetches every feed of show and records the resulting items in sink.
// Individual feed failures are logged; an error is returned only when every
// feed failed or the sink rejected the items.
func (i *Ingestor) Ingest(ctx context.Context, show config.Show, sink Sink) (Result, error) {
	logger := logging.WithContext(ctx, i.logger)
	var (
		res     Result
		items   []dedup.Item
		lastErr error
	)
	for _, feedURL := range show.Feeds {
		res.Feeds++
		fetched, skipped, err := i.Fetch(ctx, show.ID, feedURL)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.FeedErrors++
			lastErr = err
			logging.WarnWithContext(logger, "feed fetch failed; skipping feed", "feed_failed",
				logging.String("feed_url", feedURL),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the feed URL and network access"),
			)
			continue
		}
		res.Entries += len(fetched) + skipped
		res.Skipped += skipped
		items = append(items, fetched...)
	}
	if res.Feeds > 0 && res.FeedErrors == res.Feeds {
		return res, services.Wrap(services.ErrService, "ingest", "fetch feeds", "every feed failed", lastErr)
	}
	if len(items) > 0 {
		added, err := sink.Discover(ctx, items)
		if err != nil {
			return res, err
		}
		res.Added = added
	}
	logger.Info("feeds ingested",
		logging.String(logging.FieldEventType, "ingest_complete"),
		logging.Int("feeds", res.Feeds),
		logging.Int("feed_errors", res.FeedErrors),
		logging.Int("entries", res.Entries),
		logging.Int("skipped", res.Skipped),
		logging.Int("new_items", res.Added),
	)
	return res, nil
}

// Fetch parses one feed and returns items for its newest entries together
// with the number of entries skipped for lack of text or identity.
func (i *Ingestor) Fetch(ctx context.Context, showID, feedURL string) ([]dedup.Item, int, error) {
	feed, err := i.parseFeed(ctx, feedURL)
	if err != nil {
		return nil, 0, err
	}
	entries := newest(feed.Items, i.cfg.MaxItemsPerFeed)
	feedTitle := strings.TrimSpace(feed.Title)
	if feedTitle == "" {
		feedTitle = feedURL
	}

	items := make([]dedup.Item, 0, len(entries))
	skipped := 0
	for _, entry := range entries {
		item, ok := i.buildItem(ctx, showID, feedTitle, entry)
		if !ok {
			skipped++
			continue
		}
		items = append(items, item)
	}
	return items, skipped, nil
}

func (i *Ingestor) parseFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	body, err := i.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	feed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return nil, services.Wrap(services.ErrService, "ingest", "parse feed", feedURL, err)
	}
	return feed, nil
}

func (i *Ingestor) buildItem(ctx context.Context, showID, feedTitle string, entry *gofeed.Item) (dedup.Item, bool) {
	guid := strings.TrimSpace(entry.GUID)
	link := strings.TrimSpace(entry.Link)
	if guid == "" {
		guid = link
	}
	if guid == "" {
		return dedup.Item{}, false
	}
	title := strings.TrimSpace(entry.Title)
	if title == "" {
		title = link
	}

	summary := i.plainText(firstNonEmpty(entry.Description, entry.Content))
	text := ""
	if i.cfg.ExtractArticles && link != "" {
		extracted, err := i.extract(ctx, link)
		if err != nil {
			i.logger.Debug("article extraction failed; using summary",
				logging.String(logging.FieldItemGUID, guid),
				logging.String("url", link),
				logging.Error(err),
			)
		}
		text = extracted
	}
	if len(text) < i.cfg.MinArticleChars {
		text = summary
	}
	if text == "" || len(text) < i.cfg.MinArticleChars {
		i.logger.Info("entry skipped; text too short",
			logging.String(logging.FieldEventType, "entry_skipped"),
			logging.String(logging.FieldItemGUID, guid),
			logging.String("title", title),
		)
		return dedup.Item{}, false
	}

	var published time.Time
	switch {
	case entry.PublishedParsed != nil:
		published = entry.PublishedParsed.UTC()
	case entry.UpdatedParsed != nil:
		published = entry.UpdatedParsed.UTC()
	}
	return dedup.Item{
		ShowID:      showID,
		GUID:        guid,
		Title:       title,
		SourceURL:   link,
		FeedTitle:   feedTitle,
		Summary:     summary,
		ArticleText: text,
		PublishedAt: published,
	}, true
}

func (i *Ingestor) extract(ctx context.Context, pageURL string) (string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	body, err := i.get(ctx, pageURL)
	if err != nil {
		return "", err
	}
	defer body.Close()
	article, err := readability.FromReader(io.LimitReader(body, maxPageBytes), parsed)
	if err != nil {
		return "", err
	}
	return collapseSpace(article.TextContent), nil
}

func (i *Ingestor) get(ctx context.Context, target string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrService, "ingest", "build request", target, err)
	}
	if ua := strings.TrimSpace(i.cfg.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	resp, err := i.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrService, "ingest", "fetch", target, services.Transient(err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			err = services.Transient(err)
		}
		return nil, services.Wrap(services.ErrService, "ingest", "fetch", target, err)
	}
	return resp.Body, nil
}

func (i *Ingestor) plainText(markup string) string {
	if strings.TrimSpace(markup) == "" {
		return ""
	}
	return collapseSpace(html.UnescapeString(i.policy.Sanitize(markup)))
}

// newest orders entries by publication time, newest first, and keeps at most
// limit of them. Undated entries keep their feed order after dated ones.
func newest(items []*gofeed.Item, limit int) []*gofeed.Item {
	sorted := make([]*gofeed.Item, 0, len(items))
	for _, it := range items {
		if it != nil {
			sorted = append(sorted, it)
		}
	}
	sort.SliceStable(sorted, func(a, b int) bool {
		ta, tb := entryTime(sorted[a]), entryTime(sorted[b])
		if ta.IsZero() || tb.IsZero() {
			return !ta.IsZero() && tb.IsZero()
		}
		return ta.After(tb)
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func entryTime(it *gofeed.Item) time.Time {
	if it.PublishedParsed != nil {
		return *it.PublishedParsed
	}
	if it.UpdatedParsed != nil {
		return *it.UpdatedParsed
	}
	return time.Time{}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
