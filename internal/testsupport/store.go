package testsupport

import (
	"context"
	"testing"
	"time"

	"feedcaster/internal/config"
	"feedcaster/internal/dedup"
)

// MustOpenStore opens a dedup.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...dedup.Option) *dedup.Store {
	t.Helper()

	store, err := dedup.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("dedup.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Discover registers one item per guid with publication times one hour apart,
// in the order given.
func Discover(t testing.TB, store *dedup.Store, showID string, guids ...string) []dedup.Item {
	t.Helper()

	base := time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)
	items := make([]dedup.Item, 0, len(guids))
	for i, guid := range guids {
		items = append(items, dedup.Item{
			ShowID:      showID,
			GUID:        guid,
			Title:       "Article " + guid,
			SourceURL:   "https://example.com/articles/" + guid,
			FeedTitle:   "Example Feed",
			ArticleText: "Body of " + guid,
			PublishedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	if _, err := store.Discover(context.Background(), items); err != nil {
		t.Fatalf("store.Discover: %v", err)
	}
	return items
}

// Clock is a manually advanced time source for dedup.WithClock.
type Clock struct {
	now time.Time
}

// NewClock returns a clock frozen at start.
func NewClock(start time.Time) *Clock { return &Clock{now: start} }

// Now returns the current fake time.
func (c *Clock) Now() time.Time { return c.now }

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) { c.now = c.now.Add(d) }
