package dedup

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a processed item.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusUploaded   Status = "uploaded"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{StatusInProgress, StatusUploaded, StatusDone, StatusFailed}

// Statuses returns every ledger status in lifecycle order.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus normalizes user input into a Status.
func ParseStatus(value string) (Status, bool) {
	v := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, s := range allStatuses {
		if s == v {
			return s, true
		}
	}
	return "", false
}

// KindStaleClaim is recorded when a claim was abandoned by a crashed run.
const KindStaleClaim = "stale_claim"

// LegacyShowID owns records imported from the flat processed-id file.
const LegacyShowID = "legacy"

// Item is a discovered feed entry. Items are written once and never mutated.
type Item struct {
	ShowID       string
	GUID         string
	Title        string
	SourceURL    string
	FeedTitle    string
	Summary      string
	ArticleText  string
	PublishedAt  time.Time
	DiscoveredAt time.Time
}

// Key returns the ledger key of the item.
func (i Item) Key() Key { return Key{ShowID: i.ShowID, GUID: i.GUID} }

// Key identifies one record in the ledger.
type Key struct {
	ShowID string
	GUID   string
}

func (k Key) String() string { return k.ShowID + "/" + k.GUID }

// Artifact describes an uploaded episode file.
type Artifact struct {
	URI      string
	Name     string
	Bytes    int64
	Duration time.Duration
}

// Record is the processing state of one item.
type Record struct {
	ShowID        string
	GUID          string
	Status        Status
	AttemptCount  int
	LastErrorKind string
	LastError     string
	ClaimedAt     time.Time
	EpisodeRef    string
	Artifact      *Artifact
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Exhausted reports whether the record has used its whole retry budget.
func (r Record) Exhausted(maxAttempts int) bool {
	if r.Status == StatusDone {
		return false
	}
	return r.AttemptCount >= maxAttempts
}

// Episode is a published episode as recorded in the ledger.
type Episode struct {
	ShowID      string
	GUID        string
	Title       string
	URI         string
	Bytes       int64
	Duration    time.Duration
	PublishedAt time.Time
}

// ShowStats summarizes the ledger for one show.
type ShowStats struct {
	ShowID     string
	Discovered int
	Counts     map[Status]int
	Exhausted  int
	Episodes   int
}

// Pending returns the discovered items that have no terminal record.
func (s ShowStats) Pending() int {
	return s.Discovered - s.Counts[StatusDone]
}
