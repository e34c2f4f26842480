package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"feedcaster/internal/config"
	"feedcaster/internal/dedup"
	"feedcaster/internal/feeddoc"
	"feedcaster/internal/ingest"
	"feedcaster/internal/metrics"
	"feedcaster/internal/notifications"
	"feedcaster/internal/services"
	"feedcaster/internal/stitch"
	"feedcaster/internal/storage"
	"feedcaster/internal/testsupport"
	"feedcaster/internal/workflow"
)

// scriptGenerator answers with a three-line script naming the article's guid.
// Articles listed in failSynth get a line the speaker refuses.
type scriptGenerator struct {
	mu        sync.Mutex
	calls     int
	failSynth map[string]bool
}

func (g *scriptGenerator) Generate(_ context.Context, _, user string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	guid := articleGUID(user)
	middle := "Detail on " + guid + "."
	if g.failSynth[guid] {
		middle = "FAILSYNTH " + guid
	}
	return fmt.Sprintf("HOST_A: Opening on %s.\nHOST_B: %s\nHOST_A: Closing on %s.", guid, middle, guid), nil
}

func (g *scriptGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func articleGUID(user string) string {
	const marker = "Body of "
	i := strings.Index(user, marker)
	if i < 0 {
		return "unknown"
	}
	rest := user[i+len(marker):]
	if j := strings.IndexFunc(rest, func(r rune) bool { return r == '\n' || r == ' ' }); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

type recordingSpeaker struct {
	mu    sync.Mutex
	calls int
}

func (s *recordingSpeaker) Synthesize(_ context.Context, voice, text string) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if strings.Contains(text, "FAILSYNTH") {
		return nil, errors.New("voice rejected the text")
	}
	return []byte(voice + "|" + text), nil
}

func (s *recordingSpeaker) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// byteProber reports one millisecond per byte of file content.
type byteProber struct{}

func (byteProber) Duration(_ context.Context, path string) (time.Duration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return clipLength(string(data)), nil
}

func clipLength(content string) time.Duration {
	return time.Duration(len(content)) * time.Millisecond
}

type render struct {
	name  string
	parts []string
	total time.Duration
	meta  stitch.Metadata
}

// joinStitcher writes the audible segments joined by newlines.
type joinStitcher struct {
	renders []render
}

func (s *joinStitcher) Stitch(_ context.Context, layout stitch.Layout, outPath string, meta stitch.Metadata) (stitch.Artifact, error) {
	var parts []string
	for _, seg := range layout.Segments {
		if !seg.Audible() {
			continue
		}
		data, err := os.ReadFile(seg.Path)
		if err != nil {
			return stitch.Artifact{}, err
		}
		parts = append(parts, string(data))
	}
	content := strings.Join(parts, "\n")
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return stitch.Artifact{}, err
	}
	if err := os.WriteFile(outPath, []byte(content), 0o644); err != nil {
		return stitch.Artifact{}, err
	}
	s.renders = append(s.renders, render{name: filepath.Base(outPath), parts: parts, total: layout.Total, meta: meta})
	return stitch.Artifact{Path: outPath, Bytes: int64(len(content)), Duration: layout.Total}, nil
}

// switchFeed fails writes while fail is set.
type switchFeed struct {
	inner storage.FeedHost
	fail  *bool
}

func (f *switchFeed) Get(ctx context.Context) ([]byte, error) { return f.inner.Get(ctx) }

func (f *switchFeed) Put(ctx context.Context, data []byte) error {
	if *f.fail {
		return errors.New("feed host unavailable")
	}
	return f.inner.Put(ctx, data)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) count(event notifications.Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e == event {
			c++
		}
	}
	return c
}

type staticIngester struct {
	err error
}

func (s staticIngester) Ingest(context.Context, config.Show, ingest.Sink) (ingest.Result, error) {
	return ingest.Result{}, s.err
}

type harness struct {
	t          *testing.T
	cfg        *config.Config
	store      *dedup.Store
	gen        *scriptGenerator
	speaker    *recordingSpeaker
	stitcher   *joinStitcher
	notifier   *recordingNotifier
	feedFails  bool
	brokenShow string
	ingestErr  error
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return &harness{
		t:        t,
		cfg:      cfg,
		store:    testsupport.MustOpenStore(t, cfg),
		gen:      &scriptGenerator{failSynth: map[string]bool{}},
		speaker:  &recordingSpeaker{},
		stitcher: &joinStitcher{},
		notifier: &recordingNotifier{},
	}
}

func (h *harness) toolkits(ctx context.Context, show config.Show) (workflow.Toolkit, error) {
	if show.ID == h.brokenShow {
		return workflow.Toolkit{}, errors.New("bucket does not exist")
	}
	backends, err := storage.Open(ctx, show, nil)
	if err != nil {
		return workflow.Toolkit{}, err
	}
	backends.Feed = &switchFeed{inner: backends.Feed, fail: &h.feedFails}
	return workflow.Toolkit{
		Generator: h.gen,
		Speaker:   h.speaker,
		Prober:    byteProber{},
		Stitcher:  h.stitcher,
		Backends:  backends,
	}, nil
}

func (h *harness) orchestrator(ledger workflow.Ledger) *workflow.Orchestrator {
	if ledger == nil {
		ledger = h.store
	}
	return workflow.New(h.cfg, ledger,
		workflow.WithRetryPolicy(testsupport.FastRetry(2)),
		workflow.WithToolkits(h.toolkits),
		workflow.WithIngester(staticIngester{err: h.ingestErr}),
		workflow.WithNotifier(h.notifier),
		workflow.WithMetrics(metrics.NewRecorder()),
	)
}

func (h *harness) run(opts workflow.RunOptions) workflow.RunSummary {
	h.t.Helper()
	summary, err := h.orchestrator(nil).Run(context.Background(), opts)
	if err != nil {
		h.t.Fatalf("Run: %v", err)
	}
	return summary
}

func (h *harness) record(showID, guid string) *dedup.Record {
	h.t.Helper()
	rec, err := h.store.Get(context.Background(), dedup.Key{ShowID: showID, GUID: guid})
	if err != nil {
		h.t.Fatalf("Get %s/%s: %v", showID, guid, err)
	}
	return rec
}

func (h *harness) feedGUIDs(showID string) []string {
	h.t.Helper()
	show, ok := h.cfg.Show(showID)
	if !ok {
		h.t.Fatalf("unknown show %s", showID)
	}
	data, err := os.ReadFile(show.Feed.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		h.t.Fatalf("read feed: %v", err)
	}
	doc, err := feeddoc.Parse(data, feeddoc.ChannelFor(show))
	if err != nil {
		h.t.Fatalf("parse feed: %v", err)
	}
	return doc.GUIDs()
}

func (h *harness) uploadedFiles(showID string) []string {
	h.t.Helper()
	show, _ := h.cfg.Show(showID)
	entries, err := os.ReadDir(show.Storage.Dir)
	if err != nil {
		h.t.Fatalf("read storage dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".mp3") {
			names = append(names, e.Name())
		}
	}
	return names
}

// storeFailingLedger reports a ledger failure when claiming one guid.
type storeFailingLedger struct {
	*dedup.Store
	failGUID string
}

func (l *storeFailingLedger) Claim(ctx context.Context, key dedup.Key) (bool, error) {
	if key.GUID == l.failGUID {
		return false, services.Wrap(services.ErrStore, "ledger", "claim", key.String(), errors.New("disk I/O error"))
	}
	return l.Store.Claim(ctx, key)
}
