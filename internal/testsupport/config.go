package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"feedcaster/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It carries one local show with id "tech" unless options replace it.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.LedgerPath = filepath.Join(base, "state", "ledger.db")
	cfgVal.Paths.LegacyLedgerPath = filepath.Join(base, "state", "processed.json")
	cfgVal.Generation.APIKey = "test"
	cfgVal.Speech.APIKey = "test"
	cfgVal.Pipeline.RetryBaseDelaySeconds = 0
	cfgVal.Pipeline.RetryMaxDelaySeconds = 0
	cfgVal.Shows = []config.Show{NewShow(base, "tech")}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// NewShow returns a valid two-host show that publishes to directories under base.
func NewShow(base, id string) config.Show {
	return config.Show{
		ID:            id,
		Name:          "Test " + id,
		Feeds:         []string{"https://example.com/" + id + ".xml"},
		IntroTemplate: "Welcome. Today: {{.Title}} from {{.Feed}}.",
		Voices: []config.Voice{
			{Role: "HOST_A", Voice: "alloy", Persona: "curious host"},
			{Role: "HOST_B", Voice: "nova", Persona: "expert guest"},
		},
		Storage: config.Storage{
			Backend:       config.BackendLocal,
			Dir:           filepath.Join(base, "public", id),
			PublicBaseURL: "https://cdn.example.com/" + id,
		},
		Feed: config.FeedHost{
			Backend: config.BackendLocal,
			Path:    filepath.Join(base, "public", id, "feed.xml"),
		},
		Podcast: config.Podcast{
			Title:       "Test " + id,
			Description: "Test show " + id,
			Link:        "https://example.com/" + id,
			Language:    "en",
		},
	}
}

// WithShows replaces the configured shows.
func WithShows(shows ...config.Show) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Shows = shows
	}
}

// WithExtraShow appends a default show with the given id.
func WithExtraShow(id string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Shows = append(b.cfg.Shows, NewShow(b.baseDir, id))
	}
}

// WithMaxAttempts overrides the failed-attempt cap.
func WithMaxAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.MaxAttempts = n
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
