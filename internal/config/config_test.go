package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"feedcaster/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndReadsEnv(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "feedcaster")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Paths.LedgerPath != filepath.Join(wantState, "ledger.db") {
		t.Fatalf("unexpected ledger path: %q", cfg.Paths.LedgerPath)
	}
	if cfg.Paths.LegacyLedgerPath != filepath.Join(wantState, "processed.json") {
		t.Fatalf("unexpected legacy ledger path: %q", cfg.Paths.LegacyLedgerPath)
	}
	if cfg.Generation.APIKey != "sk-test" || cfg.Speech.APIKey != "sk-test" {
		t.Fatalf("expected provider keys from env, got %q / %q", cfg.Generation.APIKey, cfg.Speech.APIKey)
	}
	if cfg.Pipeline.MaxAttempts != 3 {
		t.Fatalf("expected max attempts default 3, got %d", cfg.Pipeline.MaxAttempts)
	}
	if cfg.RetryBaseDelay() != 5*time.Second {
		t.Fatalf("unexpected retry base delay %s", cfg.RetryBaseDelay())
	}
	if cfg.FFmpegBinary() != "ffmpeg" || cfg.FFprobeBinary() != "ffprobe" {
		t.Fatalf("unexpected ffmpeg binaries %q %q", cfg.FFmpegBinary(), cfg.FFprobeBinary())
	}
	if err := cfg.ValidateProviders(); err != nil {
		t.Fatalf("ValidateProviders: %v", err)
	}
}

func TestLoadParsesShows(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GITHUB_TOKEN", "ghp-test")
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[generation]
provider = "openrouter"

[[shows]]
id = "tech"
name = "Tech Digest"
feeds = ["https://example.com/a.xml", "https://example.com/b.xml"]

  [[shows.voices]]
  role = "host_a"
  voice = "alloy"

  [[shows.voices]]
  role = "HOST_B"
  voice = "onyx"

  [shows.storage]
  backend = "local"
  dir = "/srv/episodes"
  public_base_url = "https://cdn.example.com/episodes/"

  [shows.feed]
  backend = "gist"
  gist_id = "abc123"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if cfg.Generation.BaseURL != "https://openrouter.ai/api/v1/chat/completions" {
		t.Fatalf("expected openrouter base url, got %q", cfg.Generation.BaseURL)
	}
	show, ok := cfg.Show("tech")
	if !ok {
		t.Fatal("expected show tech")
	}
	if got := show.Roles(); len(got) != 2 || got[0] != "HOST_A" || got[1] != "HOST_B" {
		t.Fatalf("unexpected roles %v", got)
	}
	if show.IntroSpeaker() != "HOST_A" {
		t.Fatalf("expected first role to read the intro, got %q", show.IntroSpeaker())
	}
	if show.Storage.PublicBaseURL != "https://cdn.example.com/episodes" {
		t.Fatalf("expected trailing slash trimmed, got %q", show.Storage.PublicBaseURL)
	}
	if show.Feed.Token != "ghp-test" || show.Feed.Filename != "podcast.xml" {
		t.Fatalf("unexpected gist settings %+v", show.Feed)
	}
	if show.Podcast.Title != "Tech Digest" || show.Podcast.Language != "en-us" {
		t.Fatalf("unexpected podcast defaults %+v", show.Podcast)
	}
	if !strings.Contains(show.IntroTemplate, "{{.Title}}") {
		t.Fatalf("expected default intro template, got %q", show.IntroTemplate)
	}
	if err := show.Validate(); err != nil {
		t.Fatalf("show.Validate: %v", err)
	}
}

func TestLoadAnthropicShowOverridesAndMirror(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GITHUB_TOKEN", "ghp-test")
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[generation]
provider = "anthropic"
target_length_minutes = 10

[speech]
model = "tts-1"

[[shows]]
id = "tech"
feeds = ["https://example.com/a.xml"]

  [[shows.voices]]
  role = "HOST_A"
  voice = "alloy"

  [[shows.voices]]
  role = "HOST_B"
  voice = "onyx"

  [shows.storage]
  backend = "local"
  dir = "/srv/episodes"
  public_base_url = "https://cdn.example.com"

  [shows.feed]
  backend = "local"
  path = "/srv/feed.xml"

  [shows.mirror]
  backend = "gist"
  gist_id = "abc123"

  [shows.generation]
  model = "claude-haiku-4-5"
  target_length_minutes = 4

  [shows.speech]
  model = "tts-1-hd"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Generation.APIKey != "sk-ant-test" || cfg.Generation.Model != "claude-sonnet-4-5" || cfg.Generation.BaseURL != "" {
		t.Fatalf("unexpected anthropic defaults %+v", cfg.Generation)
	}
	show, _ := cfg.Show("tech")
	if !show.Mirror.Enabled() || show.Mirror.Token != "ghp-test" || show.Mirror.Filename != "podcast.xml" {
		t.Fatalf("unexpected mirror %+v", show.Mirror)
	}
	if err := show.Validate(); err != nil {
		t.Fatalf("show.Validate: %v", err)
	}

	merged := cfg.ForShow(show)
	if merged.Generation.Model != "claude-haiku-4-5" || merged.Generation.TargetLengthMinutes != 4 || merged.Speech.Model != "tts-1-hd" {
		t.Fatalf("overrides not applied: %+v %+v", merged.Generation, merged.Speech)
	}
	if merged.Generation.APIKey != "sk-ant-test" || merged.Generation.MaxTokens != cfg.Generation.MaxTokens {
		t.Fatalf("unset overrides must inherit: %+v", merged.Generation)
	}
	if cfg.Generation.Model != "claude-sonnet-4-5" || cfg.Speech.Model != "tts-1" {
		t.Fatal("ForShow modified the global config")
	}

	show.Mirror.GistID = ""
	if err := show.Validate(); err == nil || !strings.Contains(err.Error(), "shows[tech].mirror.gist_id") {
		t.Fatalf("expected mirror gist_id error, got %v", err)
	}
}

func TestShowValidateReportsBrokenShowOnly(t *testing.T) {
	cfg := config.Default()
	cfg.Shows = []config.Show{
		{
			ID:      "good",
			Voices:  []config.Voice{{Role: "HOST_A", Voice: "alloy"}, {Role: "HOST_B", Voice: "onyx"}},
			Storage: config.Storage{Backend: "s3", Bucket: "bucket"},
			Feed:    config.FeedHost{Backend: "s3", Bucket: "bucket", Key: "feed.xml"},
		},
		{
			ID:      "bad",
			Voices:  []config.Voice{{Role: "HOST_A", Voice: "alloy"}},
			Storage: config.Storage{Backend: "local"},
			Feed:    config.FeedHost{Backend: "local", Path: "/tmp/feed.xml"},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("run-wide validation should pass: %v", err)
	}
	if err := cfg.Shows[0].Validate(); err != nil {
		t.Fatalf("good show: %v", err)
	}
	err := cfg.ValidateShows()
	if err == nil || !strings.Contains(err.Error(), "shows[bad].voices") {
		t.Fatalf("expected bad show voices error, got %v", err)
	}
}

func TestValidateRejectsDuplicateShowIDs(t *testing.T) {
	cfg := config.Default()
	cfg.Shows = []config.Show{{ID: "a"}, {ID: "a"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestValidateRejectsRedisLockWithoutURL(t *testing.T) {
	cfg := config.Default()
	cfg.Lock.Backend = "redis"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "lock.redis_url") {
		t.Fatalf("expected redis url error, got %v", err)
	}
}

func TestLoadEnvFilesSkipsMissingAndKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("FEEDCASTER_TEST_A=from-file\nFEEDCASTER_TEST_B=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("FEEDCASTER_TEST_B", "from-env")
	t.Cleanup(func() { os.Unsetenv("FEEDCASTER_TEST_A") })

	if err := config.LoadEnvFiles(filepath.Join(dir, "missing.env"), envPath); err != nil {
		t.Fatalf("LoadEnvFiles: %v", err)
	}
	if got := os.Getenv("FEEDCASTER_TEST_A"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := os.Getenv("FEEDCASTER_TEST_B"); got != "from-env" {
		t.Fatalf("expected existing env to win, got %q", got)
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if err := cfg.ValidateShows(); err != nil {
		t.Fatalf("sample shows should validate: %v", err)
	}
}
