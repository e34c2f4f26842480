package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir         string `toml:"state_dir"`
	WorkDir          string `toml:"work_dir"`
	LogDir           string `toml:"log_dir"`
	LedgerPath       string `toml:"ledger_path"`
	LegacyLedgerPath string `toml:"legacy_ledger_path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Pipeline contains retry, timeout and concurrency settings shared by every show.
type Pipeline struct {
	MaxAttempts            int     `toml:"max_attempts"`
	StaleClaimMinutes      int     `toml:"stale_claim_minutes"`
	ServiceAttempts        int     `toml:"service_attempts"`
	RetryBaseDelaySeconds  int     `toml:"retry_base_delay_seconds"`
	RetryMaxDelaySeconds   int     `toml:"retry_max_delay_seconds"`
	CallTimeoutSeconds     int     `toml:"call_timeout_seconds"`
	RunTimeoutMinutes      int     `toml:"run_timeout_minutes"`
	SynthesisWorkers       int     `toml:"synthesis_workers"`
	SynthesisRatePerSecond float64 `toml:"synthesis_rate_per_second"`
	KeepWorkDir            bool    `toml:"keep_work_dir"`
}

// Generation contains text-generation provider settings.
type Generation struct {
	Provider            string `toml:"provider"`
	Model               string `toml:"model"`
	BaseURL             string `toml:"base_url"`
	APIKey              string `toml:"api_key"`
	Referer             string `toml:"referer"`
	Title               string `toml:"title"`
	MaxTokens           int    `toml:"max_tokens"`
	TargetLengthMinutes int    `toml:"target_length_minutes"`
	MaxArticleChars     int    `toml:"max_article_chars"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
}

// Speech contains speech-synthesis provider settings.
type Speech struct {
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	APIKey         string `toml:"api_key"`
	Format         string `toml:"format"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Audio contains stitching and encoding settings.
type Audio struct {
	PauseMS       int    `toml:"pause_ms"`
	Bitrate       string `toml:"bitrate"`
	SampleRate    int    `toml:"sample_rate"`
	Artist        string `toml:"artist"`
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
}

// Ingest contains feed fetching and article extraction settings.
type Ingest struct {
	MaxItemsPerFeed     int    `toml:"max_items_per_feed"`
	MinArticleChars     int    `toml:"min_article_chars"`
	FetchTimeoutSeconds int    `toml:"fetch_timeout_seconds"`
	UserAgent           string `toml:"user_agent"`
	ExtractArticles     bool   `toml:"extract_articles"`
}

// Lock selects the per-show execution lock backend.
type Lock struct {
	Backend    string `toml:"backend"`
	RedisURL   string `toml:"redis_url"`
	TTLMinutes int    `toml:"ttl_minutes"`
}

// Metrics contains run metrics export settings.
type Metrics struct {
	TextfilePath string `toml:"textfile_path"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RunSummary     bool   `toml:"run_summary"`
	Errors         bool   `toml:"errors"`
}

// Config encapsulates all configuration values for feedcaster.
//
// Configuration sections by subsystem:
//   - Paths: state, work and log directories plus the ledger database
//   - Logging: log format, level, and retention
//   - Pipeline: attempt caps, retry backoff, timeouts and synthesis concurrency
//   - Generation: script generation provider
//   - Speech: speech synthesis provider
//   - Audio: pause length, encoding and ffmpeg binaries
//   - Ingest: feed fetching and article extraction
//   - Lock: per-show execution lock backend
//   - Metrics: Prometheus textfile export
//   - Notifications: ntfy push notification settings
//   - Shows: one entry per podcast
type Config struct {
	Paths         Paths         `toml:"paths"`
	Logging       Logging       `toml:"logging"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Generation    Generation    `toml:"generation"`
	Speech        Speech        `toml:"speech"`
	Audio         Audio         `toml:"audio"`
	Ingest        Ingest        `toml:"ingest"`
	Lock          Lock          `toml:"lock"`
	Metrics       Metrics       `toml:"metrics"`
	Notifications Notifications `toml:"notifications"`
	Shows         []Show        `toml:"shows"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. Per-show settings are checked separately by
// Show.Validate so one broken show does not block the others.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// LoadEnvFiles loads KEY=value pairs from the given dotenv files into the
// process environment. Missing files are ignored and variables that are
// already set keep their values.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		expanded, err := expandPath(path)
		if err != nil {
			return err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat env file: %w", err)
		}
		if err := godotenv.Load(expanded); err != nil {
			return fmt.Errorf("load env file %s: %w", expanded, err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("feedcaster.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state, work and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dir := filepath.Dir(c.Paths.LedgerPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger directory %q: %w", dir, err)
		}
	}
	return nil
}

// Show returns the configured show with the given id.
func (c *Config) Show(id string) (Show, bool) {
	id = strings.TrimSpace(id)
	for _, show := range c.Shows {
		if show.ID == id {
			return show, true
		}
	}
	return Show{}, false
}

// ShowIDs returns the configured show ids in file order.
func (c *Config) ShowIDs() []string {
	ids := make([]string, 0, len(c.Shows))
	for _, show := range c.Shows {
		ids = append(ids, show.ID)
	}
	return ids
}

// StaleClaimThreshold is how long an in-flight claim may go untouched before
// another run may reclaim it.
func (c *Config) StaleClaimThreshold() time.Duration {
	return time.Duration(c.Pipeline.StaleClaimMinutes) * time.Minute
}

// CallTimeout bounds a single external call.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Pipeline.CallTimeoutSeconds) * time.Second
}

// RunTimeout bounds a whole run. Zero means no bound.
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.Pipeline.RunTimeoutMinutes) * time.Minute
}

// RetryBaseDelay is the first backoff delay for retried service calls.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Pipeline.RetryBaseDelaySeconds) * time.Second
}

// RetryMaxDelay caps the backoff delay for retried service calls.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.Pipeline.RetryMaxDelaySeconds) * time.Second
}

// PauseDuration is the silence inserted between dialogue lines.
func (c *Config) PauseDuration() time.Duration {
	return time.Duration(c.Audio.PauseMS) * time.Millisecond
}

// LockTTL is how long a remote show lock lives without renewal.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Lock.TTLMinutes) * time.Minute
}

// FFmpegBinary returns the ffmpeg executable name used for stitching.
func (c *Config) FFmpegBinary() string {
	if v := strings.TrimSpace(c.Audio.FFmpegBinary); v != "" {
		return v
	}
	return defaultFFmpegBinary
}

// FFprobeBinary returns the ffprobe executable name used for clip durations.
func (c *Config) FFprobeBinary() string {
	if v := strings.TrimSpace(c.Audio.FFprobeBinary); v != "" {
		return v
	}
	return defaultFFprobeBinary
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
