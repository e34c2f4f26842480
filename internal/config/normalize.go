package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizePipeline()
	c.normalizeGeneration()
	c.normalizeSpeech()
	c.normalizeAudio()
	c.normalizeIngest()
	c.normalizeLock()
	if err := c.normalizeMetrics(); err != nil {
		return err
	}
	for i := range c.Shows {
		if err := c.Shows[i].normalize(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LedgerPath) == "" {
		c.Paths.LedgerPath = filepath.Join(c.Paths.StateDir, defaultLedgerFile)
	}
	if c.Paths.LedgerPath, err = expandPath(c.Paths.LedgerPath); err != nil {
		return fmt.Errorf("paths.ledger_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.LegacyLedgerPath) == "" {
		c.Paths.LegacyLedgerPath = filepath.Join(c.Paths.StateDir, defaultLegacyLedgerFile)
	}
	if c.Paths.LegacyLedgerPath, err = expandPath(c.Paths.LegacyLedgerPath); err != nil {
		return fmt.Errorf("paths.legacy_ledger_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.SynthesisWorkers <= 0 {
		c.Pipeline.SynthesisWorkers = 1
	}
	if c.Pipeline.ServiceAttempts <= 0 {
		c.Pipeline.ServiceAttempts = 1
	}
}

func (c *Config) normalizeGeneration() {
	c.Generation.Provider = strings.ToLower(strings.TrimSpace(c.Generation.Provider))
	if c.Generation.Provider == "" {
		c.Generation.Provider = defaultGenerationProvider
	}
	c.Generation.BaseURL = strings.TrimSpace(c.Generation.BaseURL)
	c.Generation.Model = strings.TrimSpace(c.Generation.Model)
	switch c.Generation.Provider {
	case "openrouter":
		if c.Generation.BaseURL == "" || c.Generation.BaseURL == defaultGenerationBaseURL {
			c.Generation.BaseURL = defaultOpenRouterBaseURL
		}
		lookupEnvInto(&c.Generation.APIKey, "OPENROUTER_API_KEY")
	case "cohere":
		if c.Generation.Model == "" || c.Generation.Model == defaultGenerationModel {
			c.Generation.Model = defaultCohereModel
		}
		lookupEnvInto(&c.Generation.APIKey, "COHERE_API_KEY", "CO_API_KEY")
	case "anthropic":
		if c.Generation.Model == "" || c.Generation.Model == defaultGenerationModel {
			c.Generation.Model = defaultAnthropicModel
		}
		if c.Generation.BaseURL == defaultGenerationBaseURL {
			c.Generation.BaseURL = ""
		}
		lookupEnvInto(&c.Generation.APIKey, "ANTHROPIC_API_KEY")
	default:
		if c.Generation.BaseURL == "" {
			c.Generation.BaseURL = defaultGenerationBaseURL
		}
		lookupEnvInto(&c.Generation.APIKey, "OPENAI_API_KEY")
	}
	if c.Generation.Model == "" {
		c.Generation.Model = defaultGenerationModel
	}
	if c.Generation.MaxTokens <= 0 {
		c.Generation.MaxTokens = defaultGenerationMaxTokens
	}
	if c.Generation.TargetLengthMinutes <= 0 {
		c.Generation.TargetLengthMinutes = defaultTargetLengthMinutes
	}
	if c.Generation.MaxArticleChars <= 0 {
		c.Generation.MaxArticleChars = defaultMaxArticleChars
	}
	if c.Generation.TimeoutSeconds <= 0 {
		c.Generation.TimeoutSeconds = defaultGenerationTimeout
	}
}

func (c *Config) normalizeSpeech() {
	c.Speech.BaseURL = strings.TrimSpace(c.Speech.BaseURL)
	if c.Speech.BaseURL == "" {
		c.Speech.BaseURL = defaultSpeechBaseURL
	}
	if strings.TrimSpace(c.Speech.Model) == "" {
		c.Speech.Model = defaultSpeechModel
	}
	c.Speech.Format = strings.ToLower(strings.TrimSpace(c.Speech.Format))
	if c.Speech.Format == "" {
		c.Speech.Format = defaultSpeechFormat
	}
	if c.Speech.TimeoutSeconds <= 0 {
		c.Speech.TimeoutSeconds = defaultSpeechTimeout
	}
	lookupEnvInto(&c.Speech.APIKey, "OPENAI_API_KEY")
}

func (c *Config) normalizeAudio() {
	if strings.TrimSpace(c.Audio.Bitrate) == "" {
		c.Audio.Bitrate = defaultBitrate
	}
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = defaultSampleRate
	}
	if strings.TrimSpace(c.Audio.Artist) == "" {
		c.Audio.Artist = defaultArtist
	}
}

func (c *Config) normalizeIngest() {
	if c.Ingest.FetchTimeoutSeconds <= 0 {
		c.Ingest.FetchTimeoutSeconds = defaultFetchTimeoutSeconds
	}
	if strings.TrimSpace(c.Ingest.UserAgent) == "" {
		c.Ingest.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizeLock() {
	c.Lock.Backend = strings.ToLower(strings.TrimSpace(c.Lock.Backend))
	if c.Lock.Backend == "" {
		c.Lock.Backend = defaultLockBackend
	}
	lookupEnvInto(&c.Lock.RedisURL, "FEEDCASTER_REDIS_URL")
	if c.Lock.TTLMinutes <= 0 {
		c.Lock.TTLMinutes = defaultLockTTLMinutes
	}
}

func (c *Config) normalizeMetrics() error {
	if strings.TrimSpace(c.Metrics.TextfilePath) == "" {
		return nil
	}
	var err error
	if c.Metrics.TextfilePath, err = expandPath(c.Metrics.TextfilePath); err != nil {
		return fmt.Errorf("metrics.textfile_path: %w", err)
	}
	return nil
}

func (s *Show) normalize() error {
	s.ID = strings.TrimSpace(s.ID)
	if strings.TrimSpace(s.IntroTemplate) == "" {
		s.IntroTemplate = defaultIntroTemplate
	}
	for i := range s.Voices {
		s.Voices[i].Role = strings.ToUpper(strings.TrimSpace(s.Voices[i].Role))
		s.Voices[i].Voice = strings.TrimSpace(s.Voices[i].Voice)
	}
	s.IntroRole = strings.ToUpper(strings.TrimSpace(s.IntroRole))

	var err error
	if s.IntroAudio != "" {
		if s.IntroAudio, err = expandPath(s.IntroAudio); err != nil {
			return fmt.Errorf("shows[%s].intro_audio: %w", s.ID, err)
		}
	}

	s.Storage.Backend = strings.ToLower(strings.TrimSpace(s.Storage.Backend))
	if s.Storage.Backend == "" {
		s.Storage.Backend = BackendLocal
	}
	if s.Storage.Dir != "" {
		if s.Storage.Dir, err = expandPath(s.Storage.Dir); err != nil {
			return fmt.Errorf("shows[%s].storage.dir: %w", s.ID, err)
		}
	}
	s.Storage.Prefix = strings.Trim(strings.TrimSpace(s.Storage.Prefix), "/")
	s.Storage.PublicBaseURL = strings.TrimRight(strings.TrimSpace(s.Storage.PublicBaseURL), "/")
	if s.Storage.Backend == BackendDrive {
		lookupEnvInto(&s.Storage.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	}

	if strings.TrimSpace(s.Feed.Backend) == "" {
		s.Feed.Backend = BackendLocal
	}
	if err := s.Feed.normalize(); err != nil {
		return fmt.Errorf("shows[%s].feed.path: %w", s.ID, err)
	}
	if err := s.Mirror.normalize(); err != nil {
		return fmt.Errorf("shows[%s].mirror.path: %w", s.ID, err)
	}
	s.Generation.Model = strings.TrimSpace(s.Generation.Model)
	s.Speech.Model = strings.TrimSpace(s.Speech.Model)

	if strings.TrimSpace(s.Podcast.Title) == "" {
		s.Podcast.Title = s.DisplayName()
	}
	if strings.TrimSpace(s.Podcast.Description) == "" {
		s.Podcast.Description = s.Description
	}
	if strings.TrimSpace(s.Podcast.Language) == "" {
		s.Podcast.Language = defaultPodcastLanguage
	}
	return nil
}

func (fh *FeedHost) normalize() error {
	fh.Backend = strings.ToLower(strings.TrimSpace(fh.Backend))
	if fh.Path != "" {
		var err error
		if fh.Path, err = expandPath(fh.Path); err != nil {
			return err
		}
	}
	switch fh.Backend {
	case BackendDrive:
		lookupEnvInto(&fh.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	case BackendGist:
		lookupEnvInto(&fh.Token, "GITHUB_TOKEN")
		if strings.TrimSpace(fh.Filename) == "" {
			fh.Filename = defaultGistFilename
		}
		if strings.TrimSpace(fh.APIBaseURL) == "" {
			fh.APIBaseURL = defaultGistAPIBaseURL
		}
	}
	return nil
}

// lookupEnvInto fills an empty target from the first environment variable that is set.
func lookupEnvInto(target *string, names ...string) {
	if strings.TrimSpace(*target) != "" {
		return
	}
	for _, name := range names {
		if value, ok := os.LookupEnv(name); ok && strings.TrimSpace(value) != "" {
			*target = strings.TrimSpace(value)
			return
		}
	}
}
