package config

const (
	defaultConfigPath            = "~/.config/feedcaster/config.toml"
	defaultStateDir              = "~/.local/share/feedcaster"
	defaultWorkDir               = "~/.cache/feedcaster/work"
	defaultLogDir                = "~/.local/share/feedcaster/logs"
	defaultLedgerFile            = "ledger.db"
	defaultLegacyLedgerFile      = "processed.json"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
	defaultMaxAttempts           = 3
	defaultStaleClaimMinutes     = 90
	defaultServiceAttempts       = 3
	defaultRetryBaseDelaySeconds = 5
	defaultRetryMaxDelaySeconds  = 60
	defaultCallTimeoutSeconds    = 180
	defaultSynthesisWorkers      = 4
	defaultGenerationProvider    = "openai"
	defaultGenerationModel       = "gpt-4o-mini"
	defaultGenerationBaseURL     = "https://api.openai.com/v1/chat/completions"
	defaultOpenRouterBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
	defaultCohereModel           = "command-r-plus"
	defaultAnthropicModel        = "claude-sonnet-4-5"
	defaultGenerationReferer     = "https://github.com/feedcaster/feedcaster"
	defaultGenerationTitle       = "feedcaster"
	defaultGenerationMaxTokens   = 4096
	defaultTargetLengthMinutes   = 10
	defaultMaxArticleChars       = 20000
	defaultGenerationTimeout     = 120
	defaultSpeechBaseURL         = "https://api.openai.com/v1/audio/speech"
	defaultSpeechModel           = "tts-1"
	defaultSpeechFormat          = "mp3"
	defaultSpeechTimeout         = 60
	defaultPauseMS               = 400
	defaultBitrate               = "64k"
	defaultSampleRate            = 24000
	defaultArtist                = "RSS Podcast Maker"
	defaultFFmpegBinary          = "ffmpeg"
	defaultFFprobeBinary         = "ffprobe"
	defaultMaxItemsPerFeed       = 3
	defaultMinArticleChars       = 100
	defaultFetchTimeoutSeconds   = 30
	defaultUserAgent             = "feedcaster/dev (+https://github.com/feedcaster/feedcaster)"
	defaultLockBackend           = "file"
	defaultLockTTLMinutes        = 120
	defaultNotifyRequestTimeout  = 10
	defaultIntroTemplate         = "Welcome to today's summary. We are discussing the article '{{.Title}}' from {{.Feed}}."
	defaultPodcastLanguage       = "en-us"
	defaultGistFilename          = "podcast.xml"
	defaultGistAPIBaseURL        = "https://api.github.com"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			WorkDir:  defaultWorkDir,
			LogDir:   defaultLogDir,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Pipeline: Pipeline{
			MaxAttempts:           defaultMaxAttempts,
			StaleClaimMinutes:     defaultStaleClaimMinutes,
			ServiceAttempts:       defaultServiceAttempts,
			RetryBaseDelaySeconds: defaultRetryBaseDelaySeconds,
			RetryMaxDelaySeconds:  defaultRetryMaxDelaySeconds,
			CallTimeoutSeconds:    defaultCallTimeoutSeconds,
			SynthesisWorkers:      defaultSynthesisWorkers,
		},
		Generation: Generation{
			Provider:            defaultGenerationProvider,
			Model:               defaultGenerationModel,
			BaseURL:             defaultGenerationBaseURL,
			Referer:             defaultGenerationReferer,
			Title:               defaultGenerationTitle,
			MaxTokens:           defaultGenerationMaxTokens,
			TargetLengthMinutes: defaultTargetLengthMinutes,
			MaxArticleChars:     defaultMaxArticleChars,
			TimeoutSeconds:      defaultGenerationTimeout,
		},
		Speech: Speech{
			BaseURL:        defaultSpeechBaseURL,
			Model:          defaultSpeechModel,
			Format:         defaultSpeechFormat,
			TimeoutSeconds: defaultSpeechTimeout,
		},
		Audio: Audio{
			PauseMS:    defaultPauseMS,
			Bitrate:    defaultBitrate,
			SampleRate: defaultSampleRate,
			Artist:     defaultArtist,
		},
		Ingest: Ingest{
			MaxItemsPerFeed:     defaultMaxItemsPerFeed,
			MinArticleChars:     defaultMinArticleChars,
			FetchTimeoutSeconds: defaultFetchTimeoutSeconds,
			UserAgent:           defaultUserAgent,
			ExtractArticles:     true,
		},
		Lock: Lock{
			Backend:    defaultLockBackend,
			TTLMinutes: defaultLockTTLMinutes,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			RunSummary:     true,
			Errors:         true,
		},
	}
}
