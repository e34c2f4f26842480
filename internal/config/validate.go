package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the run-wide configuration is usable. Show-specific
// settings are validated lazily with Show.Validate.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateLock(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateShowIDs()
}

// ValidateShows runs Show.Validate for every show and joins the failures.
func (c *Config) ValidateShows() error {
	var errs []error
	for _, show := range c.Shows {
		if err := show.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error (got %q)", c.Logging.Level)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if p.MaxAttempts <= 0 {
		return errors.New("pipeline.max_attempts must be positive")
	}
	if p.StaleClaimMinutes <= 0 {
		return errors.New("pipeline.stale_claim_minutes must be positive")
	}
	if p.RetryBaseDelaySeconds < 0 || p.RetryMaxDelaySeconds < 0 {
		return errors.New("pipeline retry delays must be non-negative")
	}
	if p.RetryMaxDelaySeconds > 0 && p.RetryMaxDelaySeconds < p.RetryBaseDelaySeconds {
		return errors.New("pipeline.retry_max_delay_seconds must be >= pipeline.retry_base_delay_seconds")
	}
	if p.CallTimeoutSeconds <= 0 {
		return errors.New("pipeline.call_timeout_seconds must be positive")
	}
	if p.RunTimeoutMinutes < 0 {
		return errors.New("pipeline.run_timeout_minutes must be non-negative")
	}
	if p.SynthesisRatePerSecond < 0 {
		return errors.New("pipeline.synthesis_rate_per_second must be non-negative")
	}
	return nil
}

func (c *Config) validateGeneration() error {
	switch c.Generation.Provider {
	case "openai", "openrouter", "cohere", "anthropic":
	default:
		return fmt.Errorf("generation.provider must be openai, openrouter, cohere or anthropic (got %q)", c.Generation.Provider)
	}
	return nil
}

func (c *Config) validateAudio() error {
	if c.Audio.PauseMS < 0 {
		return errors.New("audio.pause_ms must be non-negative")
	}
	if !strings.HasSuffix(strings.ToLower(c.Audio.Bitrate), "k") {
		return fmt.Errorf("audio.bitrate must look like 64k (got %q)", c.Audio.Bitrate)
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.MaxItemsPerFeed < 0 {
		return errors.New("ingest.max_items_per_feed must be non-negative")
	}
	if c.Ingest.MinArticleChars < 0 {
		return errors.New("ingest.min_article_chars must be non-negative")
	}
	return nil
}

func (c *Config) validateLock() error {
	switch c.Lock.Backend {
	case "file":
	case "redis":
		if strings.TrimSpace(c.Lock.RedisURL) == "" {
			return errors.New("lock.redis_url must be set when lock.backend is redis (or FEEDCASTER_REDIS_URL)")
		}
	default:
		return fmt.Errorf("lock.backend must be file or redis (got %q)", c.Lock.Backend)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout < 0 {
		return errors.New("notifications.request_timeout must be non-negative")
	}
	return nil
}

func (c *Config) validateShowIDs() error {
	seen := make(map[string]struct{}, len(c.Shows))
	for i, show := range c.Shows {
		if show.ID == "" {
			return fmt.Errorf("shows[%d].id must be set", i)
		}
		if _, dup := seen[show.ID]; dup {
			return fmt.Errorf("shows.id %q is defined twice", show.ID)
		}
		seen[show.ID] = struct{}{}
	}
	return nil
}

// ValidateProviders checks that the generation and speech providers have
// credentials. Commands that never call a provider skip this.
func (c *Config) ValidateProviders() error {
	if strings.TrimSpace(c.Generation.APIKey) == "" {
		return fmt.Errorf("generation.api_key is required for provider %s (or set the provider's API key env var)", c.Generation.Provider)
	}
	if strings.TrimSpace(c.Speech.APIKey) == "" {
		return errors.New("speech.api_key is required (or set OPENAI_API_KEY)")
	}
	return nil
}
