package script

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"feedcaster/internal/config"
	"feedcaster/internal/logging"
	"feedcaster/internal/services"
)

// Generator is the text-generation capability.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Composer produces validated scripts for one show.
type Composer struct {
	gen             Generator
	show            config.Show
	policy          services.RetryPolicy
	targetMinutes   int
	maxArticleChars int
	logger          *slog.Logger
}

// Option customizes a Composer.
type Option func(*Composer)

// WithRetryPolicy overrides the generation retry policy.
func WithRetryPolicy(policy services.RetryPolicy) Option {
	return func(c *Composer) { c.policy = policy }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewComposer builds a composer for show using the generation settings in cfg.
func NewComposer(cfg *config.Config, show config.Show, gen Generator, opts ...Option) *Composer {
	c := &Composer{
		gen:  gen,
		show: show,
		policy: services.RetryPolicy{
			Attempts:    cfg.Pipeline.ServiceAttempts,
			BaseDelay:   cfg.RetryBaseDelay(),
			MaxDelay:    cfg.RetryMaxDelay(),
			CallTimeout: cfg.CallTimeout(),
		},
		targetMinutes:   cfg.Generation.TargetLengthMinutes,
		maxArticleChars: cfg.Generation.MaxArticleChars,
		logger:          logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "script")
	return c
}

// Compose generates and parses a script for the article. Generation is
// retried on transient failures; a reply that violates the grammar is not.
func (c *Composer) Compose(ctx context.Context, articleText string) (Script, error) {
	if c.gen == nil {
		return Script{}, services.Wrap(services.ErrConfiguration, "script", "compose", "no generator configured", nil)
	}
	system, err := SystemPrompt(c.show, c.targetMinutes)
	if err != nil {
		return Script{}, services.Wrap(services.ErrConfiguration, "script", "compose", "", err)
	}
	user := UserPrompt(articleText, c.maxArticleChars)

	logger := logging.WithContext(ctx, c.logger)
	started := time.Now()
	policy := c.policy
	attempt := 0
	raw, err := services.Retry(ctx, policy, "generate script", func(callCtx context.Context) (string, error) {
		attempt++
		out, err := c.gen.Generate(callCtx, system, user)
		if err != nil && services.IsTransient(err) {
			logging.WarnWithContext(logger, "script generation attempt failed", "generate_retry",
				logging.Int("attempt", attempt),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "provider is throttling or unavailable; retrying with backoff"),
			)
		}
		return out, err
	})
	if err != nil {
		if errors.Is(err, services.ErrService) || errors.Is(err, services.ErrConfiguration) || errors.Is(err, context.Canceled) {
			return Script{}, err
		}
		return Script{}, services.Wrap(services.ErrService, "script", "generate", "", err)
	}

	parsed, err := Parse(raw, c.show.Roles())
	if err != nil {
		return Script{}, services.Wrap(services.ErrScriptParse, "script", "parse", "", err)
	}
	logger.Info("script composed",
		logging.Int("lines", parsed.Len()),
		logging.Int("words", parsed.Words()),
		logging.Int("attempts", attempt),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "script_composed"),
	)
	return parsed, nil
}
