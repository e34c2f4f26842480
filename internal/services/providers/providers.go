// Package providers builds the generation and speech clients selected in
// configuration.
package providers

import (
	"context"
	"fmt"
	"net/http"

	"feedcaster/internal/config"
	"feedcaster/internal/services"
	"feedcaster/internal/services/anthropic"
	"feedcaster/internal/services/cohere"
	"feedcaster/internal/services/llm"
	"feedcaster/internal/services/tts"
)

// Generator is a text-generation client that can verify its credentials.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	HealthCheck(ctx context.Context) error
	Name() string
}

// NewGenerator returns the client for cfg.Generation.Provider. httpClient may
// be nil.
func NewGenerator(cfg *config.Config, httpClient *http.Client) (Generator, error) {
	g := cfg.Generation
	switch g.Provider {
	case "anthropic":
		return anthropic.NewClient(anthropic.Config{
			APIKey:         g.APIKey,
			BaseURL:        g.BaseURL,
			Model:          g.Model,
			MaxTokens:      g.MaxTokens,
			TimeoutSeconds: g.TimeoutSeconds,
		}, httpClient), nil
	case "cohere":
		return cohere.NewClient(cohere.Config{
			APIKey:         g.APIKey,
			Model:          g.Model,
			MaxTokens:      g.MaxTokens,
			TimeoutSeconds: g.TimeoutSeconds,
		}, httpClient), nil
	case "openai", "openrouter":
		return llm.NewClient(llm.Config{
			APIKey:         g.APIKey,
			BaseURL:        g.BaseURL,
			Model:          g.Model,
			Referer:        g.Referer,
			Title:          g.Title,
			MaxTokens:      g.MaxTokens,
			TimeoutSeconds: g.TimeoutSeconds,
		}, llm.WithHTTPClient(httpClient)), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "providers", "generator",
			fmt.Sprintf("unknown provider %q", g.Provider), nil)
	}
}

// NewSpeaker returns the speech client. httpClient may be nil.
func NewSpeaker(cfg *config.Config, httpClient *http.Client) *tts.Client {
	s := cfg.Speech
	return tts.NewClient(tts.Config{
		APIKey:         s.APIKey,
		BaseURL:        s.BaseURL,
		Model:          s.Model,
		Format:         s.Format,
		TimeoutSeconds: s.TimeoutSeconds,
	}, httpClient)
}
