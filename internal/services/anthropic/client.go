// Package anthropic adapts the Anthropic Messages API to the script generator
// contract.
package anthropic

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"feedcaster/internal/services"
)

const (
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 4096
)

// Config holds the Anthropic credentials and generation limits.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxTokens      int
	TimeoutSeconds int
}

// Client generates text with the Messages endpoint.
type Client struct {
	messages  messenger
	model     string
	maxTokens int64
	hasKey    bool
}

type messenger interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// NewClient builds a client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := 180 * time.Second
		if cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
		// services.Retry owns backoff.
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	sdk := anthropic.NewClient(opts...)

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		messages:  &sdk.Messages,
		model:     model,
		maxTokens: maxTokens,
		hasKey:    strings.TrimSpace(cfg.APIKey) != "",
	}
}

// Name identifies the provider in logs.
func (c *Client) Name() string { return "anthropic" }

// Generate sends one message request with the system prompt set apart.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if !c.hasKey {
		return "", services.Wrap(services.ErrConfiguration, "generate", "anthropic", "api key required", nil)
	}
	userPrompt = strings.TrimSpace(userPrompt)
	if userPrompt == "" {
		return "", services.Wrap(services.ErrService, "generate", "anthropic", "user prompt required", nil)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if system := strings.TrimSpace(systemPrompt); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.messages.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	var b strings.Builder
	if resp != nil {
		for _, block := range resp.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", services.Transient(services.Wrap(services.ErrService, "generate", "anthropic", "empty reply", nil))
	}
	return text, nil
}

// HealthCheck sends a minimal request to verify the key and model.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.Generate(ctx, "", "Reply with the single word OK.")
	return err
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	wrapped := services.Wrap(services.ErrService, "generate", "anthropic", "", err)
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		code := apiErr.StatusCode
		// 529 is the API's overloaded status.
		if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
			return services.Transient(wrapped)
		}
		return wrapped
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Transient(wrapped)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return services.Transient(wrapped)
	}
	return wrapped
}
