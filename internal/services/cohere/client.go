// Package cohere adapts the Cohere chat API to the script generator contract.
package cohere

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/cohere-ai/cohere-go/v2/core"

	"feedcaster/internal/services"
)

const defaultModel = "command-r-plus"

// Config holds the Cohere credentials and generation limits.
type Config struct {
	APIKey         string
	Model          string
	MaxTokens      int
	TimeoutSeconds int
}

// Client generates text with Cohere's chat endpoint.
type Client struct {
	chat      chatter
	model     string
	maxTokens int
	hasKey    bool
}

type chatter interface {
	Chat(ctx context.Context, request *cohere.ChatRequest) (*cohere.NonStreamedChatResponse, error)
}

type sdkChatter struct {
	client *cohereclient.Client
}

func (s sdkChatter) Chat(ctx context.Context, request *cohere.ChatRequest) (*cohere.NonStreamedChatResponse, error) {
	return s.client.Chat(ctx, request)
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
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	return &Client{
		chat: sdkChatter{client: cohereclient.NewClient(
			cohereclient.WithToken(strings.TrimSpace(cfg.APIKey)),
			cohereclient.WithHTTPClient(httpClient),
		)},
		model:     model,
		maxTokens: cfg.MaxTokens,
		hasKey:    strings.TrimSpace(cfg.APIKey) != "",
	}
}

// Name identifies the provider in logs.
func (c *Client) Name() string { return "cohere" }

// Generate sends one chat request. The system prompt becomes the preamble.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if !c.hasKey {
		return "", services.Wrap(services.ErrConfiguration, "generate", "cohere", "api key required", nil)
	}
	userPrompt = strings.TrimSpace(userPrompt)
	if userPrompt == "" {
		return "", services.Wrap(services.ErrService, "generate", "cohere", "user prompt required", nil)
	}
	req := &cohere.ChatRequest{
		Message: userPrompt,
		Model:   &c.model,
	}
	if preamble := strings.TrimSpace(systemPrompt); preamble != "" {
		req.Preamble = &preamble
	}
	if c.maxTokens > 0 {
		maxTokens := c.maxTokens
		req.MaxTokens = &maxTokens
	}

	resp, err := c.chat.Chat(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	text := ""
	if resp != nil {
		text = strings.TrimSpace(resp.Text)
	}
	if text == "" {
		return "", services.Transient(services.Wrap(services.ErrService, "generate", "cohere", "empty reply", nil))
	}
	return text, nil
}

// HealthCheck sends a minimal chat request to verify the key and model.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.Generate(ctx, "", "Reply with the single word OK.")
	return err
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	wrapped := services.Wrap(services.ErrService, "generate", "cohere", "", err)
	var apiErr *core.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.StatusCode
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
