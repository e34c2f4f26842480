// Package tts calls an OpenAI-compatible speech endpoint and returns encoded
// audio for one line of dialogue.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"feedcaster/internal/services"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1/audio/speech"
	defaultModel       = "tts-1"
	defaultFormat      = "mp3"
	defaultHTTPTimeout = 120 * time.Second
	maxInputChars      = 4096
)

// Config captures the speech endpoint settings.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Format         string
	TimeoutSeconds int
}

// Client synthesizes speech.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient builds a client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if strings.TrimSpace(cfg.Format) == "" {
		cfg.Format = defaultFormat
	}
	if httpClient == nil {
		timeout := defaultHTTPTimeout
		if cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

// Format returns the container format of synthesized clips (mp3, wav, ...).
func (c *Client) Format() string { return c.cfg.Format }

// Model returns the speech model requests are sent with.
func (c *Client) Model() string { return c.cfg.Model }

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type statusError struct {
	StatusCode int
	Body       string
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	body := strings.Join(strings.Fields(e.Body), " ")
	if len(body) > 160 {
		body = body[:160] + "..."
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, body)
}

func (e *statusError) RetryAfter() time.Duration { return e.retryAfter }

// Synthesize renders text in voice and returns the encoded audio.
func (c *Client) Synthesize(ctx context.Context, voice, text string) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "synthesize", "tts", "api key required", nil)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, services.Wrap(services.ErrSynthesis, "synthesize", "tts", "empty text", nil)
	}
	if len([]rune(text)) > maxInputChars {
		return nil, services.Wrap(services.ErrSynthesis, "synthesize", "tts",
			fmt.Sprintf("line exceeds %d characters", maxInputChars), nil)
	}

	payload, err := json.Marshal(speechRequest{
		Model:          c.cfg.Model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: c.cfg.Format,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrSynthesis, "synthesize", "tts", "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, services.Wrap(services.ErrSynthesis, "synthesize", "tts", "new request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter := time.Duration(0)
		if secs, convErr := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); convErr == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		return nil, classify(&statusError{StatusCode: resp.StatusCode, Body: string(body), retryAfter: retryAfter})
	}
	if len(body) == 0 {
		return nil, services.Transient(services.Wrap(services.ErrService, "synthesize", "tts", "empty audio", nil))
	}
	return body, nil
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	wrapped := services.Wrap(services.ErrService, "synthesize", "tts", "", err)
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		code := statusErr.StatusCode
		if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
			return services.Transient(wrapped)
		}
		return wrapped
	}
	// Transport failures such as timeouts, resets and refused connections.
	return services.Transient(wrapped)
}
