package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"feedcaster/internal/services"
)

func completionServer(t *testing.T, handler func(w http.ResponseWriter, req chatCompletionRequest)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("unexpected authorization header %q", got)
		}
		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		handler(w, req)
	}))
	t.Cleanup(server.Close)
	return server
}

func reply(w http.ResponseWriter, content string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"content": content}},
		},
	})
}

func TestGenerateReturnsContent(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, req chatCompletionRequest) {
		if req.Model != "demo-model" {
			t.Errorf("unexpected model %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "article" {
			t.Errorf("unexpected messages %#v", req.Messages)
		}
		if req.MaxTokens != 900 {
			t.Errorf("expected max_tokens 900, got %d", req.MaxTokens)
		}
		reply(w, "HOST_A: Hello\nHOST_B: Hi")
	})

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model", MaxTokens: 900})
	got, err := client.Generate(context.Background(), "system", "article")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if got != "HOST_A: Hello\nHOST_B: Hi" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestGenerateMarksServerErrorsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	_, err := client.Generate(context.Background(), "", "article")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrService) || !services.IsTransient(err) {
		t.Fatalf("expected transient service error, got %v", err)
	}
	var hinted services.RetryAfterer
	if !errors.As(err, &hinted) || hinted.RetryAfter() != 7*time.Second {
		t.Fatalf("expected retry-after hint of 7s, got %v", err)
	}
}

func TestGenerateClientErrorsAreNotRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	_, err := client.Generate(context.Background(), "", "article")
	if !errors.Is(err, services.ErrService) {
		t.Fatalf("expected service error, got %v", err)
	}
	if services.IsTransient(err) {
		t.Fatalf("401 must not be transient: %v", err)
	}
}

func TestGenerateEmptyReplyIsTransient(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, _ chatCompletionRequest) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": ""}, "finish_reason": "length"}},
		})
	})

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	_, err := client.Generate(context.Background(), "", "article")
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestGenerateRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{Model: "demo"})
	_, err := client.Generate(context.Background(), "", "article")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, _ chatCompletionRequest) {
		reply(w, "OK")
	})
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d, ok := parseRetryAfter("3"); !ok || d != 3*time.Second {
		t.Fatalf("expected 3s, got %v %v", d, ok)
	}
	if _, ok := parseRetryAfter("soon"); ok {
		t.Fatal("expected invalid value to be rejected")
	}
}
