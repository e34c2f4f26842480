package cohere

import (
	"context"
	"errors"
	"net/http"
	"testing"

	cohere "github.com/cohere-ai/cohere-go/v2"
	"github.com/cohere-ai/cohere-go/v2/core"

	"feedcaster/internal/services"
)

type fakeChatter struct {
	resp *cohere.NonStreamedChatResponse
	err  error
	got  *cohere.ChatRequest
}

func (f *fakeChatter) Chat(_ context.Context, req *cohere.ChatRequest) (*cohere.NonStreamedChatResponse, error) {
	f.got = req
	return f.resp, f.err
}

func TestGenerateUsesPreambleAndModel(t *testing.T) {
	fake := &fakeChatter{resp: &cohere.NonStreamedChatResponse{Text: "HOST_A: Hi\nHOST_B: Hello"}}
	client := &Client{chat: fake, model: "command-r", maxTokens: 500, hasKey: true}

	got, err := client.Generate(context.Background(), "you write scripts", "article body")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "HOST_A: Hi\nHOST_B: Hello" {
		t.Fatalf("unexpected text %q", got)
	}
	if fake.got.Message != "article body" || fake.got.Preamble == nil || *fake.got.Preamble != "you write scripts" {
		t.Fatalf("unexpected request %#v", fake.got)
	}
	if fake.got.Model == nil || *fake.got.Model != "command-r" || fake.got.MaxTokens == nil || *fake.got.MaxTokens != 500 {
		t.Fatalf("unexpected model settings %#v", fake.got)
	}
}

func TestGenerateClassifiesAPIErrors(t *testing.T) {
	throttled := &fakeChatter{err: &core.APIError{StatusCode: http.StatusTooManyRequests}}
	client := &Client{chat: throttled, model: "m", hasKey: true}
	_, err := client.Generate(context.Background(), "", "x")
	if !errors.Is(err, services.ErrService) || !services.IsTransient(err) {
		t.Fatalf("expected transient service error, got %v", err)
	}

	rejected := &fakeChatter{err: &core.APIError{StatusCode: http.StatusBadRequest}}
	client = &Client{chat: rejected, model: "m", hasKey: true}
	_, err = client.Generate(context.Background(), "", "x")
	if !errors.Is(err, services.ErrService) || services.IsTransient(err) {
		t.Fatalf("expected permanent service error, got %v", err)
	}
}

func TestGenerateWithoutKeyIsConfigurationError(t *testing.T) {
	client := NewClient(Config{}, nil)
	if _, err := client.Generate(context.Background(), "", "x"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
