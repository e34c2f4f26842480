package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"feedcaster/internal/config"
	"feedcaster/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventRunCompleted, notifications.Payload{"published": 1}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "episode published",
			event: notifications.EventEpisodePublished,
			payload: notifications.Payload{
				"show":     "Tech Digest",
				"title":    "Chips and tariffs",
				"duration": 754 * time.Second,
			},
			expectTitle:   "Feedcaster - Episode Published",
			expectMessage: "🎙️ New episode on Tech Digest: Chips and tariffs (12m34s)",
			expectTags:    "feedcaster,episode,published",
		},
		{
			name:  "show failed",
			event: notifications.EventShowFailed,
			payload: notifications.Payload{
				"show":  "tech",
				"error": errors.New("configuration error: missing voice"),
			},
			expectTitle:    "Feedcaster - Show Failed",
			expectMessage:  "❌ Show tech failed: configuration error: missing voice",
			expectTags:     "feedcaster,show,error",
			expectPriority: "high",
		},
		{
			name:  "run completed with failures",
			event: notifications.EventRunCompleted,
			payload: notifications.Payload{
				"published": 2,
				"failed":    1,
				"skipped":   0,
				"duration":  90 * time.Second,
			},
			expectTitle:   "Feedcaster - Run Complete (with errors)",
			expectMessage: "Run complete: 2 published, 1 failed, 0 skipped in 1m30s",
			expectTags:    "feedcaster,run,completed",
		},
		{
			name:           "run aborted",
			event:          notifications.EventRunAborted,
			payload:        notifications.Payload{"error": "store error: disk full"},
			expectTitle:    "Feedcaster - Run Aborted",
			expectMessage:  "🛑 Run aborted: store error: disk full",
			expectTags:     "feedcaster,run,alert",
			expectPriority: "urgent",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonoursSwitches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.Header.Get("Title"))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.RunSummary = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	suppressed := []notifications.Event{
		notifications.EventRunCompleted,
		notifications.EventShowFailed,
		notifications.EventRunAborted,
		notifications.Event("unknown"),
	}
	for _, event := range suppressed {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"value": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
