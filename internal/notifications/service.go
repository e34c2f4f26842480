package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"feedcaster/internal/config"
)

const userAgent = "feedcaster/1.0"

// Event names a notification-worthy moment of a run.
type Event string

const (
	EventEpisodePublished Event = "episode_published"
	EventShowFailed       Event = "show_failed"
	EventRunCompleted     Event = "run_completed"
	EventRunAborted       Event = "run_aborted"
	EventTest             Event = "test"
)

// Payload carries the fields an event message is rendered from.
type Payload map[string]any

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case time.Duration:
		return v.Round(time.Second).String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Service publishes run events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		runSummary: cfg.Notifications.RunSummary,
		errors:     cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	runSummary bool
	errors     bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.render(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) render(event Event, p Payload) (message, bool) {
	switch event {
	case EventEpisodePublished:
		body := fmt.Sprintf("🎙️ New episode on %s: %s", p.text("show"), p.text("title"))
		if d := p.text("duration"); d != "" {
			body += " (" + d + ")"
		}
		return message{
			title: "Feedcaster - Episode Published",
			body:  body,
			tags:  []string{"feedcaster", "episode", "published"},
		}, true
	case EventShowFailed:
		if !n.errors {
			return message{}, false
		}
		return message{
			title:    "Feedcaster - Show Failed",
			body:     fmt.Sprintf("❌ Show %s failed: %s", p.text("show"), p.text("error")),
			tags:     []string{"feedcaster", "show", "error"},
			priority: "high",
		}, true
	case EventRunAborted:
		if !n.errors {
			return message{}, false
		}
		return message{
			title:    "Feedcaster - Run Aborted",
			body:     fmt.Sprintf("🛑 Run aborted: %s", p.text("error")),
			tags:     []string{"feedcaster", "run", "alert"},
			priority: "urgent",
		}, true
	case EventRunCompleted:
		if !n.runSummary {
			return message{}, false
		}
		title := "Feedcaster - Run Complete"
		body := fmt.Sprintf("Run complete: %s published, %s failed, %s skipped in %s",
			p.text("published"), p.text("failed"), p.text("skipped"), p.text("duration"))
		if p.text("failed") != "" && p.text("failed") != "0" {
			title = "Feedcaster - Run Complete (with errors)"
		}
		return message{
			title: title,
			body:  body,
			tags:  []string{"feedcaster", "run", "completed"},
		}, true
	case EventTest:
		return message{
			title:    "Feedcaster - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"feedcaster", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
