package script_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"feedcaster/internal/script"
	"feedcaster/internal/services"
	"feedcaster/internal/testsupport"
)

type scriptedGenerator struct {
	replies []string
	errs    []error
	calls   int
	system  string
	user    string
}

func (g *scriptedGenerator) Generate(_ context.Context, system, user string) (string, error) {
	i := g.calls
	g.calls++
	g.system, g.user = system, user
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(g.replies) {
		return g.replies[i], nil
	}
	return g.replies[len(g.replies)-1], nil
}

func noSleep(time.Duration) {}

func newComposer(t *testing.T, gen script.Generator, attempts int) *script.Composer {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Generation.MaxArticleChars = 40
	policy := services.RetryPolicy{Attempts: attempts, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Sleeper: noSleep}
	return script.NewComposer(cfg, cfg.Shows[0], gen, script.WithRetryPolicy(policy))
}

func TestComposeReturnsParsedScript(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"HOST_A: Hello\nHOST_B: Hi"}}
	composer := newComposer(t, gen, 3)

	got, err := composer.Compose(context.Background(), strings.Repeat("article ", 20))
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if got.Len() != 2 || got.Lines[1].Text != "Hi" {
		t.Fatalf("unexpected script %#v", got)
	}
	if !strings.Contains(gen.system, "'HOST_A:' or 'HOST_B:'") || !strings.Contains(gen.system, "Host B (HOST_B) is expert guest") {
		t.Fatalf("system prompt missing role instructions:\n%s", gen.system)
	}
	if len([]rune(strings.TrimPrefix(gen.user, "Here is the article text:\n\n"))) != 40 {
		t.Fatalf("expected article truncated to 40 chars, got %q", gen.user)
	}
}

func TestComposeRetriesTransientFailures(t *testing.T) {
	transient := services.Transient(services.Wrap(services.ErrService, "generate", "fake", "503", nil))
	gen := &scriptedGenerator{
		errs:    []error{transient, transient, nil},
		replies: []string{"", "", "HOST_A: third time lucky\nHOST_B: indeed"},
	}
	composer := newComposer(t, gen, 3)

	if _, err := composer.Compose(context.Background(), "text"); err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if gen.calls != 3 {
		t.Fatalf("expected 3 generation calls, got %d", gen.calls)
	}
}

func TestComposeEscalatesAfterRetryCap(t *testing.T) {
	transient := services.Transient(services.Wrap(services.ErrService, "generate", "fake", "503", nil))
	gen := &scriptedGenerator{errs: []error{transient, transient, transient, transient}}
	composer := newComposer(t, gen, 3)

	_, err := composer.Compose(context.Background(), "text")
	if !errors.Is(err, services.ErrService) {
		t.Fatalf("expected service error, got %v", err)
	}
	if gen.calls != 3 {
		t.Fatalf("expected attempt cap of 3, got %d calls", gen.calls)
	}
	if services.KindOf(err) != services.KindService {
		t.Fatalf("expected service kind, got %s", services.KindOf(err))
	}
}

func TestComposeDoesNotRetryMalformedReply(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"HOST_A: fine\nNarrator: not allowed"}}
	composer := newComposer(t, gen, 3)

	_, err := composer.Compose(context.Background(), "text")
	if !errors.Is(err, services.ErrScriptParse) {
		t.Fatalf("expected script parse error, got %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("parse failures must not be retried, got %d calls", gen.calls)
	}
}

func TestComposeUsesShowTargetLength(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	show := cfg.Shows[0]
	show.Generation.TargetLengthMinutes = 3
	gen := &scriptedGenerator{replies: []string{"HOST_A: Short one\nHOST_B: Indeed"}}
	policy := services.RetryPolicy{Attempts: 1, Sleeper: noSleep}

	composer := script.NewComposer(cfg.ForShow(show), show, gen, script.WithRetryPolicy(policy))
	if _, err := composer.Compose(context.Background(), "text"); err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !strings.Contains(gen.system, "approximately 3 minutes") || !strings.Contains(gen.system, "around 450 words") {
		t.Fatalf("show target length not applied:\n%s", gen.system)
	}
}
