package script_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"feedcaster/internal/script"
	"feedcaster/internal/services"
)

var roles = []string{"HOST_A", "HOST_B"}

func TestParsePreservesOrder(t *testing.T) {
	raw := "HOST_A: Welcome back.\n\nHOST_B: Thanks, glad to be here.\nHOST_A:Let's dig in."
	got, err := script.Parse(raw, roles)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []script.Line{
		{Index: 0, Role: "HOST_A", Text: "Welcome back."},
		{Index: 1, Role: "HOST_B", Text: "Thanks, glad to be here."},
		{Index: 2, Role: "HOST_A", Text: "Let's dig in."},
	}
	if len(got.Lines) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(got.Lines))
	}
	for i := range want {
		if got.Lines[i] != want[i] {
			t.Fatalf("line %d: want %#v, got %#v", i, want[i], got.Lines[i])
		}
	}
}

func TestParseAcceptsMarkdownSpeakers(t *testing.T) {
	got, err := script.Parse("**HOST_A:** Bold opener\n**HOST_B:** Bold reply", roles)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Lines[0].Text != "Bold opener" || got.Lines[1].Role != "HOST_B" {
		t.Fatalf("unexpected lines %#v", got.Lines)
	}
}

func TestParseRejectsWholeScriptOnMalformedLine(t *testing.T) {
	raw := "HOST_A: First line.\nThis line has no speaker.\nHOST_B: Third line."
	_, err := script.Parse(raw, roles)
	if err == nil {
		t.Fatal("expected malformed line to reject the script")
	}
	if !errors.Is(err, services.ErrScriptParse) {
		t.Fatalf("expected script parse error, got %v", err)
	}
	var pe *script.ParseError
	if !errors.As(err, &pe) || pe.Line != 2 {
		t.Fatalf("expected failure on line 2, got %v", err)
	}
}

func TestParseRejections(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		reason string
	}{
		{"empty", "   \n\n", "no dialogue"},
		{"unknown role", "HOST_A: hi\nHOST_C: who am I", "unknown speaker HOST_C"},
		{"lowercase token", "host_a: hi", "missing speaker token"},
		{"unbalanced markdown", "**HOST_A: hi", "missing speaker token"},
		{"consecutive empties", "HOST_A: hi\nHOST_B:\nHOST_A:\nHOST_B: ok", "consecutive empty"},
		{"only silence", "HOST_A:", "no spoken text"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := script.Parse(tc.raw, roles)
			if err == nil || !strings.Contains(err.Error(), tc.reason) {
				t.Fatalf("expected error containing %q, got %v", tc.reason, err)
			}
			if !script.IsParseError(err) {
				t.Fatalf("expected ParseError, got %T", err)
			}
		})
	}
}

func TestParseAllowsSingleEmptyLine(t *testing.T) {
	got, err := script.Parse("HOST_A: Really?\nHOST_B:\nHOST_A: Nothing to say?", roles)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !got.Lines[1].Empty() || got.Len() != 3 {
		t.Fatalf("unexpected script %#v", got)
	}
}

func TestDisplayName(t *testing.T) {
	if got := script.DisplayName("HOST_A"); got != "Host A" {
		t.Fatalf("expected Host A, got %q", got)
	}
}

func TestRenderIntro(t *testing.T) {
	got, err := script.RenderIntro("We discuss '{{.Title}}' from {{.Feed}} on {{.Date}}.", "Go 2", "Gopher Weekly", "tech",
		time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("RenderIntro: %v", err)
	}
	if got != "We discuss 'Go 2' from Gopher Weekly on May 4, 2026." {
		t.Fatalf("unexpected intro %q", got)
	}
	if _, err := script.RenderIntro("{{.Missing}}", "t", "f", "s", time.Now()); err == nil {
		t.Fatal("expected unknown field to fail")
	}
}
