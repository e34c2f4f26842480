package synth_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"feedcaster/internal/script"
	"feedcaster/internal/services"
	"feedcaster/internal/synth"
	"feedcaster/internal/testsupport"
)

type fakeSpeaker struct {
	mu     sync.Mutex
	calls  []string
	failOn string
}

func (f *fakeSpeaker) Synthesize(_ context.Context, voice, text string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, voice+"|"+text)
	f.mu.Unlock()
	if f.failOn != "" && text == f.failOn {
		return nil, services.Wrap(services.ErrService, "synthesize", "fake", "bad voice", nil)
	}
	// Reverse-proportional delay shuffles completion order.
	time.Sleep(time.Duration(10-len(text)%10) * time.Millisecond)
	return []byte(text), nil
}

// lengthProber reports one second per byte of file content.
type lengthProber struct{}

func (lengthProber) Duration(_ context.Context, path string) (time.Duration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return time.Duration(len(data)) * time.Second, nil
}

func newSynth(t *testing.T, speaker synth.Speaker) *synth.Synthesizer {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.SynthesisWorkers = 4
	cfg.Audio.PauseMS = 1000
	policy := services.RetryPolicy{Attempts: 2, Sleeper: func(time.Duration) {}}
	return synth.New(cfg, cfg.Shows[0], speaker, lengthProber{}, synth.WithRetryPolicy(policy))
}

func lines(texts ...string) []script.Line {
	out := make([]script.Line, len(texts))
	for i, text := range texts {
		role := "HOST_A"
		if i%2 == 1 {
			role = "HOST_B"
		}
		out[i] = script.Line{Index: i, Role: role, Text: text}
	}
	return out
}

func TestLinesPreserveOrder(t *testing.T) {
	speaker := &fakeSpeaker{}
	s := newSynth(t, speaker)
	dir := t.TempDir()
	input := lines("a", "bb", "ccc", "dddd", "eeeee", "ffffff", "ggggggg", "hhhhhhhh")

	clips, err := s.Lines(context.Background(), dir, input)
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if len(clips) != len(input) {
		t.Fatalf("expected %d clips, got %d", len(input), len(clips))
	}
	for k, clip := range clips {
		if clip.Index != k || clip.Role != input[k].Role {
			t.Fatalf("clip %d out of place: %#v", k, clip)
		}
		data, err := os.ReadFile(clip.Path)
		if err != nil {
			t.Fatalf("read clip %d: %v", k, err)
		}
		if string(data) != input[k].Text {
			t.Fatalf("clip %d holds %q, want %q", k, data, input[k].Text)
		}
		if clip.Duration != time.Duration(len(input[k].Text))*time.Second {
			t.Fatalf("clip %d duration %s", k, clip.Duration)
		}
	}
	if !strings.HasPrefix(speaker.calls[0], "alloy|") && !strings.HasPrefix(speaker.calls[0], "nova|") {
		t.Fatalf("unexpected voice in call %q", speaker.calls[0])
	}
}

func TestLinesFailureDiscardsEverything(t *testing.T) {
	speaker := &fakeSpeaker{failOn: "broken"}
	s := newSynth(t, speaker)
	dir := t.TempDir()

	clips, err := s.Lines(context.Background(), dir, lines("one", "two", "broken", "four"))
	if err == nil {
		t.Fatal("expected synthesis failure")
	}
	if !errors.Is(err, services.ErrSynthesis) {
		t.Fatalf("expected synthesis error, got %v", err)
	}
	if services.KindOf(err) != services.KindSynthesis {
		t.Fatalf("expected synthesis kind, got %s", services.KindOf(err))
	}
	if clips != nil {
		t.Fatalf("expected no clips, got %#v", clips)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected partial clips to be removed, found %d files", len(entries))
	}
}

func TestEmptyLineBecomesSilentBeat(t *testing.T) {
	speaker := &fakeSpeaker{}
	s := newSynth(t, speaker)

	clips, err := s.Lines(context.Background(), t.TempDir(), lines("hello", "", "bye"))
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if !clips[1].Silent || clips[1].Duration != time.Second || clips[1].Path != "" {
		t.Fatalf("expected silent one-second beat, got %#v", clips[1])
	}
	if len(speaker.calls) != 2 {
		t.Fatalf("empty line must not reach the speaker, got %d calls", len(speaker.calls))
	}
}

func TestUnknownRoleIsConfigurationError(t *testing.T) {
	s := newSynth(t, &fakeSpeaker{})
	_, err := s.Lines(context.Background(), t.TempDir(), []script.Line{{Role: "HOST_Z", Text: "who"}})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestIntroUsesGivenVoice(t *testing.T) {
	speaker := &fakeSpeaker{}
	s := newSynth(t, speaker)
	dir := t.TempDir()

	clip, err := s.Intro(context.Background(), dir, "alloy", "Welcome")
	if err != nil {
		t.Fatalf("Intro: %v", err)
	}
	if clip.Index != -1 || clip.Duration != 7*time.Second || filepath.Dir(clip.Path) != dir {
		t.Fatalf("unexpected intro clip %#v", clip)
	}
	if speaker.calls[0] != "alloy|Welcome" {
		t.Fatalf("unexpected call %q", speaker.calls[0])
	}
}

func TestRecordedIntroIsCopiedIntoWorkDir(t *testing.T) {
	speaker := &fakeSpeaker{}
	s := newSynth(t, speaker)
	src := filepath.Join(t.TempDir(), "jingle.mp3")
	if err := os.WriteFile(src, []byte("jingle"), 0o644); err != nil {
		t.Fatalf("write intro: %v", err)
	}
	dir := filepath.Join(t.TempDir(), "work")

	clip, err := s.Recorded(context.Background(), dir, src)
	if err != nil {
		t.Fatalf("Recorded: %v", err)
	}
	if filepath.Dir(clip.Path) != dir || filepath.Ext(clip.Path) != ".mp3" {
		t.Fatalf("expected a copy inside the work dir, got %q", clip.Path)
	}
	if clip.Index != -1 || clip.Duration != 6*time.Second {
		t.Fatalf("unexpected recorded clip %#v", clip)
	}
	if err := os.WriteFile(src, []byte("replaced later"), 0o644); err != nil {
		t.Fatalf("rewrite intro: %v", err)
	}
	if data, err := os.ReadFile(clip.Path); err != nil || string(data) != "jingle" {
		t.Fatalf("work copy changed with its source: %q %v", data, err)
	}
	if len(speaker.calls) != 0 {
		t.Fatal("a recorded intro must not call the speaker")
	}

	_, err = s.Recorded(context.Background(), dir, filepath.Join(t.TempDir(), "missing.mp3"))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for a missing intro, got %v", err)
	}
}
