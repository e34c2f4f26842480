package stitch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"feedcaster/internal/synth"
)

func TestArgsEndWithTaggedOutput(t *testing.T) {
	s := &Stitcher{binary: "ffmpeg", bitrate: "64k", sampleRate: 24000}
	layout, err := Plan(nil, []synth.Clip{
		{Path: "a.mp3", Duration: time.Second},
		{Path: "b.mp3", Duration: time.Second},
	}, 400*time.Millisecond)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	meta := Metadata{Title: "Episode", Artist: "RSS Podcast Maker", Album: "Tech", Published: time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)}

	args, err := s.Args(layout, "/tmp/out.mp3", meta)
	if err != nil {
		t.Fatalf("Args: %v", err)
	}
	if args[len(args)-1] != "/tmp/out.mp3" {
		t.Fatalf("output must be last, got %q", args[len(args)-1])
	}
	joined := strings.Join(args, " ")
	for _, want := range []string{"-y", "-i a.mp3", "-i b.mp3", "lavfi", "anullsrc", "-metadata title=Episode", "-metadata date=2026-02-03", "-metadata album=Tech", "libmp3lame", "64k"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in args: %s", want, joined)
		}
	}
	if strings.Contains(joined, "comment=") {
		t.Fatalf("empty tags must be omitted: %s", joined)
	}
}

func TestParseProbeDuration(t *testing.T) {
	d, err := parseProbeDuration(`{"format": {"duration": "12.3456"}}`)
	if err != nil {
		t.Fatalf("parseProbeDuration: %v", err)
	}
	if d != 12346*time.Millisecond {
		t.Fatalf("unexpected duration %s", d)
	}
	if _, err := parseProbeDuration(`{"format": {}}`); err == nil {
		t.Fatal("expected missing duration to fail")
	}
}

func TestProbeTimeoutFollowsContext(t *testing.T) {
	timeout, err := probeTimeout(context.Background(), 30*time.Second)
	if err != nil || timeout != 30*time.Second {
		t.Fatalf("no deadline: got %v, %v", timeout, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	timeout, err = probeTimeout(ctx, 30*time.Second)
	if err != nil || timeout <= 0 || timeout > 2*time.Second {
		t.Fatalf("near deadline: got %v, %v", timeout, err)
	}

	canceled, stop := context.WithCancel(context.Background())
	stop()
	if _, err := probeTimeout(canceled, 30*time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled context error, got %v", err)
	}
}

func TestProberStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &Prober{binary: "ffprobe", timeout: time.Second}
	if _, err := p.Duration(ctx, "/nonexistent/clip.mp3"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled error before ffprobe runs, got %v", err)
	}
}
