package stitch_test

import (
	"testing"
	"time"

	"feedcaster/internal/stitch"
	"feedcaster/internal/synth"
)

func TestPlanTotalDuration(t *testing.T) {
	intro := &synth.Clip{Index: -1, Path: "intro.mp3", Duration: 5 * time.Second}
	clips := []synth.Clip{
		{Index: 0, Path: "0000_HOST_A.mp3", Duration: 3 * time.Second},
		{Index: 1, Path: "0001_HOST_B.mp3", Duration: 4 * time.Second},
	}

	layout, err := stitch.Plan(intro, clips, time.Second)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if layout.Total != 13*time.Second {
		t.Fatalf("expected 13s, got %s", layout.Total)
	}

	wantKinds := []stitch.SegmentKind{stitch.SegmentIntro, stitch.SegmentClip, stitch.SegmentPause, stitch.SegmentClip}
	wantStarts := []time.Duration{0, 5 * time.Second, 8 * time.Second, 9 * time.Second}
	if len(layout.Segments) != len(wantKinds) {
		t.Fatalf("expected %d segments, got %#v", len(wantKinds), layout.Segments)
	}
	for i, seg := range layout.Segments {
		if seg.Kind != wantKinds[i] || seg.Start != wantStarts[i] {
			t.Fatalf("segment %d: got %s@%s, want %s@%s", i, seg.Kind, seg.Start, wantKinds[i], wantStarts[i])
		}
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	clips := []synth.Clip{
		{Index: 0, Path: "a", Duration: 1500 * time.Millisecond},
		{Index: 1, Silent: true, Duration: 400 * time.Millisecond},
		{Index: 2, Path: "c", Duration: 2 * time.Second},
	}
	first, err := stitch.Plan(nil, clips, 400*time.Millisecond)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	second, _ := stitch.Plan(nil, clips, 400*time.Millisecond)
	if first.Total != second.Total || len(first.Segments) != len(second.Segments) {
		t.Fatalf("plans differ: %#v vs %#v", first, second)
	}
	for i := range first.Segments {
		if first.Segments[i] != second.Segments[i] {
			t.Fatalf("segment %d differs", i)
		}
	}
	// 1.5 + 0.4 + 2 + two pauses of 0.4
	if first.Total != 4700*time.Millisecond {
		t.Fatalf("expected 4.7s, got %s", first.Total)
	}
}

func TestPlanKeepsLineOrder(t *testing.T) {
	clips := make([]synth.Clip, 6)
	for i := range clips {
		clips[i] = synth.Clip{Index: i, Path: string(rune('a' + i)), Duration: time.Second}
	}
	clips[3] = synth.Clip{Index: 3, Silent: true, Duration: time.Second}

	layout, err := stitch.Plan(nil, clips, 0)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	lines := layout.Lines()
	if len(lines) != len(clips) {
		t.Fatalf("expected %d line segments, got %d", len(clips), len(lines))
	}
	for k, seg := range lines {
		if seg.Index != k {
			t.Fatalf("line segment %d carries index %d", k, seg.Index)
		}
	}
	if lines[3].Kind != stitch.SegmentSilence {
		t.Fatalf("expected silent beat at line 3, got %s", lines[3].Kind)
	}
}

func TestPlanRejectsBadInput(t *testing.T) {
	if _, err := stitch.Plan(nil, nil, time.Second); err == nil {
		t.Fatal("expected error for no clips")
	}
	if _, err := stitch.Plan(nil, []synth.Clip{{Duration: time.Second}}, time.Second); err == nil {
		t.Fatal("expected error for clip without file")
	}
	if _, err := stitch.Plan(&synth.Clip{Path: "i"}, []synth.Clip{{Path: "a", Duration: time.Second}}, 0); err == nil {
		t.Fatal("expected error for zero-length intro")
	}
}
