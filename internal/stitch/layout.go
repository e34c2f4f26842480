package stitch

import (
	"errors"
	"fmt"
	"time"

	"feedcaster/internal/synth"
)

// SegmentKind names what a segment of the layout plays.
type SegmentKind string

const (
	SegmentIntro   SegmentKind = "intro"
	SegmentClip    SegmentKind = "clip"
	SegmentSilence SegmentKind = "silence"
	SegmentPause   SegmentKind = "pause"
)

// Segment is one contiguous stretch of the episode.
type Segment struct {
	Kind     SegmentKind
	Index    int
	Path     string
	Start    time.Duration
	Duration time.Duration
}

// Audible reports whether the segment is backed by a file.
func (s Segment) Audible() bool {
	return s.Kind == SegmentIntro || s.Kind == SegmentClip
}

// Layout is the ordered plan of an episode.
type Layout struct {
	Segments []Segment
	Total    time.Duration
}

// Lines returns the clip segments in order; silent beats are included.
func (l Layout) Lines() []Segment {
	out := make([]Segment, 0, len(l.Segments))
	for _, seg := range l.Segments {
		if seg.Kind == SegmentClip || seg.Kind == SegmentSilence {
			out = append(out, seg)
		}
	}
	return out
}

// Plan lays out intro, then the clips in order separated by pause. intro may
// be nil. Total = intro + sum(clips) + pause*(len(clips)-1).
func Plan(intro *synth.Clip, clips []synth.Clip, pause time.Duration) (Layout, error) {
	if len(clips) == 0 {
		return Layout{}, errors.New("plan: no clips")
	}
	if pause < 0 {
		return Layout{}, errors.New("plan: negative pause")
	}

	var (
		layout Layout
		cursor time.Duration
	)
	add := func(seg Segment) {
		seg.Start = cursor
		cursor += seg.Duration
		layout.Segments = append(layout.Segments, seg)
	}

	if intro != nil {
		if intro.Path == "" || intro.Duration <= 0 {
			return Layout{}, errors.New("plan: intro needs a file and a positive duration")
		}
		add(Segment{Kind: SegmentIntro, Index: -1, Path: intro.Path, Duration: intro.Duration})
	}
	for i, clip := range clips {
		if clip.Duration < 0 {
			return Layout{}, fmt.Errorf("plan: clip %d has negative duration", i)
		}
		if i > 0 && pause > 0 {
			add(Segment{Kind: SegmentPause, Index: i, Duration: pause})
		}
		if clip.Silent {
			add(Segment{Kind: SegmentSilence, Index: i, Duration: clip.Duration})
			continue
		}
		if clip.Path == "" {
			return Layout{}, fmt.Errorf("plan: clip %d has no audio file", i)
		}
		add(Segment{Kind: SegmentClip, Index: i, Path: clip.Path, Duration: clip.Duration})
	}
	layout.Total = cursor
	return layout, nil
}
