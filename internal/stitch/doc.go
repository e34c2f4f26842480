// Package stitch assembles an episode from its intro and line clips.
//
// Plan is pure: the same clips and pause always yield the same segment layout
// and total duration (intro + clips + pause between consecutive clips). The
// ffmpeg-backed Stitcher renders a Layout to a tagged MP3; Prober measures
// clip durations with ffprobe.
package stitch
