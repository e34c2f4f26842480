package stitch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"feedcaster/internal/config"
	"feedcaster/internal/logging"
	"feedcaster/internal/services"
)

// Metadata is written into the episode's ID3 tags.
type Metadata struct {
	Title     string
	Artist    string
	Album     string
	Comment   string
	Published time.Time
}

func (m Metadata) args() []string {
	pairs := []struct{ key, value string }{
		{"title", m.Title},
		{"artist", m.Artist},
		{"album", m.Album},
		{"genre", "Podcast"},
		{"comment", m.Comment},
	}
	if !m.Published.IsZero() {
		pairs = append(pairs, struct{ key, value string }{"date", m.Published.UTC().Format("2006-01-02")})
	}
	args := make([]string, 0, len(pairs)*2)
	for _, p := range pairs {
		value := strings.TrimSpace(strings.ReplaceAll(p.value, "\n", " "))
		if value == "" {
			continue
		}
		args = append(args, "-metadata", p.key+"="+value)
	}
	return args
}

// Artifact is a rendered episode file.
type Artifact struct {
	Path     string
	Bytes    int64
	Duration time.Duration
}

// Stitcher renders layouts with ffmpeg.
type Stitcher struct {
	binary     string
	bitrate    string
	sampleRate int
	logger     *slog.Logger
}

// NewStitcher builds a stitcher from the audio settings in cfg.
func NewStitcher(cfg *config.Config, logger *slog.Logger) *Stitcher {
	sampleRate := cfg.Audio.SampleRate
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	bitrate := cfg.Audio.Bitrate
	if bitrate == "" {
		bitrate = "64k"
	}
	return &Stitcher{
		binary:     cfg.FFmpegBinary(),
		bitrate:    bitrate,
		sampleRate: sampleRate,
		logger:     logging.NewComponentLogger(logger, "stitch"),
	}
}

// Stitch renders layout into outPath. The reported duration is the planned
// one, which does not depend on encoder rounding.
func (s *Stitcher) Stitch(ctx context.Context, layout Layout, outPath string, meta Metadata) (Artifact, error) {
	args, err := s.Args(layout, outPath, meta)
	if err != nil {
		return Artifact{}, services.Wrap(services.ErrSynthesis, "stitch", "plan", "", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return Artifact{}, services.Wrap(services.ErrSynthesis, "stitch", "prepare", "create output dir", err)
	}

	started := time.Now()
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.binary, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.Remove(outPath)
		if ctx.Err() != nil {
			return Artifact{}, ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 400 {
			detail = detail[len(detail)-400:]
		}
		return Artifact{}, services.Wrap(services.ErrSynthesis, "stitch", "ffmpeg", detail, err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return Artifact{}, services.Wrap(services.ErrSynthesis, "stitch", "ffmpeg", "output missing", err)
	}
	logging.WithContext(ctx, s.logger).Info("episode stitched",
		logging.String("path", outPath),
		logging.Int("segments", len(layout.Segments)),
		logging.Duration("duration", layout.Total),
		logging.Int64("bytes", info.Size()),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "episode_stitched"),
	)
	return Artifact{Path: outPath, Bytes: info.Size(), Duration: layout.Total}, nil
}

// Args returns the ffmpeg arguments that render layout. Every input is
// resampled to the output format before the concat filter.
func (s *Stitcher) Args(layout Layout, outPath string, meta Metadata) ([]string, error) {
	if len(layout.Segments) == 0 {
		return nil, errors.New("empty layout")
	}
	streams := make([]*ffmpeg.Stream, 0, len(layout.Segments))
	for _, seg := range layout.Segments {
		var in *ffmpeg.Stream
		if seg.Audible() {
			in = ffmpeg.Input(seg.Path)
		} else {
			in = ffmpeg.Input(
				fmt.Sprintf("anullsrc=r=%d:cl=mono", s.sampleRate),
				ffmpeg.KwArgs{"f": "lavfi", "t": seconds(seg.Duration)},
			)
		}
		streams = append(streams, in.Audio().Filter("aformat", ffmpeg.Args{}, ffmpeg.KwArgs{
			"sample_rates":    strconv.Itoa(s.sampleRate),
			"channel_layouts": "mono",
		}))
	}

	graph := ffmpeg.Concat(streams, ffmpeg.KwArgs{"v": 0, "a": 1}).
		Output(outPath, ffmpeg.KwArgs{
			"c:a":           "libmp3lame",
			"b:a":           s.bitrate,
			"ar":            s.sampleRate,
			"ac":            1,
			"id3v2_version": 3,
		}).
		GetArgs()
	if len(graph) == 0 || graph[len(graph)-1] != outPath {
		return nil, fmt.Errorf("unexpected ffmpeg argument order: %q", graph)
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-y"}
	args = append(args, graph[:len(graph)-1]...)
	args = append(args, meta.args()...)
	args = append(args, outPath)
	return args, nil
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// defaultProbeTimeout bounds one ffprobe call when the context has no
// earlier deadline.
const defaultProbeTimeout = 30 * time.Second

// Prober measures durations with ffprobe.
type Prober struct {
	binary  string
	timeout time.Duration
}

// NewProber returns a prober using the configured ffprobe binary.
func NewProber(cfg *config.Config) *Prober {
	return &Prober{binary: cfg.FFprobeBinary(), timeout: defaultProbeTimeout}
}

type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration returns the container duration of path.
func (p *Prober) Duration(ctx context.Context, path string) (time.Duration, error) {
	timeout, err := probeTimeout(ctx, p.timeout)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", filepath.Base(path), err)
	}
	var out string
	if p.binary == "" || p.binary == "ffprobe" {
		out, err = ffmpeg.ProbeWithTimeout(path, timeout, ffmpeg.KwArgs{})
	} else {
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		var raw []byte
		raw, err = exec.CommandContext(probeCtx, p.binary,
			"-show_format", "-show_streams", "-of", "json", path).Output()
		out = string(raw)
	}
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", filepath.Base(path), err)
	}
	return parseProbeDuration(out)
}

// probeTimeout returns the shorter of fallback and the time left before the
// context deadline. A done context yields its error.
func probeTimeout(ctx context.Context, fallback time.Duration) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if fallback <= 0 {
		fallback = defaultProbeTimeout
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return fallback, nil
	}
	left := time.Until(deadline)
	if left <= 0 {
		return 0, context.DeadlineExceeded
	}
	return min(left, fallback), nil
}

func parseProbeDuration(out string) (time.Duration, error) {
	var result probeResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		return 0, fmt.Errorf("decode ffprobe output: %w", err)
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(result.Format.Duration), 64)
	if err != nil || secs <= 0 {
		return 0, fmt.Errorf("ffprobe reported no duration (%q)", result.Format.Duration)
	}
	return time.Duration(secs * float64(time.Second)).Round(time.Millisecond), nil
}
