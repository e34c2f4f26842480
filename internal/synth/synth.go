// Package synth renders dialogue lines to audio clips.
//
// Lines are synthesized by a bounded pool of workers but results are stored
// by line index, so clip k always belongs to line k. Synthesis is
// all-or-nothing: if any line fails after its retry budget the whole batch
// is discarded and services.ErrSynthesis is returned.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"feedcaster/internal/config"
	"feedcaster/internal/fileutil"
	"feedcaster/internal/logging"
	"feedcaster/internal/script"
	"feedcaster/internal/services"
)

// Speaker is the speech-synthesis capability.
type Speaker interface {
	Synthesize(ctx context.Context, voice, text string) ([]byte, error)
}

// Prober measures the playing time of an audio file.
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// Clip is the audio for one line. Silent clips have no file and stand for a
// pause of Duration.
type Clip struct {
	Index    int
	Role     string
	Path     string
	Duration time.Duration
	Silent   bool
}

// Synthesizer turns lines into clips for one show.
type Synthesizer struct {
	speaker Speaker
	prober  Prober
	show    config.Show
	workers int
	limiter *rate.Limiter
	policy  services.RetryPolicy
	pause   time.Duration
	format  string
	logger  *slog.Logger
}

// Option customizes a Synthesizer.
type Option func(*Synthesizer)

// WithRetryPolicy overrides the per-line retry policy.
func WithRetryPolicy(policy services.RetryPolicy) Option {
	return func(s *Synthesizer) { s.policy = policy }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synthesizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFormat sets the file extension used for synthesized clips.
func WithFormat(format string) Option {
	return func(s *Synthesizer) {
		if format != "" {
			s.format = format
		}
	}
}

// New builds a synthesizer using the pipeline and audio settings in cfg.
func New(cfg *config.Config, show config.Show, speaker Speaker, prober Prober, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		speaker: speaker,
		prober:  prober,
		show:    show,
		workers: cfg.Pipeline.SynthesisWorkers,
		policy: services.RetryPolicy{
			Attempts:    cfg.Pipeline.ServiceAttempts,
			BaseDelay:   cfg.RetryBaseDelay(),
			MaxDelay:    cfg.RetryMaxDelay(),
			CallTimeout: cfg.CallTimeout(),
		},
		pause:  cfg.PauseDuration(),
		format: cfg.Speech.Format,
		logger: logging.NewNop(),
	}
	if s.format == "" {
		s.format = "mp3"
	}
	if s.workers <= 0 {
		s.workers = 1
	}
	if perSecond := cfg.Pipeline.SynthesisRatePerSecond; perSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "synth")
	return s
}

// Lines synthesizes every line into dir and returns the clips in line order.
// On failure no clips are returned and any files already written are removed.
func (s *Synthesizer) Lines(ctx context.Context, dir string, lines []script.Line) ([]Clip, error) {
	if len(lines) == 0 {
		return nil, services.Wrap(services.ErrSynthesis, "synthesize", "lines", "no lines to synthesize", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrSynthesis, "synthesize", "lines", "create work dir", err)
	}

	voices := make([]string, len(lines))
	for i, line := range lines {
		if line.Empty() {
			continue
		}
		voice, ok := s.show.Voice(line.Role)
		if !ok {
			return nil, services.Wrap(services.ErrConfiguration, "synthesize", "lines",
				fmt.Sprintf("no voice configured for %s", line.Role), nil)
		}
		voices[i] = voice.Voice
	}

	logger := logging.WithContext(ctx, s.logger)
	started := time.Now()
	clips := make([]Clip, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, line := range lines {
		if line.Empty() {
			clips[i] = Clip{Index: i, Role: line.Role, Duration: s.pause, Silent: true}
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("%04d_%s.%s", i, line.Role, s.format))
		g.Go(func() error {
			clip, err := s.render(gctx, path, voices[i], line.Text)
			if err != nil {
				return fmt.Errorf("line %d (%s): %w", i, line.Role, err)
			}
			clip.Index = i
			clip.Role = line.Role
			clips[i] = clip
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		removeClips(clips)
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrSynthesis, "synthesize", "lines", "", err)
	}

	logger.Info("lines synthesized",
		logging.Int("lines", len(lines)),
		logging.Duration("audio", TotalDuration(clips)),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "lines_synthesized"),
	)
	return clips, nil
}

// Intro renders the intro text in voice. The intro is not part of the line
// sequence and has index -1.
func (s *Synthesizer) Intro(ctx context.Context, dir, voice, text string) (Clip, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Clip{}, services.Wrap(services.ErrSynthesis, "synthesize", "intro", "create work dir", err)
	}
	path := filepath.Join(dir, "intro."+s.format)
	clip, err := s.render(ctx, path, voice, text)
	if err != nil {
		return Clip{}, services.Wrap(services.ErrSynthesis, "synthesize", "intro", "", err)
	}
	clip.Index = -1
	clip.Role = s.show.IntroSpeaker()
	return clip, nil
}

// Recorded snapshots a pre-recorded intro into dir and wraps the copy as a
// clip, so the render never reads a file that is replaced mid-run.
func (s *Synthesizer) Recorded(ctx context.Context, dir, path string) (Clip, error) {
	if _, err := os.Stat(path); err != nil {
		return Clip{}, services.Wrap(services.ErrConfiguration, "synthesize", "intro", "intro audio", err)
	}
	local := filepath.Join(dir, "intro-recorded"+filepath.Ext(path))
	if err := fileutil.CopyFileVerified(path, local); err != nil {
		return Clip{}, services.Wrap(services.ErrSynthesis, "synthesize", "intro", "copy intro audio", err)
	}
	d, err := s.prober.Duration(ctx, local)
	if err != nil {
		return Clip{}, services.Wrap(services.ErrSynthesis, "synthesize", "intro", "probe intro audio", err)
	}
	return Clip{Index: -1, Path: local, Duration: d}, nil
}

func (s *Synthesizer) render(ctx context.Context, path, voice, text string) (Clip, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return Clip{}, err
		}
	}
	audio, err := services.Retry(ctx, s.policy, "synthesize line", func(callCtx context.Context) ([]byte, error) {
		return s.speaker.Synthesize(callCtx, voice, text)
	})
	if err != nil {
		return Clip{}, err
	}
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return Clip{}, fmt.Errorf("write clip: %w", err)
	}
	d, err := s.prober.Duration(ctx, path)
	if err != nil {
		_ = os.Remove(path)
		return Clip{}, fmt.Errorf("probe clip: %w", err)
	}
	return Clip{Path: path, Duration: d}, nil
}

// TotalDuration sums clip durations without pauses.
func TotalDuration(clips []Clip) time.Duration {
	var total time.Duration
	for _, c := range clips {
		total += c.Duration
	}
	return total
}

func removeClips(clips []Clip) {
	for _, c := range clips {
		if c.Path != "" && !c.Silent {
			_ = os.Remove(c.Path)
		}
	}
}
