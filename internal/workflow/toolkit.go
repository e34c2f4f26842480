package workflow

import (
	"context"
	"log/slog"
	"net/http"

	"feedcaster/internal/config"
	"feedcaster/internal/script"
	"feedcaster/internal/services"
	"feedcaster/internal/services/providers"
	"feedcaster/internal/stitch"
	"feedcaster/internal/storage"
	"feedcaster/internal/synth"
)

// Stitcher renders a planned layout into one audio file.
type Stitcher interface {
	Stitch(ctx context.Context, layout stitch.Layout, outPath string, meta stitch.Metadata) (stitch.Artifact, error)
}

// Toolkit bundles the external capabilities one show needs.
type Toolkit struct {
	Generator script.Generator
	Speaker   synth.Speaker
	Prober    synth.Prober
	Stitcher  Stitcher
	Backends  storage.Backends
}

// ToolkitFactory builds the toolkit of a show. Errors are configuration
// errors for that show.
type ToolkitFactory func(ctx context.Context, show config.Show) (Toolkit, error)

// DefaultToolkits wires the configured providers, ffmpeg and storage
// backends. httpClient may be nil.
func DefaultToolkits(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) ToolkitFactory {
	return func(ctx context.Context, show config.Show) (Toolkit, error) {
		showCfg := cfg.ForShow(show)
		gen, err := providers.NewGenerator(showCfg, httpClient)
		if err != nil {
			return Toolkit{}, err
		}
		backends, err := storage.Open(ctx, show, httpClient)
		if err != nil {
			return Toolkit{}, err
		}
		return Toolkit{
			Generator: gen,
			Speaker:   providers.NewSpeaker(showCfg, httpClient),
			Prober:    stitch.NewProber(cfg),
			Stitcher:  stitch.NewStitcher(cfg, logger),
			Backends:  backends,
		}, nil
	}
}

func (t Toolkit) validate(showID string) error {
	missing := ""
	switch {
	case t.Generator == nil:
		missing = "generator"
	case t.Speaker == nil:
		missing = "speaker"
	case t.Prober == nil:
		missing = "prober"
	case t.Stitcher == nil:
		missing = "stitcher"
	case t.Backends.Destination == nil:
		missing = "storage destination"
	case t.Backends.Feed == nil:
		missing = "feed host"
	}
	if missing == "" {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "workflow", "toolkit", showID, errMissing(missing))
}
