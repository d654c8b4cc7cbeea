package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wolfeidau/bundlekit/internal/config"
	"github.com/wolfeidau/bundlekit/internal/telemetry"
)

type Globals struct {
	Debug   bool
	Tracing bool
	Version string
}

// ProjectFlags locate the project and pick the mode.
type ProjectFlags struct {
	Config  string `help:"project file (yaml or json) overriding the default layout" type:"existingfile" env:"BUNDLEKIT_CONFIG"`
	Root    string `help:"project root when no project file is given" default:"." env:"BUNDLEKIT_ROOT"`
	Devtool string `help:"source map policy overriding the mode default, e.g. hidden-source-map or false"`
}

// layout loads the project file when given, otherwise the default layout
// rooted at Root. The devtool flag applies to mode only.
func (f ProjectFlags) layout(mode config.Mode) (config.Layout, error) {
	layout := config.DefaultLayout()
	if f.Config != "" {
		var err error
		if layout, err = config.LoadLayout(f.Config); err != nil {
			return config.Layout{}, err
		}
	} else if f.Root != "" {
		layout.Root = f.Root
	}

	if f.Devtool != "" {
		if mode == config.ModeProduction {
			layout.ProductionDevtool = f.Devtool
		} else {
			layout.DevelopmentDevtool = f.Devtool
		}
	}

	return layout, nil
}

func parseMode(s string) (config.Mode, error) {
	mode, err := config.ParseMode(s)
	if err != nil {
		return "", fmt.Errorf("invalid --mode: %w", err)
	}
	return mode, nil
}

// startTelemetry initialises OTLP export when tracing is enabled and returns
// the function that flushes it.
func startTelemetry(ctx context.Context, log zerolog.Logger, globals *Globals) func() {
	if !globals.Tracing {
		return func() {}
	}

	log.Info().Msg("Tracing is enabled")
	shutdown, err := telemetry.InitTelemetry(ctx, "bundlekit", globals.Version)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}
