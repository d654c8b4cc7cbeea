package commands

import (
	"context"

	"github.com/wolfeidau/bundlekit/internal/assets"
	"github.com/wolfeidau/bundlekit/internal/config"
	"github.com/wolfeidau/bundlekit/internal/logger"
)

type BuildCmd struct {
	Entries []string `arg:"" optional:"" help:"entry modules, defaults to the layout's entries"`
	Output  string   `short:"o" help:"output directory relative to the project root" env:"BUNDLEKIT_OUTPUT"`
	Mode    string   `help:"build mode" default:"production" enum:"development,production" env:"BUNDLEKIT_MODE"`
	Lessc   string   `help:"less compiler binary" default:"lessc" env:"BUNDLEKIT_LESSC"`
	DryRun  bool     `help:"build without writing the output directory"`

	Project ProjectFlags `embed:""`
}

// describe resolves the build description from the flags.
func (c *BuildCmd) describe() (*config.BuildDescription, error) {
	mode, err := parseMode(c.Mode)
	if err != nil {
		return nil, err
	}

	layout, err := c.Project.layout(mode)
	if err != nil {
		return nil, err
	}
	if len(c.Entries) > 0 {
		layout.Entries = c.Entries
	}
	if c.Output != "" {
		layout.OutputDir = c.Output
	}

	return config.Resolve(mode, layout)
}

func (c *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	defer startTelemetry(ctx, log, globals)()

	desc, err := c.describe()
	if err != nil {
		return err
	}

	cfg := assets.DefaultConfig()
	cfg.Lessc = c.Lessc
	cfg.Write = !c.DryRun

	pipeline, err := assets.New(desc, cfg)
	if err != nil {
		return err
	}

	res, err := pipeline.Build(ctx)
	if err != nil {
		return err
	}

	for _, warning := range res.Warnings {
		log.Warn().Msg(warning)
	}
	for _, path := range res.Paths() {
		log.Info().Str("file", path).Int("bytes", len(res.Files[path])).Msg("Emitted")
	}

	log.Info().
		Str("mode", desc.Mode.String()).
		Str("output", pipeline.OutputDir()).
		Bool("written", cfg.Write).
		Dur("duration", res.Duration).
		Msg("Build complete")

	return nil
}
