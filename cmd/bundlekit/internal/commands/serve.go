package commands

import (
	"context"

	"github.com/wolfeidau/bundlekit/internal/assets"
	"github.com/wolfeidau/bundlekit/internal/config"
	"github.com/wolfeidau/bundlekit/internal/devserver"
	"github.com/wolfeidau/bundlekit/internal/logger"
)

type ServeCmd struct {
	Mode   string `help:"build mode" default:"development" enum:"development,production" env:"BUNDLEKIT_MODE"`
	Host   string `help:"listen host, overrides the layout" env:"BUNDLEKIT_HOST"`
	Port   int    `help:"listen port, overrides the layout" env:"BUNDLEKIT_PORT"`
	NoOpen bool   `help:"do not open a browser" env:"BUNDLEKIT_NO_OPEN"`
	Lessc  string `help:"less compiler binary" default:"lessc" env:"BUNDLEKIT_LESSC"`

	Project ProjectFlags `embed:""`
}

// describe resolves a fresh description, it runs again whenever the project
// file changes.
func (c *ServeCmd) describe() (*config.BuildDescription, error) {
	mode, err := parseMode(c.Mode)
	if err != nil {
		return nil, err
	}

	layout, err := c.Project.layout(mode)
	if err != nil {
		return nil, err
	}
	if c.Host != "" {
		layout.Host = c.Host
	}
	if c.Port != 0 {
		layout.Port = c.Port
	}

	return config.Resolve(mode, layout)
}

// options leaves the description untouched, --no-open is a server option so
// it survives project file reloads.
func (c *ServeCmd) options() devserver.Options {
	cfg := assets.DefaultConfig()
	cfg.Lessc = c.Lessc

	opts := devserver.Options{
		Assets: cfg,
		NoOpen: c.NoOpen,
	}
	if c.Project.Config != "" {
		opts.ProjectFile = c.Project.Config
		opts.Reload = c.describe
	}
	return opts
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	defer startTelemetry(ctx, log, globals)()

	desc, err := c.describe()
	if err != nil {
		return err
	}

	srv, err := devserver.New(desc, c.options())
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down dev server")

	return srv.Close()
}
