package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/wolfeidau/bundlekit/cmd/bundlekit/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode."`
		Tracing bool `help:"Export traces and metrics over OTLP." env:"BUNDLEKIT_TRACING"`
		Version kong.VersionFlag

		Build  commands.BuildCmd  `cmd:"" help:"Bundle the project into the output directory"`
		Serve  commands.ServeCmd  `cmd:"" help:"Start the development server"`
		Config commands.ConfigCmd `cmd:"" help:"Print the resolved build description"`
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("bundlekit"),
		kong.Description("Resolve and run front-end builds."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Tracing: cli.Tracing, Version: version})
	cmd.FatalIfErrorf(err)
}
