package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/localvoice/assetpipe/cmd/assetpipe/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode." env:"ASSETPIPE_DEBUG"`
		Version kong.VersionFlag
		Build   commands.BuildCmd  `cmd:"" default:"1" help:"Bundle entries, inject templates and write the output directory"`
		Check   commands.CheckCmd  `cmd:"" help:"Validate the build configuration without building"`
		Config  commands.ConfigCmd `cmd:"" help:"Print the resolved build configuration as YAML"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("assetpipe"),
		kong.Description("Front-end asset builder for the dashboard and accounts templates."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
