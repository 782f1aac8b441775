package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/localvoice/assetpipe/internal/assets"
	"github.com/localvoice/assetpipe/internal/buildconfig"
	"github.com/localvoice/assetpipe/internal/logger"
	"github.com/localvoice/assetpipe/internal/telemetry"
)

type BuildCmd struct {
	ConfigFlags `embed:""`

	Minify      string `help:"minify output (auto keeps the configured setting)" enum:"auto,on,off" default:"auto" env:"ASSETPIPE_MINIFY"`
	SourceMap   bool   `help:"embed inline source maps" default:"false" env:"ASSETPIPE_SOURCEMAP"`
	Precompress bool   `help:"write a gzip copy of every bundle" default:"false" env:"ASSETPIPE_PRECOMPRESS"`
	NoClean     bool   `help:"keep previous output instead of emptying the output directory" default:"false" env:"ASSETPIPE_NO_CLEAN"`
	Telemetry   bool   `help:"export build metrics and traces over OTLP" default:"false" env:"ASSETPIPE_TELEMETRY"`
}

func (c *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx = log.WithContext(ctx)

	if c.Telemetry {
		shutdown, err := telemetry.Init(ctx, "assetpipe", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("Failed to shutdown telemetry")
				}
			}()
		}
	}

	desc, path, err := c.load()
	if err != nil {
		return err
	}
	if path == "" {
		log.Debug().Msg("No config file found, using built-in configuration")
	} else {
		log.Debug().Str("config", path).Msg("Loaded configuration")
	}

	desc = c.apply(desc)

	res, err := assets.New(desc).Build(ctx)
	if err != nil {
		return fmt.Errorf("failed to build assets: %w", err)
	}

	for _, b := range res.Bundles {
		log.Info().Str("chunk", b.Name).Str("js", b.JS).Str("css", b.CSS).Int("bytes", b.Size).Msg("Bundle")
	}
	log.Info().
		Int("files", len(res.Files)).
		Int("removed", len(res.Removed)).
		Dur("duration", res.Duration).
		Str("outdir", res.OutputDir).
		Msg("Build complete")
	return nil
}

// apply layers the command line overrides onto the loaded descriptor.
func (c *BuildCmd) apply(desc buildconfig.Descriptor) buildconfig.Descriptor {
	switch c.Minify {
	case "on":
		desc.Output.Minify = true
	case "off":
		desc.Output.Minify = false
	}
	if c.SourceMap {
		desc.Output.SourceMap = true
	}
	if c.Precompress {
		desc.Output.Precompress = true
	}
	if c.NoClean {
		desc = desc.WithoutCleanup()
	}
	return desc
}
