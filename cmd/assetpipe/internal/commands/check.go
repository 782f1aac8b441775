package commands

import (
	"context"
	"fmt"

	"github.com/localvoice/assetpipe/internal/logger"
)

// CheckCmd validates the configuration and every path it references.
type CheckCmd struct {
	ConfigFlags `embed:""`
}

func (c *CheckCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	desc, _, err := c.load()
	if err != nil {
		return err
	}
	if err := desc.Validate(); err != nil {
		return fmt.Errorf("invalid build configuration:\n%w", err)
	}

	injections, _ := desc.ResolveTemplateInjections()
	log.Info().
		Strs("entries", desc.EntryNames()).
		Int("templates", len(injections)).
		Bool("clean", desc.ResolveCleanupDirective().Enabled).
		Msg("Configuration is valid")
	return nil
}
