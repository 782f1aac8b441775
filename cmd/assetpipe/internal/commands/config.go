package commands

import (
	"context"
	"io"
	"os"
)

// ConfigCmd prints the descriptor a build would use.
type ConfigCmd struct {
	ConfigFlags `embed:""`

	out io.Writer `kong:"-"`
}

func (c *ConfigCmd) Run(ctx context.Context, globals *Globals) error {
	desc, _, err := c.load()
	if err != nil {
		return err
	}

	data, err := desc.Marshal()
	if err != nil {
		return err
	}

	w := c.out
	if w == nil {
		w = os.Stdout
	}
	_, err = w.Write(data)
	return err
}
