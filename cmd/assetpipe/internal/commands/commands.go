package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/localvoice/assetpipe/internal/buildconfig"
)

type Globals struct {
	Debug   bool
	Version string
}

// defaultConfig matches the Config flag default.
const defaultConfig = "assetpipe.yaml"

// ConfigFlags locate the project and its build configuration.
type ConfigFlags struct {
	Context string `help:"project directory entry and template paths are relative to" default:"." env:"ASSETPIPE_CONTEXT" type:"path"`
	Config  string `help:"YAML build configuration, relative to the context; the built-in configuration is used when the default file does not exist" default:"assetpipe.yaml" env:"ASSETPIPE_CONFIG"`
}

// load returns the descriptor from the config file, or the built-in one when
// the default file is absent. A config file named explicitly must exist.
func (f *ConfigFlags) load() (buildconfig.Descriptor, string, error) {
	root, err := filepath.Abs(f.Context)
	if err != nil {
		return buildconfig.Descriptor{}, "", fmt.Errorf("failed to resolve context: %w", err)
	}

	path := f.Config
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && f.Config == defaultConfig {
		return buildconfig.Default(root), "", nil
	}

	desc, err := buildconfig.Load(path, root)
	if err != nil {
		return buildconfig.Descriptor{}, "", err
	}
	return desc, path, nil
}
