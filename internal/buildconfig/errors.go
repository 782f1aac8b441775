package buildconfig

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingSource indicates a declared entry or template file does not exist
	ErrMissingSource = errors.New("source file not found")
	// ErrInvalidFilename indicates an output filename template is unusable
	ErrInvalidFilename = errors.New("invalid filename template")
	// ErrUnknownChunk indicates a template injection references an entry that is not declared
	ErrUnknownChunk = errors.New("unknown chunk")
	// ErrInvalidPlugin indicates a plugin directive is malformed
	ErrInvalidPlugin = errors.New("invalid plugin")
	// ErrUnsafeCleanup indicates the clean step would remove files outside the project
	ErrUnsafeCleanup = errors.New("unsafe cleanup target")
)

// ConfigError reports a problem with the descriptor found before any build work starts.
type ConfigError struct {
	// Field is the dotted location of the offending value, e.g. "entry.main".
	Field string
	// Path is the file path involved, if any.
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config %s (%s): %v", e.Field, e.Path, e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErr(field, path string, err error) *ConfigError {
	return &ConfigError{Field: field, Path: path, Err: err}
}
