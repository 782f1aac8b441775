package assets

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/localvoice/assetpipe/internal/buildconfig"
)

// BuildMetadata is the subset of the esbuild metafile the pipeline reads.
type BuildMetadata struct {
	Outputs map[string]OutputInfo `json:"outputs"`
}

type OutputInfo struct {
	EntryPoint string       `json:"entryPoint"`
	CSSBundle  string       `json:"cssBundle"`
	Imports    []ImportInfo `json:"imports"`
	Bytes      int          `json:"bytes"`
}

type ImportInfo struct {
	Path string `json:"path"`
}

// Bundle is one named entry after content hashing.
type Bundle struct {
	Name   string
	Source string
	// Script path relative to the output directory
	JS     string
	JSHash string
	// Stylesheet path relative to the output directory, empty when the entry imports no CSS
	CSS  string
	Size int
}

// ManifestEntry maps a chunk to its hashed output files.
type ManifestEntry struct {
	JS  string `json:"js"`
	CSS string `json:"css,omitempty"`
}

// Result summarises a finished build.
type Result struct {
	OutputDir string
	Bundles   []Bundle
	// Rendered templates relative to the output directory, in declaration order
	Templates []string
	// Every file written, relative to the output directory and sorted
	Files []string
	// Paths removed by the clean step
	Removed  []string
	Duration time.Duration
}

// Bundle returns the bundle with the given name.
func (r *Result) Bundle(name string) (Bundle, bool) {
	for _, b := range r.Bundles {
		if b.Name == name {
			return b, true
		}
	}
	return Bundle{}, false
}

// Pipeline builds the assets described by a descriptor. A pipeline runs one
// build at a time.
type Pipeline struct {
	desc buildconfig.Descriptor
	mu   sync.Mutex
}

// New creates a new asset pipeline for the given descriptor
func New(desc buildconfig.Descriptor) *Pipeline {
	return &Pipeline{
		desc: desc,
	}
}

// Stage names a phase of the build, used in errors and metrics.
type Stage string

const (
	StageValidate Stage = "validate"
	StageBundle   Stage = "bundle"
	StageRender   Stage = "render"
	StageClean    Stage = "clean"
	StageWrite    Stage = "write"

	// Failure labels for errors raised outside a phase
	StageCancelled Stage = "cancelled"
	StageUnknown   Stage = "unknown"
)

// EngineError reports a failure while producing output. Messages carries the
// bundler diagnostics verbatim.
type EngineError struct {
	Stage    Stage
	Messages []string
	Err      error
}

func (e *EngineError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s failed: %v: %s", e.Stage, e.Err, strings.Join(e.Messages, "; "))
}

func (e *EngineError) Unwrap() error {
	return e.Err
}
