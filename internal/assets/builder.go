package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/localvoice/assetpipe/internal/buildconfig"
	"github.com/localvoice/assetpipe/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

// Build validates the descriptor, bundles every entry, renders the template
// injections and only then cleans and writes the output directory. A
// configuration problem is reported as a *buildconfig.ConfigError before any
// file is touched.
func (p *Pipeline) Build(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := telemetry.GetMetrics()
	ctx, span := telemetry.Tracer().Start(ctx, "assets.Build")
	defer span.End()

	started := time.Now()
	m.BuildsTotal.Add(ctx, 1)

	res, err := p.build(ctx)
	if err != nil {
		m.BuildFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", string(failureStage(err)))))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res.Duration = time.Since(started)
	m.BuildDuration.Record(ctx, float64(res.Duration.Milliseconds()))
	return res, nil
}

// failureStage labels a failed build for metrics.
func failureStage(err error) Stage {
	var engineErr *EngineError
	var cfgErr *buildconfig.ConfigError
	switch {
	case errors.As(err, &engineErr):
		return engineErr.Stage
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StageCancelled
	case errors.As(err, &cfgErr):
		return StageValidate
	default:
		return StageUnknown
	}
}

func (p *Pipeline) build(ctx context.Context) (*Result, error) {
	logger := zerolog.Ctx(ctx)

	if err := p.desc.Validate(); err != nil {
		return nil, err
	}
	entries, err := p.desc.ResolveEntries()
	if err != nil {
		return nil, err
	}
	out, err := p.desc.ResolveOutputSpec()
	if err != nil {
		return nil, err
	}
	injections, err := p.desc.ResolveTemplateInjections()
	if err != nil {
		return nil, err
	}
	cleanup := p.desc.ResolveCleanupDirective()

	logger.Info().Strs("entrypoints", p.desc.EntryNames()).Str("outdir", out.Path).Msg("Building assets")

	bundled, err := p.bundle(entries, out)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunks := make(map[string]ManifestEntry, len(bundled.bundles))
	for _, b := range bundled.bundles {
		chunks[b.Name] = ManifestEntry{JS: b.JS, CSS: b.CSS}
		logger.Debug().Str("chunk", b.Name).Str("file", b.JS).Int("bytes", b.Size).Msg("Bundled entry")
	}

	rendered, err := p.renderTemplates(ctx, injections, chunks)
	if err != nil {
		return nil, err
	}

	files := append(bundled.files, rendered...)
	if out.ManifestPath != "" {
		manifest, err := json.MarshalIndent(chunks, "", "  ")
		if err != nil {
			return nil, &EngineError{Stage: StageWrite, Err: err}
		}
		files = append(files, outputFile{Path: out.ManifestPath, Contents: append(manifest, '\n')})
	}
	if out.MetafilePath != "" {
		files = append(files, outputFile{Path: out.MetafilePath, Contents: bundled.metafile})
	}

	res := &Result{OutputDir: out.Path, Bundles: bundled.bundles}
	for _, inj := range injections {
		res.Templates = append(res.Templates, inj.Filename)
	}

	if cleanup.Enabled {
		removed, err := cleanOutput(ctx, out.Path, cleanup)
		if err != nil {
			return nil, &EngineError{Stage: StageClean, Err: err}
		}
		res.Removed = removed
		telemetry.GetMetrics().FilesRemovedTotal.Add(ctx, int64(len(removed)))
	}

	written, err := writeFiles(ctx, out.Path, files)
	if err != nil {
		return nil, &EngineError{Stage: StageWrite, Err: err}
	}
	res.Files = written

	for _, f := range res.Files {
		logger.Info().Str("file", f).Msg("Built file")
	}
	return res, nil
}

// renderTemplates reads and injects every template concurrently. The returned
// files keep declaration order.
func (p *Pipeline) renderTemplates(ctx context.Context, injections []buildconfig.TemplateInjection, chunks map[string]ManifestEntry) ([]outputFile, error) {
	rendered := make([]outputFile, len(injections))

	g, ctx := errgroup.WithContext(ctx)
	for i, inj := range injections {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			src, err := os.ReadFile(p.desc.Abs(inj.Template))
			if err != nil {
				return &EngineError{Stage: StageRender, Err: fmt.Errorf("failed to read template %s: %w", inj.Template, err)}
			}
			html, err := injectTags(src, inj, chunks)
			if err != nil {
				return &EngineError{Stage: StageRender, Err: fmt.Errorf("failed to render %s: %w", inj.Template, err)}
			}
			rendered[i] = outputFile{Path: inj.Filename, Contents: html}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	telemetry.GetMetrics().TemplatesRenderedTotal.Add(ctx, int64(len(rendered)))
	return rendered, nil
}

// writeFiles writes files under dir, adding a gzip sibling where requested,
// and returns the written paths sorted.
func writeFiles(ctx context.Context, dir string, files []outputFile) ([]string, error) {
	m := telemetry.GetMetrics()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var written []string
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := writeFile(dir, f.Path, f.Contents); err != nil {
			return nil, err
		}
		written = append(written, f.Path)

		if f.Bundle {
			m.BundlesWrittenTotal.Add(ctx, 1)
			m.BundleBytesTotal.Add(ctx, int64(len(f.Contents)))
		}
		if !f.Precompress {
			continue
		}

		gz, err := gzipBytes(f.Contents)
		if err != nil {
			return nil, fmt.Errorf("failed to compress %s: %w", f.Path, err)
		}
		if err := writeFile(dir, f.Path+".gz", gz); err != nil {
			return nil, err
		}
		written = append(written, f.Path+".gz")
	}

	sort.Strings(written)
	return written, nil
}

func writeFile(dir, rel string, contents []byte) error {
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(path, contents, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return nil
}

// gzipBytes compresses data with a zero header timestamp so repeated builds
// produce identical archives.
func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
