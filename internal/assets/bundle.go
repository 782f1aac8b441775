package assets

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/localvoice/assetpipe/internal/buildconfig"
	"github.com/minio/crc64nvme"
)

var errBundleFailed = errors.New("esbuild failed with errors")

var targets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"es2024": api.ES2024,
	"esnext": api.ESNext,
}

var fileLoaders = map[string]api.Loader{
	".png":   api.LoaderFile,
	".jpg":   api.LoaderFile,
	".jpeg":  api.LoaderFile,
	".gif":   api.LoaderFile,
	".svg":   api.LoaderFile,
	".webp":  api.LoaderFile,
	".woff":  api.LoaderFile,
	".woff2": api.LoaderFile,
	".ttf":   api.LoaderFile,
	".eot":   api.LoaderFile,
}

// outputFile is a file to write, relative to the output directory.
type outputFile struct {
	Path     string
	Contents []byte
	// Bundle marks hashed entry output
	Bundle bool
	// Precompress marks files that get a gzip sibling
	Precompress bool
}

type bundleOutput struct {
	bundles  []Bundle
	files    []outputFile
	metafile []byte
}

// contentHash is the lower-case hex CRC-64/NVME digest of data.
func contentHash(data []byte) string {
	h := crc64nvme.New()
	_, _ = h.Write(data)
	return fmt.Sprintf("%016x", h.Sum64())
}

// bundle runs esbuild in memory for every entry and names the results by content.
// Entries are bundled without code splitting so each bundle depends only on its
// own import graph.
func (p *Pipeline) bundle(entries buildconfig.EntryMap, out buildconfig.OutputSpec) (*bundleOutput, error) {
	jsName, err := buildconfig.ParseFilename(out.Filename)
	if err != nil {
		return nil, err
	}
	cssName, err := buildconfig.ParseFilename(out.CSSFilename)
	if err != nil {
		return nil, err
	}

	entryNames := entryNamesFor(out.Filename)
	names := p.desc.EntryNames()
	points := make([]api.EntryPoint, 0, len(names))
	// esbuild script output path -> entry name
	scripts := make(map[string]string, len(names))
	for _, name := range names {
		points = append(points, api.EntryPoint{InputPath: p.desc.Abs(entries[name]), OutputPath: name})
		rendered := strings.ReplaceAll(entryNames, "[name]", name) + ".js"
		scripts[filepath.Join(out.Path, filepath.FromSlash(rendered))] = name
	}

	target := api.ES2017
	if t, ok := targets[out.Target]; ok {
		target = t
	}

	result := api.Build(api.BuildOptions{
		EntryPointsAdvanced: points,
		AbsWorkingDir:       p.desc.Context,
		Bundle:              true,
		Write:               false,
		Outdir:              out.Path,
		EntryNames:          entryNames,
		AssetNames:          "assets/[name]-[hash]",
		PublicPath:          out.PublicPath,
		Format:              api.FormatIIFE,
		Platform:            api.PlatformBrowser,
		Target:              target,
		Loader:              fileLoaders,
		MinifyWhitespace:    out.Minify,
		MinifyIdentifiers:   out.Minify,
		MinifySyntax:        out.Minify,
		TreeShaking:         api.TreeShakingTrue,
		Sourcemap:           cond(out.SourceMap, api.SourceMapInline, api.SourceMapNone),
		Metafile:            true,
		LogLevel:            api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		return nil, &EngineError{Stage: StageBundle, Messages: formatMessages(result.Errors), Err: errBundleFailed}
	}

	var metadata BuildMetadata
	if err := json.Unmarshal([]byte(result.Metafile), &metadata); err != nil {
		return nil, &EngineError{Stage: StageBundle, Err: fmt.Errorf("failed to parse metafile: %w", err)}
	}

	// esbuild output path -> chunk name and kind
	type role struct {
		name string
		css  bool
	}
	roles := map[string]role{}
	sizes := map[string]int{}
	for outPath, info := range metadata.Outputs {
		abs := filepath.Join(p.desc.Context, filepath.FromSlash(outPath))
		name, ok := scripts[abs]
		if !ok {
			continue
		}
		roles[abs] = role{name: name}
		if info.CSSBundle != "" {
			roles[filepath.Join(p.desc.Context, filepath.FromSlash(info.CSSBundle))] = role{name: name, css: true}
		}
	}

	byName := make(map[string]*Bundle, len(names))
	for _, name := range names {
		byName[name] = &Bundle{Name: name, Source: entries[name]}
	}

	res := &bundleOutput{metafile: []byte(result.Metafile)}
	for _, f := range result.OutputFiles {
		r, ok := roles[f.Path]
		if !ok {
			rel, err := filepath.Rel(out.Path, f.Path)
			if err != nil {
				return nil, err
			}
			res.files = append(res.files, outputFile{Path: filepath.ToSlash(rel), Contents: f.Contents})
			continue
		}

		digest := contentHash(f.Contents)
		b := byName[r.name]
		if r.css {
			b.CSS = cssName.Render(r.name, digest)
			res.files = append(res.files, outputFile{Path: b.CSS, Contents: f.Contents, Bundle: true, Precompress: out.Precompress})
		} else {
			b.JS = jsName.Render(r.name, digest)
			b.JSHash = digest
			res.files = append(res.files, outputFile{Path: b.JS, Contents: f.Contents, Bundle: true, Precompress: out.Precompress})
		}
		sizes[r.name] += len(f.Contents)
	}

	for _, name := range names {
		b := byName[name]
		if b.JS == "" {
			return nil, &EngineError{Stage: StageBundle, Err: fmt.Errorf("no output produced for entry %q", name)}
		}
		b.Size = sizes[name]
		res.bundles = append(res.bundles, *b)
	}

	return res, nil
}

// entryNamesFor lays esbuild output out in the directory of the script
// filename template, so inline source maps and relative CSS urls stay valid
// once the files are renamed. Stylesheets must sit at the same depth.
func entryNamesFor(filename string) string {
	dir := path.Dir(filename)
	if dir == "." || strings.Contains(dir, "[contenthash") {
		return "[name]"
	}
	return dir + "/[name]"
}

func formatMessages(msgs []api.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Location == nil {
			out = append(out, msg.Text)
			continue
		}
		out = append(out, msg.Location.File+":"+strconv.Itoa(msg.Location.Line)+":"+strconv.Itoa(msg.Location.Column)+": "+msg.Text)
	}
	return out
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
