package buildconfig

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFilename    = "js/[name].[contenthash].bundle.js"
	DefaultCSSFilename = "css/[name].[contenthash].css"
	DefaultOutputPath  = "dist"
	DefaultPublicPath  = "/static/"
	DefaultManifest    = "manifest.json"
)

// Targets lists the accepted output.target values.
var Targets = []string{"es2015", "es2016", "es2017", "es2018", "es2019", "es2020", "es2021", "es2022", "es2023", "es2024", "esnext"}

var errOutsideOutput = errors.New("must be a relative path inside the output directory")

// Default returns the descriptor for the Local Voice front end: a vendor and a
// main bundle injected into the dashboard and accounts base templates.
// Script tags are plain blocking tags unless script_loading says otherwise,
// where html-webpack-plugin v5 would emit defer.
func Default(context string) Descriptor {
	return Descriptor{
		Context: context,
		Entry: EntryMap{
			"vendor": "static/js/vendor.js",
			"main":   "static/js/index.js",
		},
		Output: OutputSpec{
			Filename:     DefaultFilename,
			CSSFilename:  DefaultCSSFilename,
			Path:         DefaultOutputPath,
			PublicPath:   DefaultPublicPath,
			ManifestPath: DefaultManifest,
			Minify:       true,
		},
		Plugins: []Plugin{
			HTMLPlugin(TemplateInjection{
				Template:   "dashboard/templates/dashboard/base_template.html",
				Filename:   "templates/dashboard/base.html",
				PublicPath: DefaultPublicPath,
				Inject:     InjectBody,
				Chunks:     []string{"vendor", "main"},
			}),
			HTMLPlugin(TemplateInjection{
				Template:   "accounts/templates/accounts/base_template.html",
				Filename:   "templates/accounts/base_template.html",
				PublicPath: DefaultPublicPath,
				Inject:     InjectBody,
				Chunks:     []string{"vendor", "main"},
			}),
			CleanPlugin(Cleanup{}),
		},
	}
}

// Load reads a YAML descriptor. Output settings left out of the file take the
// defaults; entries and plugins are taken as written.
func Load(path, context string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data, context)
}

// Parse decodes a YAML descriptor, see Load.
func Parse(data []byte, context string) (Descriptor, error) {
	d := Descriptor{
		Output: Default(context).Output,
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return Descriptor{}, fmt.Errorf("failed to parse config: %w", err)
	}

	d.Context = context
	for i := range d.Plugins {
		if p := d.Plugins[i]; p.Kind == PluginHTML && p.HTML != nil {
			if p.HTML.PublicPath == "" {
				p.HTML.PublicPath = DefaultPublicPath
			}
			if p.HTML.Inject == "" {
				p.HTML.Inject = InjectBody
			}
		}
		if d.Plugins[i].Kind == PluginClean {
			if d.Plugins[i].Clean == nil {
				d.Plugins[i].Clean = &Cleanup{}
			}
			d.Plugins[i].Clean.Enabled = true
		}
	}
	return d, nil
}

// Marshal encodes the descriptor as YAML.
func (d Descriptor) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Abs resolves p against the context directory.
func (d Descriptor) Abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(d.Context, filepath.FromSlash(p))
}

// EntryNames returns the entry names in lexical order.
func (d Descriptor) EntryNames() []string {
	names := slices.Collect(maps.Keys(d.Entry))
	sort.Strings(names)
	return names
}

// ResolveEntries returns a copy of the entry map after checking every source exists.
func (d Descriptor) ResolveEntries() (EntryMap, error) {
	if len(d.Entry) == 0 {
		return nil, configErr("entry", "", errors.New("at least one entry is required"))
	}

	var errs []error
	for _, name := range d.EntryNames() {
		src := d.Entry[name]
		if name == "" {
			errs = append(errs, configErr("entry", src, errors.New("entry name is empty")))
			continue
		}
		if err := checkFile(d.Abs(src)); err != nil {
			errs = append(errs, configErr("entry."+name, src, err))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return maps.Clone(d.Entry), nil
}

// ResolveOutputSpec returns a copy of the output settings with an absolute Path.
func (d Descriptor) ResolveOutputSpec() (OutputSpec, error) {
	out := d.Output

	var errs []error
	if _, err := ParseFilename(out.Filename); err != nil {
		errs = append(errs, configErr("output.filename", "", err))
	}
	if out.CSSFilename == "" {
		out.CSSFilename = DefaultCSSFilename
	}
	if _, err := ParseFilename(out.CSSFilename); err != nil {
		errs = append(errs, configErr("output.css_filename", "", err))
	}
	if out.Path == "" {
		errs = append(errs, configErr("output.path", "", errors.New("output directory is required")))
	}
	if out.Target != "" && !slices.Contains(Targets, out.Target) {
		errs = append(errs, configErr("output.target", "", fmt.Errorf("unknown target %q", out.Target)))
	}
	if out.ManifestPath != "" && !isLocalPath(out.ManifestPath) {
		errs = append(errs, configErr("output.manifest", out.ManifestPath, errOutsideOutput))
	}
	if out.MetafilePath != "" && !isLocalPath(out.MetafilePath) {
		errs = append(errs, configErr("output.metafile", out.MetafilePath, errOutsideOutput))
	}
	if len(errs) > 0 {
		return OutputSpec{}, errors.Join(errs...)
	}

	out.Path = d.Abs(out.Path)
	return out, nil
}

// ResolveTemplateInjections returns the HTML plugins in declaration order.
func (d Descriptor) ResolveTemplateInjections() ([]TemplateInjection, error) {
	var (
		injections []TemplateInjection
		errs       []error
		seen       = map[string]int{}
	)

	for i, p := range d.Plugins {
		if p.Kind != PluginHTML {
			continue
		}
		field := fmt.Sprintf("plugins[%d]", i)
		if p.HTML == nil {
			errs = append(errs, configErr(field, "", fmt.Errorf("%w: html plugin without settings", ErrInvalidPlugin)))
			continue
		}

		t := *p.HTML
		t.Chunks = slices.Clone(t.Chunks)
		if t.ScriptLoading == "" {
			t.ScriptLoading = ScriptBlocking
		}

		if err := checkFile(d.Abs(t.Template)); err != nil {
			errs = append(errs, configErr(field+".template", t.Template, err))
		}
		if !isLocalPath(t.Filename) {
			errs = append(errs, configErr(field+".filename", t.Filename, errOutsideOutput))
		} else if prev, ok := seen[t.Filename]; ok {
			errs = append(errs, configErr(field+".filename", t.Filename, fmt.Errorf("already written by plugins[%d]", prev)))
		} else {
			seen[t.Filename] = i
		}
		switch t.Inject {
		case InjectHead, InjectBody:
		default:
			errs = append(errs, configErr(field+".inject", "", fmt.Errorf("%w: inject must be head or body, got %q", ErrInvalidPlugin, t.Inject)))
		}
		switch t.ScriptLoading {
		case ScriptBlocking, ScriptDefer, ScriptModule:
		default:
			errs = append(errs, configErr(field+".script_loading", "", fmt.Errorf("%w: unknown script loading %q", ErrInvalidPlugin, t.ScriptLoading)))
		}
		for _, c := range t.Chunks {
			if _, ok := d.Entry[c]; !ok {
				errs = append(errs, configErr(field+".chunks", "", fmt.Errorf("%w: %q", ErrUnknownChunk, c)))
			}
		}

		injections = append(injections, t)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return injections, nil
}

// ResolveCleanupDirective returns the clean settings. Cleanup is enabled when
// any clean plugin is declared; the last one wins.
func (d Descriptor) ResolveCleanupDirective() Cleanup {
	var c Cleanup
	for _, p := range d.Plugins {
		if p.Kind == PluginClean && p.Clean != nil {
			c = *p.Clean
			c.Enabled = true
			c.Keep = slices.Clone(c.Keep)
		}
	}
	return c
}

// Validate runs every resolve step and reports all problems together.
func (d Descriptor) Validate() error {
	var errs []error

	if !filepath.IsAbs(d.Context) {
		errs = append(errs, configErr("context", d.Context, errors.New("context directory must be absolute")))
	}
	if _, err := d.ResolveEntries(); err != nil {
		errs = append(errs, err)
	}
	out, err := d.ResolveOutputSpec()
	if err != nil {
		errs = append(errs, err)
	}
	if _, err := d.ResolveTemplateInjections(); err != nil {
		errs = append(errs, err)
	}
	for i, p := range d.Plugins {
		field := fmt.Sprintf("plugins[%d]", i)
		switch p.Kind {
		case PluginHTML:
			if p.Clean != nil {
				errs = append(errs, configErr(field+".clean", "", fmt.Errorf("%w: html plugin carries clean settings", ErrInvalidPlugin)))
			}
		case PluginClean:
			if p.HTML != nil {
				errs = append(errs, configErr(field+".html", "", fmt.Errorf("%w: clean plugin carries html settings", ErrInvalidPlugin)))
			}
		default:
			errs = append(errs, configErr(field+".kind", "", fmt.Errorf("%w: unknown kind %q", ErrInvalidPlugin, p.Kind)))
		}
	}
	if c := d.ResolveCleanupDirective(); c.Enabled {
		keep := make([]glob.Glob, 0, len(c.Keep))
		for _, pattern := range c.Keep {
			g, err := glob.Compile(pattern, '/')
			if err != nil {
				errs = append(errs, configErr("plugins.clean.keep", "", fmt.Errorf("%w: bad pattern %q: %v", ErrInvalidPlugin, pattern, err)))
				continue
			}
			keep = append(keep, g)
		}
		if err == nil {
			if err := checkCleanTarget(d.Context, out.Path, c.AllowOutsideContext); err != nil {
				errs = append(errs, configErr("plugins.clean", out.Path, err))
			}
			errs = append(errs, d.checkSourcesOutsideOutput(out.Path, keep)...)
		}
	}

	return errors.Join(errs...)
}

// checkSourcesOutsideOutput reports every entry or template that the clean
// step would delete because it lives in the output directory unprotected.
func (d Descriptor) checkSourcesOutsideOutput(dir string, keep []glob.Glob) []error {
	var errs []error
	check := func(field, src string) {
		rel, err := filepath.Rel(dir, d.Abs(src))
		if err != nil || !filepath.IsLocal(rel) {
			return
		}
		rel = filepath.ToSlash(rel)
		for _, g := range keep {
			if g.Match(rel) {
				return
			}
		}
		errs = append(errs, configErr(field, src, fmt.Errorf("%w: source is inside the output directory and would be removed", ErrUnsafeCleanup)))
	}

	for _, name := range d.EntryNames() {
		check("entry."+name, d.Entry[name])
	}
	for i, p := range d.Plugins {
		if p.Kind == PluginHTML && p.HTML != nil {
			check(fmt.Sprintf("plugins[%d].template", i), p.HTML.Template)
		}
	}
	return errs
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrMissingSource
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%w: is a directory", ErrMissingSource)
	}
	return nil
}

func checkCleanTarget(context, dir string, allowOutside bool) error {
	if dir == filepath.Dir(dir) {
		return fmt.Errorf("%w: refusing to clean a filesystem root", ErrUnsafeCleanup)
	}
	if dir == filepath.Clean(context) {
		return fmt.Errorf("%w: output directory is the context directory", ErrUnsafeCleanup)
	}
	if allowOutside {
		return nil
	}
	rel, err := filepath.Rel(context, dir)
	if err != nil || !filepath.IsLocal(rel) {
		return fmt.Errorf("%w: output directory is outside the context, set allow_outside_context to clean it", ErrUnsafeCleanup)
	}
	return nil
}

// WithoutCleanup returns a copy of the descriptor with every clean plugin removed.
func (d Descriptor) WithoutCleanup() Descriptor {
	d.Plugins = slices.DeleteFunc(slices.Clone(d.Plugins), func(p Plugin) bool {
		return p.Kind == PluginClean
	})
	return d
}
