package buildconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "static/js/vendor.js", "window.vendor = true;\n")
	writeFile(t, root, "static/js/index.js", "console.log('main');\n")
	writeFile(t, root, "dashboard/templates/dashboard/base_template.html", "<html><body></body></html>")
	writeFile(t, root, "accounts/templates/accounts/base_template.html", "<html><body></body></html>")
	return root
}

func TestDefault_ResolveEntries(t *testing.T) {
	root := newProject(t)

	entries, err := Default(root).ResolveEntries()
	require.NoError(t, err)
	assert.Equal(t, EntryMap{
		"vendor": "static/js/vendor.js",
		"main":   "static/js/index.js",
	}, entries)
}

func TestDefault_ResolveEntries_MissingMain(t *testing.T) {
	root := newProject(t)
	require.NoError(t, os.Remove(filepath.Join(root, "static/js/index.js")))

	_, err := Default(root).ResolveEntries()
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "entry.main", cfgErr.Field)
	assert.ErrorIs(t, err, ErrMissingSource)
}

func TestDefault_ResolveEntries_ReturnsCopy(t *testing.T) {
	root := newProject(t)
	d := Default(root)

	entries, err := d.ResolveEntries()
	require.NoError(t, err)
	entries["extra"] = "static/js/extra.js"

	assert.NotContains(t, d.Entry, "extra")
}

func TestDefault_ResolveOutputSpec(t *testing.T) {
	root := newProject(t)

	out, err := Default(root).ResolveOutputSpec()
	require.NoError(t, err)
	assert.Equal(t, "js/[name].[contenthash].bundle.js", out.Filename)
	assert.Equal(t, filepath.Join(root, "dist"), out.Path)
}

func TestResolveOutputSpec_InvalidFilename(t *testing.T) {
	root := newProject(t)
	d := Default(root)
	d.Output.Filename = "js/[name].bundle.js"

	_, err := d.ResolveOutputSpec()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidFilename)
}

func TestDefault_ResolveTemplateInjections(t *testing.T) {
	root := newProject(t)

	injections, err := Default(root).ResolveTemplateInjections()
	require.NoError(t, err)
	require.Len(t, injections, 2)

	assert.Equal(t, "templates/dashboard/base.html", injections[0].Filename)
	assert.Equal(t, "templates/accounts/base_template.html", injections[1].Filename)
	for _, inj := range injections {
		assert.Equal(t, []string{"vendor", "main"}, inj.Chunks)
		assert.Equal(t, InjectBody, inj.Inject)
		assert.Equal(t, "/static/", inj.PublicPath)
		assert.Equal(t, ScriptBlocking, inj.ScriptLoading)
	}
}

func TestResolveTemplateInjections_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TemplateInjection)
		wantErr error
		field   string
	}{
		{
			name:    "missing template",
			mutate:  func(ti *TemplateInjection) { ti.Template = "nope.html" },
			wantErr: ErrMissingSource,
			field:   "plugins[0].template",
		},
		{
			name:    "unknown chunk",
			mutate:  func(ti *TemplateInjection) { ti.Chunks = []string{"vendor", "admin"} },
			wantErr: ErrUnknownChunk,
			field:   "plugins[0].chunks",
		},
		{
			name:    "bad inject point",
			mutate:  func(ti *TemplateInjection) { ti.Inject = "footer" },
			wantErr: ErrInvalidPlugin,
			field:   "plugins[0].inject",
		},
		{
			name:    "output escapes dist",
			mutate:  func(ti *TemplateInjection) { ti.Filename = "../base.html" },
			wantErr: errOutsideOutput,
			field:   "plugins[0].filename",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newProject(t)
			d := Default(root)
			tt.mutate(d.Plugins[0].HTML)

			_, err := d.ResolveTemplateInjections()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestResolveTemplateInjections_DuplicateOutput(t *testing.T) {
	root := newProject(t)
	d := Default(root)
	d.Plugins[1].HTML.Filename = d.Plugins[0].HTML.Filename

	_, err := d.ResolveTemplateInjections()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already written by plugins[0]")
}

func TestResolveTemplateInjections_OpenEnded(t *testing.T) {
	root := newProject(t)
	writeFile(t, root, "payments/templates/payments/base_template.html", "<html></html>")

	d := Default(root)
	d.Plugins = append(d.Plugins, HTMLPlugin(TemplateInjection{
		Template:   "payments/templates/payments/base_template.html",
		Filename:   "templates/payments/base.html",
		PublicPath: "/static/",
		Inject:     InjectBody,
		Chunks:     []string{"vendor", "main"},
	}))

	injections, err := d.ResolveTemplateInjections()
	require.NoError(t, err)
	require.Len(t, injections, 3)
	assert.Equal(t, "templates/payments/base.html", injections[2].Filename)
}

func TestResolveCleanupDirective(t *testing.T) {
	root := newProject(t)

	assert.True(t, Default(root).ResolveCleanupDirective().Enabled)
	assert.False(t, Default(root).WithoutCleanup().ResolveCleanupDirective().Enabled)
}

func TestValidate(t *testing.T) {
	root := newProject(t)
	require.NoError(t, Default(root).Validate())
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	root := newProject(t)
	require.NoError(t, os.Remove(filepath.Join(root, "static/js/vendor.js")))
	require.NoError(t, os.Remove(filepath.Join(root, "accounts/templates/accounts/base_template.html")))

	err := Default(root).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry.vendor")
	assert.Contains(t, err.Error(), "plugins[1].template")
}

func TestValidate_UnsafeCleanup(t *testing.T) {
	tests := []struct {
		name string
		path string
		ok   bool
		// allow cleaning outside the context
		allow bool
	}{
		{name: "inside context", path: "dist", ok: true},
		{name: "context itself", path: ".", ok: false},
		{name: "outside context", path: "../elsewhere", ok: false},
		{name: "outside context allowed", path: "../elsewhere", ok: true, allow: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newProject(t)
			d := Default(root)
			d.Output.Path = tt.path
			d.Plugins[2] = CleanPlugin(Cleanup{AllowOutsideContext: tt.allow})

			err := d.Validate()
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnsafeCleanup))
		})
	}
}

func TestParse(t *testing.T) {
	root := newProject(t)
	data := []byte(`
entry:
  vendor: static/js/vendor.js
  main: static/js/index.js
output:
  path: build
plugins:
  - kind: html
    html:
      template: dashboard/templates/dashboard/base_template.html
      filename: templates/dashboard/base.html
      chunks: [vendor, main]
  - kind: clean
    clean:
      keep: ["media/**"]
`)

	d, err := Parse(data, root)
	require.NoError(t, err)
	require.NoError(t, d.Validate())

	assert.Equal(t, DefaultFilename, d.Output.Filename)
	assert.Equal(t, "build", d.Output.Path)

	injections, err := d.ResolveTemplateInjections()
	require.NoError(t, err)
	require.Len(t, injections, 1)
	assert.Equal(t, DefaultPublicPath, injections[0].PublicPath)
	assert.Equal(t, InjectBody, injections[0].Inject)

	clean := d.ResolveCleanupDirective()
	assert.True(t, clean.Enabled)
	assert.Equal(t, []string{"media/**"}, clean.Keep)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("entry: {}\nbogus: true\n"), t.TempDir())
	require.Error(t, err)
}

func TestMarshal_RoundTrip(t *testing.T) {
	root := newProject(t)
	d := Default(root)

	data, err := d.Marshal()
	require.NoError(t, err)

	parsed, err := Parse(data, root)
	require.NoError(t, err)
	assert.Equal(t, d, parsed)
}

func TestValidate_BadKeepPattern(t *testing.T) {
	root := newProject(t)
	d := Default(root)
	d.Plugins[2] = CleanPlugin(Cleanup{Keep: []string{"media/[unterminated"}})

	err := d.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPlugin)
}

func TestLoad_ExampleMatchesDefault(t *testing.T) {
	root := newProject(t)

	d, err := Load(filepath.Join("..", "..", "assetpipe.example.yaml"), root)
	require.NoError(t, err)
	assert.Equal(t, Default(root), d)
}

func TestValidate_CleanupWouldRemoveSources(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		keep  []string
		field string
	}{
		{name: "entries inside output", path: "static", field: "entry.main"},
		{name: "templates inside output", path: "dashboard", field: "plugins[0].template"},
		{name: "kept sources", path: "static", keep: []string{"js/**"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newProject(t)
			d := Default(root)
			d.Output.Path = tt.path
			d.Plugins[2] = CleanPlugin(Cleanup{Keep: tt.keep})

			err := d.Validate()
			if tt.field == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsafeCleanup)
			assert.Contains(t, err.Error(), tt.field)

			// Without the clean step the same layout is fine.
			assert.NoError(t, d.WithoutCleanup().Validate())
		})
	}
}

func TestValidate_PluginPayloadMustMatchKind(t *testing.T) {
	root := newProject(t)

	d := Default(root)
	d.Plugins[0].Clean = &Cleanup{}
	err := d.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPlugin)
	assert.Contains(t, err.Error(), "plugins[0].clean")

	d = Default(root)
	d.Plugins[2].HTML = &TemplateInjection{}
	err = d.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPlugin)
	assert.Contains(t, err.Error(), "plugins[2].html")
}
