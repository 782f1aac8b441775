package buildconfig

// EntryMap maps a logical bundle name to its source file, relative to the context directory.
type EntryMap map[string]string

// InjectPoint is where generated asset tags are inserted into a template.
type InjectPoint string

const (
	InjectHead InjectPoint = "head"
	InjectBody InjectPoint = "body"
)

// ScriptLoading controls the attributes of generated script tags.
type ScriptLoading string

const (
	ScriptBlocking ScriptLoading = "blocking"
	ScriptDefer    ScriptLoading = "defer"
	ScriptModule   ScriptLoading = "module"
)

// OutputSpec describes where bundles are written and how they are named.
type OutputSpec struct {
	// Filename template for script bundles, e.g. "js/[name].[contenthash].bundle.js"
	Filename string `yaml:"filename"`
	// Filename template for stylesheets extracted from an entry
	CSSFilename string `yaml:"css_filename"`
	// Output directory, relative to the context unless absolute
	Path string `yaml:"path"`
	// URL prefix for files referenced from inside bundles (images, fonts)
	PublicPath string `yaml:"public_path"`
	// Manifest file written inside Path, empty disables it
	ManifestPath string `yaml:"manifest,omitempty"`
	// esbuild metafile written inside Path, empty disables it
	MetafilePath string `yaml:"metafile,omitempty"`
	// Whether to minify output
	Minify bool `yaml:"minify"`
	// Whether to embed inline source maps
	SourceMap bool `yaml:"sourcemap"`
	// esbuild target, e.g. "es2017"
	Target string `yaml:"target,omitempty"`
	// Write a gzip sibling next to every bundle
	Precompress bool `yaml:"precompress"`
}

// TemplateInjection is one generated HTML artifact.
type TemplateInjection struct {
	// Source HTML template, relative to the context
	Template string `yaml:"template"`
	// Output path, relative to the output directory
	Filename string `yaml:"filename"`
	// URL prefix the bundles are served under
	PublicPath string `yaml:"public_path"`
	// Where the tags are inserted
	Inject InjectPoint `yaml:"inject"`
	// Entries to reference, in markup order
	Chunks []string `yaml:"chunks"`
	// Script tag flavour, blocking when empty
	ScriptLoading ScriptLoading `yaml:"script_loading,omitempty"`
}

// Cleanup empties the output directory before each build.
type Cleanup struct {
	Enabled bool `yaml:"-"`
	// Glob patterns, relative to the output directory, that survive the clean
	Keep []string `yaml:"keep,omitempty"`
	// Log what would be removed without removing it
	DryRun bool `yaml:"dry_run,omitempty"`
	// Permit cleaning a directory outside the context
	AllowOutsideContext bool `yaml:"allow_outside_context,omitempty"`
}

// PluginKind tags the variant carried by a Plugin.
type PluginKind string

const (
	PluginHTML  PluginKind = "html"
	PluginClean PluginKind = "clean"
)

// Plugin is a post-processing directive. Exactly one of HTML or Clean is set,
// matching Kind.
type Plugin struct {
	Kind  PluginKind         `yaml:"kind"`
	HTML  *TemplateInjection `yaml:"html,omitempty"`
	Clean *Cleanup           `yaml:"clean,omitempty"`
}

// Descriptor is the complete, static description of a build.
type Descriptor struct {
	// Context is the absolute project directory all relative paths resolve against.
	Context string     `yaml:"-"`
	Entry   EntryMap   `yaml:"entry"`
	Output  OutputSpec `yaml:"output"`
	Plugins []Plugin   `yaml:"plugins"`
}

// HTMLPlugin wraps a template injection as a plugin directive.
func HTMLPlugin(t TemplateInjection) Plugin {
	return Plugin{Kind: PluginHTML, HTML: &t}
}

// CleanPlugin wraps a cleanup directive as a plugin directive.
func CleanPlugin(c Cleanup) Plugin {
	c.Enabled = true
	return Plugin{Kind: PluginClean, Clean: &c}
}
