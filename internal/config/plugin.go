package config

import "fmt"

// PluginKind identifies a post-build action in the closed plugin registry.
type PluginKind int

const (
	PluginHTML PluginKind = iota + 1
	PluginMiniCSSExtract
	PluginOptimizeCSS
	PluginCompression
)

var pluginNames = map[PluginKind]string{
	PluginHTML:           "html-webpack-plugin",
	PluginMiniCSSExtract: "mini-css-extract-plugin",
	PluginOptimizeCSS:    "optimize-css-assets-webpack-plugin",
	PluginCompression:    "compression-webpack-plugin",
}

func ParsePluginKind(s string) (PluginKind, error) {
	for kind, name := range pluginNames {
		if name == s {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPlugin, s)
}

func (k PluginKind) Valid() bool {
	_, ok := pluginNames[k]
	return ok
}

func (k PluginKind) String() string {
	if name, ok := pluginNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

func (k PluginKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPlugin, int(k))
	}
	return []byte(k.String()), nil
}

func (k *PluginKind) UnmarshalText(text []byte) error {
	parsed, err := ParsePluginKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// HTMLMinify selects the HTML minifier passes.
type HTMLMinify struct {
	CollapseBooleanAttributes bool `yaml:"collapseBooleanAttributes" json:"collapseBooleanAttributes"`
	RemoveComments            bool `yaml:"removeComments" json:"removeComments"`
}

// Compression algorithms understood by the compression plugin.
const (
	AlgorithmGzip = "gzip"
	AlgorithmZstd = "zstd"
)

// PluginOptions holds the options a plugin understands.
type PluginOptions struct {
	// Template is the HTML template path, relative to the project root.
	Template string `yaml:"template,omitempty" json:"template,omitempty"`
	// Filename is the emitted file name, relative to the output path.
	Filename string `yaml:"filename,omitempty" json:"filename,omitempty"`
	// Minify enables HTML minification when set.
	Minify *HTMLMinify `yaml:"minify,omitempty" json:"minify,omitempty"`
	// Algorithms lists the compression encodings to emit.
	Algorithms []string `yaml:"algorithms,omitempty" json:"algorithms,omitempty"`
	// Threshold is the minimum size in bytes a file needs to get compressed.
	Threshold int `yaml:"threshold,omitempty" json:"threshold,omitempty"`
}

// Plugin is a post-build directive.
type Plugin struct {
	Kind    PluginKind    `yaml:"plugin" json:"plugin"`
	Options PluginOptions `yaml:"options,omitempty" json:"options,omitempty"`
}
