package config

import (
	"fmt"
	"net"
	"strconv"
)

// Output describes where and how bundles are written.
type Output struct {
	// Path is the output directory, relative to the project root.
	Path string `yaml:"path" json:"path"`
	// Filename is the bundle naming template, e.g. "built.js" or "[name].js".
	Filename string `yaml:"filename" json:"filename"`
	// PublicPath prefixes every URL the build hands out.
	PublicPath string `yaml:"publicPath" json:"publicPath"`
}

// DevServer configures the development server.
type DevServer struct {
	// ContentBase is the directory static files are served from.
	ContentBase    string   `yaml:"contentBase" json:"contentBase"`
	Compress       bool     `yaml:"compress" json:"compress"`
	Host           string   `yaml:"host" json:"host"`
	Port           int      `yaml:"port" json:"port"`
	Open           bool     `yaml:"open" json:"open"`
	Hot            bool     `yaml:"hot" json:"hot"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty" json:"allowedOrigins,omitempty"`
}

// Addr returns the host:port the dev server listens on.
func (d DevServer) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// URL returns the address a browser should open.
func (d DevServer) URL() string {
	host := d.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(d.Port)) + "/"
}

// BuildDescription is everything the bundler needs for one invocation. It is
// built once by Resolve and never mutated afterwards.
type BuildDescription struct {
	Mode Mode `yaml:"mode" json:"mode"`
	// Context is the project root every relative path is resolved against.
	Context   string          `yaml:"context" json:"context"`
	Entry     []string        `yaml:"entry" json:"entry"`
	Output    Output          `yaml:"output" json:"output"`
	Rules     []Rule          `yaml:"rules" json:"rules"`
	Plugins   []Plugin        `yaml:"plugins" json:"plugins"`
	DevServer DevServer       `yaml:"devServer" json:"devServer"`
	Devtool   SourceMapPolicy `yaml:"devtool" json:"devtool"`
	// Targets lists the browsers output has to run in, e.g. "chrome87".
	Targets []string `yaml:"targets" json:"targets"`
}

// Plugin returns the first directive of the given kind.
func (d *BuildDescription) Plugin(kind PluginKind) (Plugin, bool) {
	for _, p := range d.Plugins {
		if p.Kind == kind {
			return p, true
		}
	}
	return Plugin{}, false
}

func (d *BuildDescription) HasPlugin(kind PluginKind) bool {
	_, ok := d.Plugin(kind)
	return ok
}

// ChainFor returns the declared chain for path across all matching rules.
func (d *BuildDescription) ChainFor(path string) []Step {
	return Chain(d.Rules, path)
}

// Validate checks the description invariants.
func (d *BuildDescription) Validate() error {
	if !d.Mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, d.Mode)
	}
	if len(d.Entry) == 0 {
		return ErrNoEntries
	}
	if err := ValidateTemplate(d.Output.Filename); err != nil {
		return err
	}
	if len(d.Entry) > 1 && !HasUniquePlaceholder(d.Output.Filename) {
		return fmt.Errorf("%w: %q with %d entries", ErrAmbiguousOutput, d.Output.Filename, len(d.Entry))
	}
	if d.Mode == ModeProduction && d.Devtool.Inline() {
		return fmt.Errorf("%w: %s", ErrInlineSourceMapInProduction, d.Devtool)
	}
	if d.DevServer.Port < 1 || d.DevServer.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, d.DevServer.Port)
	}

	for i, rule := range d.Rules {
		if rule.Test == nil && rule.Exclude == nil {
			return fmt.Errorf("%w: rule %d has neither test nor exclude", ErrInvalidRule, i)
		}
		if len(rule.Use) == 0 {
			return fmt.Errorf("%w: rule %d has an empty chain", ErrInvalidRule, i)
		}
		for _, step := range rule.Use {
			if !step.Kind.Valid() {
				return fmt.Errorf("rule %d: %w: %d", i, ErrUnknownLoader, int(step.Kind))
			}
			if step.Options.Limit < 0 {
				return fmt.Errorf("%w: rule %d: negative limit", ErrInvalidRule, i)
			}
			if err := ValidateTemplate(step.Options.Name); err != nil {
				return fmt.Errorf("rule %d: %w", i, err)
			}
		}
	}

	for _, p := range d.Plugins {
		if !p.Kind.Valid() {
			return fmt.Errorf("%w: %d", ErrUnknownPlugin, int(p.Kind))
		}
		if p.Kind == PluginMiniCSSExtract {
			if err := ValidateTemplate(p.Options.Filename); err != nil {
				return err
			}
			if len(d.Entry) > 1 && !HasUniquePlaceholder(p.Options.Filename) {
				return fmt.Errorf("%w: stylesheet %q with %d entries", ErrAmbiguousOutput, p.Options.Filename, len(d.Entry))
			}
		}
	}

	return nil
}
