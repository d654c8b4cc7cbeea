package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Layout is the fixed project layout the resolver reads. It is what a
// project file may override; the per-mode policy is not.
type Layout struct {
	Root        string   `yaml:"root" json:"root"`
	Entries     []string `yaml:"entry" json:"entry"`
	OutputDir   string   `yaml:"output" json:"output"`
	Filename    string   `yaml:"filename" json:"filename"`
	PublicPath  string   `yaml:"publicPath" json:"publicPath"`
	Template    string   `yaml:"template" json:"template"`
	CSSFilename string   `yaml:"cssFilename" json:"cssFilename"`
	Host        string   `yaml:"host" json:"host"`
	Port        int      `yaml:"port" json:"port"`
	// ImageInlineLimit is the url-loader limit in bytes.
	ImageInlineLimit int `yaml:"imageInlineLimit" json:"imageInlineLimit"`
	// DevelopmentDevtool and ProductionDevtool override the per-mode source map policy.
	DevelopmentDevtool string   `yaml:"developmentDevtool" json:"developmentDevtool"`
	ProductionDevtool  string   `yaml:"productionDevtool" json:"productionDevtool"`
	AllowedOrigins     []string `yaml:"allowedOrigins" json:"allowedOrigins"`
}

// DefaultLayout returns the conventional project layout.
func DefaultLayout() Layout {
	return Layout{
		Root:             ".",
		Entries:          []string{"./src/index.js"},
		OutputDir:        "build",
		Filename:         "built.js",
		PublicPath:       "/",
		Template:         "./src/index.html",
		CSSFilename:      "css/built.css",
		Host:             "localhost",
		Port:             3000,
		ImageInlineLimit: 8 * 1024,
	}
}

// LoadLayout reads a YAML or JSON project file on top of DefaultLayout. A
// relative root is taken relative to the file's directory.
func LoadLayout(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("failed to read layout file: %w", err)
	}

	layout := DefaultLayout()
	layout.Root = ""

	if strings.HasSuffix(strings.ToLower(path), ".json") {
		if err := json.Unmarshal(data, &layout); err != nil {
			return Layout{}, fmt.Errorf("failed to parse JSON layout: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &layout); err != nil {
			return Layout{}, fmt.Errorf("failed to parse YAML layout: %w", err)
		}
	}

	if !filepath.IsAbs(layout.Root) {
		layout.Root = filepath.Join(filepath.Dir(path), layout.Root)
	}

	return layout, nil
}

// DevtoolFor returns the layout's source map override for mode, if any.
func (l Layout) DevtoolFor(mode Mode) string {
	if mode == ModeProduction {
		return l.ProductionDevtool
	}
	return l.DevelopmentDevtool
}
