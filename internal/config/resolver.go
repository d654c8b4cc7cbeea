package config

import (
	"fmt"
	"slices"
)

const (
	developmentDevtool = "eval-source-map"
	productionDevtool  = "source-map"

	assetName = "[hash:10].[ext]"

	compressionThreshold = 1024
)

var (
	// last 1 chrome/firefox/safari version
	developmentTargets = []string{"chrome130", "firefox132", "safari18"}
	// >0.2%, not dead
	productionTargets = []string{"chrome87", "edge88", "firefox78", "safari14"}
)

const (
	cssPattern   = `\.css$`
	lessPattern  = `\.less$`
	imagePattern = `\.(jpe?g|png|gif|svg)$`
	htmlPattern  = `\.html$`
	// everything the other rules or the bundler itself already handle
	otherExcludePattern = `\.(html|js|mjs|cjs|jsx|ts|tsx|json|css|less|jpe?g|png|gif|svg)$`
)

// Resolve builds the description for mode over layout. It is deterministic:
// the same mode and layout always produce an equal description.
func Resolve(mode Mode, layout Layout) (*BuildDescription, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	devtool := layout.DevtoolFor(mode)
	if devtool == "" {
		devtool = developmentDevtool
		if mode == ModeProduction {
			devtool = productionDevtool
		}
	}
	sourceMap, err := ParseSourceMap(devtool)
	if err != nil {
		return nil, err
	}

	production := mode == ModeProduction

	desc := &BuildDescription{
		Mode:    mode,
		Context: layout.Root,
		Entry:   slices.Clone(layout.Entries),
		Output: Output{
			Path:       layout.OutputDir,
			Filename:   layout.Filename,
			PublicPath: layout.PublicPath,
		},
		Rules:   rules(production, layout),
		Plugins: plugins(production, layout),
		DevServer: DevServer{
			ContentBase:    layout.OutputDir,
			Compress:       true,
			Host:           layout.Host,
			Port:           layout.Port,
			Open:           !production,
			Hot:            !production,
			AllowedOrigins: slices.Clone(layout.AllowedOrigins),
		},
		Devtool: sourceMap,
		Targets: slices.Clone(developmentTargets),
	}
	if production {
		desc.Targets = slices.Clone(productionTargets)
	}

	if err := desc.Validate(); err != nil {
		return nil, err
	}

	return desc, nil
}

func rules(production bool, layout Layout) []Rule {
	// the stylesheet is injected by a <style> tag in development so it can be
	// hot swapped, and extracted to its own file in production
	cssChain := Use(StepStyle, StepCSS)
	lessChain := Use(StepStyle, StepCSS, StepLess)
	if production {
		cssChain = Use(StepExtractCSS, StepCSS, StepPostCSS)
		lessChain = Use(StepExtractCSS, StepCSS, StepPostCSS, StepLess)
	}

	return []Rule{
		{Test: MustPattern(cssPattern), Use: cssChain},
		{Test: MustPattern(lessPattern), Use: lessChain},
		{
			Exclude: MustPattern(otherExcludePattern),
			Use: []Step{{
				Kind:    StepFile,
				Options: StepOptions{Name: assetName, OutputPath: "media"},
			}},
		},
		{
			Test: MustPattern(imagePattern),
			Use: []Step{{
				Kind: StepURL,
				Options: StepOptions{
					Limit:      layout.ImageInlineLimit,
					Name:       assetName,
					OutputPath: "imgs",
					ESModule:   false,
				},
			}},
		},
		{
			Test: MustPattern(htmlPattern),
			Use:  []Step{{Kind: StepHTMLWithImg, Options: StepOptions{ESModule: false}}},
		},
	}
}

func plugins(production bool, layout Layout) []Plugin {
	html := Plugin{
		Kind:    PluginHTML,
		Options: PluginOptions{Template: layout.Template, Filename: "index.html"},
	}
	if !production {
		return []Plugin{html}
	}

	html.Options.Minify = &HTMLMinify{
		CollapseBooleanAttributes: true,
		RemoveComments:            true,
	}

	return []Plugin{
		html,
		{Kind: PluginMiniCSSExtract, Options: PluginOptions{Filename: layout.CSSFilename}},
		{Kind: PluginOptimizeCSS},
		{
			Kind: PluginCompression,
			Options: PluginOptions{
				Algorithms: []string{AlgorithmGzip, AlgorithmZstd},
				Threshold:  compressionThreshold,
			},
		},
	}
}
