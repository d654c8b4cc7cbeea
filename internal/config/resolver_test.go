package config

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestResolve_deterministic(t *testing.T) {
	for _, mode := range []Mode{ModeDevelopment, ModeProduction} {
		t.Run(mode.String(), func(t *testing.T) {
			a, err := Resolve(mode, DefaultLayout())
			require.NoError(t, err)
			b, err := Resolve(mode, DefaultLayout())
			require.NoError(t, err)

			require.Equal(t, a, b)

			aYAML, err := yaml.Marshal(a)
			require.NoError(t, err)
			bYAML, err := yaml.Marshal(b)
			require.NoError(t, err)
			require.Equal(t, string(aYAML), string(bYAML))
		})
	}
}

func TestResolve_development(t *testing.T) {
	desc, err := Resolve(ModeDevelopment, DefaultLayout())
	require.NoError(t, err)

	require.Equal(t, ModeDevelopment, desc.Mode)
	require.Equal(t, []string{"./src/index.js"}, desc.Entry)
	require.Equal(t, "build", desc.Output.Path)
	require.Equal(t, "built.js", desc.Output.Filename)

	require.True(t, desc.DevServer.Hot)
	require.True(t, desc.DevServer.Open)
	require.True(t, desc.DevServer.Compress)
	require.Equal(t, 3000, desc.DevServer.Port)
	require.Equal(t, "build", desc.DevServer.ContentBase)

	require.Equal(t, PlacementEval, desc.Devtool.Placement)
	require.False(t, desc.HasPlugin(PluginOptimizeCSS))
	require.False(t, desc.HasPlugin(PluginCompression))
	require.True(t, desc.HasPlugin(PluginHTML))

	require.Equal(t, Use(StepStyle, StepCSS), desc.ChainFor("src/index.css"))
}

func TestResolve_production(t *testing.T) {
	desc, err := Resolve(ModeProduction, DefaultLayout())
	require.NoError(t, err)

	require.True(t, desc.HasPlugin(PluginOptimizeCSS))
	require.True(t, desc.HasPlugin(PluginCompression))
	require.False(t, desc.Devtool.Inline())
	require.False(t, desc.DevServer.Hot)
	require.False(t, desc.DevServer.Open)

	html, ok := desc.Plugin(PluginHTML)
	require.True(t, ok)
	require.NotNil(t, html.Options.Minify)
	require.True(t, html.Options.Minify.RemoveComments)
	require.True(t, html.Options.Minify.CollapseBooleanAttributes)

	extract, ok := desc.Plugin(PluginMiniCSSExtract)
	require.True(t, ok)
	require.Equal(t, "css/built.css", extract.Options.Filename)

	require.Equal(t, Use(StepExtractCSS, StepCSS, StepPostCSS), desc.ChainFor("src/index.css"))
	require.Equal(t, Use(StepExtractCSS, StepCSS, StepPostCSS, StepLess), desc.ChainFor("src/index.less"))
}

func TestResolve_productionRejectsInlineSourceMaps(t *testing.T) {
	for _, devtool := range []string{"inline-source-map", "eval-source-map", "eval-cheap-module-source-map"} {
		t.Run(devtool, func(t *testing.T) {
			layout := DefaultLayout()
			layout.ProductionDevtool = devtool

			_, err := Resolve(ModeProduction, layout)
			require.ErrorIs(t, err, ErrInlineSourceMapInProduction)
		})
	}

	for _, devtool := range []string{"hidden-source-map", "nosources-source-map", "cheap-module-source-map", "none"} {
		t.Run(devtool, func(t *testing.T) {
			layout := DefaultLayout()
			layout.ProductionDevtool = devtool

			desc, err := Resolve(ModeProduction, layout)
			require.NoError(t, err)
			require.True(t, desc.HasPlugin(PluginOptimizeCSS))
		})
	}
}

func TestResolve_developmentAllowsInline(t *testing.T) {
	layout := DefaultLayout()
	layout.DevelopmentDevtool = "inline-source-map"

	desc, err := Resolve(ModeDevelopment, layout)
	require.NoError(t, err)
	require.Equal(t, PlacementInline, desc.Devtool.Placement)
}

func TestResolve_errors(t *testing.T) {
	tests := []struct {
		name    string
		mode    Mode
		modify  func(*Layout)
		wantErr error
	}{
		{
			name:    "unknown mode",
			mode:    Mode("staging"),
			modify:  func(*Layout) {},
			wantErr: ErrInvalidMode,
		},
		{
			name:    "no entries",
			mode:    ModeDevelopment,
			modify:  func(l *Layout) { l.Entries = nil },
			wantErr: ErrNoEntries,
		},
		{
			name: "fixed filename with two entries",
			mode: ModeProduction,
			modify: func(l *Layout) {
				l.Entries = []string{"./src/a.js", "./src/b.js"}
				l.Filename = "built.js"
				l.CSSFilename = "css/[name].css"
			},
			wantErr: ErrAmbiguousOutput,
		},
		{
			name: "fixed stylesheet with two entries",
			mode: ModeProduction,
			modify: func(l *Layout) {
				l.Entries = []string{"./src/a.js", "./src/b.js"}
				l.Filename = "[name].js"
			},
			wantErr: ErrAmbiguousOutput,
		},
		{
			name:    "bad port",
			mode:    ModeDevelopment,
			modify:  func(l *Layout) { l.Port = 70000 },
			wantErr: ErrInvalidPort,
		},
		{
			name:    "bad devtool",
			mode:    ModeDevelopment,
			modify:  func(l *Layout) { l.DevelopmentDevtool = "fast-source-map" },
			wantErr: ErrInvalidSourceMap,
		},
		{
			name:    "bad filename template",
			mode:    ModeDevelopment,
			modify:  func(l *Layout) { l.Filename = "[hash:40].js" },
			wantErr: ErrInvalidTemplate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout := DefaultLayout()
			tt.modify(&layout)

			_, err := Resolve(tt.mode, layout)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestResolve_multipleEntries(t *testing.T) {
	layout := DefaultLayout()
	layout.Entries = []string{"./src/a.js", "./src/b.js"}
	layout.Filename = "[name].[contenthash:8].js"
	layout.CSSFilename = "css/[name].css"

	desc, err := Resolve(ModeProduction, layout)
	require.NoError(t, err)
	require.Equal(t, layout.Entries, desc.Entry)

	// the description owns its slices
	layout.Entries[0] = "./src/changed.js"
	require.Equal(t, "./src/a.js", desc.Entry[0])
}

func TestResolve_assetRules(t *testing.T) {
	desc, err := Resolve(ModeDevelopment, DefaultLayout())
	require.NoError(t, err)

	image := desc.ChainFor("src/imgs/logo.png")
	require.Len(t, image, 1)
	require.Equal(t, StepURL, image[0].Kind)
	require.Equal(t, 8*1024, image[0].Options.Limit)
	require.Equal(t, "[hash:10].[ext]", image[0].Options.Name)
	require.Equal(t, "imgs", image[0].Options.OutputPath)
	require.False(t, image[0].Options.ESModule)

	font := desc.ChainFor("src/fonts/iconfont.ttf")
	require.Len(t, font, 1)
	require.Equal(t, StepFile, font[0].Kind)
	require.Equal(t, "media", font[0].Options.OutputPath)

	require.Equal(t, StepHTMLWithImg, desc.ChainFor("src/index.html")[0].Kind)

	require.Empty(t, desc.ChainFor("src/index.js"))
	require.Empty(t, desc.ChainFor("src/data.json"))
}
