package assets

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/bundlekit/internal/config"
)

func newTestRunner() *chainRunner {
	return newChainRunner("/", nil, "lessc", newAssetSink())
}

func TestChainRunner_urlLimit(t *testing.T) {
	steps := []config.Step{{
		Kind:    config.StepURL,
		Options: config.StepOptions{Limit: 16, Name: "[hash:10].[ext]", OutputPath: "imgs"},
	}}

	t.Run("inlined under the limit", func(t *testing.T) {
		r := newTestRunner()

		m, err := r.run(context.Background(), "/src/dot.png", []byte("tiny"), steps, false)
		require.NoError(t, err)

		require.Equal(t, contentJS, m.kind)
		require.True(t, strings.HasPrefix(m.url, "data:image/png;base64,"))
		require.Contains(t, string(m.contents), "module.exports = ")

		files := map[string][]byte{}
		require.Zero(t, r.sink.drain(files))
	})

	t.Run("emitted over the limit", func(t *testing.T) {
		r := newTestRunner()
		contents := bytes.Repeat([]byte("x"), 17)

		m, err := r.run(context.Background(), "/src/photo.png", contents, steps, false)
		require.NoError(t, err)

		name, err := config.ResolveNaming("[hash:10].[ext]", "photo.png", contents)
		require.NoError(t, err)
		require.Equal(t, "/imgs/"+name, m.url)
		require.Equal(t, "module.exports = \"/imgs/"+name+"\";\n", string(m.contents))

		files := map[string][]byte{}
		require.Equal(t, 1, r.sink.drain(files))
		require.Equal(t, contents, files["imgs/"+name])
	})
}

func TestChainRunner_fileESModule(t *testing.T) {
	r := newTestRunner()
	steps := []config.Step{{
		Kind:    config.StepFile,
		Options: config.StepOptions{Name: "[name].[ext]", OutputPath: "media", ESModule: true},
	}}

	m, err := r.run(context.Background(), "/src/fonts/iconfont.ttf", []byte("font"), steps, false)
	require.NoError(t, err)
	require.Equal(t, "/media/iconfont.ttf", m.url)
	require.Equal(t, "export default \"/media/iconfont.ttf\";\n", string(m.contents))
}

func TestChainRunner_style(t *testing.T) {
	r := newTestRunner()
	// no bundler wired, css only marks the module
	m, err := r.run(context.Background(), "/src/index.css", []byte("body{color:red}"), config.Use(config.StepStyle, config.StepCSS), false)
	require.NoError(t, err)

	require.Equal(t, contentJS, m.kind)
	require.Contains(t, string(m.contents), `document.createElement("style")`)
	require.Contains(t, string(m.contents), `"body{color:red}"`)
	require.Contains(t, string(m.contents), `"index.css"`)
}

func TestChainRunner_nestedSkipsStyle(t *testing.T) {
	r := newTestRunner()

	m, err := r.run(context.Background(), "/src/base.css", []byte("a{}"), config.Use(config.StepStyle, config.StepCSS), true)
	require.NoError(t, err)
	require.Equal(t, contentCSSModule, m.kind)

	res, err := m.loadResult(true)
	require.NoError(t, err)
	require.Equal(t, "a{}", *res.Contents)
	require.Equal(t, "/src", res.ResolveDir)
}

func TestChainRunner_order(t *testing.T) {
	tests := []struct {
		name  string
		steps []config.Step
	}{
		{
			name:  "style needs css first",
			steps: config.Use(config.StepStyle),
		},
		{
			name:  "less after css",
			steps: config.Use(config.StepLess, config.StepCSS),
		},
		{
			name:  "url on javascript",
			steps: config.Use(config.StepURL, config.StepHTML),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestRunner().run(context.Background(), "/src/a.less", []byte("a{}"), tt.steps, false)
			require.ErrorIs(t, err, ErrChainOrder)
		})
	}

	// a css module cannot be handed to esbuild as JavaScript
	m, err := newTestRunner().run(context.Background(), "/src/a.css", []byte("a{}"), config.Use(config.StepCSS), false)
	require.NoError(t, err)
	_, err = m.loadResult(false)
	require.ErrorIs(t, err, ErrChainOrder)
}

func TestChainRunner_postcss(t *testing.T) {
	r := newChainRunner("/", []api.Engine{{Name: api.EngineChrome, Version: "87"}}, "lessc", newAssetSink())

	m, err := r.run(context.Background(), "/src/a.css", []byte("a {\n  color: red;\n}\n"), config.Use(config.StepPostCSS), false)
	require.NoError(t, err)
	require.Equal(t, contentCSS, m.kind)
	require.Contains(t, string(m.contents), "color: red")
}

func TestChainRunner_htmlWithImg(t *testing.T) {
	r := newTestRunner()
	markup := `<div><img src="imgs/logo.png" alt="logo"><img src="https://example.com/a.png"><img src="../b.gif"/></div>`

	m, err := r.run(context.Background(), "/src/index.html", []byte(markup), config.Use(config.StepHTMLWithImg), false)
	require.NoError(t, err)

	out := string(m.contents)
	require.Contains(t, out, `var __bundlekit_img0 = require("./imgs/logo.png");`)
	require.Contains(t, out, `var __bundlekit_img1 = require("../b.gif");`)
	require.Contains(t, out, `" + __bundlekit_img0 + "`)
	require.Contains(t, out, `https://example.com/a.png`)
	require.NotContains(t, out, "__BUNDLEKIT_IMG_")
	require.True(t, strings.HasSuffix(out, ";\n"))
}

func TestChainRunner_html(t *testing.T) {
	r := newTestRunner()
	steps := []config.Step{{Kind: config.StepHTML, Options: config.StepOptions{ESModule: true}}}

	m, err := r.run(context.Background(), "/src/partial.html", []byte("<p>hi</p>"), steps, false)
	require.NoError(t, err)
	require.Equal(t, "export default \"\\u003cp\\u003ehi\\u003c/p\\u003e\";\n", string(m.contents))
}

// fakeLessc writes a lessc stand-in that prints the name of the file it was
// given followed by its contents, and fails when the file mentions "broken".
func fakeLessc(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in")
	}

	script := filepath.Join(t.TempDir(), "lessc")
	body := `#!/bin/sh
for last; do :; done
if grep -q broken "$last"; then
  echo "ParseError: broken input" >&2
  exit 2
fi
printf '/* %s */\n' "$(basename "$last")"
cat "$last"
`
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755)) //nolint:gosec
	return script
}

func TestChainRunner_less(t *testing.T) {
	lessc := fakeLessc(t)
	dir := t.TempDir()
	source := filepath.Join(dir, "theme.less")

	t.Run("compiles the original file", func(t *testing.T) {
		require.NoError(t, os.WriteFile(source, []byte("a { color: red; }\n"), 0o600))
		r := newChainRunner("/", nil, lessc, newAssetSink())

		m, err := r.run(context.Background(), source, []byte("a { color: red; }\n"), config.Use(config.StepLess), false)
		require.NoError(t, err)
		require.Equal(t, contentCSS, m.kind)
		require.True(t, strings.HasPrefix(string(m.contents), "/* theme.less */"))
		require.Contains(t, string(m.contents), "color: red")
	})

	t.Run("output of an earlier step goes through a temp file", func(t *testing.T) {
		r := newChainRunner("/", []api.Engine{{Name: api.EngineChrome, Version: "87"}}, lessc, newAssetSink())

		m, err := r.run(context.Background(), source, []byte("a { color: blue; }\n"), config.Use(config.StepLess, config.StepPostCSS), false)
		require.NoError(t, err)
		require.Equal(t, contentCSS, m.kind)
		require.True(t, strings.HasPrefix(string(m.contents), "/* .bundlekit-"))
		require.Contains(t, string(m.contents), "color: blue")

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1, "temp file removed")
	})

	t.Run("non-zero exit", func(t *testing.T) {
		require.NoError(t, os.WriteFile(source, []byte("broken {\n"), 0o600))
		r := newChainRunner("/", nil, lessc, newAssetSink())

		_, err := r.run(context.Background(), source, []byte("broken {\n"), config.Use(config.StepLess), false)
		require.ErrorIs(t, err, ErrExternalTool)
	})

	t.Run("missing binary", func(t *testing.T) {
		r := newChainRunner("/", nil, filepath.Join(t.TempDir(), "no-such-lessc"), newAssetSink())

		_, err := r.run(context.Background(), source, []byte("a {}"), config.Use(config.StepLess), false)
		require.ErrorIs(t, err, ErrExternalTool)
	})
}
