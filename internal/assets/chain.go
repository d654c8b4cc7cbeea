package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	consolestream "github.com/wolfeidau/console-stream"

	"github.com/wolfeidau/bundlekit/internal/config"
)

const defaultAssetName = "[hash].[ext]"

type contentKind int

const (
	contentSource contentKind = iota
	contentCSS
	contentCSSModule
	contentJS
)

func (k contentKind) String() string {
	switch k {
	case contentSource:
		return "source"
	case contentCSS:
		return "css"
	case contentCSSModule:
		return "css module"
	case contentJS:
		return "javascript"
	}
	return "unknown"
}

// module is a file moving through a loader chain.
type module struct {
	path     string
	contents []byte
	kind     contentKind
	// url is set once a step emitted the file as an asset
	url    string
	nested bool
	dirty  bool
	// watchFiles are read by a step without esbuild seeing them
	watchFiles []string
}

type stepFunc func(ctx context.Context, m *module, opts config.StepOptions) error

// chainRunner executes loader chains. It is safe for concurrent use, esbuild
// calls it from many goroutines.
type chainRunner struct {
	publicPath string
	engines    []api.Engine
	lessc      string
	sink       *assetSink
	// bundleCSS inlines @import rules and resolves url() references
	bundleCSS func(path string, contents []byte) ([]byte, []string, error)
	steps     map[config.StepKind]stepFunc
}

func newChainRunner(publicPath string, engines []api.Engine, lessc string, sink *assetSink) *chainRunner {
	r := &chainRunner{
		publicPath: publicPath,
		engines:    engines,
		lessc:      lessc,
		sink:       sink,
	}
	r.steps = map[config.StepKind]stepFunc{
		config.StepLess:        r.less,
		config.StepPostCSS:     r.postcss,
		config.StepCSS:         r.css,
		config.StepStyle:       r.style,
		config.StepExtractCSS:  r.extract,
		config.StepURL:         r.url,
		config.StepFile:        r.file,
		config.StepHTML:        r.html,
		config.StepHTMLWithImg: r.htmlWithImg,
	}
	return r
}

// run applies the declared chain right to left. Nested stylesheets skip the
// steps that would turn them into JavaScript.
func (r *chainRunner) run(ctx context.Context, path string, contents []byte, declared []config.Step, nested bool) (*module, error) {
	m := &module{path: path, contents: contents, nested: nested}

	for _, step := range config.ExecutionOrder(declared) {
		if nested && (step.Kind == config.StepStyle || step.Kind == config.StepExtractCSS) {
			continue
		}
		fn, ok := r.steps[step.Kind]
		if !ok {
			return nil, fmt.Errorf("%w: %s", config.ErrUnknownLoader, step.Kind)
		}
		if err := fn(ctx, m, step.Options); err != nil {
			return nil, fmt.Errorf("%s: %w", step.Kind, err)
		}
		m.dirty = true
	}

	return m, nil
}

// assetURL runs an asset chain and returns the URL of the emitted file.
func (r *chainRunner) assetURL(ctx context.Context, path string, contents []byte, declared []config.Step) (string, error) {
	m, err := r.run(ctx, path, contents, declared, false)
	if err != nil {
		return "", err
	}
	if m.url == "" {
		return "", fmt.Errorf("%s: chain does not emit an asset", path)
	}
	return m.url, nil
}

func (m *module) loadResult(nested bool) (api.OnLoadResult, error) {
	var loader api.Loader
	switch m.kind {
	case contentJS:
		loader = api.LoaderJS
	case contentCSS:
		loader = api.LoaderCSS
	case contentCSSModule:
		if !nested {
			return api.OnLoadResult{}, fmt.Errorf("%w: %s left as a css module, add style-loader or mini-css-extract-plugin/loader", ErrChainOrder, m.path)
		}
		loader = api.LoaderCSS
	default:
		return api.OnLoadResult{}, nil
	}

	contents := string(m.contents)
	resolveDir := filepath.Dir(m.path)

	return api.OnLoadResult{
		Contents:   &contents,
		ResolveDir: resolveDir,
		Loader:     loader,
		WatchFiles: m.watchFiles,
	}, nil
}

func expect(m *module, kinds ...contentKind) error {
	for _, kind := range kinds {
		if m.kind == kind {
			return nil
		}
	}
	return fmt.Errorf("%w: got %s", ErrChainOrder, m.kind)
}

// less compiles with the external lessc binary, streaming its output the way
// any other child process is run. CSS is valid less, so it may follow a step
// that already produced a stylesheet; that output goes through a temp file
// next to the original so relative imports keep resolving.
func (r *chainRunner) less(ctx context.Context, m *module, _ config.StepOptions) error {
	if err := expect(m, contentSource, contentCSS); err != nil {
		return err
	}

	source := m.path
	if m.dirty {
		tmp, err := os.CreateTemp(filepath.Dir(m.path), ".bundlekit-*.less")
		if err != nil {
			return err
		}
		defer os.Remove(tmp.Name())
		if _, err := tmp.Write(m.contents); err != nil {
			_ = tmp.Close()
			return err
		}
		if err := tmp.Close(); err != nil {
			return err
		}
		source = tmp.Name()
	}

	process := consolestream.NewProcess(r.lessc, []string{"--no-color", source}, consolestream.WithPipeMode())

	var output bytes.Buffer
	for event, err := range process.ExecuteAndStream(ctx) {
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrExternalTool, r.lessc, err)
		}

		switch e := event.Event.(type) {
		case *consolestream.OutputData:
			output.Write(e.Data)
		case *consolestream.ProcessEnd:
			if e.ExitCode != 0 {
				return fmt.Errorf("%w: %s exited with %d: %s", ErrExternalTool, r.lessc, e.ExitCode, strings.TrimSpace(output.String()))
			}
			m.contents = output.Bytes()
			m.kind = contentCSS
			return nil
		}
	}

	return fmt.Errorf("%w: %s ended without an exit status", ErrExternalTool, r.lessc)
}

// postcss lowers stylesheet syntax to the configured browser targets.
func (r *chainRunner) postcss(_ context.Context, m *module, _ config.StepOptions) error {
	if err := expect(m, contentSource, contentCSS); err != nil {
		return err
	}

	result := api.Transform(string(m.contents), api.TransformOptions{
		Loader:     api.LoaderCSS,
		Engines:    r.engines,
		Sourcefile: m.path,
		LogLevel:   api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return messagesError(ErrBuildFailed, result.Errors)
	}

	m.contents = result.Code
	m.kind = contentCSS
	return nil
}

// css resolves @import and url() so the stylesheet can travel inside a
// JavaScript module.
func (r *chainRunner) css(_ context.Context, m *module, _ config.StepOptions) error {
	if err := expect(m, contentSource, contentCSS); err != nil {
		return err
	}

	if !m.nested && r.bundleCSS != nil {
		bundled, inputs, err := r.bundleCSS(m.path, m.contents)
		if err != nil {
			return err
		}
		m.contents = bundled
		m.watchFiles = append(m.watchFiles, inputs...)
	}

	m.kind = contentCSSModule
	return nil
}

func (r *chainRunner) style(_ context.Context, m *module, _ config.StepOptions) error {
	if err := expect(m, contentCSSModule); err != nil {
		return err
	}

	css, err := json.Marshal(string(m.contents))
	if err != nil {
		return err
	}
	source, err := json.Marshal(filepath.Base(m.path))
	if err != nil {
		return err
	}

	m.contents = fmt.Appendf(nil, `(() => {
  const style = document.createElement("style");
  style.setAttribute("data-source", %s);
  style.textContent = %s;
  document.head.appendChild(style);
})();
`, source, css)
	m.kind = contentJS
	return nil
}

// extract hands the stylesheet back to esbuild, which collects it into the
// entry's CSS bundle.
func (r *chainRunner) extract(_ context.Context, m *module, _ config.StepOptions) error {
	if err := expect(m, contentCSSModule); err != nil {
		return err
	}
	m.kind = contentCSS
	return nil
}

func (r *chainRunner) url(_ context.Context, m *module, opts config.StepOptions) error {
	if err := expect(m, contentSource); err != nil {
		return err
	}

	if len(m.contents) <= opts.Limit {
		m.url = dataURL(m.path, m.contents)
	} else {
		assetURL, err := r.emit(m.path, m.contents, opts)
		if err != nil {
			return err
		}
		m.url = assetURL
	}

	return exportValue(m, m.url, opts.ESModule)
}

func (r *chainRunner) file(_ context.Context, m *module, opts config.StepOptions) error {
	if err := expect(m, contentSource); err != nil {
		return err
	}

	assetURL, err := r.emit(m.path, m.contents, opts)
	if err != nil {
		return err
	}
	m.url = assetURL

	return exportValue(m, m.url, opts.ESModule)
}

func (r *chainRunner) html(_ context.Context, m *module, opts config.StepOptions) error {
	if err := expect(m, contentSource); err != nil {
		return err
	}
	return exportValue(m, string(m.contents), opts.ESModule)
}

// htmlWithImg exports the markup with every local <img src> replaced by a
// module import, so images go through their own chains.
func (r *chainRunner) htmlWithImg(_ context.Context, m *module, opts config.StepOptions) error {
	if err := expect(m, contentSource); err != nil {
		return err
	}

	var imports []string
	markup, err := rewriteImageSources(m.contents, func(src string) (string, bool, error) {
		if !isLocalReference(src) {
			return "", false, nil
		}
		placeholder := fmt.Sprintf("__BUNDLEKIT_IMG_%d__", len(imports))
		imports = append(imports, src)
		return placeholder, true, nil
	})
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(markup)
	if err != nil {
		return err
	}
	body := string(encoded)

	var b strings.Builder
	for i, src := range imports {
		request := src
		if !strings.HasPrefix(request, "./") && !strings.HasPrefix(request, "../") {
			request = "./" + request
		}
		quoted, err := json.Marshal(request)
		if err != nil {
			return err
		}
		ident := fmt.Sprintf("__bundlekit_img%d", i)
		if opts.ESModule {
			fmt.Fprintf(&b, "import %s from %s;\n", ident, quoted)
		} else {
			fmt.Fprintf(&b, "var %s = require(%s);\n", ident, quoted)
		}
		body = strings.ReplaceAll(body, fmt.Sprintf("__BUNDLEKIT_IMG_%d__", i), `" + `+ident+` + "`)
	}

	if opts.ESModule {
		fmt.Fprintf(&b, "export default %s;\n", body)
	} else {
		fmt.Fprintf(&b, "module.exports = %s;\n", body)
	}

	m.contents = []byte(b.String())
	m.kind = contentJS
	return nil
}

// emit names the file from its template and hands it to the sink.
func (r *chainRunner) emit(source string, contents []byte, opts config.StepOptions) (string, error) {
	tmpl := opts.Name
	if tmpl == "" {
		tmpl = defaultAssetName
	}

	name, err := config.ResolveNaming(tmpl, source, contents)
	if err != nil {
		return "", err
	}

	rel := path.Join(opts.OutputPath, name)
	r.sink.add(rel, contents)

	return joinURL(r.publicPath, rel), nil
}

func exportValue(m *module, value string, esModule bool) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if esModule {
		m.contents = fmt.Appendf(nil, "export default %s;\n", encoded)
	} else {
		m.contents = fmt.Appendf(nil, "module.exports = %s;\n", encoded)
	}
	m.kind = contentJS
	return nil
}

func dataURL(source string, contents []byte) string {
	mediaType := mime.TypeByExtension(filepath.Ext(source))
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(contents)
}
