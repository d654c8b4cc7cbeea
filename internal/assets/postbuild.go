package assets

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/bundlekit/internal/config"
)

var sourceMappingURLRe = regexp.MustCompile(`/\*# sourceMappingURL=[^*]*\*/\s*$`)

var compressibleExtensions = map[string]bool{
	".css":  true,
	".html": true,
	".js":   true,
	".json": true,
	".mjs":  true,
	".svg":  true,
	".txt":  true,
	".xml":  true,
}

// applyPlugins runs the post-build plugins over the build's files. They run
// in a fixed order so each one sees the final names of the previous ones:
// stylesheet extraction, HTML generation, stylesheet optimization and last
// compression.
func (p *Pipeline) applyPlugins(ctx context.Context, res *Result) error {
	if plugin, ok := p.desc.Plugin(config.PluginMiniCSSExtract); ok {
		if err := p.extractStylesheets(plugin.Options, res.Files); err != nil {
			return fmt.Errorf("%s: %w", plugin.Kind, err)
		}
	}

	if plugin, ok := p.desc.Plugin(config.PluginHTML); ok {
		if err := p.renderHTML(ctx, plugin.Options, res); err != nil {
			return fmt.Errorf("%s: %w", plugin.Kind, err)
		}
	}

	if n := p.sink.drain(res.Files); n > 0 {
		log.Debug().Int("assets", n).Msg("Collected emitted assets")
	}

	if plugin, ok := p.desc.Plugin(config.PluginOptimizeCSS); ok {
		if err := optimizeStylesheets(res.Files); err != nil {
			return fmt.Errorf("%s: %w", plugin.Kind, err)
		}
	}

	if plugin, ok := p.desc.Plugin(config.PluginCompression); ok {
		if err := compressFiles(plugin.Options, res.Files); err != nil {
			return fmt.Errorf("%s: %w", plugin.Kind, err)
		}
	}

	return nil
}

// extractStylesheets moves each entry's CSS bundle to the configured file name.
func (p *Pipeline) extractStylesheets(opts config.PluginOptions, files map[string][]byte) error {
	if opts.Filename == "" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, entry := range p.desc.Entry {
		_, info, ok := p.entryOutput(entry)
		if !ok || info.CSSBundle == "" {
			continue
		}

		from := p.outputRel(info.CSSBundle)
		contents, ok := files[from]
		if !ok {
			continue
		}

		to, err := config.ResolveNaming(opts.Filename, p.metaPath(entry), contents)
		if err != nil {
			return err
		}
		if to == from {
			continue
		}

		delete(files, from)
		if sourceMap, ok := files[from+".map"]; ok {
			delete(files, from+".map")
			files[to+".map"] = sourceMap
			contents = sourceMappingURLRe.ReplaceAll(contents, []byte("/*# sourceMappingURL="+path.Base(to)+".map */\n"))
		}
		files[to] = contents
		p.renames[from] = to

		log.Debug().Str("from", from).Str("to", to).Msg("Extracted stylesheet")
	}

	return nil
}

// renderHTML generates the HTML page that loads every entry. The template
// and the images it references are recorded as inputs of res.
func (p *Pipeline) renderHTML(ctx context.Context, opts config.PluginOptions, res *Result) error {
	markup := []byte(defaultTemplate)
	templateDir := p.root

	if opts.Template != "" {
		templatePath := filepath.Join(p.root, filepath.FromSlash(opts.Template))
		data, err := os.ReadFile(templatePath)
		if err != nil {
			return fmt.Errorf("failed to read template: %w", err)
		}
		markup = data
		templateDir = filepath.Dir(templatePath)
		res.Inputs = append(res.Inputs, templatePath)
	}

	page, err := rewriteImageSources(markup, func(src string) (string, bool, error) {
		if !isLocalReference(src) {
			return "", false, nil
		}
		source := filepath.Join(templateDir, filepath.FromSlash(stripQuery(src)))
		steps := p.desc.ChainFor(p.metaPath(source))
		if !emitsAsset(steps) {
			return "", false, nil
		}
		contents, err := os.ReadFile(source)
		if err != nil {
			return "", false, err
		}
		res.Inputs = append(res.Inputs, source)
		assetURL, err := p.chain.assetURL(ctx, source, contents, steps)
		if err != nil {
			return "", false, err
		}
		return assetURL, true, nil
	})
	if err != nil {
		return err
	}

	var styles, scripts []string
	for _, entry := range p.desc.Entry {
		entryStyles, err := p.LoadStyles(entry)
		if err != nil {
			return err
		}
		entryScripts, _, err := p.LoadScripts(entry)
		if err != nil {
			return err
		}
		styles = append(styles, entryStyles...)
		scripts = append(scripts, entryScripts...)
	}

	page = injectTags(page, styles, scripts)

	if opts.Minify != nil {
		page, err = minifyHTML(page, *opts.Minify)
		if err != nil {
			return err
		}
	}

	filename := opts.Filename
	if filename == "" {
		filename = "index.html"
	}
	res.Files[filename] = []byte(page)

	return nil
}

// optimizeStylesheets minifies every stylesheet, keeping its source map link.
func optimizeStylesheets(files map[string][]byte) error {
	for name, contents := range files {
		if !isStylesheet(name) {
			continue
		}

		trailer := sourceMappingURLRe.Find(contents)
		body := sourceMappingURLRe.ReplaceAll(contents, nil)

		result := api.Transform(string(body), api.TransformOptions{
			Loader:           api.LoaderCSS,
			MinifyWhitespace: true,
			MinifySyntax:     true,
			LogLevel:         api.LogLevelSilent,
		})
		if len(result.Errors) > 0 {
			return fmt.Errorf("%s: %w", name, messagesError(ErrBuildFailed, result.Errors))
		}

		if trailer != nil {
			result.Code = append(result.Code, trailer...)
		}
		files[name] = result.Code
	}
	return nil
}

// compressFiles writes a precompressed copy of every text file above the
// threshold for each configured algorithm.
func compressFiles(opts config.PluginOptions, files map[string][]byte) error {
	names := make([]string, 0, len(files))
	for name := range files {
		if compressibleExtensions[path.Ext(name)] && len(files[name]) >= opts.Threshold {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var encoder *zstd.Encoder
	for _, algorithm := range opts.Algorithms {
		if algorithm == config.AlgorithmZstd {
			var err error
			encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
			if err != nil {
				return err
			}
			defer encoder.Close()
		}
	}

	for _, name := range names {
		for _, algorithm := range opts.Algorithms {
			switch algorithm {
			case config.AlgorithmGzip:
				compressed, err := gzipBytes(files[name])
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				files[name+".gz"] = compressed
			case config.AlgorithmZstd:
				files[name+".zst"] = encoder.EncodeAll(files[name], nil)
			default:
				return fmt.Errorf("unsupported compression algorithm %q", algorithm)
			}
		}
	}

	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isStylesheet(name string) bool {
	return strings.HasSuffix(name, ".css")
}
