package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/bundlekit/internal/config"
	"github.com/wolfeidau/bundlekit/internal/telemetry"
)

var (
	hashPlaceholderRe = regexp.MustCompile(`\[(?:content)?hash(?::\d+)?\]`)
	targetRe          = regexp.MustCompile(`^([a-z]+)(\d+(?:\.\d+){0,2})$`)
)

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"node":    api.EngineNode,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

// Options translates the build description into esbuild options.
func (p *Pipeline) Options() api.BuildOptions {
	production := p.desc.Mode == config.ModeProduction

	opts := api.BuildOptions{
		EntryPoints:       p.desc.Entry,
		AbsWorkingDir:     p.root,
		Bundle:            true,
		Write:             false,
		Outdir:            p.outdir,
		EntryNames:        entryNames(p.desc.Output.Filename),
		PublicPath:        p.desc.Output.PublicPath,
		Platform:          api.PlatformBrowser,
		Format:            api.FormatIIFE,
		Engines:           p.engines,
		MinifyWhitespace:  production,
		MinifyIdentifiers: production,
		MinifySyntax:      production,
		TreeShaking:       cond(production, api.TreeShakingTrue, api.TreeShakingDefault),
		Sourcemap:         sourceMapMode(p.desc.Devtool),
		SourcesContent:    cond(p.desc.Devtool.NoSources, api.SourcesContentExclude, api.SourcesContentInclude),
		Define: map[string]string{
			"process.env.NODE_ENV": strconv.Quote(p.desc.Mode.String()),
		},
		Metafile: true,
		LogLevel: api.LogLevelSilent,
		Plugins:  []api.Plugin{p.chainPlugin()},
	}

	if p.config.LiveReload && p.desc.DevServer.Hot {
		opts.Banner = map[string]string{"js": liveReloadScript}
	}

	return opts
}

// Build runs esbuild with the configured settings, applies the post-build
// plugins and loads metadata
func (p *Pipeline) Build(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := telemetry.Tracer().Start(ctx, "assets.Build")
	defer span.End()

	p.mu.Lock()
	p.ctx = ctx
	p.mu.Unlock()

	log.Info().Strs("entrypoints", p.desc.Entry).Str("mode", p.desc.Mode.String()).Msg("Building assets")

	started := time.Now()
	result := api.Build(p.Options())

	res, err := p.finish(ctx, &result, started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if p.config.Write {
		if err := p.write(res); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	span.SetAttributes(attribute.Int("files", len(res.Files)))
	return res, nil
}

// finish turns an esbuild result into the final file set.
func (p *Pipeline) finish(ctx context.Context, result *api.BuildResult, started time.Time) (*Result, error) {
	m := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("mode", p.desc.Mode.String()))
	m.BuildsTotal.Add(ctx, 1, attrs)

	defer func() {
		m.BuildDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)
	}()

	res := &Result{Files: make(map[string][]byte)}

	for _, msg := range result.Warnings {
		log.Warn().Str("warning", formatMessage(msg)).Msg("Build warning")
		res.Warnings = append(res.Warnings, formatMessage(msg))
	}

	if len(result.Errors) > 0 {
		for _, msg := range result.Errors {
			log.Error().Str("error", formatMessage(msg)).Msg("Build error")
		}
		m.BuildErrorsTotal.Add(ctx, 1, attrs)
		return nil, p.buildFailure(result.Errors)
	}

	// Parse and cache metadata
	var metadata BuildMetadata
	if err := json.Unmarshal([]byte(result.Metafile), &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}

	for _, file := range result.OutputFiles {
		rel, err := filepath.Rel(p.outdir, file.Path)
		if err != nil {
			return nil, fmt.Errorf("output %s is outside %s: %w", file.Path, p.outdir, err)
		}
		res.Files[filepath.ToSlash(rel)] = file.Contents
	}

	p.mu.Lock()
	p.metadata = &metadata
	p.renames = make(map[string]string)
	p.mu.Unlock()

	if err := p.applyPlugins(ctx, res); err != nil {
		m.BuildErrorsTotal.Add(ctx, 1, attrs)
		return nil, err
	}

	if p.config.MetafileName != "" {
		res.Files[p.config.MetafileName] = []byte(result.Metafile)
	}

	res.Duration = time.Since(started)
	m.AssetsEmittedTotal.Add(ctx, int64(len(res.Files)), attrs)

	log.Info().Int("files", len(res.Files)).Dur("duration", res.Duration).Msg("Build finished")

	return res, nil
}

func (p *Pipeline) write(res *Result) error {
	for _, rel := range res.Paths() {
		target := filepath.Join(p.outdir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, res.Files[rel], 0o644); err != nil { //nolint:gosec
			return err
		}
		log.Debug().Str("file", target).Msg("Built file")
	}
	return nil
}

// LoadScripts returns the ordered list of script URLs needed for the given entrypoint
// and the main entrypoint URL
func (p *Pipeline) LoadScripts(entryPointPath string) ([]string, string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.metadata == nil {
		return nil, "", ErrNotBuilt
	}

	outputPath, info, ok := p.entryOutput(entryPointPath)
	if !ok {
		return nil, "", fmt.Errorf("entrypoint %s not found in metadata", entryPointPath)
	}

	entrypoint := p.publicURL(outputPath)
	scripts := []string{entrypoint}
	visited := map[string]bool{outputPath: true}
	p.addDependencies(info, &scripts, visited)

	return scripts, entrypoint, nil
}

func (p *Pipeline) addDependencies(output OutputInfo, scripts *[]string, visited map[string]bool) {
	for _, imp := range output.Imports {
		if imp.External || visited[imp.Path] {
			continue
		}
		visited[imp.Path] = true
		*scripts = append(*scripts, p.publicURL(imp.Path))

		if chunkInfo, exists := p.metadata.Outputs[imp.Path]; exists {
			p.addDependencies(chunkInfo, scripts, visited)
		}
	}
}

// LoadStyles returns the stylesheet URLs extracted for the given entrypoint.
func (p *Pipeline) LoadStyles(entryPointPath string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.metadata == nil {
		return nil, ErrNotBuilt
	}

	_, info, ok := p.entryOutput(entryPointPath)
	if !ok {
		return nil, fmt.Errorf("entrypoint %s not found in metadata", entryPointPath)
	}
	if info.CSSBundle == "" {
		return nil, nil
	}

	return []string{p.publicURL(info.CSSBundle)}, nil
}

// entryOutput finds the metafile output produced for an entry point. Callers
// hold p.mu.
func (p *Pipeline) entryOutput(entry string) (string, OutputInfo, bool) {
	want := p.metaPath(entry)
	for outputPath, info := range p.metadata.Outputs {
		if info.EntryPoint == want {
			return outputPath, info, true
		}
	}
	return "", OutputInfo{}, false
}

// metaPath converts a file path into the working directory relative form
// esbuild uses in the metafile.
func (p *Pipeline) metaPath(name string) string {
	if filepath.IsAbs(name) {
		if rel, err := filepath.Rel(p.root, name); err == nil {
			name = rel
		}
	}
	return filepath.ToSlash(filepath.Clean(name))
}

// outputRel converts a metafile output path into a path relative to the
// output directory, following stylesheet renames. Callers hold p.mu.
func (p *Pipeline) outputRel(metaOutput string) string {
	rel, err := filepath.Rel(p.outdir, filepath.Join(p.root, filepath.FromSlash(metaOutput)))
	if err != nil {
		rel = metaOutput
	}
	rel = filepath.ToSlash(rel)
	if renamed, ok := p.renames[rel]; ok {
		return renamed
	}
	return rel
}

func (p *Pipeline) publicURL(metaOutput string) string {
	return joinURL(p.desc.Output.PublicPath, p.outputRel(metaOutput))
}

func joinURL(publicPath, rel string) string {
	if publicPath == "" {
		return rel
	}
	return strings.TrimSuffix(publicPath, "/") + "/" + strings.TrimPrefix(rel, "/")
}

// entryNames maps a bundle naming template onto esbuild's entry names. The
// extension is left to esbuild.
func entryNames(tmpl string) string {
	names := hashPlaceholderRe.ReplaceAllString(tmpl, "[hash]")
	names = strings.ReplaceAll(names, ".[ext]", "")
	if ext := path.Ext(names); ext == ".js" || ext == ".mjs" || ext == ".cjs" {
		names = strings.TrimSuffix(names, ext)
	}
	return names
}

func sourceMapMode(policy config.SourceMapPolicy) api.SourceMap {
	switch policy.Placement {
	case config.PlacementExternal:
		return api.SourceMapLinked
	case config.PlacementHidden:
		return api.SourceMapExternal
	case config.PlacementInline, config.PlacementEval:
		return api.SourceMapInline
	default:
		return api.SourceMapNone
	}
}

func parseEngines(targets []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(targets))
	for _, target := range targets {
		m := targetRe.FindStringSubmatch(strings.ToLower(target))
		if m == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, target)
		}
		name, ok := engineNames[m[1]]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, target)
		}
		engines = append(engines, api.Engine{Name: name, Version: m[2]})
	}
	return engines, nil
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
