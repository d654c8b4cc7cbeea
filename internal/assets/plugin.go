package assets

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/wolfeidau/bundlekit/internal/config"
)

// nestedStylesheet marks modules reached through a CSS @import. They are
// inlined into the importing stylesheet so only the CSS producing steps run.
type nestedStylesheet struct{}

// chainPlugin runs the declared loader chains inside esbuild.
func (p *Pipeline) chainPlugin() api.Plugin {
	return api.Plugin{
		Name: "bundlekit-chain",
		Setup: func(build api.PluginBuild) {
			build.OnStart(func() (api.OnStartResult, error) {
				p.sink.reset()
				p.mu.Lock()
				p.pluginErr = nil
				p.mu.Unlock()
				return api.OnStartResult{}, nil
			})
			p.setupChain(build, nil)
		},
	}
}

// stylesheetPlugin is the chain plugin for the nested stylesheet builds run
// by css-loader. It shares the sink with the outer build and records what it
// read into watched.
func (p *Pipeline) stylesheetPlugin(watched *watchSet) api.Plugin {
	return api.Plugin{
		Name: "bundlekit-stylesheet",
		Setup: func(build api.PluginBuild) {
			p.setupChain(build, watched)
		},
	}
}

func (p *Pipeline) setupChain(build api.PluginBuild, watched *watchSet) {
	build.OnResolve(api.OnResolveOptions{Filter: `.*`}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
		res, err := p.onResolve(build, args)
		if err != nil {
			p.recordPluginErr(err)
		}
		if watched != nil {
			watched.add(res.WatchFiles...)
		}
		return res, err
	})
	build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: "file"}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
		res, err := p.onLoad(args)
		if err != nil {
			p.recordPluginErr(err)
		}
		if watched != nil {
			watched.add(res.WatchFiles...)
		}
		return res, err
	})
}

// bundleStylesheet inlines @import rules and rewrites url() references of a
// stylesheet that is about to be embedded in JavaScript. It also returns
// every file the nested build read, the outer build has to watch them.
func (p *Pipeline) bundleStylesheet(source string, contents []byte) ([]byte, []string, error) {
	watched := newWatchSet()

	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   string(contents),
			ResolveDir: filepath.Dir(source),
			Sourcefile: p.metaPath(source),
			Loader:     api.LoaderCSS,
		},
		AbsWorkingDir: p.root,
		Bundle:        true,
		Write:         false,
		Metafile:      true,
		Engines:       p.engines,
		LogLevel:      api.LogLevelSilent,
		Plugins:       []api.Plugin{p.stylesheetPlugin(watched)},
	})
	if len(result.Errors) > 0 {
		return nil, nil, messagesError(ErrBuildFailed, result.Errors)
	}

	inputs, err := p.metafileInputs(result.Metafile)
	if err != nil {
		return nil, nil, err
	}
	watched.add(inputs...)

	if len(result.OutputFiles) == 0 {
		return contents, watched.list(), nil
	}
	return result.OutputFiles[0].Contents, watched.list(), nil
}

// metafileInputs returns the absolute paths of the files a build read from
// disk, leaving out stdin and other plugin namespaces.
func (p *Pipeline) metafileInputs(metafile string) ([]string, error) {
	var metadata BuildMetadata
	if err := json.Unmarshal([]byte(metafile), &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}

	inputs := make([]string, 0, len(metadata.Inputs))
	for input := range metadata.Inputs {
		if strings.HasPrefix(input, "<") {
			continue
		}
		if ns, _, ok := strings.Cut(input, ":"); ok && !strings.ContainsAny(ns, `/\.`) && filepath.VolumeName(input) == "" {
			continue
		}
		if filepath.IsAbs(input) {
			inputs = append(inputs, filepath.Clean(input))
			continue
		}
		inputs = append(inputs, filepath.Join(p.root, filepath.FromSlash(input)))
	}
	return inputs, nil
}

func (p *Pipeline) onResolve(build api.PluginBuild, args api.OnResolveArgs) (api.OnResolveResult, error) {
	if _, ok := args.PluginData.(nestedStylesheet); ok {
		return api.OnResolveResult{}, nil
	}

	switch args.Kind {
	case api.ResolveCSSURLToken:
		return p.resolveURLToken(args)
	case api.ResolveCSSImportRule:
		res := build.Resolve(args.Path, api.ResolveOptions{
			Kind:       args.Kind,
			Importer:   args.Importer,
			ResolveDir: args.ResolveDir,
			PluginData: nestedStylesheet{},
		})
		if len(res.Errors) > 0 {
			return api.OnResolveResult{Errors: res.Errors}, nil
		}
		return api.OnResolveResult{
			Path:       res.Path,
			Namespace:  res.Namespace,
			External:   res.External,
			PluginData: nestedStylesheet{},
		}, nil
	}

	return api.OnResolveResult{}, nil
}

// resolveURLToken turns url() references in stylesheets into the URL of the
// asset the reference's chain emits.
func (p *Pipeline) resolveURLToken(args api.OnResolveArgs) (api.OnResolveResult, error) {
	if !isLocalReference(args.Path) {
		return api.OnResolveResult{Path: args.Path, External: true}, nil
	}

	source := filepath.Join(args.ResolveDir, filepath.FromSlash(stripQuery(args.Path)))
	steps := p.desc.ChainFor(p.metaPath(source))
	if !emitsAsset(steps) {
		return api.OnResolveResult{}, nil
	}

	contents, err := os.ReadFile(source)
	if err != nil {
		return api.OnResolveResult{}, err
	}

	assetURL, err := p.chain.assetURL(p.runContext(), source, contents, steps)
	if err != nil {
		return api.OnResolveResult{}, err
	}

	return api.OnResolveResult{Path: assetURL, External: true, WatchFiles: []string{source}}, nil
}

func (p *Pipeline) onLoad(args api.OnLoadArgs) (api.OnLoadResult, error) {
	steps := p.desc.ChainFor(p.metaPath(args.Path))
	if len(steps) == 0 {
		return api.OnLoadResult{}, nil
	}

	contents, err := os.ReadFile(args.Path)
	if err != nil {
		return api.OnLoadResult{}, err
	}

	_, nested := args.PluginData.(nestedStylesheet)

	mod, err := p.chain.run(p.runContext(), args.Path, contents, steps, nested)
	if err != nil {
		return api.OnLoadResult{}, fmt.Errorf("%s: %w", p.metaPath(args.Path), err)
	}

	return mod.loadResult(nested)
}

func emitsAsset(steps []config.Step) bool {
	for _, step := range steps {
		if step.Kind.EmitsAsset() {
			return true
		}
	}
	return false
}

// isLocalReference reports whether ref points at a project file rather than
// an absolute URL, a data URI or a fragment.
func isLocalReference(ref string) bool {
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "/") {
		return false
	}
	if strings.Contains(ref, "{{") {
		return false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}

func stripQuery(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i]
	}
	return ref
}
