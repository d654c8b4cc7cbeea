package assets

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/wolfeidau/bundlekit/internal/config"
)

type BuildMetadata struct {
	Inputs  map[string]InputInfo  `json:"inputs"`
	Outputs map[string]OutputInfo `json:"outputs"`
}

type InputInfo struct {
	Bytes int `json:"bytes"`
}

type OutputInfo struct {
	EntryPoint string       `json:"entryPoint"`
	CSSBundle  string       `json:"cssBundle"`
	Bytes      int          `json:"bytes"`
	Imports    []ImportInfo `json:"imports"`
}

type ImportInfo struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external"`
}

// Result is the set of files a build produced, keyed by slash separated
// paths relative to the output directory.
type Result struct {
	Files    map[string][]byte
	Warnings []string
	Duration time.Duration
	// Inputs are the files post-build plugins read, such as the HTML
	// template. esbuild does not know about them, so it cannot watch them.
	Inputs []string
}

// Paths returns the emitted file paths in sorted order.
func (r *Result) Paths() []string {
	paths := make([]string, 0, len(r.Files))
	for path := range r.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Pipeline manages the asset build process and script loading
type Pipeline struct {
	desc    *config.BuildDescription
	config  Config
	root    string
	outdir  string
	engines []api.Engine
	sink    *assetSink
	chain   *chainRunner

	mu       sync.RWMutex
	ctx      context.Context
	metadata *BuildMetadata
	renames  map[string]string
	// pluginErr is the first error a chain plugin returned in this build
	pluginErr error
}

// New creates a new asset pipeline for the given build description
func New(desc *config.BuildDescription, cfg Config) (*Pipeline, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(desc.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}

	engines, err := parseEngines(desc.Targets)
	if err != nil {
		return nil, err
	}

	sink := newAssetSink()

	p := &Pipeline{
		desc:    desc,
		config:  cfg,
		root:    root,
		outdir:  filepath.Join(root, desc.Output.Path),
		engines: engines,
		sink:    sink,
		chain:   newChainRunner(desc.Output.PublicPath, engines, cfg.Lessc, sink),
		ctx:     context.Background(),
	}
	p.chain.bundleCSS = p.bundleStylesheet

	return p, nil
}

// OutputDir returns the absolute output directory.
func (p *Pipeline) OutputDir() string {
	return p.outdir
}

func (p *Pipeline) recordPluginErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pluginErr == nil {
		p.pluginErr = err
	}
}

// buildFailure wraps esbuild's messages so the plugin error that caused them
// can still be matched.
func (p *Pipeline) buildFailure(msgs []api.Message) error {
	err := messagesError(ErrBuildFailed, msgs)

	p.mu.Lock()
	cause := p.pluginErr
	p.pluginErr = nil
	p.mu.Unlock()

	if cause == nil {
		return err
	}
	return &buildError{err: err, cause: cause}
}

func (p *Pipeline) runContext() context.Context {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ctx
}

// assetSink collects files emitted by loaders while esbuild runs them in parallel.
type assetSink struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newAssetSink() *assetSink {
	return &assetSink{files: make(map[string][]byte)}
}

func (s *assetSink) add(path string, contents []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = contents
}

func (s *assetSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = make(map[string][]byte)
}

func (s *assetSink) drain(into map[string][]byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, contents := range s.files {
		into[path] = contents
	}
	n := len(s.files)
	s.files = make(map[string][]byte)
	return n
}

// watchSet collects files a nested build read so the outer build can watch them.
type watchSet struct {
	mu    sync.Mutex
	files map[string]struct{}
}

func newWatchSet() *watchSet {
	return &watchSet{files: make(map[string]struct{})}
}

func (w *watchSet) add(files ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, file := range files {
		w.files[file] = struct{}{}
	}
}

func (w *watchSet) list() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	files := make([]string, 0, len(w.files))
	for file := range w.files {
		files = append(files, file)
	}
	sort.Strings(files)
	return files
}
