// Package devserver serves a development build with watch mode, live reload
// and project-file reloading.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/pkg/browser"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/bundlekit/internal/assets"
	"github.com/wolfeidau/bundlekit/internal/config"
	"github.com/wolfeidau/bundlekit/internal/telemetry"
)

const (
	defaultDebounceWindow = 250 * time.Millisecond
	shutdownTimeout       = 5 * time.Second
)

// Options configures a Server.
type Options struct {
	// ProjectFile is watched for changes when Reload is set.
	ProjectFile string
	// Reload resolves a fresh description after the project file changed.
	Reload func() (*config.BuildDescription, error)
	// Assets configures the pipeline. Writing to disk is always disabled,
	// output is served from memory.
	Assets assets.Config
	// OpenURL opens the browser, defaults to browser.OpenURL.
	OpenURL func(url string) error
	// NoOpen keeps the browser closed whatever the description says.
	NoOpen         bool
	DebounceWindow time.Duration
}

// Server fronts an esbuild watch context. Build output is served from memory,
// everything else is proxied to esbuild's own server.
type Server struct {
	opts Options

	mu      sync.RWMutex
	desc    *config.BuildDescription
	bundler api.BuildContext
	proxy   http.Handler
	front   http.Handler
	files   map[string][]byte
	built   time.Time

	listener net.Listener
	// addr is the configured listen address the server was started with
	addr    string
	server  *http.Server
	project *fileWatcher
	// inputs watches files esbuild does not, such as the HTML template
	inputs *fileWatcher
}

// New creates a dev server for the given description.
func New(desc *config.BuildDescription, opts Options) (*Server, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	if opts.OpenURL == nil {
		opts.OpenURL = browser.OpenURL
	}
	if opts.DebounceWindow == 0 {
		opts.DebounceWindow = defaultDebounceWindow
	}
	opts.Assets.Write = false
	opts.Assets.LiveReload = true

	s := &Server{
		opts:  opts,
		desc:  desc,
		files: make(map[string][]byte),
	}
	s.front = s.frontHandler(desc.DevServer)

	return s, nil
}

// Start starts the bundler, the front server and the file watchers. It
// returns once the server is listening.
func (s *Server) Start(ctx context.Context) error {
	s.mu.RLock()
	desc := s.desc
	s.mu.RUnlock()

	inputs, err := watchFiles(ctx, nil, s.opts.DebounceWindow, s.rebuild)
	if err != nil {
		log.Warn().Err(err).Msg("Not watching build inputs outside the bundle")
	} else {
		s.inputs = inputs
	}

	if err := s.startBundler(ctx, desc); err != nil {
		_ = s.closeWatchers()
		return err
	}

	listener, err := net.Listen("tcp", desc.DevServer.Addr())
	if err != nil {
		s.stopBundler()
		_ = s.closeWatchers()
		return fmt.Errorf("failed to listen on %s: %w", desc.DevServer.Addr(), err)
	}
	s.listener = listener
	s.addr = desc.DevServer.Addr()
	s.server = configureHTTPServer(s.Handler())

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Dev server failed")
		}
	}()

	log.Info().Str("url", desc.DevServer.URL()).Str("mode", desc.Mode.String()).Msg("Dev server listening")

	if s.opts.Reload != nil && s.opts.ProjectFile != "" {
		project, err := watchFiles(ctx, []string{s.opts.ProjectFile}, s.opts.DebounceWindow, func([]string) { s.reload(ctx) })
		if err != nil {
			log.Warn().Err(err).Str("file", s.opts.ProjectFile).Msg("Not watching project file")
		} else {
			s.project = project
		}
	}

	if desc.DevServer.Open && !s.opts.NoOpen {
		go func() {
			if err := s.open(ctx, desc.DevServer.URL()); err != nil {
				log.Warn().Err(err).Msg("Failed to open browser")
			}
		}()
	}

	return nil
}

// Addr returns the address the front server listens on.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops the watchers, disposes the bundler and shuts the server down.
func (s *Server) Close() error {
	errs := []error{s.closeWatchers()}

	// disposing first ends the live reload streams held open by browsers
	s.stopBundler()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		errs = append(errs, s.server.Shutdown(ctx))
	}

	return errors.Join(errs...)
}

func (s *Server) closeWatchers() error {
	var errs []error
	if s.project != nil {
		errs = append(errs, s.project.Close())
	}
	if s.inputs != nil {
		errs = append(errs, s.inputs.Close())
	}
	return errors.Join(errs...)
}

func (s *Server) startBundler(ctx context.Context, desc *config.BuildDescription) error {
	pipeline, err := assets.New(desc, s.opts.Assets)
	if err != nil {
		return err
	}

	serveDir, err := filepath.Abs(filepath.Join(desc.Context, desc.DevServer.ContentBase))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(serveDir, 0o755); err != nil {
		return fmt.Errorf("failed to create content base: %w", err)
	}

	bundler, err := pipeline.Context(ctx, s.onRebuild)
	if err != nil {
		return err
	}

	if err := bundler.Watch(api.WatchOptions{}); err != nil {
		bundler.Dispose()
		return fmt.Errorf("failed to start watch mode: %w", err)
	}

	result, err := bundler.Serve(api.ServeOptions{
		Host:     "127.0.0.1",
		Servedir: serveDir,
	})
	if err != nil {
		bundler.Dispose()
		return fmt.Errorf("failed to start esbuild server: %w", err)
	}

	upstream := &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort("127.0.0.1", strconv.Itoa(int(result.Port))),
	}
	proxy := httputil.NewSingleHostReverseProxy(upstream)
	// live reload is a server-sent event stream
	proxy.FlushInterval = -1

	s.mu.Lock()
	s.desc = desc
	s.front = s.frontHandler(desc.DevServer)
	s.bundler = bundler
	s.proxy = proxy
	s.mu.Unlock()

	log.Debug().Str("upstream", upstream.String()).Str("servedir", serveDir).Msg("Bundler started")

	return nil
}

func (s *Server) stopBundler() {
	s.mu.Lock()
	bundler := s.bundler
	s.bundler = nil
	s.proxy = nil
	s.mu.Unlock()

	if bundler != nil {
		bundler.Dispose()
	}
}

func (s *Server) onRebuild(res *assets.Result, err error) {
	if err != nil {
		// keep serving the last good build
		return
	}

	s.mu.Lock()
	s.files = res.Files
	s.built = time.Now()
	s.mu.Unlock()

	if s.inputs != nil {
		if err := s.inputs.Set(res.Inputs); err != nil {
			log.Warn().Err(err).Msg("Failed to watch build inputs")
		}
	}
}

// rebuild runs the bundler again after a file only the post-build plugins
// read has changed.
func (s *Server) rebuild(paths []string) {
	s.mu.RLock()
	bundler := s.bundler
	s.mu.RUnlock()

	if bundler == nil {
		return
	}

	log.Debug().Strs("files", paths).Msg("Build input changed")
	bundler.Rebuild()
}

// reload re-resolves the description and recreates the bundler. The listen
// address cannot change without a restart, the new description keeps the
// configured one and the server keeps listening where it is.
func (s *Server) reload(ctx context.Context) {
	desc, err := s.opts.Reload()
	if err != nil {
		log.Error().Err(err).Msg("Failed to reload project file, keeping the current configuration")
		return
	}

	telemetry.GetMetrics().ConfigReloadsTotal.Add(ctx, 1)

	if desc.DevServer.Addr() != s.addr {
		log.Warn().
			Str("current", s.addr).
			Str("configured", desc.DevServer.Addr()).
			Msg("Listen address changed, restart the dev server to apply it")
	}

	s.stopBundler()

	if err := s.startBundler(ctx, desc); err != nil {
		log.Error().Err(err).Msg("Failed to restart bundler after reload")
		return
	}

	log.Info().Msg("Project file reloaded")
}

func configureHTTPServer(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Minute,
		// no write timeout, live reload streams stay open
		IdleTimeout:    5 * time.Minute,
		MaxHeaderBytes: 8 * 1024, // 8KiB
	}
}
