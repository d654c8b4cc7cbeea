package devserver

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/bundlekit/internal/config"
	bkhttp "github.com/wolfeidau/bundlekit/internal/http"
	"github.com/wolfeidau/bundlekit/internal/telemetry"
)

// liveReloadPath is esbuild's change event stream.
const liveReloadPath = "/esbuild"

// Handler returns the front handler. Compression and CORS follow the current
// description, a reloaded project file applies from the next request on.
func (s *Server) Handler() http.Handler {
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		front := s.front
		s.mu.RUnlock()

		front.ServeHTTP(w, r)
	})

	h = countRequests(h)
	h = bkhttp.AccessLog(log.Logger)(h)
	return bkhttp.ClientIPMiddleware()(h)
}

// frontHandler wraps serve in the middleware devServer asks for.
func (s *Server) frontHandler(devServer config.DevServer) http.Handler {
	var h http.Handler = http.HandlerFunc(s.serve)

	if devServer.Compress {
		h = compressExcept(liveReloadPath, h)
	}
	if len(devServer.AllowedOrigins) > 0 {
		h = withCORS(devServer.AllowedOrigins, h)
	}

	return h
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	files := s.files
	built := s.built
	proxy := s.proxy
	publicPath := s.desc.Output.PublicPath
	s.mu.RUnlock()

	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		if name, ok := lookup(files, publicPath, r.URL.Path); ok {
			http.ServeContent(w, r, name, built, bytes.NewReader(files[name]))
			return
		}
	}

	if proxy == nil {
		http.Error(w, "bundler is not running", http.StatusServiceUnavailable)
		return
	}

	proxy.ServeHTTP(w, r)
}

// lookup maps a request path onto the in-memory build output.
func lookup(files map[string][]byte, publicPath, urlPath string) (string, bool) {
	base := strings.TrimSuffix(publicPath, "/") + "/"
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	if !strings.HasPrefix(urlPath, base) {
		return "", false
	}

	name := strings.TrimPrefix(urlPath, base)
	if name == "" || strings.HasSuffix(name, "/") {
		name += "index.html"
	}

	_, ok := files[name]
	return name, ok
}

// compressExcept gzips responses except for paths under prefix. The live
// reload stream must reach the browser unbuffered.
func compressExcept(prefix string, next http.Handler) http.Handler {
	gz := gzhttp.GzipHandler(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, prefix) {
			next.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})
}

// withCORS lets pages on other origins load the dev build.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
	})
	return middleware.Handler(h)
}

func countRequests(next http.Handler) http.Handler {
	requests := telemetry.GetMetrics().DevServerRequestsTotal
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(r.Context(), 1, metric.WithAttributes(attribute.String("method", r.Method)))
		next.ServeHTTP(w, r)
	})
}
