package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expected   string
	}{
		{
			name:     "forwarded single",
			headers:  map[string]string{"X-Forwarded-For": "192.168.1.1"},
			expected: "192.168.1.1",
		},
		{
			name:     "forwarded takes the first hop",
			headers:  map[string]string{"X-Forwarded-For": " 203.0.113.1 , 198.51.100.1"},
			expected: "203.0.113.1",
		},
		{
			name:     "forwarded wins over real ip",
			headers:  map[string]string{"X-Forwarded-For": "203.0.113.1", "X-Real-IP": "192.168.1.100"},
			expected: "203.0.113.1",
		},
		{
			name:     "real ip",
			headers:  map[string]string{"X-Real-IP": "192.168.1.100"},
			expected: "192.168.1.100",
		},
		{
			name:       "remote addr strips the port",
			remoteAddr: "127.0.0.1:54321",
			expected:   "127.0.0.1",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[::1]:54321",
			expected:   "::1",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "pipe",
			expected:   "pipe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if tt.remoteAddr != "" {
				r.RemoteAddr = tt.remoteAddr
			}

			require.Equal(t, tt.expected, ExtractClientIP(r))
		})
	}
}

func TestClientIPMiddleware(t *testing.T) {
	var capturedIP string
	handler := ClientIPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedIP = ClientIPFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/built.js", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.1")

	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "203.0.113.1", capturedIP)
}

func TestAccessLog(t *testing.T) {
	tests := []struct {
		name          string
		handler       http.HandlerFunc
		expectedLevel string
		expectedCode  int
		expectedBytes int
	}{
		{
			name: "implicit ok",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("console.log(1)"))
			},
			expectedLevel: "debug",
			expectedCode:  http.StatusOK,
			expectedBytes: 14,
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			expectedLevel: "debug",
			expectedCode:  http.StatusNotFound,
			expectedBytes: len("404 page not found\n"),
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			expectedLevel: "warn",
			expectedCode:  http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

			handler := ClientIPMiddleware()(AccessLog(logger)(tt.handler))

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/built.js", nil)
			r.RemoteAddr = "127.0.0.1:1234"
			handler.ServeHTTP(w, r)

			require.Equal(t, tt.expectedCode, w.Code)

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			require.Equal(t, tt.expectedLevel, entry["level"])
			require.Equal(t, "GET", entry["method"])
			require.Equal(t, "/built.js", entry["path"])
			require.Equal(t, "127.0.0.1", entry["client_ip"])
			require.InDelta(t, tt.expectedCode, entry["status"], 0)
			require.InDelta(t, tt.expectedBytes, entry["bytes"], 0)
		})
	}
}

func TestAccessLog_flush(t *testing.T) {
	handler := AccessLog(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		_, _ = w.Write([]byte("data: {}\n\n"))
		flusher.Flush()
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/esbuild", nil))

	require.True(t, w.Flushed)
}
