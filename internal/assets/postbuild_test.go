package assets

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/bundlekit/internal/config"
)

func TestCompressFiles(t *testing.T) {
	large := []byte(strings.Repeat("console.log('bundlekit');\n", 100))
	files := map[string][]byte{
		"built.js":       large,
		"small.css":      []byte("a{}"),
		"imgs/photo.png": bytes.Repeat([]byte{0xff}, 4096),
	}

	opts := config.PluginOptions{
		Algorithms: []string{config.AlgorithmGzip, config.AlgorithmZstd},
		Threshold:  1024,
	}
	require.NoError(t, compressFiles(opts, files))

	require.NotContains(t, files, "small.css.gz")
	require.NotContains(t, files, "imgs/photo.png.gz")

	zr, err := gzip.NewReader(bytes.NewReader(files["built.js.gz"]))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.Equal(t, large, plain)

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	plain, err = dec.DecodeAll(files["built.js.zst"], nil)
	require.NoError(t, err)
	require.Equal(t, large, plain)

	err = compressFiles(config.PluginOptions{Algorithms: []string{"brotli"}}, map[string][]byte{"a.js": large})
	require.Error(t, err)
}

func TestOptimizeStylesheets(t *testing.T) {
	files := map[string][]byte{
		"css/built.css": []byte("body {\n  margin: 0;\n  color: #ff0000;\n}\n/*# sourceMappingURL=built.css.map */\n"),
		"built.js":      []byte("var a = 1;\n"),
	}

	require.NoError(t, optimizeStylesheets(files))

	css := string(files["css/built.css"])
	require.True(t, strings.HasPrefix(css, "body{margin:0;color:"), css)
	require.True(t, strings.HasSuffix(css, "}\n/*# sourceMappingURL=built.css.map */\n"), css)
	require.Equal(t, "var a = 1;\n", string(files["built.js"]))
}
