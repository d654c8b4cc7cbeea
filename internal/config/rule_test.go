package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRule_Matches(t *testing.T) {
	tests := []struct {
		name     string
		rule     Rule
		path     string
		expected bool
	}{
		{
			name:     "test matches",
			rule:     Rule{Test: MustPattern(`\.css$`)},
			path:     "src/index.css",
			expected: true,
		},
		{
			name:     "test does not match",
			rule:     Rule{Test: MustPattern(`\.css$`)},
			path:     "src/index.less",
			expected: false,
		},
		{
			name:     "exclude only matches the rest",
			rule:     Rule{Exclude: MustPattern(`\.(js|css)$`)},
			path:     "src/font.ttf",
			expected: true,
		},
		{
			name:     "exclude only skips excluded",
			rule:     Rule{Exclude: MustPattern(`\.(js|css)$`)},
			path:     "src/index.js",
			expected: false,
		},
		{
			name:     "exclude wins over test",
			rule:     Rule{Test: MustPattern(`\.png$`), Exclude: MustPattern(`vendor/`)},
			path:     "vendor/logo.png",
			expected: false,
		},
		{
			name:     "empty rule matches nothing",
			rule:     Rule{},
			path:     "anything",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.rule.Matches(tt.path))
		})
	}
}

func TestChain_preservesDeclaredOrder(t *testing.T) {
	rules := []Rule{
		{Test: MustPattern(`\.less$`), Use: Use(StepStyle, StepCSS)},
		{Test: MustPattern(`\.txt$`), Use: Use(StepHTML)},
		{Test: MustPattern(`\.less$`), Use: Use(StepPostCSS, StepLess)},
	}

	chain := Chain(rules, "a.less")
	require.Equal(t, Use(StepStyle, StepCSS, StepPostCSS, StepLess), chain)

	// right to left, bottom rule first
	require.Equal(t, Use(StepLess, StepPostCSS, StepCSS, StepStyle), ExecutionOrder(chain))

	// ExecutionOrder does not touch its input
	require.Equal(t, Use(StepStyle, StepCSS, StepPostCSS, StepLess), chain)
}

func TestStepKind_text(t *testing.T) {
	for kind := StepStyle; kind <= StepHTMLWithImg; kind++ {
		text, err := kind.MarshalText()
		require.NoError(t, err)

		var parsed StepKind
		require.NoError(t, parsed.UnmarshalText(text))
		require.Equal(t, kind, parsed)
	}

	_, err := ParseStepKind("sass-loader")
	require.ErrorIs(t, err, ErrUnknownLoader)
}

func TestPluginKind_text(t *testing.T) {
	for kind := PluginHTML; kind <= PluginCompression; kind++ {
		parsed, err := ParsePluginKind(kind.String())
		require.NoError(t, err)
		require.Equal(t, kind, parsed)
	}

	_, err := ParsePluginKind("terser-webpack-plugin")
	require.ErrorIs(t, err, ErrUnknownPlugin)
}

func TestRule_yaml(t *testing.T) {
	input := `
test: \.(jpg|png)$
use:
  - loader: url-loader
    options:
      limit: 8192
      name: "[hash:10].[ext]"
      outputPath: imgs
      esModule: false
`
	var rule Rule
	require.NoError(t, yaml.Unmarshal([]byte(input), &rule))

	require.True(t, rule.Matches("a.png"))
	require.False(t, rule.Matches("a.gif"))
	require.Equal(t, []Step{{
		Kind:    StepURL,
		Options: StepOptions{Limit: 8192, Name: "[hash:10].[ext]", OutputPath: "imgs"},
	}}, rule.Use)

	err := yaml.Unmarshal([]byte("use:\n  - loader: raw-loader\n"), &rule)
	require.ErrorIs(t, err, ErrUnknownLoader)
}

func TestRule_json(t *testing.T) {
	rule := Rule{Test: MustPattern(`\.css$`), Use: Use(StepStyle, StepCSS)}

	data, err := json.Marshal(rule)
	require.NoError(t, err)
	require.JSONEq(t, `{"test":"\\.css$","use":[{"loader":"style-loader","options":{"esModule":false}},{"loader":"css-loader","options":{"esModule":false}}]}`, string(data))
}
