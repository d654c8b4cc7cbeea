package config

import (
	"fmt"
	"regexp"
	"slices"
)

// StepKind identifies a transformer in the closed loader registry.
type StepKind int

const (
	StepStyle StepKind = iota + 1
	StepCSS
	StepLess
	StepPostCSS
	StepExtractCSS
	StepURL
	StepFile
	StepHTML
	StepHTMLWithImg
)

var stepNames = map[StepKind]string{
	StepStyle:       "style-loader",
	StepCSS:         "css-loader",
	StepLess:        "less-loader",
	StepPostCSS:     "postcss-loader",
	StepExtractCSS:  "mini-css-extract-plugin/loader",
	StepURL:         "url-loader",
	StepFile:        "file-loader",
	StepHTML:        "html-loader",
	StepHTMLWithImg: "html-withimg-loader",
}

// ParseStepKind looks a loader identifier up in the registry.
func ParseStepKind(s string) (StepKind, error) {
	for kind, name := range stepNames {
		if name == s {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLoader, s)
}

func (k StepKind) Valid() bool {
	_, ok := stepNames[k]
	return ok
}

func (k StepKind) String() string {
	if name, ok := stepNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// EmitsAsset reports whether the step turns a file into a URL.
func (k StepKind) EmitsAsset() bool {
	return k == StepURL || k == StepFile
}

func (k StepKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLoader, int(k))
	}
	return []byte(k.String()), nil
}

func (k *StepKind) UnmarshalText(text []byte) error {
	parsed, err := ParseStepKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// StepOptions holds the options a loader understands. Loaders ignore
// fields that do not apply to them.
type StepOptions struct {
	// Limit is the size in bytes under which url-loader inlines a data URL.
	Limit int `yaml:"limit,omitempty" json:"limit,omitempty"`
	// Name is the naming template for emitted files, e.g. "[hash:10].[ext]".
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// OutputPath is the directory under the output path emitted files go to.
	OutputPath string `yaml:"outputPath,omitempty" json:"outputPath,omitempty"`
	// ESModule selects "export default" over "module.exports".
	ESModule bool `yaml:"esModule" json:"esModule"`
}

// Step is one transformer in a processing chain.
type Step struct {
	Kind    StepKind    `yaml:"loader" json:"loader"`
	Options StepOptions `yaml:"options,omitempty" json:"options,omitempty"`
}

// Use builds a chain of option-less steps.
func Use(kinds ...StepKind) []Step {
	steps := make([]Step, 0, len(kinds))
	for _, kind := range kinds {
		steps = append(steps, Step{Kind: kind})
	}
	return steps
}

// Pattern is a compiled path predicate that round-trips through text.
type Pattern struct {
	re *regexp.Regexp
}

func NewPattern(expr string) (*Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return &Pattern{re: re}, nil
}

func MustPattern(expr string) *Pattern {
	p, err := NewPattern(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pattern) MatchString(s string) bool {
	return p != nil && p.re != nil && p.re.MatchString(s)
}

func (p *Pattern) String() string {
	if p == nil || p.re == nil {
		return ""
	}
	return p.re.String()
}

func (p *Pattern) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Pattern) UnmarshalText(text []byte) error {
	parsed, err := NewPattern(string(text))
	if err != nil {
		return err
	}
	*p = *parsed
	return nil
}

// Rule maps files to an ordered processing chain. The last step in Use runs
// first.
type Rule struct {
	Test    *Pattern `yaml:"test,omitempty" json:"test,omitempty"`
	Exclude *Pattern `yaml:"exclude,omitempty" json:"exclude,omitempty"`
	Use     []Step   `yaml:"use" json:"use"`
}

// Matches reports whether the rule applies to path. A rule with only an
// exclude pattern applies to everything the pattern does not match.
func (r Rule) Matches(path string) bool {
	if r.Test == nil && r.Exclude == nil {
		return false
	}
	if r.Exclude.MatchString(path) {
		return false
	}
	if r.Test == nil {
		return true
	}
	return r.Test.MatchString(path)
}

// Chain concatenates the steps of every rule matching path, in declared
// order.
func Chain(rules []Rule, path string) []Step {
	var steps []Step
	for _, rule := range rules {
		if rule.Matches(path) {
			steps = append(steps, rule.Use...)
		}
	}
	return steps
}

// ExecutionOrder returns the order steps run in: right to left, bottom rule
// first.
func ExecutionOrder(steps []Step) []Step {
	out := slices.Clone(steps)
	slices.Reverse(out)
	return out
}
