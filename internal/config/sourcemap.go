package config

import (
	"fmt"
	"strings"
)

// Placement controls where source map data ends up relative to the emitted code.
type Placement int

const (
	// PlacementNone disables source maps.
	PlacementNone Placement = iota
	// PlacementExternal writes a separate map file and links it from the output.
	PlacementExternal
	// PlacementInline embeds the map in the output as a data URL.
	PlacementInline
	// PlacementEval embeds a map per module inside eval'd code.
	PlacementEval
	// PlacementHidden writes a separate map file without linking it.
	PlacementHidden
)

// Detail controls how precise the mappings are.
type Detail int

const (
	DetailFull Detail = iota
	// DetailCheap maps lines only and ignores loader maps.
	DetailCheap
	// DetailCheapModule maps lines only but follows loader maps.
	DetailCheapModule
)

const sourceMapSuffix = "source-map"

// SourceMapPolicy is one point on the build speed / debuggability / source
// exposure trade-off. Its text form is the devtool grammar
// [inline-|hidden-|eval-][nosources-][cheap-[module-]]source-map.
type SourceMapPolicy struct {
	Placement Placement
	NoSources bool
	Detail    Detail
}

// NoSourceMap is the disabled policy.
var NoSourceMap = SourceMapPolicy{Placement: PlacementNone}

// ParseSourceMap parses a devtool string. "false", "none" and "" disable
// source maps.
func ParseSourceMap(s string) (SourceMapPolicy, error) {
	switch s {
	case "", "false", "none":
		return NoSourceMap, nil
	}

	rest, ok := strings.CutSuffix(s, sourceMapSuffix)
	if !ok {
		return SourceMapPolicy{}, fmt.Errorf("%w: %q", ErrInvalidSourceMap, s)
	}

	policy := SourceMapPolicy{Placement: PlacementExternal}

	switch {
	case strings.HasPrefix(rest, "inline-"):
		policy.Placement = PlacementInline
		rest = strings.TrimPrefix(rest, "inline-")
	case strings.HasPrefix(rest, "hidden-"):
		policy.Placement = PlacementHidden
		rest = strings.TrimPrefix(rest, "hidden-")
	case strings.HasPrefix(rest, "eval-"):
		policy.Placement = PlacementEval
		rest = strings.TrimPrefix(rest, "eval-")
	}

	if after, found := strings.CutPrefix(rest, "nosources-"); found {
		policy.NoSources = true
		rest = after
	}

	if after, found := strings.CutPrefix(rest, "cheap-"); found {
		policy.Detail = DetailCheap
		rest = after
		if after, found := strings.CutPrefix(rest, "module-"); found {
			policy.Detail = DetailCheapModule
			rest = after
		}
	}

	if rest != "" {
		return SourceMapPolicy{}, fmt.Errorf("%w: %q", ErrInvalidSourceMap, s)
	}

	return policy, nil
}

// MustParseSourceMap is ParseSourceMap for constant policies.
func MustParseSourceMap(s string) SourceMapPolicy {
	p, err := ParseSourceMap(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p SourceMapPolicy) String() string {
	if p.Placement == PlacementNone {
		return "none"
	}

	var b strings.Builder
	switch p.Placement {
	case PlacementInline:
		b.WriteString("inline-")
	case PlacementHidden:
		b.WriteString("hidden-")
	case PlacementEval:
		b.WriteString("eval-")
	}
	if p.NoSources {
		b.WriteString("nosources-")
	}
	switch p.Detail {
	case DetailCheap:
		b.WriteString("cheap-")
	case DetailCheapModule:
		b.WriteString("cheap-module-")
	}
	b.WriteString(sourceMapSuffix)
	return b.String()
}

// Enabled reports whether any source map is produced.
func (p SourceMapPolicy) Enabled() bool {
	return p.Placement != PlacementNone
}

// Inline reports whether map data is shipped inside the emitted code.
func (p SourceMapPolicy) Inline() bool {
	return p.Placement == PlacementInline || p.Placement == PlacementEval
}

func (p SourceMapPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *SourceMapPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseSourceMap(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
