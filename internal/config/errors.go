package config

import "errors"

var (
	// ErrInvalidMode indicates the mode is neither development nor production
	ErrInvalidMode = errors.New("invalid mode")
	// ErrNoEntries indicates the build has no entry points
	ErrNoEntries = errors.New("at least one entry point is required")
	// ErrAmbiguousOutput indicates the output filename would collide across entries
	ErrAmbiguousOutput = errors.New("output filename does not resolve to a unique path per entry")
	// ErrInlineSourceMapInProduction indicates an inline or eval source map was requested for a production build
	ErrInlineSourceMapInProduction = errors.New("inline source maps are not allowed in production")
	// ErrInvalidSourceMap indicates the devtool string does not follow the source map grammar
	ErrInvalidSourceMap = errors.New("invalid source map policy")
	// ErrUnknownLoader indicates a processing step names a loader outside the registry
	ErrUnknownLoader = errors.New("unknown loader")
	// ErrUnknownPlugin indicates a plugin directive names a plugin outside the registry
	ErrUnknownPlugin = errors.New("unknown plugin")
	// ErrInvalidPort indicates the dev server port is out of range
	ErrInvalidPort = errors.New("invalid dev server port")
	// ErrInvalidTemplate indicates a naming template uses an unsupported placeholder
	ErrInvalidTemplate = errors.New("invalid naming template")
	// ErrInvalidRule indicates a processing rule cannot match anything or has no chain
	ErrInvalidRule = errors.New("invalid processing rule")
)
