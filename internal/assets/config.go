package assets

type Config struct {
	// Metafile name written next to the outputs; empty disables it
	MetafileName string
	// Less compiler binary run by less-loader
	Lessc string
	// Whether Build writes results to the output directory
	Write bool
	// Whether hot builds include the live reload client
	LiveReload bool
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		MetafileName: "meta.json",
		Lessc:        "lessc",
		Write:        true,
		LiveReload:   false,
	}
}
