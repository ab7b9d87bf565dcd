package config

// ContextConfig controls deterministic build context construction.
type ContextConfig struct {
	// IgnoreFile is the dockerignore-style file applied when archiving the
	// build context. Missing file means no filtering.
	IgnoreFile string `yaml:"ignore_file"`
}

// DefaultContextConfig returns sensible defaults for context construction.
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		IgnoreFile: ".dockerignore",
	}
}
