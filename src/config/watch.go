package config

// WatchConfig controls the hot-reload watcher.
type WatchConfig struct {
	DebounceMS int `yaml:"debounce_ms"` // delay between last change and rebuild

	// Ignore adds glob patterns (doublestar syntax) to the built-in
	// denylist of transient paths.
	Ignore []string `yaml:"ignore"`
}

// DefaultWatchConfig returns sensible defaults for watching.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		DebounceMS: 500,
	}
}
