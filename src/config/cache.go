package config

// CacheConfig controls artifact cache placement.
type CacheConfig struct {
	// Dir overrides the cache root. Empty falls back to
	// $SNAPFORGE_CACHE_DIR, then ~/.cache/snapforge.
	Dir string `yaml:"dir"`
}

// DefaultCacheConfig returns sensible defaults for the cache.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{}
}
