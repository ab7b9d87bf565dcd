package config

// SecretsConfig controls the pre-archive secret scan.
type SecretsConfig struct {
	// Skip disables the scan entirely. Verifiable builds otherwise fail
	// on any finding; other profiles warn.
	Skip bool `yaml:"skip"`
}

// DefaultSecretsConfig returns sensible defaults for secret scanning.
func DefaultSecretsConfig() SecretsConfig {
	return SecretsConfig{}
}
