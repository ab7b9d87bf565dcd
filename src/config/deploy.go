package config

// DeployConfig controls the compose deployment.
type DeployConfig struct {
	// ComposeProject overrides the compose project name.
	// Empty derives snapforge-<project>.
	ComposeProject string `yaml:"compose_project"`
}

// DefaultDeployConfig returns sensible defaults for deployments.
func DefaultDeployConfig() DeployConfig {
	return DeployConfig{}
}
