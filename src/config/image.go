package config

// ImageConfig holds the application image build settings.
type ImageConfig struct {
	Tag        string            `yaml:"tag"` // full image reference; empty derives one from git
	Dockerfile string            `yaml:"dockerfile"`
	Context    string            `yaml:"context"`
	Target     string            `yaml:"target"`
	BuildArgs  map[string]string `yaml:"build_args"`

	// SideImage names an auxiliary runtime image whose identity is baked
	// into verifiable artifacts. Ignored by non-verifiable profiles.
	SideImage string `yaml:"side_image"`
}

// DefaultImageConfig returns sensible defaults for image builds.
func DefaultImageConfig() ImageConfig {
	return ImageConfig{
		Dockerfile: "Dockerfile",
		Context:    ".",
		BuildArgs:  map[string]string{},
	}
}
