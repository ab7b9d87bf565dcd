package config

import (
	"errors"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

const defaultConfigFile = ".snapforge.yml"

// Config is the top-level snapforge configuration.
type Config struct {
	Project string        `yaml:"project"`
	Profile string        `yaml:"profile"`
	Image   ImageConfig   `yaml:"image"`
	Context ContextConfig `yaml:"context"`
	Machine MachineConfig `yaml:"machine"`
	Deploy  DeployConfig  `yaml:"deploy"`
	Watch   WatchConfig   `yaml:"watch"`
	Secrets SecretsConfig `yaml:"secrets"`
	Cache   CacheConfig   `yaml:"cache"`
}

// Load reads configuration from a YAML file.
// If path is empty, it tries the default file.
// Returns sensible defaults if the file doesn't exist.
func Load(path string) (*Config, error) {
	if path == "" {
		path = defaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaults(), nil
		}
		return nil, err
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Profile: "native-dev",
		Image:   DefaultImageConfig(),
		Context: DefaultContextConfig(),
		Machine: DefaultMachineConfig(),
		Deploy:  DefaultDeployConfig(),
		Watch:   DefaultWatchConfig(),
		Secrets: DefaultSecretsConfig(),
		Cache:   DefaultCacheConfig(),
	}
}
