// Package assembly generates the boot bundle configuration handed to the
// image assembler: an ordered list of init components and services that
// boots the kernel, brings up networking, and lands in the workload.
package assembly

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sofmeright/snapforge/src/profile"
)

// Component images. The guest stack is pinned as a set: mixing versions
// across init and the agent is how boots stop being reproducible.
const (
	kernelImage     = "ghcr.io/sofmeright/snapforge-kernel:6.6.32"
	initImage       = "ghcr.io/sofmeright/snapforge-init:v1.3.0"
	runcImage       = "ghcr.io/sofmeright/snapforge-runc:v1.2.6"
	containerdImage = "ghcr.io/sofmeright/snapforge-containerd:v2.0.4"
	dhcpcdImage     = "ghcr.io/sofmeright/snapforge-dhcpcd:v1.0.3"
	gettyImage      = "ghcr.io/sofmeright/snapforge-getty:v1.0.3"
	sshdImage       = "ghcr.io/sofmeright/snapforge-sshd:v1.0.3"
	agentImage      = "ghcr.io/sofmeright/snapforge-guest-agent:v0.4.2"

	kernelCmdline = "console=hvc0"
)

// workloadCapabilities is the fixed capability set granted to the
// application service.
var workloadCapabilities = []string{
	"CAP_CHOWN",
	"CAP_DAC_OVERRIDE",
	"CAP_FOWNER",
	"CAP_KILL",
	"CAP_NET_BIND_SERVICE",
	"CAP_SETGID",
	"CAP_SETUID",
}

// Config is the assembler input document.
type Config struct {
	Kernel   Kernel    `yaml:"kernel"`
	Init     []string  `yaml:"init"`
	Onboot   []Service `yaml:"onboot"`
	Services []Service `yaml:"services"`
}

// Kernel selects the guest kernel and its command line.
type Kernel struct {
	Image   string `yaml:"image"`
	Cmdline string `yaml:"cmdline"`
}

// Service is one containerized component inside the guest.
type Service struct {
	Name         string   `yaml:"name"`
	Image        string   `yaml:"image"`
	Command      []string `yaml:"command,omitempty"`
	Env          []string `yaml:"env,omitempty"`
	Capabilities []string `yaml:"capabilities,omitempty"`
	Binds        []string `yaml:"binds,omitempty"`
}

// Generate builds the config for one profile and workload image. Debug
// profiles add a console getty and sshd with ephemeral host keys; release
// profiles boot straight into the agent and workload.
func Generate(p profile.Profile, workloadImage string) *Config {
	cfg := &Config{
		Kernel: Kernel{Image: kernelImage, Cmdline: kernelCmdline},
		Init:   []string{initImage, runcImage, containerdImage},
		Onboot: []Service{
			{
				Name:    "dhcpcd",
				Image:   dhcpcdImage,
				Command: []string{"/sbin/dhcpcd", "--nobackground", "-f", "/dhcpcd.conf", "-1"},
			},
		},
	}

	if p.Debug() {
		cfg.Services = append(cfg.Services,
			Service{
				Name:  "getty",
				Image: gettyImage,
				Env:   []string{"INSECURE=true"},
			},
			Service{
				Name:  "sshd",
				Image: sshdImage,
			},
		)
	}

	cfg.Services = append(cfg.Services,
		Service{
			Name:         "guest-agent",
			Image:        agentImage,
			Binds:        []string{"/dev:/dev"},
			Capabilities: []string{"CAP_MKNOD", "CAP_SYS_ADMIN"},
		},
		Service{
			Name:         "workload",
			Image:        workloadImage,
			Capabilities: workloadCapabilities,
		},
	)

	return cfg
}

// Marshal renders the config as assembler YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling assembly config: %w", err)
	}
	return data, nil
}

// WriteFile writes the config to path.
func (c *Config) WriteFile(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing assembly config: %w", err)
	}
	return nil
}
