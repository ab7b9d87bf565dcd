package config

// MachineConfig holds guest machine settings shared by the emulated and
// verifiable backends.
type MachineConfig struct {
	// BackendImage is the container image hosting the emulator toolchain
	// (qemu, verifiable machine, verity tools). The deployment inspector
	// uses it to recognize machine services.
	BackendImage string `yaml:"backend_image"`

	Kernel   string      `yaml:"kernel"` // kernel image path inside the backend
	Memory   string      `yaml:"memory"`
	BootArgs string      `yaml:"boot_args"`
	Ports    PortsConfig `yaml:"ports"`
}

// PortsConfig names the two forwarded host ports.
type PortsConfig struct {
	Service int `yaml:"service"` // primary application port
	Debug   int `yaml:"debug"`   // shell/gdb access port, debug profiles only
}

// DefaultMachineConfig returns sensible defaults for the machine backends.
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		BackendImage: "ghcr.io/sofmeright/snapforge-machine:latest",
		Kernel:       "/usr/share/snapforge/kernel/Image",
		Memory:       "512M",
		Ports: PortsConfig{
			Service: 8080,
			Debug:   2222,
		},
	}
}
