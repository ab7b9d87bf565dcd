package deploy

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sofmeright/snapforge/src/cache"
	"github.com/sofmeright/snapforge/src/config"
	"github.com/sofmeright/snapforge/src/profile"
)

// ServiceName returns the one compose service a profile deploys.
func ServiceName(p profile.Profile) string {
	if p == profile.NativeDev {
		return "workload"
	}
	return "machine"
}

// File is a generated compose document. Every profile deploys exactly
// one service.
type File struct {
	Services map[string]Service `yaml:"services"`
}

// Service is one compose service entry.
type Service struct {
	Image   string   `yaml:"image"`
	Command []string `yaml:"command,omitempty"`
	Volumes []string `yaml:"volumes,omitempty"`
	Ports   []string `yaml:"ports,omitempty"`
	Restart string   `yaml:"restart"`
}

// Generate builds the compose document for a target. Native-dev runs the
// application image directly; everything else runs the backend image with
// the cache directory mounted read-only at /artifacts.
func Generate(p profile.Profile, tag string, machine config.MachineConfig, dir *cache.Dir) *File {
	svc := Service{Restart: "unless-stopped"}

	switch {
	case p == profile.NativeDev:
		svc.Image = tag
		svc.Ports = forwardedPorts(machine.Ports, false)
	case p.Verifiable():
		svc.Image = machine.BackendImage
		svc.Command = verifiableCommand(machine, dir)
		svc.Volumes = []string{dir.Path + ":/artifacts:ro"}
		svc.Ports = forwardedPorts(machine.Ports, p.Debug())
	default:
		svc.Image = machine.BackendImage
		svc.Command = emulatedCommand(machine, dir, p.Debug())
		svc.Volumes = []string{dir.Path + ":/artifacts:ro"}
		svc.Ports = forwardedPorts(machine.Ports, p.Debug())
	}

	return &File{Services: map[string]Service{ServiceName(p): svc}}
}

// forwardedPorts publishes the service port and, for debug guests, the
// shell-access port.
func forwardedPorts(pc config.PortsConfig, debug bool) []string {
	out := []string{fmt.Sprintf("%d:%d", pc.Service, pc.Service)}
	if debug {
		out = append(out, fmt.Sprintf("%d:%d", pc.Debug, pc.Debug))
	}
	return out
}

// emulatedCommand boots the packaged kernel and squashfs under qemu.
// User-mode networking forwards the service port into the guest and, for
// debug guests, the debug port onto the guest sshd.
func emulatedCommand(m config.MachineConfig, dir *cache.Dir, debug bool) []string {
	netdev := fmt.Sprintf("user,id=net0,hostfwd=tcp::%d-:%d", m.Ports.Service, m.Ports.Service)
	if debug {
		netdev += fmt.Sprintf(",hostfwd=tcp::%d-:22", m.Ports.Debug)
	}

	cmd := []string{
		"qemu-system-riscv64",
		"-nographic",
		"-machine", "virt",
		"-m", m.Memory,
		"-kernel", m.Kernel,
		"-drive", "file=/artifacts/" + filepath.Base(dir.RootFS()) + ",format=raw,if=virtio",
		"-netdev", netdev,
		"-device", "virtio-net-device,netdev=net0",
	}
	if m.BootArgs != "" {
		cmd = append(cmd, "-append", m.BootArgs)
	}
	return cmd
}

// verifiableCommand resumes the stored machine snapshot. The snapshot
// directory name carries the debug marker, which the deployment inspector
// relies on.
func verifiableCommand(m config.MachineConfig, dir *cache.Dir) []string {
	cmd := []string{
		"cartesi-machine",
		"--load=/artifacts/" + filepath.Base(dir.SnapshotDir()),
		"--virtio-net=user",
	}
	if m.BootArgs != "" {
		cmd = append(cmd, "--append-bootargs="+m.BootArgs)
	}
	return cmd
}

// Marshal renders the document as YAML.
func (f *File) Marshal() ([]byte, error) {
	return yaml.Marshal(f)
}

// WriteFile renders the document to path.
func (f *File) WriteFile(path string) error {
	data, err := f.Marshal()
	if err != nil {
		return fmt.Errorf("rendering compose file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
