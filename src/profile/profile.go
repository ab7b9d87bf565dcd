package profile

import (
	"fmt"
	"strings"
)

// Profile selects what a build produces: the target architecture, whether
// debug tooling is included in guest images, and the determinism class.
// The set is closed; every attribute is fixed at compile time.
type Profile int

const (
	NativeDev Profile = iota
	EmulatedDebug
	EmulatedRelease
	VerifiableRelease
	VerifiableDebug
)

// All returns every profile in declaration order.
func All() []Profile {
	return []Profile{NativeDev, EmulatedDebug, EmulatedRelease, VerifiableRelease, VerifiableDebug}
}

// Names returns the accepted profile names in declaration order.
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, p := range all {
		names[i] = p.String()
	}
	return names
}

// Parse maps a profile name to its value. Unknown names are an error.
func Parse(name string) (Profile, error) {
	for _, p := range All() {
		if p.String() == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown profile %q (valid: %s)", name, strings.Join(Names(), ", "))
}

func (p Profile) String() string {
	switch p {
	case NativeDev:
		return "native-dev"
	case EmulatedDebug:
		return "emulated-debug"
	case EmulatedRelease:
		return "emulated-release"
	case VerifiableRelease:
		return "verifiable-release"
	case VerifiableDebug:
		return "verifiable-debug"
	}
	panic(fmt.Sprintf("profile: unknown value %d", int(p)))
}

// Platform returns the image-build platform string, empty for the host's
// native platform.
func (p Profile) Platform() string {
	switch p {
	case NativeDev:
		return ""
	case EmulatedDebug, EmulatedRelease, VerifiableRelease, VerifiableDebug:
		return "linux/riscv64"
	}
	panic(fmt.Sprintf("profile: unknown value %d", int(p)))
}

// Debug reports whether guest images include debug services (getty, shell
// access, diagnostic keys).
func (p Profile) Debug() bool {
	switch p {
	case NativeDev, EmulatedDebug, VerifiableDebug:
		return true
	case EmulatedRelease, VerifiableRelease:
		return false
	}
	panic(fmt.Sprintf("profile: unknown value %d", int(p)))
}

// Verifiable reports whether the build runs through the verifiable-machine
// emulator and is sealed for attestation.
func (p Profile) Verifiable() bool {
	switch p {
	case VerifiableRelease, VerifiableDebug:
		return true
	case NativeDev, EmulatedDebug, EmulatedRelease:
		return false
	}
	panic(fmt.Sprintf("profile: unknown value %d", int(p)))
}

// Emulated reports whether the build targets the emulated-CPU backend.
func (p Profile) Emulated() bool {
	switch p {
	case EmulatedDebug, EmulatedRelease:
		return true
	case NativeDev, VerifiableRelease, VerifiableDebug:
		return false
	}
	panic(fmt.Sprintf("profile: unknown value %d", int(p)))
}

// Reproducible reports the determinism class: reproducible builds must
// yield bit-identical artifacts from identical inputs, which sealing
// depends on.
func (p Profile) Reproducible() bool {
	return p.Verifiable()
}

// Suffix returns the artifact filename suffix distinguishing debug guest
// images from release ones. Native builds produce no guest artifacts.
func (p Profile) Suffix() string {
	if p != NativeDev && p.Debug() {
		return "-debug"
	}
	return ""
}
