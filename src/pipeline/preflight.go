package pipeline

import (
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"strings"

	"github.com/sofmeright/snapforge/src/config"
	"github.com/sofmeright/snapforge/src/profile"
	"github.com/sofmeright/snapforge/src/project"
)

// Swappable for tests.
var (
	lookPath = exec.LookPath
	listen   = net.Listen
)

// Reference validation per the OCI distribution spec.
var (
	refPathRe   = regexp.MustCompile(`^[a-z0-9]+(?:[._-][a-z0-9]+)*(?:/[a-z0-9]+(?:[._-][a-z0-9]+)*)*$`)
	refTagRe    = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)
	refDigestRe = regexp.MustCompile(`^sha256:[a-f0-9]{64}$`)
)

// Preflight validates the local environment before any build work runs.
// Ports are probed only when a deployment will follow; ports held by our
// own recorded deployment are the state machine's problem, not a
// conflict.
type Preflight struct {
	Config   *config.Config
	Project  *project.Context
	Profile  profile.Profile
	Ports    []int
	OwnPorts bool
}

// Check returns non-fatal notes plus the first fatal precondition.
func (p *Preflight) Check() ([]string, error) {
	if err := p.Project.CheckRecipe(); err != nil {
		hint := "create it or point image.dockerfile at the right file"
		if found := p.Project.SuggestRecipes(); len(found) > 0 {
			hint = "found " + strings.Join(found, ", ") + "; point image.dockerfile at one of these"
		}
		return nil, &PreconditionError{Missing: "build recipe " + p.Project.Recipe, Hint: hint}
	}

	if _, err := lookPath("docker"); err != nil {
		return nil, &PreconditionError{
			Missing: "docker on PATH",
			Hint:    "install Docker with the buildx and compose plugins",
		}
	}

	var notes []string
	if p.Profile != profile.NativeDev {
		if _, err := lookPath("linuxkit"); err != nil {
			return nil, &PreconditionError{
				Missing: "linuxkit on PATH",
				Hint:    "https://github.com/linuxkit/linuxkit#getting-started",
			}
		}
		if _, err := lookPath("mksquashfs"); err != nil {
			notes = append(notes, "mksquashfs not found, filesystem stages run containerized")
		}
	}

	if p.Profile.Verifiable() {
		if err := validateSideImage(p.Config.Image.SideImage); err != nil {
			return nil, err
		}
	}

	if !p.OwnPorts {
		for _, port := range p.Ports {
			if err := probePort(port); err != nil {
				return nil, err
			}
		}
	}
	return notes, nil
}

// validateSideImage checks the reference is plausible before it is baked
// into cache identity and downstream artifacts. Empty means no side
// image.
func validateSideImage(ref string) error {
	if ref == "" {
		return nil
	}
	bad := func(reason string) error {
		return &PreconditionError{
			Missing: "well-formed side image reference",
			Hint:    fmt.Sprintf("%q %s", ref, reason),
		}
	}

	if strings.ContainsAny(ref, " \t\n\r") {
		return bad("contains whitespace")
	}

	rest := ref
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		if !refDigestRe.MatchString(rest[i+1:]) {
			return bad("has a malformed digest")
		}
		rest = rest[:i]
	}
	if i := strings.LastIndexByte(rest, ':'); i > strings.LastIndexByte(rest, '/') {
		if !refTagRe.MatchString(rest[i+1:]) {
			return bad("has a malformed tag")
		}
		rest = rest[:i]
	}

	// A leading component with a dot, port colon, or "localhost" is a
	// registry host, not part of the repository path.
	path := rest
	if i := strings.IndexByte(path, '/'); i >= 0 {
		if host := path[:i]; strings.ContainsAny(host, ".:") || host == "localhost" {
			path = path[i+1:]
		}
	}
	if path == "" || !refPathRe.MatchString(path) {
		return bad("has a malformed repository path")
	}
	return nil
}

// probePort detects a foreign process holding a port we are about to
// publish, before any build work is spent.
func probePort(port int) error {
	ln, err := listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return &ConflictError{
			Resource: fmt.Sprintf("port %d", port),
			Remedy:   "stop the process holding it or change machine.ports in .snapforge.yml",
		}
	}
	ln.Close()
	return nil
}
