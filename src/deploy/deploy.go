// Package deploy reconciles the live compose deployment with a requested
// build target. The state machine sees two states, absent and running,
// and picks exactly one action per request: nothing, an in-place workload
// swap, or a full teardown and stand-up.
package deploy

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sofmeright/snapforge/src/cache"
	"github.com/sofmeright/snapforge/src/config"
	"github.com/sofmeright/snapforge/src/output"
	"github.com/sofmeright/snapforge/src/profile"
	"github.com/sofmeright/snapforge/src/tools"
)

// State is the observed deployment state.
type State struct {
	Running bool
	Profile profile.Profile
	Tag     string
}

// Action is the state machine's verdict.
type Action int

const (
	NoOp Action = iota
	SwapWorkload
	Recreate
)

func (a Action) String() string {
	switch a {
	case NoOp:
		return "no-op"
	case SwapWorkload:
		return "swap workload"
	case Recreate:
		return "recreate"
	}
	panic(fmt.Sprintf("deploy: unknown action %d", int(a)))
}

// Decide maps the observed state and the request onto one action. A
// profile change always tears the deployment down fully; a tag change
// within a profile replaces only the workload service.
func Decide(current State, requested profile.Profile, tag string) Action {
	switch {
	case !current.Running:
		return Recreate
	case current.Profile != requested:
		return Recreate
	case current.Tag != tag:
		return SwapWorkload
	default:
		return NoOp
	}
}

// Detect recovers the live state by inspecting the workload container.
// A container on the machine-backend image is classified by its launch
// command; its application tag is not visible from outside, so the
// deployment record supplies it. Inspection stays authoritative for
// everything else.
func Detect(ctx context.Context, runner tools.Runner, composeProject, backendImage string, record *Record) (State, error) {
	info, err := runner.InspectWorkload(ctx, composeProject)
	if err != nil {
		return State{}, fmt.Errorf("inspecting deployment: %w", err)
	}
	if !info.Running {
		return State{}, nil
	}

	if info.Image != backendImage {
		return State{Running: true, Profile: profile.NativeDev, Tag: info.Image}, nil
	}

	st := State{Running: true, Profile: backendProfile(info.Command)}
	if record != nil {
		st.Tag = record.Tag
	}
	return st, nil
}

// backendProfile classifies a machine-service launch command: the
// emulator binary separates verifiable from emulated, and the artifact
// name in the command carries the debug marker.
func backendProfile(command string) profile.Profile {
	debug := strings.Contains(command, "-debug")
	if strings.Contains(command, "cartesi-machine") {
		if debug {
			return profile.VerifiableDebug
		}
		return profile.VerifiableRelease
	}
	if debug {
		return profile.EmulatedDebug
	}
	return profile.EmulatedRelease
}

// Manager drives deployment changes for one target.
type Manager struct {
	Config       *config.Config
	Runner       tools.Runner
	Printer      *output.Printer
	Profile      profile.Profile
	Tag          string
	Project      string     // compose project name
	Dir          *cache.Dir // artifact paths, also hosts the compose file
	NamespaceDir string     // deployment record location
}

// Up reconciles the deployment and reports the action taken. The record
// is rewritten after any change and left alone on a no-op.
func (m *Manager) Up(ctx context.Context) (Action, error) {
	record, err := ReadRecord(m.NamespaceDir)
	if err != nil {
		m.Printer.Warnf("ignoring unreadable deployment record: %v", err)
	}
	current, err := Detect(ctx, m.Runner, m.Project, m.Config.Machine.BackendImage, record)
	if err != nil {
		return NoOp, err
	}

	action := Decide(current, m.Profile, m.Tag)
	if action == NoOp {
		return NoOp, nil
	}

	dep, err := m.writeCompose()
	if err != nil {
		return action, err
	}

	switch action {
	case SwapWorkload:
		if err := m.Runner.RecreateService(ctx, dep, ServiceName(m.Profile)); err != nil {
			return action, err
		}
	case Recreate:
		if current.Running {
			if err := m.Runner.ComposeDown(ctx, m.Project); err != nil {
				return action, err
			}
		}
		if err := m.Runner.ComposeUp(ctx, dep); err != nil {
			return action, err
		}
	}

	if err := WriteRecord(m.NamespaceDir, m.record()); err != nil {
		return action, err
	}
	return action, nil
}

// Swap recreates the workload service unconditionally. Hot reload uses it
// after rebuilding an image under an unchanged tag, where the state
// machine would otherwise see nothing to do.
func (m *Manager) Swap(ctx context.Context) error {
	dep, err := m.writeCompose()
	if err != nil {
		return err
	}
	if err := m.Runner.RecreateService(ctx, dep, ServiceName(m.Profile)); err != nil {
		return err
	}
	return WriteRecord(m.NamespaceDir, m.record())
}

// Down tears the deployment down and drops the record.
func (m *Manager) Down(ctx context.Context) error {
	if err := m.Runner.ComposeDown(ctx, m.Project); err != nil {
		return err
	}
	return RemoveRecord(m.NamespaceDir)
}

func (m *Manager) writeCompose() (tools.Deployment, error) {
	path := filepath.Join(m.Dir.Path, "compose.yml")
	doc := Generate(m.Profile, m.Tag, m.Config.Machine, m.Dir)
	if err := doc.WriteFile(path); err != nil {
		return tools.Deployment{}, err
	}
	return tools.Deployment{Project: m.Project, ComposeFile: path}, nil
}

func (m *Manager) record() *Record {
	return NewRecord(m.Profile, m.Tag, m.Project, m.Config.Machine.Ports)
}

// ComposeProject returns the compose project name for a target, the
// configured override or snapforge-<project>.
func ComposeProject(cfg *config.Config, projectName string) string {
	if cfg.Deploy.ComposeProject != "" {
		return cfg.Deploy.ComposeProject
	}
	return "snapforge-" + projectName
}
