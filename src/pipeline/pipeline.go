// Package pipeline executes the profile-dependent stage chain that turns
// a build recipe into its deployable artifact set: a loaded dev image, an
// emulated machine filesystem, or a sealed verifiable snapshot.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sofmeright/snapforge/src/cache"
	"github.com/sofmeright/snapforge/src/config"
	"github.com/sofmeright/snapforge/src/output"
	"github.com/sofmeright/snapforge/src/profile"
	"github.com/sofmeright/snapforge/src/project"
	"github.com/sofmeright/snapforge/src/tools"
)

const (
	// epoch pins every timestamp in reproducible stages.
	epoch = "0"
	// sectorSize is the block alignment the integrity tree requires.
	sectorSize = 512
	// snapshotMaxCycles is the fixed execution bound the verifiable
	// machine runs to before storing its state.
	snapshotMaxCycles = "1000000000000"
	// saltBytes is how much of the state hash seeds the seal salt.
	saltBytes = 16
)

// Pipeline drives one build of one target. Stages run strictly
// sequentially; the first failure aborts everything downstream.
type Pipeline struct {
	Config  *config.Config
	Project *project.Context
	Profile profile.Profile
	Tag     string
	Dir     *cache.Dir
	Runner  tools.Runner
	Printer *output.Printer
	Out     io.Writer
	Color   bool
	Force   bool

	stateHash string
	rootHash  string
}

// Result reports what a run produced.
type Result struct {
	Stages    []output.StageOutcome
	Elapsed   time.Duration
	StateHash string // machine state hash, verifiable profiles
	RootHash  string // integrity root, verifiable profiles
}

// stage pairs a display name with its execution func. Each func writes
// its own rows and reports a status plus a short detail for the summary.
type stage struct {
	name string
	run  func(ctx context.Context, sec *output.Section) (string, string, error)
}

// plan returns the stage chain for the profile.
func (p *Pipeline) plan() []stage {
	stages := []stage{{"context+image", p.stageContextImage}}
	switch p.Profile {
	case profile.NativeDev:
		return stages
	case profile.EmulatedDebug, profile.EmulatedRelease:
		return append(stages,
			stage{"assembly", p.stageAssembly},
			stage{"filesystem", p.stageFilesystem},
		)
	case profile.VerifiableRelease, profile.VerifiableDebug:
		return append(stages,
			stage{"assembly", p.stageAssembly},
			stage{"filesystem", p.stageFilesystem},
			stage{"snapshot", p.stageSnapshot},
			stage{"compression", p.stageCompression},
			stage{"sealing", p.stageSealing},
		)
	}
	panic(fmt.Sprintf("pipeline: unknown profile %d", int(p.Profile)))
}

// Run executes the stage chain. The returned Result always carries the
// outcomes of every stage that started, including the failed one.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{}

	force := p.Force
	changed, previous, err := p.Dir.CheckSideImage()
	if err != nil {
		return res, err
	}
	if changed {
		p.Printer.Warnf("side image changed (%s → %s), forcing rebuild",
			previous, p.Dir.Target.SideImage)
		force = true
	}
	if force {
		if err := p.Dir.RemoveFrom(p.Dir.ContextTar()); err != nil {
			return res, err
		}
	}

	var runErr error
	for _, st := range p.plan() {
		outcome, err := p.runStage(ctx, st)
		res.Stages = append(res.Stages, outcome)
		if err != nil {
			runErr = err
			break
		}
	}

	res.Elapsed = time.Since(start)
	res.StateHash = p.stateHash
	res.RootHash = p.rootHash
	p.renderSummary(res)
	return res, runErr
}

// runStage frames one stage in its own section and normalizes failures.
func (p *Pipeline) runStage(ctx context.Context, st stage) (output.StageOutcome, error) {
	start := time.Now()
	id := sectionID(st.name)
	output.SectionStart(p.Out, id, st.name)
	sec := output.NewSection(p.Out, st.name, 0, p.Color)

	status, detail, err := st.run(ctx, sec)
	outcome := output.StageOutcome{
		Name:    st.name,
		Status:  status,
		Detail:  detail,
		Elapsed: time.Since(start),
	}

	if err != nil {
		outcome.Status = output.StatusFailed
		if outcome.Detail == "" {
			outcome.Detail = err.Error()
		}
		var runErr *tools.RunError
		if errors.As(err, &runErr) {
			outcome.Output = runErr.Output
		}
		sec.RowStatus(st.name, firstLine(err.Error()), output.StatusFailed)
	} else {
		sec.RowStatus(st.name, detail, status)
	}
	sec.Close()

	// Raw tool output: collapsed in CI; locally the last line already
	// rode the error and verbose mode streams stderr in real time.
	if outcome.Output != "" && output.IsCI() {
		output.SectionStartCollapsed(p.Out, id+"_raw", st.name+" output (raw)")
		fmt.Fprint(p.Out, outcome.Output)
		output.SectionEnd(p.Out, id+"_raw")
	}
	output.SectionEnd(p.Out, id)
	return outcome, err
}

// sectionID maps a stage name to a CI section id.
func sectionID(name string) string {
	id := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
	return "sfg_" + id
}

// renderSummary writes the per-stage rollup and total.
func (p *Pipeline) renderSummary(res *Result) {
	if len(res.Stages) == 0 {
		return
	}
	sec := output.NewSection(p.Out, "summary", 0, p.Color)
	overall := output.StatusSuccess
	for _, st := range res.Stages {
		output.SummaryRow(p.Out, st.Name, st.Status, st.Detail, p.Color)
		if st.Status == output.StatusFailed {
			overall = output.StatusFailed
		}
	}
	sec.Separator()
	output.SummaryTotal(p.Out, res.Elapsed, overall, p.Color)
	sec.Close()
}

// contextRoot is the directory the build context is collected from.
func (p *Pipeline) contextRoot() string {
	return filepath.Join(p.Project.Root, p.Config.Image.Context)
}

// recipePath is the Dockerfile location on the host.
func (p *Pipeline) recipePath() string {
	return filepath.Join(p.Project.Root, p.Config.Image.Dockerfile)
}

// recordedContextHash reads the hash the current context archive was
// built from, "" when absent.
func (p *Pipeline) recordedContextHash() string {
	data, err := os.ReadFile(p.Dir.ContextHashFile())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// sealIdentity derives the seal salt and volume UUID from the machine
// state hash, tying every byte of the sealed image to the attested
// state. The UUID carries the salt bytes verbatim.
func sealIdentity(stateHash string) (salt, id string, err error) {
	salt = stateHash[:2*saltBytes]
	raw, err := hex.DecodeString(salt)
	if err != nil {
		return "", "", fmt.Errorf("state hash is not hex: %w", err)
	}
	u, err := uuid.FromBytes(raw)
	if err != nil {
		return "", "", fmt.Errorf("deriving volume uuid: %w", err)
	}
	return salt, u.String(), nil
}

// fileSHA256 hashes a file for the audit log.
func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
