package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sofmeright/snapforge/src/assembly"
	"github.com/sofmeright/snapforge/src/buildctx"
	"github.com/sofmeright/snapforge/src/output"
	"github.com/sofmeright/snapforge/src/profile"
	"github.com/sofmeright/snapforge/src/secrets"
	"github.com/sofmeright/snapforge/src/tools"
)

// stageContextImage collects the filtered context, gates it on secrets,
// and builds the image: loaded locally for native-dev, exported as an OCI
// archive from a deterministic context tar for everything else.
func (p *Pipeline) stageContextImage(ctx context.Context, sec *output.Section) (string, string, error) {
	manifest, err := p.collectManifest(sec)
	if err != nil {
		return "", "", err
	}
	if err := p.secretGate(ctx, sec, manifest); err != nil {
		return "", "", err
	}

	if p.Profile == profile.NativeDev {
		return p.buildNativeImage(ctx, sec)
	}
	return p.buildArchivedImage(ctx, sec, manifest)
}

// collectManifest parses the ignore file and walks the context root.
func (p *Pipeline) collectManifest(sec *output.Section) (*buildctx.Manifest, error) {
	ignorePath := filepath.Join(p.Project.Root, p.Config.Context.IgnoreFile)
	patterns, err := buildctx.ParseIgnoreFile(ignorePath)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", p.Config.Context.IgnoreFile, err)
	}

	manifest, err := buildctx.Collect(p.contextRoot(), buildctx.NewMatcher(patterns), p.Printer.Warnf)
	if errors.Is(err, buildctx.ErrEmpty) {
		return nil, &PreconditionError{
			Missing: "files in build context",
			Hint:    "every file is excluded; check " + p.Config.Context.IgnoreFile,
		}
	}
	if err != nil {
		return nil, err
	}

	sec.Row("context — %d files, hash %s", len(manifest.Files),
		output.Dimmed(manifest.Hash()[:12], p.Color))
	return manifest, nil
}

// secretGate scans the manifest before any bytes leave the project.
// Findings are fatal for reproducible profiles and a warning otherwise.
func (p *Pipeline) secretGate(ctx context.Context, sec *output.Section, m *buildctx.Manifest) error {
	if p.Config.Secrets.Skip {
		return nil
	}

	scanner, err := secrets.NewScanner(m.Root)
	if err != nil {
		return err
	}
	findings, err := scanner.Scan(ctx, m.Paths())
	if err != nil {
		return fmt.Errorf("secret scan: %w", err)
	}
	if len(findings) == 0 {
		return nil
	}

	rows := make([]output.SecretRow, len(findings))
	for i, f := range findings {
		rows[i] = output.SecretRow{File: f.File, Line: f.Line, RuleID: f.RuleID, Secret: f.Secret}
	}
	output.SectionSecrets(sec, rows, p.Color)

	if p.Profile.Reproducible() {
		return &PreconditionError{
			Missing: "secret-free build context",
			Hint:    fmt.Sprintf("%d findings; a sealed artifact must not embed credentials", len(findings)),
		}
	}
	p.Printer.Warnf("%d potential secrets in build context", len(findings))
	return nil
}

// buildNativeImage loads the image into the local daemon straight from
// the context directory. No caching: the builder's own layer cache is the
// fast path here.
func (p *Pipeline) buildNativeImage(ctx context.Context, sec *output.Section) (string, string, error) {
	out, err := p.Runner.BuildImage(ctx, tools.ImageBuild{
		Recipe:     p.recipePath(),
		ContextDir: p.contextRoot(),
		Target:     p.Config.Image.Target,
		BuildArgs:  p.Config.Image.BuildArgs,
		Tag:        p.Tag,
	})
	if err != nil {
		return "", "", err
	}
	p.renderLayers(sec, out)
	return output.StatusSuccess, p.Tag, nil
}

// buildArchivedImage rebuilds the context archive when the content hash
// moved, then exports the image as an OCI archive. A hash change strands
// every downstream artifact, so they are removed up front.
func (p *Pipeline) buildArchivedImage(ctx context.Context, sec *output.Section, m *buildctx.Manifest) (string, string, error) {
	hash := m.Hash()
	if hash == p.recordedContextHash() &&
		p.Dir.Exists(p.Dir.ContextTar()) && p.Dir.Exists(p.Dir.OCIImageTar()) {
		return output.StatusCached, "context unchanged", nil
	}
	if err := p.Dir.RemoveFrom(p.Dir.ContextTar()); err != nil {
		return "", "", err
	}

	manifestFile, cleanup, err := m.WriteManifestFile(p.Dir.Path)
	if err != nil {
		return "", "", err
	}
	defer cleanup()

	if err := p.Runner.ArchiveContext(ctx, tools.Archive{
		Root:     m.Root,
		Manifest: manifestFile,
		Output:   p.Dir.ContextTar(),
	}); err != nil {
		return "", "", err
	}
	sec.RowStatus("archive", "context.tar", output.StatusSuccess)

	out, err := p.Runner.BuildImage(ctx, tools.ImageBuild{
		Recipe:     p.Config.Image.Dockerfile,
		ContextTar: p.Dir.ContextTar(),
		Target:     p.Config.Image.Target,
		Platform:   p.Profile.Platform(),
		BuildArgs:  p.Config.Image.BuildArgs,
		Tag:        p.Tag,
		Epoch:      epoch,
		OCIOutput:  p.Dir.OCIImageTar(),
	})
	if err != nil {
		return "", "", err
	}
	p.renderLayers(sec, out)

	if err := os.WriteFile(p.Dir.ContextHashFile(), []byte(hash+"\n"), 0o644); err != nil {
		return "", "", fmt.Errorf("recording context hash: %w", err)
	}
	return output.StatusSuccess, p.Tag + " → oci-image.tar", nil
}

// renderLayers prints the parsed builder steps inside the section.
func (p *Pipeline) renderLayers(sec *output.Section, buildOut string) {
	layers := ParseLayers(buildOut)
	if len(layers) == 0 {
		return
	}
	sec.Separator()
	for _, l := range layers {
		sec.Row("%-46s %s", l.Label(), output.Dimmed(l.Timing(), p.Color))
	}
}

// stageAssembly generates the boot configuration and runs the assembler,
// importing the OCI archive into its cache first.
func (p *Pipeline) stageAssembly(ctx context.Context, sec *output.Section) (string, string, error) {
	bundle := p.Dir.BootBundle()
	if p.Dir.Exists(bundle) {
		return output.StatusCached, filepath.Base(bundle), nil
	}

	cfg := assembly.Generate(p.Profile, p.Tag)
	f, err := os.CreateTemp(p.Dir.Path, "assembly-*.yml")
	if err != nil {
		return "", "", fmt.Errorf("creating assembly config: %w", err)
	}
	f.Close()
	defer os.Remove(f.Name())
	if err := cfg.WriteFile(f.Name()); err != nil {
		return "", "", err
	}

	names := make([]string, len(cfg.Services))
	for i, s := range cfg.Services {
		names[i] = s.Name
	}
	sec.Row("services — %s", strings.Join(names, ", "))

	var importTar string
	if p.Dir.Exists(p.Dir.OCIImageTar()) {
		importTar = p.Dir.OCIImageTar()
	}
	if err := p.Runner.AssembleBundle(ctx, tools.Assemble{
		Config:    f.Name(),
		ImportTar: importTar,
		Output:    bundle,
	}); err != nil {
		return "", "", err
	}
	return output.StatusSuccess, filepath.Base(bundle), nil
}

// stageFilesystem converts the boot bundle into a read-only squashfs and
// logs both digests for the audit trail.
func (p *Pipeline) stageFilesystem(ctx context.Context, sec *output.Section) (string, string, error) {
	rootfs := p.Dir.RootFS()
	if p.Dir.Exists(rootfs) {
		return output.StatusCached, filepath.Base(rootfs), nil
	}

	if err := p.Runner.CompressFilesystem(ctx, tools.Compress{
		InputTar: p.Dir.BootBundle(),
		Output:   rootfs,
		Epoch:    epoch,
	}); err != nil {
		return "", "", err
	}

	bundleSum, err := fileSHA256(p.Dir.BootBundle())
	if err != nil {
		return "", "", fmt.Errorf("hashing boot bundle: %w", err)
	}
	fsSum, err := fileSHA256(rootfs)
	if err != nil {
		return "", "", fmt.Errorf("hashing filesystem image: %w", err)
	}
	sec.Row("bundle sha256 — %s", output.Dimmed(bundleSum, p.Color))
	sec.Row("rootfs sha256 — %s", output.Dimmed(fsSum, p.Color))

	return output.StatusSuccess, filepath.Base(rootfs), nil
}

// stageSnapshot runs the verifiable machine to its execution bound and
// records the machine state hash, the build's attestation identity. The
// hash file is written last by the machine, so its presence is the gate.
func (p *Pipeline) stageSnapshot(ctx context.Context, sec *output.Section) (string, string, error) {
	if p.Dir.Exists(p.Dir.SnapshotHashFile()) {
		hash, err := p.readStateHash()
		if err != nil {
			return "", "", err
		}
		p.stateHash = hash
		return output.StatusCached, shortHash(hash), nil
	}

	// A snapshot dir without a hash file is a partial store; clear it.
	if err := os.RemoveAll(p.Dir.SnapshotDir()); err != nil {
		return "", "", fmt.Errorf("clearing partial snapshot: %w", err)
	}

	if err := p.Runner.RunSnapshot(ctx, tools.Snapshot{
		RootfsImage: p.Dir.RootFS(),
		BootArgs:    p.Config.Machine.BootArgs,
		Memory:      p.Config.Machine.Memory,
		MaxCycles:   snapshotMaxCycles,
		SnapshotDir: p.Dir.SnapshotDir(),
	}); err != nil {
		return "", "", err
	}

	hash, err := p.readStateHash()
	if err != nil {
		return "", "", err
	}
	p.stateHash = hash
	sec.Row("state hash — %s", output.Dimmed(hash, p.Color))
	return output.StatusSuccess, shortHash(hash), nil
}

// readStateHash loads and validates the machine state hash. A missing or
// unusable hash after a completed snapshot run means the store silently
// failed, which is fatal.
func (p *Pipeline) readStateHash() (string, error) {
	path := p.Dir.SnapshotHashFile()
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &InvariantError{
			Check:  "machine state hash",
			Detail: "snapshot completed without writing " + path,
		}
	}

	hash := strings.ToLower(strings.TrimSpace(string(data)))
	if len(hash) < 2*saltBytes {
		return "", &InvariantError{
			Check:  "machine state hash",
			Detail: fmt.Sprintf("hash %q is shorter than %d hex chars", hash, 2*saltBytes),
		}
	}
	for _, c := range hash[:2*saltBytes] {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return "", &InvariantError{
				Check:  "machine state hash",
				Detail: fmt.Sprintf("hash %q is not hex", hash),
			}
		}
	}
	return hash, nil
}

// stageCompression flattens the snapshot directory into a single image
// and enforces sector alignment, which the integrity tree depends on.
func (p *Pipeline) stageCompression(ctx context.Context, sec *output.Section) (string, string, error) {
	image := p.Dir.MachineImage()
	cached := p.Dir.Exists(image)
	if !cached {
		if err := p.Runner.CompressFilesystem(ctx, tools.Compress{
			InputDir: p.Dir.SnapshotDir(),
			Output:   image,
			Epoch:    epoch,
		}); err != nil {
			return "", "", err
		}
	}

	// The alignment check is a stat, cheap enough to repeat on the
	// cached path too.
	info, err := os.Stat(image)
	if err != nil {
		return "", "", fmt.Errorf("inspecting machine image: %w", err)
	}
	if info.Size()%sectorSize != 0 {
		return "", "", &InvariantError{
			Check:  "sector alignment",
			Detail: fmt.Sprintf("machine image is %d bytes, not a multiple of %d", info.Size(), sectorSize),
		}
	}

	detail := fmt.Sprintf("%d sectors", info.Size()/sectorSize)
	if cached {
		return output.StatusCached, detail, nil
	}
	sec.Row("image — %d bytes, %d sectors", info.Size(), info.Size()/sectorSize)
	return output.StatusSuccess, detail, nil
}

// stageSealing formats the integrity tree at the end of the image, keyed
// entirely off the machine state hash, then immediately re-verifies it.
func (p *Pipeline) stageSealing(ctx context.Context, sec *output.Section) (string, string, error) {
	rootHashFile := p.Dir.RootHashFile()
	if p.Dir.Exists(rootHashFile) {
		data, err := os.ReadFile(rootHashFile)
		if err != nil {
			return "", "", err
		}
		p.rootHash = strings.TrimSpace(string(data))
		return output.StatusCached, shortHash(p.rootHash), nil
	}

	if p.stateHash == "" {
		hash, err := p.readStateHash()
		if err != nil {
			return "", "", err
		}
		p.stateHash = hash
	}

	salt, id, err := sealIdentity(p.stateHash)
	if err != nil {
		return "", "", err
	}

	info, err := os.Stat(p.Dir.MachineImage())
	if err != nil {
		return "", "", &PreconditionError{
			Missing: "machine image",
			Hint:    "compression stage output is gone; rerun with --force",
		}
	}
	offset := info.Size()

	sec.Row("salt — %s", output.Dimmed(salt, p.Color))
	sec.Row("uuid — %s", output.Dimmed(id, p.Color))

	root, err := p.Runner.SealImage(ctx, tools.Seal{
		Image:      p.Dir.MachineImage(),
		HashOffset: offset,
		Salt:       salt,
		UUID:       id,
	})
	if err != nil {
		return "", "", err
	}

	if err := p.Runner.VerifySeal(ctx, tools.Verify{
		Image:      p.Dir.MachineImage(),
		HashOffset: offset,
		RootHash:   root,
	}); err != nil {
		return "", "", &InvariantError{
			Check:  "seal re-verification",
			Detail: "formatted image failed verification against its own root hash: " + firstLine(err.Error()),
		}
	}

	if err := os.WriteFile(rootHashFile, []byte(root+"\n"), 0o644); err != nil {
		return "", "", fmt.Errorf("recording root hash: %w", err)
	}
	p.rootHash = root

	sec.Row("root hash — %s", output.Dimmed(root, p.Color))
	return output.StatusSuccess, shortHash(root), nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
