package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// archiverImage is the containerized GNU tar fallback used when the host
// tar cannot produce deterministic archives.
const archiverImage = "debian:bookworm-slim"

// ExecRunner runs the real toolchain via os/exec.
type ExecRunner struct {
	Verbose      bool
	Stdout       io.Writer
	Stderr       io.Writer
	BackendImage string // container image hosting the machine emulator and verity tools

	tarProbe sync.Once
	gnuTar   bool

	squashProbe sync.Once
	hostSquash  bool
}

// NewExecRunner creates a runner with default output writers.
func NewExecRunner(verbose bool, backendImage string) *ExecRunner {
	return &ExecRunner{
		Verbose:      verbose,
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		BackendImage: backendImage,
	}
}

// run executes a command with combined output captured. On failure the
// captured text rides along in the RunError; in verbose mode it is also
// streamed live.
func (r *ExecRunner) run(ctx context.Context, label string, stdin io.Reader, name string, args ...string) (string, error) {
	if r.Verbose {
		fmt.Fprintf(r.Stderr, "exec: %s %s\n", name, strings.Join(args, " "))
	}

	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	if r.Verbose {
		cmd.Stdout = io.MultiWriter(r.Stdout, &buf)
		cmd.Stderr = io.MultiWriter(r.Stderr, &buf)
	} else {
		cmd.Stdout = &buf
		cmd.Stderr = &buf
	}

	if err := cmd.Run(); err != nil {
		return buf.String(), &RunError{Tool: label, Args: args, Output: buf.String(), Err: err}
	}
	return buf.String(), nil
}

func (r *ExecRunner) BuildImage(ctx context.Context, spec ImageBuild) (string, error) {
	var stdin io.Reader
	if spec.ContextTar != "" {
		f, err := os.Open(spec.ContextTar)
		if err != nil {
			return "", fmt.Errorf("opening context archive: %w", err)
		}
		defer f.Close()
		stdin = f
	}
	return r.run(ctx, "docker buildx build", stdin, "docker", buildImageArgs(spec)...)
}

// buildImageArgs constructs the buildx argument list. Build args are
// emitted in sorted key order so repeated invocations are identical.
func buildImageArgs(spec ImageBuild) []string {
	args := []string{"buildx", "build"}

	if spec.Recipe != "" {
		args = append(args, "--file", spec.Recipe)
	}
	if spec.Target != "" {
		args = append(args, "--target", spec.Target)
	}
	if spec.Platform != "" {
		args = append(args, "--platform", spec.Platform)
	}

	keys := make([]string, 0, len(spec.BuildArgs))
	for k := range spec.BuildArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--build-arg", fmt.Sprintf("%s=%s", k, spec.BuildArgs[k]))
	}
	if spec.Epoch != "" {
		args = append(args, "--build-arg", "SOURCE_DATE_EPOCH="+spec.Epoch)
	}

	if spec.Tag != "" {
		args = append(args, "--tag", spec.Tag)
	}

	if spec.OCIOutput != "" {
		args = append(args, "--output", "type=oci,dest="+spec.OCIOutput)
	} else {
		args = append(args, "--load")
	}

	args = append(args, "--progress", "plain")

	if spec.ContextTar != "" {
		args = append(args, "-")
	} else {
		dir := spec.ContextDir
		if dir == "" {
			dir = "."
		}
		args = append(args, dir)
	}

	return args
}

func (r *ExecRunner) ArchiveContext(ctx context.Context, spec Archive) error {
	if r.hostTarIsGNU(ctx) {
		_, err := r.run(ctx, "tar", nil, "tar", hostArchiveArgs(spec)...)
		return err
	}
	_, err := r.run(ctx, "containerized tar", nil, "docker", containerArchiveArgs(spec)...)
	return err
}

// hostTarIsGNU probes the local tar once per runner. Only GNU tar supports
// the deterministic flag set; anything else routes through the
// containerized archiver.
func (r *ExecRunner) hostTarIsGNU(ctx context.Context) bool {
	r.tarProbe.Do(func() {
		out, err := exec.CommandContext(ctx, "tar", "--version").Output()
		r.gnuTar = err == nil && strings.Contains(string(out), "GNU tar")
	})
	return r.gnuTar
}

// hostArchiveArgs builds a deterministic archive: fixed numeric ownership,
// fixed mtime, member order exactly as the manifest lists it.
func hostArchiveArgs(spec Archive) []string {
	return []string{
		"--create",
		"--file", spec.Output,
		"--directory", spec.Root,
		"--files-from", spec.Manifest,
		"--mtime=@0",
		"--owner=0", "--group=0", "--numeric-owner",
		"--format=gnu",
	}
}

// containerArchiveArgs produces the same archive through the fallback
// image, with project, manifest, and output directories bind-mounted.
func containerArchiveArgs(spec Archive) []string {
	return []string{
		"run", "--rm",
		"--volume", spec.Root + ":/work:ro",
		"--volume", filepath.Dir(spec.Manifest) + ":/manifest:ro",
		"--volume", filepath.Dir(spec.Output) + ":/out",
		archiverImage,
		"tar", "--create",
		"--file", "/out/" + filepath.Base(spec.Output),
		"--directory", "/work",
		"--files-from", "/manifest/" + filepath.Base(spec.Manifest),
		"--mtime=@0",
		"--owner=0", "--group=0", "--numeric-owner",
		"--format=gnu",
	}
}

func (r *ExecRunner) AssembleBundle(ctx context.Context, spec Assemble) error {
	if spec.ImportTar != "" {
		if _, err := r.run(ctx, "linuxkit cache import", nil, "linuxkit", "cache", "import", spec.ImportTar); err != nil {
			return err
		}
	}
	_, err := r.run(ctx, "linuxkit build", nil, "linuxkit", assembleArgs(spec)...)
	return err
}

func assembleArgs(spec Assemble) []string {
	return []string{"build", "--format", "tar", "--output", spec.Output, spec.Config}
}

func (r *ExecRunner) CompressFilesystem(ctx context.Context, spec Compress) error {
	name, args := "mksquashfs", compressArgs(spec)
	if !r.hostHasSquashfs() {
		name, args = "docker", containerCompressArgs(spec, r.BackendImage)
	}

	if spec.InputTar == "" {
		_, err := r.run(ctx, "mksquashfs", nil, name, args...)
		return err
	}
	f, err := os.Open(spec.InputTar)
	if err != nil {
		return fmt.Errorf("opening bundle: %w", err)
	}
	defer f.Close()
	_, err = r.run(ctx, "mksquashfs", f, name, args...)
	return err
}

// hostHasSquashfs probes for a local mksquashfs once per runner. Absence
// routes through the backend image, which carries the same tool.
func (r *ExecRunner) hostHasSquashfs() bool {
	r.squashProbe.Do(func() {
		_, err := exec.LookPath("mksquashfs")
		r.hostSquash = err == nil
	})
	return r.hostSquash
}

// compressArgs pins every timestamp for reproducible output. Tar input
// arrives on stdin; directory input is walked by the tool itself.
func compressArgs(spec Compress) []string {
	var args []string
	if spec.InputTar != "" {
		args = []string{"-", spec.Output, "-tar"}
	} else {
		args = []string{spec.InputDir, spec.Output}
	}
	args = append(args, "-noappend", "-all-root")
	if spec.Epoch != "" {
		args = append(args, "-mkfs-time", spec.Epoch, "-all-time", spec.Epoch)
	}
	return args
}

// containerCompressArgs mirrors compressArgs through the backend image
// with input and output directories bind-mounted.
func containerCompressArgs(spec Compress, backendImage string) []string {
	args := []string{"run", "--rm"}
	var inner []string
	if spec.InputTar != "" {
		args = append(args, "--interactive")
		inner = []string{"-", "/out/" + filepath.Base(spec.Output), "-tar"}
	} else {
		args = append(args, "--volume", spec.InputDir+":/in:ro")
		inner = []string{"/in", "/out/" + filepath.Base(spec.Output)}
	}
	args = append(args, "--volume", filepath.Dir(spec.Output)+":/out", backendImage, "mksquashfs")
	args = append(args, inner...)
	args = append(args, "-noappend", "-all-root")
	if spec.Epoch != "" {
		args = append(args, "-mkfs-time", spec.Epoch, "-all-time", spec.Epoch)
	}
	return args
}

func (r *ExecRunner) RunSnapshot(ctx context.Context, spec Snapshot) error {
	_, err := r.run(ctx, "cartesi-machine", nil, "docker", snapshotArgs(spec, r.BackendImage)...)
	return err
}

// snapshotArgs runs the verifiable machine inside the backend image with
// the rootfs and snapshot parent directories bind-mounted.
func snapshotArgs(spec Snapshot, backendImage string) []string {
	args := []string{
		"run", "--rm",
		"--volume", filepath.Dir(spec.RootfsImage) + ":/input:ro",
		"--volume", filepath.Dir(spec.SnapshotDir) + ":/output",
		backendImage,
		"cartesi-machine",
		"--flash-drive=label:root,filename:/input/" + filepath.Base(spec.RootfsImage),
	}
	if spec.Memory != "" {
		args = append(args, "--ram-length="+spec.Memory)
	}
	if spec.BootArgs != "" {
		args = append(args, "--append-bootargs="+spec.BootArgs)
	}
	if spec.MaxCycles != "" {
		args = append(args, "--max-mcycle="+spec.MaxCycles)
	}
	return append(args, "--store=/output/"+filepath.Base(spec.SnapshotDir))
}

func (r *ExecRunner) SealImage(ctx context.Context, spec Seal) (string, error) {
	out, err := r.run(ctx, "veritysetup format", nil, "docker", sealArgs(spec, r.BackendImage)...)
	if err != nil {
		return "", err
	}
	root := parseRootHash(out)
	if root == "" {
		return "", &RunError{
			Tool:   "veritysetup format",
			Output: out,
			Err:    fmt.Errorf("no root hash in output"),
		}
	}
	return root, nil
}

func sealArgs(spec Seal, backendImage string) []string {
	base := filepath.Base(spec.Image)
	return []string{
		"run", "--rm",
		"--volume", filepath.Dir(spec.Image) + ":/work",
		backendImage,
		"veritysetup", "format",
		"/work/" + base, "/work/" + base,
		fmt.Sprintf("--hash-offset=%d", spec.HashOffset),
		"--salt=" + spec.Salt,
		"--uuid=" + spec.UUID,
	}
}

// parseRootHash extracts the root hash from veritysetup format output.
func parseRootHash(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "Root hash:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

func (r *ExecRunner) VerifySeal(ctx context.Context, spec Verify) error {
	_, err := r.run(ctx, "veritysetup verify", nil, "docker", verifyArgs(spec, r.BackendImage)...)
	return err
}

func verifyArgs(spec Verify, backendImage string) []string {
	base := filepath.Base(spec.Image)
	return []string{
		"run", "--rm",
		"--volume", filepath.Dir(spec.Image) + ":/work:ro",
		backendImage,
		"veritysetup", "verify",
		"/work/" + base, "/work/" + base,
		spec.RootHash,
		fmt.Sprintf("--hash-offset=%d", spec.HashOffset),
	}
}

func (r *ExecRunner) ComposeUp(ctx context.Context, spec Deployment) error {
	_, err := r.run(ctx, "docker compose up", nil, "docker",
		"compose", "--project-name", spec.Project, "--file", spec.ComposeFile,
		"up", "--detach")
	return err
}

func (r *ExecRunner) ComposeDown(ctx context.Context, project string) error {
	_, err := r.run(ctx, "docker compose down", nil, "docker",
		"compose", "--project-name", project, "down", "--remove-orphans")
	return err
}

func (r *ExecRunner) RecreateService(ctx context.Context, spec Deployment, service string) error {
	_, err := r.run(ctx, "docker compose up", nil, "docker",
		"compose", "--project-name", spec.Project, "--file", spec.ComposeFile,
		"up", "--detach", "--force-recreate", "--no-deps", service)
	return err
}

// workloadServices are the compose service names probed by the inspector,
// in order.
var workloadServices = []string{"workload", "machine"}

func (r *ExecRunner) InspectWorkload(ctx context.Context, project string) (WorkloadInfo, error) {
	for _, svc := range workloadServices {
		name := fmt.Sprintf("%s-%s-1", project, svc)
		out, err := r.run(ctx, "docker inspect", nil, "docker",
			"inspect", "--format", `{{.Config.Image}}{{"\t"}}{{join .Config.Cmd " "}}{{"\t"}}{{.State.Running}}`, name)
		if err != nil {
			// container absent
			continue
		}
		fields := strings.SplitN(strings.TrimSpace(out), "\t", 3)
		if len(fields) != 3 || fields[2] != "true" {
			continue
		}
		return WorkloadInfo{Running: true, Service: svc, Image: fields[0], Command: fields[1]}, nil
	}
	return WorkloadInfo{}, nil
}
