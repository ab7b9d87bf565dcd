// Package tools invokes the external toolchain behind a single capability
// interface. Implementations either exec the real binaries or record calls
// for tests; nothing else in the tree shells out.
package tools

import (
	"context"
	"fmt"
	"strings"
)

// Runner is the capability surface over the external collaborators: one
// method per tool contract.
type Runner interface {
	// BuildImage runs the container-image builder and returns its
	// captured progress output.
	BuildImage(ctx context.Context, spec ImageBuild) (string, error)
	// ArchiveContext produces a byte-deterministic tar of the manifest
	// members.
	ArchiveContext(ctx context.Context, spec Archive) error
	// AssembleBundle runs the kernel/rootfs assembler.
	AssembleBundle(ctx context.Context, spec Assemble) error
	// CompressFilesystem converts a tar bundle or directory tree into a
	// read-only filesystem image.
	CompressFilesystem(ctx context.Context, spec Compress) error
	// RunSnapshot runs the verifiable machine to its execution bound,
	// storing the snapshot.
	RunSnapshot(ctx context.Context, spec Snapshot) error
	// SealImage formats the integrity tree and returns the root hash.
	SealImage(ctx context.Context, spec Seal) (string, error)
	// VerifySeal re-verifies a sealed image against its root hash.
	VerifySeal(ctx context.Context, spec Verify) error
	// ComposeUp stands up a deployment.
	ComposeUp(ctx context.Context, spec Deployment) error
	// ComposeDown tears down a deployment.
	ComposeDown(ctx context.Context, project string) error
	// InspectWorkload reports the live workload service of a deployment.
	InspectWorkload(ctx context.Context, project string) (WorkloadInfo, error)
	// RecreateService force-recreates one service of a deployment without
	// touching the rest.
	RecreateService(ctx context.Context, spec Deployment, service string) error
}

// RunError is a tool invocation failure with captured output.
type RunError struct {
	Tool   string // binary plus subcommand, e.g. "docker buildx build"
	Args   []string
	Output string // combined stdout+stderr
	Err    error
}

func (e *RunError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Tool, e.Err)
	if tail := lastLine(e.Output); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
