package tools

import (
	"context"
	"strings"
	"sync"
)

// fakeRootHash is what FakeRunner.SealImage returns when unscripted.
var fakeRootHash = strings.Repeat("ab", 32)

// FakeRunner is a Runner for tests. Every call is recorded in order;
// behavior is scripted through the optional func fields and defaults to
// success.
type FakeRunner struct {
	mu    sync.Mutex
	Calls []FakeCall

	BuildImageFunc         func(ImageBuild) (string, error)
	ArchiveContextFunc     func(Archive) error
	AssembleBundleFunc     func(Assemble) error
	CompressFilesystemFunc func(Compress) error
	RunSnapshotFunc        func(Snapshot) error
	SealImageFunc          func(Seal) (string, error)
	VerifySealFunc         func(Verify) error
	ComposeUpFunc          func(Deployment) error
	ComposeDownFunc        func(string) error
	InspectWorkloadFunc    func(string) (WorkloadInfo, error)
	RecreateServiceFunc    func(Deployment, string) error
}

// FakeCall records one Runner invocation.
type FakeCall struct {
	Method string
	Spec   any
}

func (f *FakeRunner) record(method string, spec any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, FakeCall{Method: method, Spec: spec})
}

// Methods returns the recorded method names in call order.
func (f *FakeRunner) Methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		out[i] = c.Method
	}
	return out
}

func (f *FakeRunner) BuildImage(_ context.Context, spec ImageBuild) (string, error) {
	f.record("BuildImage", spec)
	if f.BuildImageFunc != nil {
		return f.BuildImageFunc(spec)
	}
	return "", nil
}

func (f *FakeRunner) ArchiveContext(_ context.Context, spec Archive) error {
	f.record("ArchiveContext", spec)
	if f.ArchiveContextFunc != nil {
		return f.ArchiveContextFunc(spec)
	}
	return nil
}

func (f *FakeRunner) AssembleBundle(_ context.Context, spec Assemble) error {
	f.record("AssembleBundle", spec)
	if f.AssembleBundleFunc != nil {
		return f.AssembleBundleFunc(spec)
	}
	return nil
}

func (f *FakeRunner) CompressFilesystem(_ context.Context, spec Compress) error {
	f.record("CompressFilesystem", spec)
	if f.CompressFilesystemFunc != nil {
		return f.CompressFilesystemFunc(spec)
	}
	return nil
}

func (f *FakeRunner) RunSnapshot(_ context.Context, spec Snapshot) error {
	f.record("RunSnapshot", spec)
	if f.RunSnapshotFunc != nil {
		return f.RunSnapshotFunc(spec)
	}
	return nil
}

func (f *FakeRunner) SealImage(_ context.Context, spec Seal) (string, error) {
	f.record("SealImage", spec)
	if f.SealImageFunc != nil {
		return f.SealImageFunc(spec)
	}
	return fakeRootHash, nil
}

func (f *FakeRunner) VerifySeal(_ context.Context, spec Verify) error {
	f.record("VerifySeal", spec)
	if f.VerifySealFunc != nil {
		return f.VerifySealFunc(spec)
	}
	return nil
}

func (f *FakeRunner) ComposeUp(_ context.Context, spec Deployment) error {
	f.record("ComposeUp", spec)
	if f.ComposeUpFunc != nil {
		return f.ComposeUpFunc(spec)
	}
	return nil
}

func (f *FakeRunner) ComposeDown(_ context.Context, project string) error {
	f.record("ComposeDown", project)
	if f.ComposeDownFunc != nil {
		return f.ComposeDownFunc(project)
	}
	return nil
}

func (f *FakeRunner) InspectWorkload(_ context.Context, project string) (WorkloadInfo, error) {
	f.record("InspectWorkload", project)
	if f.InspectWorkloadFunc != nil {
		return f.InspectWorkloadFunc(project)
	}
	return WorkloadInfo{}, nil
}

func (f *FakeRunner) RecreateService(_ context.Context, spec Deployment, service string) error {
	f.record("RecreateService", spec)
	if f.RecreateServiceFunc != nil {
		return f.RecreateServiceFunc(spec, service)
	}
	return nil
}
