package deploy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sofmeright/snapforge/src/cache"
	"github.com/sofmeright/snapforge/src/config"
	"github.com/sofmeright/snapforge/src/output"
	"github.com/sofmeright/snapforge/src/profile"
	"github.com/sofmeright/snapforge/src/project"
	"github.com/sofmeright/snapforge/src/tools"
)

const backendImage = "ghcr.io/sofmeright/snapforge-machine:latest"

func running(p profile.Profile, tag string) State {
	return State{Running: true, Profile: p, Tag: tag}
}

func TestDecideCoversAllCombinations(t *testing.T) {
	tests := []struct {
		name    string
		current State
		request profile.Profile
		tag     string
		want    Action
	}{
		{"absent, native requested", State{}, profile.NativeDev, "app:1", Recreate},
		{"absent, emulated requested", State{}, profile.EmulatedRelease, "app:1", Recreate},
		{"absent, verifiable requested", State{}, profile.VerifiableRelease, "app:1", Recreate},
		{"native unchanged", running(profile.NativeDev, "app:1"), profile.NativeDev, "app:1", NoOp},
		{"emulated unchanged", running(profile.EmulatedRelease, "app:1"), profile.EmulatedRelease, "app:1", NoOp},
		{"verifiable unchanged", running(profile.VerifiableRelease, "app:1"), profile.VerifiableRelease, "app:1", NoOp},
		{"native tag moved", running(profile.NativeDev, "app:1"), profile.NativeDev, "app:2", SwapWorkload},
		{"verifiable tag moved", running(profile.VerifiableRelease, "app:1"), profile.VerifiableRelease, "app:2", SwapWorkload},
		{"profile moved", running(profile.NativeDev, "app:1"), profile.VerifiableRelease, "app:1", Recreate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.current, tt.request, tt.tag); got != tt.want {
				t.Errorf("Decide() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecideNeverSwapsAcrossProfiles(t *testing.T) {
	for _, current := range profile.All() {
		for _, requested := range profile.All() {
			if current == requested {
				continue
			}
			got := Decide(running(current, "app:1"), requested, "app:2")
			if got != Recreate {
				t.Errorf("Decide(%s -> %s) = %v, want recreate", current, requested, got)
			}
		}
	}
}

func TestDetect(t *testing.T) {
	record := &Record{Tag: "app:recorded"}
	tests := []struct {
		name   string
		info   tools.WorkloadInfo
		record *Record
		want   State
	}{
		{"absent", tools.WorkloadInfo{}, record, State{}},
		{"native workload", tools.WorkloadInfo{Running: true, Service: "workload", Image: "app:2.0", Command: "python main.py"}, record, running(profile.NativeDev, "app:2.0")},
		{"verifiable release", tools.WorkloadInfo{Running: true, Service: "machine", Image: backendImage, Command: "cartesi-machine --load=/artifacts/snapshot --virtio-net=user"}, record, running(profile.VerifiableRelease, "app:recorded")},
		{"verifiable debug", tools.WorkloadInfo{Running: true, Service: "machine", Image: backendImage, Command: "cartesi-machine --load=/artifacts/snapshot-debug --virtio-net=user"}, record, running(profile.VerifiableDebug, "app:recorded")},
		{"emulated release", tools.WorkloadInfo{Running: true, Service: "machine", Image: backendImage, Command: "qemu-system-riscv64 -drive file=/artifacts/rootfs.squashfs"}, record, running(profile.EmulatedRelease, "app:recorded")},
		{"emulated debug", tools.WorkloadInfo{Running: true, Service: "machine", Image: backendImage, Command: "qemu-system-riscv64 -drive file=/artifacts/rootfs-debug.squashfs"}, record, running(profile.EmulatedDebug, "app:recorded")},
		{"machine without record", tools.WorkloadInfo{Running: true, Service: "machine", Image: backendImage, Command: "cartesi-machine --load=/artifacts/snapshot"}, nil, running(profile.VerifiableRelease, "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &tools.FakeRunner{InspectWorkloadFunc: func(string) (tools.WorkloadInfo, error) {
				return tt.info, nil
			}}
			got, err := Detect(t.Context(), runner, "snapforge-app", backendImage, tt.record)
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if got != tt.want {
				t.Errorf("Detect() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func testManager(t *testing.T, prof profile.Profile, tag string) (*Manager, *tools.FakeRunner) {
	t.Helper()

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "Dockerfile"), []byte("FROM scratch\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	proj, err := project.Load(root, "", "Dockerfile")
	if err != nil {
		t.Fatalf("project.Load: %v", err)
	}
	cfg, err := config.Load(filepath.Join(root, "missing.yml"))
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	cacheRoot := t.TempDir()
	dir, err := cache.Resolve(cacheRoot, proj, cache.Target{ImageTag: tag, Profile: prof})
	if err != nil {
		t.Fatalf("cache.Resolve: %v", err)
	}

	runner := &tools.FakeRunner{}
	return &Manager{
		Config:       cfg,
		Runner:       runner,
		Printer:      output.NewPrinter(),
		Profile:      prof,
		Tag:          tag,
		Project:      "snapforge-app",
		Dir:          dir,
		NamespaceDir: cache.NamespaceDir(cacheRoot, proj),
	}, runner
}

func TestUpFromAbsent(t *testing.T) {
	m, runner := testManager(t, profile.NativeDev, "app:1.0")

	action, err := m.Up(t.Context())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if action != Recreate {
		t.Fatalf("action = %v, want recreate", action)
	}

	want := []string{"InspectWorkload", "ComposeUp"}
	got := runner.Methods()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("methods = %v, want %v", got, want)
	}

	rec, err := ReadRecord(m.NamespaceDir)
	if err != nil || rec == nil {
		t.Fatalf("record after up: %v, %v", rec, err)
	}
	if rec.Profile != "native-dev" || rec.Tag != "app:1.0" {
		t.Errorf("record = %+v", rec)
	}

	if _, err := os.Stat(filepath.Join(m.Dir.Path, "compose.yml")); err != nil {
		t.Errorf("compose file not written: %v", err)
	}
}

func TestUpUnchangedIsNoOp(t *testing.T) {
	m, runner := testManager(t, profile.NativeDev, "app:1.0")
	runner.InspectWorkloadFunc = func(string) (tools.WorkloadInfo, error) {
		return tools.WorkloadInfo{Running: true, Service: "workload", Image: "app:1.0", Command: "python main.py"}, nil
	}

	action, err := m.Up(t.Context())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if action != NoOp {
		t.Fatalf("action = %v, want no-op", action)
	}
	if got := runner.Methods(); len(got) != 1 || got[0] != "InspectWorkload" {
		t.Errorf("no-op must not touch the deployment: %v", got)
	}
	if _, err := os.Stat(filepath.Join(m.Dir.Path, "compose.yml")); err == nil {
		t.Error("no-op must not rewrite the compose file")
	}
}

func TestUpTagChangeSwapsWorkload(t *testing.T) {
	m, runner := testManager(t, profile.NativeDev, "app:2.0")
	runner.InspectWorkloadFunc = func(string) (tools.WorkloadInfo, error) {
		return tools.WorkloadInfo{Running: true, Service: "workload", Image: "app:1.0", Command: "python main.py"}, nil
	}

	action, err := m.Up(t.Context())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if action != SwapWorkload {
		t.Fatalf("action = %v, want swap", action)
	}

	var recreated bool
	for _, c := range runner.Calls {
		switch c.Method {
		case "RecreateService":
			recreated = true
		case "ComposeDown", "ComposeUp":
			t.Errorf("tag change must not recreate the whole deployment: %v", runner.Methods())
		}
	}
	if !recreated {
		t.Error("workload service not recreated")
	}

	rec, err := ReadRecord(m.NamespaceDir)
	if err != nil || rec == nil || rec.Tag != "app:2.0" {
		t.Errorf("record = %+v, %v", rec, err)
	}
}

func TestUpProfileChangeRecreates(t *testing.T) {
	m, runner := testManager(t, profile.EmulatedRelease, "app:1.0")
	runner.InspectWorkloadFunc = func(string) (tools.WorkloadInfo, error) {
		return tools.WorkloadInfo{Running: true, Service: "workload", Image: "app:1.0", Command: "python main.py"}, nil
	}

	action, err := m.Up(t.Context())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if action != Recreate {
		t.Fatalf("action = %v, want recreate", action)
	}

	got := runner.Methods()
	want := []string{"InspectWorkload", "ComposeDown", "ComposeUp"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("methods = %v, want %v", got, want)
	}
}

func TestUpMachineTagHintFromRecord(t *testing.T) {
	m, runner := testManager(t, profile.VerifiableRelease, "app:1.0")
	if err := WriteRecord(m.NamespaceDir, NewRecord(profile.VerifiableRelease, "app:1.0", "snapforge-app", m.Config.Machine.Ports)); err != nil {
		t.Fatal(err)
	}
	runner.InspectWorkloadFunc = func(string) (tools.WorkloadInfo, error) {
		return tools.WorkloadInfo{Running: true, Service: "machine", Image: backendImage, Command: "cartesi-machine --load=/artifacts/snapshot"}, nil
	}

	action, err := m.Up(t.Context())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if action != NoOp {
		t.Errorf("recorded tag matches, action = %v, want no-op", action)
	}

	m.Tag = "app:2.0"
	action, err = m.Up(t.Context())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if action != SwapWorkload {
		t.Errorf("new tag under same profile, action = %v, want swap", action)
	}
	for _, c := range runner.Calls {
		if c.Method == "RecreateService" {
			if svc := c.Spec.(tools.Deployment); svc.Project != "snapforge-app" {
				t.Errorf("recreate project = %q", svc.Project)
			}
		}
	}
}

func TestDownRemovesRecord(t *testing.T) {
	m, runner := testManager(t, profile.NativeDev, "app:1.0")
	if err := WriteRecord(m.NamespaceDir, m.record()); err != nil {
		t.Fatal(err)
	}

	if err := m.Down(t.Context()); err != nil {
		t.Fatalf("Down: %v", err)
	}
	if got := runner.Methods(); len(got) != 1 || got[0] != "ComposeDown" {
		t.Errorf("methods = %v", got)
	}

	rec, err := ReadRecord(m.NamespaceDir)
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Errorf("record survived teardown: %+v", rec)
	}
}

func TestSwapAlwaysRecreatesService(t *testing.T) {
	m, runner := testManager(t, profile.NativeDev, "app:1.0")

	if err := m.Swap(t.Context()); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if got := runner.Methods(); len(got) != 1 || got[0] != "RecreateService" {
		t.Errorf("methods = %v", got)
	}
}
