package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sofmeright/snapforge/src/profile"
	"github.com/sofmeright/snapforge/src/project"
)

func testProject(t *testing.T) *project.Context {
	t.Helper()
	proj, err := project.Load(t.TempDir(), "", "Dockerfile")
	if err != nil {
		t.Fatalf("project.Load() error = %v", err)
	}
	return proj
}

func TestTargetKeyStable(t *testing.T) {
	target := Target{ImageTag: "app:1.0", Profile: profile.VerifiableRelease, SideImage: "side:2"}
	if target.Key() != target.Key() {
		t.Fatal("key differs between calls")
	}
	if len(target.Key()) != keyChars {
		t.Fatalf("key length = %d, want %d", len(target.Key()), keyChars)
	}
}

func TestTargetKeyInvalidation(t *testing.T) {
	base := Target{ImageTag: "app:1.0", Profile: profile.VerifiableRelease, SideImage: "side:2"}

	tests := []struct {
		name   string
		other  Target
		differ bool
	}{
		{"same target", Target{ImageTag: "app:1.0", Profile: profile.VerifiableRelease, SideImage: "side:2"}, false},
		{"different tag", Target{ImageTag: "app:1.1", Profile: profile.VerifiableRelease, SideImage: "side:2"}, true},
		{"different profile", Target{ImageTag: "app:1.0", Profile: profile.VerifiableDebug, SideImage: "side:2"}, true},
		{"different side image", Target{ImageTag: "app:1.0", Profile: profile.VerifiableRelease, SideImage: "side:3"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if differ := tt.other.Key() != base.Key(); differ != tt.differ {
				t.Errorf("key difference = %v, want %v", differ, tt.differ)
			}
		})
	}
}

func TestTargetKeyIgnoresSideImageForEmulated(t *testing.T) {
	a := Target{ImageTag: "app:1.0", Profile: profile.EmulatedRelease, SideImage: "side:2"}
	b := Target{ImageTag: "app:1.0", Profile: profile.EmulatedRelease, SideImage: "side:3"}
	if a.Key() != b.Key() {
		t.Error("side image changed the key for a non-verifiable profile")
	}
}

func TestRootPrecedence(t *testing.T) {
	t.Setenv(envCacheDir, "/from/env")

	if got, _ := Root("/from/config"); got != "/from/config" {
		t.Errorf("configured root ignored, got %q", got)
	}
	if got, _ := Root(""); got != "/from/env" {
		t.Errorf("env root ignored, got %q", got)
	}

	t.Setenv(envCacheDir, "")
	got, err := Root("")
	if err != nil {
		t.Fatalf("Root() error = %v", err)
	}
	if filepath.Base(got) != "snapforge" {
		t.Errorf("default root = %q, want .../snapforge", got)
	}
}

func TestResolveCreatesDir(t *testing.T) {
	root := t.TempDir()
	proj := testProject(t)
	target := Target{ImageTag: "app:1.0", Profile: profile.EmulatedDebug}

	dir, err := Resolve(root, proj, target)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	info, err := os.Stat(dir.Path)
	if err != nil || !info.IsDir() {
		t.Fatalf("cache dir not created: %v", err)
	}
	if filepath.Dir(dir.Path) != filepath.Join(root, proj.Namespace()) {
		t.Errorf("cache dir %q not under project namespace", dir.Path)
	}
}

func TestArtifactNames(t *testing.T) {
	dir := &Dir{Path: "/c", Target: Target{Profile: profile.EmulatedDebug}}
	if got := filepath.Base(dir.BootBundle()); got != "boot-bundle-debug.tar" {
		t.Errorf("debug boot bundle = %q", got)
	}
	if got := filepath.Base(dir.RootFS()); got != "rootfs-debug.squashfs" {
		t.Errorf("debug rootfs = %q", got)
	}

	dir.Target.Profile = profile.VerifiableRelease
	if got := filepath.Base(dir.MachineImage()); got != "machine.img" {
		t.Errorf("release machine image = %q", got)
	}
	if got := filepath.Base(dir.RootHashFile()); got != "machine.roothash" {
		t.Errorf("release root hash = %q", got)
	}
	if got := dir.SnapshotHashFile(); got != filepath.Join("/c", "snapshot", "hash") {
		t.Errorf("snapshot hash file = %q", got)
	}
}

func TestArtifactsPerProfile(t *testing.T) {
	native := &Dir{Path: "/c", Target: Target{Profile: profile.NativeDev}}
	if got := native.Artifacts(); got != nil {
		t.Errorf("native-dev should cache nothing, got %v", got)
	}

	emulated := &Dir{Path: "/c", Target: Target{Profile: profile.EmulatedRelease}}
	if got := len(emulated.Artifacts()); got != 4 {
		t.Errorf("emulated artifact count = %d, want 4", got)
	}

	verifiable := &Dir{Path: "/c", Target: Target{Profile: profile.VerifiableRelease}}
	if got := len(verifiable.Artifacts()); got != 7 {
		t.Errorf("verifiable artifact count = %d, want 7", got)
	}
}

func TestRemoveFromDeletesDownstream(t *testing.T) {
	root := t.TempDir()
	proj := testProject(t)
	dir, err := Resolve(root, proj, Target{ImageTag: "app:1", Profile: profile.VerifiableRelease})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	for _, p := range []string{dir.ContextTar(), dir.OCIImageTar(), dir.BootBundle(), dir.RootFS(), dir.MachineImage()} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("seeding artifact: %v", err)
		}
	}
	if err := os.MkdirAll(dir.SnapshotDir(), 0o755); err != nil {
		t.Fatalf("seeding snapshot dir: %v", err)
	}

	if err := dir.RemoveFrom(dir.RootFS()); err != nil {
		t.Fatalf("RemoveFrom() error = %v", err)
	}

	for _, p := range []string{dir.ContextTar(), dir.OCIImageTar(), dir.BootBundle()} {
		if !dir.Exists(p) {
			t.Errorf("upstream artifact %s removed", filepath.Base(p))
		}
	}
	for _, p := range []string{dir.RootFS(), dir.SnapshotDir(), dir.MachineImage()} {
		if dir.Exists(p) {
			t.Errorf("downstream artifact %s survived", filepath.Base(p))
		}
	}
}

func TestCheckSideImage(t *testing.T) {
	root := t.TempDir()
	proj := testProject(t)
	target := Target{ImageTag: "app:1", Profile: profile.VerifiableRelease, SideImage: "side:1"}
	dir, err := Resolve(root, proj, target)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	// First check records the sentinel without flagging a change.
	changed, _, err := dir.CheckSideImage()
	if err != nil {
		t.Fatalf("CheckSideImage() error = %v", err)
	}
	if changed {
		t.Error("first check reported a change")
	}

	// Same reference stays quiet.
	if changed, _, _ = dir.CheckSideImage(); changed {
		t.Error("unchanged reference reported a change")
	}

	// A new reference flags the change once, then settles.
	dir.Target.SideImage = "side:2"
	changed, previous, err := dir.CheckSideImage()
	if err != nil {
		t.Fatalf("CheckSideImage() error = %v", err)
	}
	if !changed || previous != "side:1" {
		t.Errorf("changed = %v previous = %q, want change from side:1", changed, previous)
	}
	if changed, _, _ = dir.CheckSideImage(); changed {
		t.Error("sentinel not rewritten after change")
	}
}

func TestCheckSideImageSkipsEmulated(t *testing.T) {
	dir := &Dir{Path: t.TempDir(), Target: Target{Profile: profile.EmulatedRelease, SideImage: "side:1"}}
	changed, _, err := dir.CheckSideImage()
	if err != nil || changed {
		t.Fatalf("emulated profile touched the sentinel: changed=%v err=%v", changed, err)
	}
	if _, err := os.Stat(filepath.Join(dir.Path, sentinelFile)); !os.IsNotExist(err) {
		t.Error("sentinel written for non-verifiable profile")
	}
}

func TestListTargetsNewestFirst(t *testing.T) {
	root := t.TempDir()
	proj := testProject(t)

	now := time.Now()
	keys := make([]string, 0, 3)
	for i, tag := range []string{"app:1", "app:2", "app:3"} {
		target := Target{ImageTag: tag, Profile: profile.EmulatedRelease}
		dir, err := Resolve(root, proj, target)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		p := dir.ContextTar()
		if err := os.WriteFile(p, []byte(tag), 0o644); err != nil {
			t.Fatalf("seeding artifact: %v", err)
		}
		stamp := now.Add(time.Duration(i-3) * time.Hour)
		if err := os.Chtimes(p, stamp, stamp); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
		if err := os.Chtimes(dir.Path, stamp, stamp); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
		keys = append(keys, target.Key())
	}

	targets, err := ListTargets(root, proj)
	if err != nil {
		t.Fatalf("ListTargets() error = %v", err)
	}
	if len(targets) != 3 {
		t.Fatalf("targets = %d, want 3", len(targets))
	}
	// app:3 got the newest stamp, app:1 the oldest.
	if targets[0].Key != keys[2] || targets[2].Key != keys[0] {
		t.Errorf("order = [%s %s %s], want newest first", targets[0].Key, targets[1].Key, targets[2].Key)
	}
	if targets[0].Size != int64(len("app:3")) {
		t.Errorf("size = %d, want seeded artifact size", targets[0].Size)
	}
}

func TestListTargetsMissingNamespace(t *testing.T) {
	targets, err := ListTargets(t.TempDir(), testProject(t))
	if err != nil {
		t.Fatalf("ListTargets() error = %v", err)
	}
	if targets != nil {
		t.Errorf("targets = %v, want none", targets)
	}
}

func TestWipeRemovesNamespace(t *testing.T) {
	root := t.TempDir()
	proj := testProject(t)
	if _, err := Resolve(root, proj, Target{ImageTag: "app:1", Profile: profile.EmulatedRelease}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if err := Wipe(root, proj); err != nil {
		t.Fatalf("Wipe() error = %v", err)
	}
	if _, err := os.Stat(NamespaceDir(root, proj)); !os.IsNotExist(err) {
		t.Error("namespace survived the wipe")
	}
}
