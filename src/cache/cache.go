// Package cache addresses per-target artifact directories. A target's
// identity is a digest of everything that influences its build output, so
// two builds of the same inputs land in the same directory and stage
// presence doubles as the rebuild gate.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sofmeright/snapforge/src/profile"
	"github.com/sofmeright/snapforge/src/project"
)

const (
	envCacheDir = "SNAPFORGE_CACHE_DIR"
	keyChars    = 12
)

// Target identifies one build: the image tag, the profile, and the side
// image when the profile is verifiable.
type Target struct {
	ImageTag  string
	Profile   profile.Profile
	SideImage string
}

// Key derives the short cache key. The side image participates only for
// verifiable profiles because only the sealed artifact embeds it.
func (t Target) Key() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s", t.ImageTag, t.Profile)
	if t.Profile.Verifiable() {
		fmt.Fprintf(h, "\n%s", t.SideImage)
	}
	return hex.EncodeToString(h.Sum(nil))[:keyChars]
}

// Root resolves the cache root directory: the configured path wins, then
// the SNAPFORGE_CACHE_DIR override, then ~/.cache/snapforge.
func Root(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if dir := os.Getenv(envCacheDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving cache root: %w", err)
	}
	return filepath.Join(home, ".cache", "snapforge"), nil
}

// NamespaceDir returns the per-project directory under the cache root.
func NamespaceDir(root string, proj *project.Context) string {
	return filepath.Join(root, proj.Namespace())
}

// Dir is one target's artifact directory.
type Dir struct {
	Path   string
	Target Target
}

// Resolve maps a target to its cache directory, creating it if absent.
// Resolution has no other side effects.
func Resolve(root string, proj *project.Context, target Target) (*Dir, error) {
	path := filepath.Join(NamespaceDir(root, proj), target.Key())
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &Dir{Path: path, Target: target}, nil
}

// suffix is "-debug" for debug variants of the machine artifacts.
func (d *Dir) suffix() string {
	return d.Target.Profile.Suffix()
}

// ContextTar is the deterministic context archive.
func (d *Dir) ContextTar() string {
	return filepath.Join(d.Path, "context.tar")
}

// ContextHashFile records the content hash the context archive was built
// from. Like the side-image sentinel it is metadata, not a stage artifact.
func (d *Dir) ContextHashFile() string {
	return filepath.Join(d.Path, "context.hash")
}

// OCIImageTar is the OCI-layout image archive for non-native profiles.
func (d *Dir) OCIImageTar() string {
	return filepath.Join(d.Path, "oci-image.tar")
}

// BootBundle is the assembled kernel+rootfs tar.
func (d *Dir) BootBundle() string {
	return filepath.Join(d.Path, "boot-bundle"+d.suffix()+".tar")
}

// RootFS is the compressed squashfs filesystem image.
func (d *Dir) RootFS() string {
	return filepath.Join(d.Path, "rootfs"+d.suffix()+".squashfs")
}

// SnapshotDir is the stored machine snapshot directory.
func (d *Dir) SnapshotDir() string {
	return filepath.Join(d.Path, "snapshot"+d.suffix())
}

// SnapshotHashFile is the machine state hash recorded inside the snapshot.
func (d *Dir) SnapshotHashFile() string {
	return filepath.Join(d.SnapshotDir(), "hash")
}

// MachineImage is the flattened, alignment-padded machine image.
func (d *Dir) MachineImage() string {
	return filepath.Join(d.Path, "machine"+d.suffix()+".img")
}

// RootHashFile records the verity root hash next to the sealed image.
func (d *Dir) RootHashFile() string {
	return filepath.Join(d.Path, "machine"+d.suffix()+".roothash")
}

// Exists reports whether an artifact path is present, file or directory.
func (d *Dir) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Artifacts lists the target's canonical artifact paths in stage order.
// Earlier artifacts feed later ones, so removal from any point must also
// take everything after it.
func (d *Dir) Artifacts() []string {
	if !d.Target.Profile.Emulated() && !d.Target.Profile.Verifiable() {
		return nil
	}
	paths := []string{
		d.ContextTar(),
		d.OCIImageTar(),
		d.BootBundle(),
		d.RootFS(),
	}
	if d.Target.Profile.Verifiable() {
		paths = append(paths,
			d.SnapshotDir(),
			d.MachineImage(),
			d.RootHashFile(),
		)
	}
	return paths
}

// RemoveFrom deletes the named artifact and every downstream artifact, the
// forced-rebuild preparation step. Unknown paths are ignored.
func (d *Dir) RemoveFrom(artifact string) error {
	remove := false
	for _, p := range d.Artifacts() {
		if p == artifact {
			remove = true
		}
		if !remove {
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("removing %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}
