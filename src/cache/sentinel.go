package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// sentinelFile records the side-image reference the cached artifacts were
// built against.
const sentinelFile = "side-image.ref"

// CheckSideImage compares the target's side image against the recorded
// sentinel and rewrites the sentinel to the current value. A changed
// reference is the one staleness signal presence checks cannot see, so the
// caller must force a rebuild when changed is true. Non-verifiable
// profiles never change.
func (d *Dir) CheckSideImage() (changed bool, previous string, err error) {
	if !d.Target.Profile.Verifiable() || d.Target.SideImage == "" {
		return false, "", nil
	}

	path := filepath.Join(d.Path, sentinelFile)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First build against a side image: record it, nothing is stale.
		return false, "", d.writeSentinel(path)
	case err != nil:
		return false, "", fmt.Errorf("reading side-image sentinel: %w", err)
	}

	previous = strings.TrimSpace(string(data))
	if previous == d.Target.SideImage {
		return false, previous, nil
	}
	return true, previous, d.writeSentinel(path)
}

func (d *Dir) writeSentinel(path string) error {
	if err := os.WriteFile(path, []byte(d.Target.SideImage+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing side-image sentinel: %w", err)
	}
	return nil
}
