package buildctx

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ErrEmpty reports a context with no files left after ignore filtering.
var ErrEmpty = errors.New("build context is empty after ignore filtering")

// Entry is one file in the context, identified by its root-relative
// slash-separated path.
type Entry struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Manifest is the sorted file list for one build context. The ordering is
// what makes both the archive and the content hash reproducible.
type Manifest struct {
	Root  string
	Files []Entry
}

// Collect walks root, applies the ignore rules, and returns the sorted
// manifest. Directories that cannot be read are skipped with a warning
// rather than aborting the walk. An empty result is an error because
// there is nothing to build from.
func Collect(root string, m *Matcher, warnf func(format string, args ...any)) (*Manifest, error) {
	manifest := &Manifest{Root: root}

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if warnf != nil {
				warnf("skipping unreadable path %s: %v", p, err)
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if m != nil && m.Excluded(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if warnf != nil {
				warnf("skipping unreadable path %s: %v", p, err)
			}
			return nil
		}
		manifest.Files = append(manifest.Files, Entry{
			Path:    rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking context %s: %w", root, err)
	}

	if len(manifest.Files) == 0 {
		return nil, ErrEmpty
	}

	sort.Slice(manifest.Files, func(i, j int) bool {
		return manifest.Files[i].Path < manifest.Files[j].Path
	})
	return manifest, nil
}

// Hash computes the content hash the cache compares against: path, mtime,
// and size per entry, in manifest order. Archive bytes never enter it, so
// the hash is available before any archiving work happens.
func (m *Manifest) Hash() string {
	h := sha256.New()
	for _, e := range m.Files {
		fmt.Fprintf(h, "%s\n%d\n%d\n", e.Path, e.ModTime.UnixNano(), e.Size)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Paths returns the member list in manifest order.
func (m *Manifest) Paths() []string {
	paths := make([]string, len(m.Files))
	for i, e := range m.Files {
		paths[i] = e.Path
	}
	return paths
}

// WriteManifestFile writes the member list, one path per line, to a
// temporary file for the archiver. The caller removes it through the
// returned cleanup, including on error paths.
func (m *Manifest) WriteManifestFile(dir string) (string, func(), error) {
	f, err := os.CreateTemp(dir, "context-manifest-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating manifest file: %w", err)
	}
	cleanup := func() { os.Remove(f.Name()) }

	w := bufio.NewWriter(f)
	for _, e := range m.Files {
		fmt.Fprintln(w, e.Path)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("writing manifest file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("writing manifest file: %w", err)
	}
	return f.Name(), cleanup, nil
}
