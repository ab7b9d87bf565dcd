package cache

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sofmeright/snapforge/src/project"
)

// TargetInfo describes one cached target directory for maintenance
// commands.
type TargetInfo struct {
	Key      string
	Path     string
	Size     int64
	LastUsed time.Time
}

// ListTargets enumerates the project's cached target directories, newest
// first. A missing namespace yields an empty list.
func ListTargets(root string, proj *project.Context) ([]TargetInfo, error) {
	ns := NamespaceDir(root, proj)
	entries, err := os.ReadDir(ns)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache namespace: %w", err)
	}

	var targets []TargetInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(ns, entry.Name())
		size, lastUsed := dirUsage(path)
		targets = append(targets, TargetInfo{
			Key:      entry.Name(),
			Path:     path,
			Size:     size,
			LastUsed: lastUsed,
		})
	}

	sort.Slice(targets, func(i, j int) bool {
		return targets[i].LastUsed.After(targets[j].LastUsed)
	})
	return targets, nil
}

// Wipe removes the project's entire cache namespace.
func Wipe(root string, proj *project.Context) error {
	return os.RemoveAll(NamespaceDir(root, proj))
}

// dirUsage sums the directory's file sizes and finds the newest mtime,
// which stands in for last use. Builds and deployments both write here.
func dirUsage(dir string) (int64, time.Time) {
	var size int64
	var newest time.Time

	filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		if !d.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, newest
}
