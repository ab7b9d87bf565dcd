package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sofmeright/snapforge/src/cache"
	"github.com/sofmeright/snapforge/src/project"
	"github.com/sofmeright/snapforge/src/retention"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the artifact cache",
}

func init() {
	rootCmd.AddCommand(cacheCmd)
}

// targetStore adapts the project's cache namespace to the retention
// engine. Only directories count as targets; the deployment record file
// lives alongside them and is never touched.
type targetStore struct {
	root string
	proj *project.Context
}

func (s *targetStore) List() ([]retention.Item, error) {
	targets, err := cache.ListTargets(s.root, s.proj)
	if err != nil {
		return nil, err
	}
	items := make([]retention.Item, len(targets))
	for i, t := range targets {
		items[i] = retention.Item{Name: t.Key, LastUsed: t.LastUsed}
	}
	return items, nil
}

func (s *targetStore) Delete(name string) error {
	return os.RemoveAll(filepath.Join(cache.NamespaceDir(s.root, s.proj), name))
}

// profileHint infers which profile filled a target directory from the
// artifacts inside it. Native targets keep nothing, so an empty directory
// reads native-dev.
func profileHint(dir string) string {
	has := func(name string) bool {
		_, err := os.Stat(filepath.Join(dir, name))
		return err == nil
	}
	switch {
	case has("machine-debug.img") || has("snapshot-debug"):
		return "verifiable-debug"
	case has("machine.img") || has("snapshot"):
		return "verifiable-release"
	case has("rootfs-debug.squashfs") || has("boot-bundle-debug.tar"):
		return "emulated-debug"
	case has("rootfs.squashfs") || has("boot-bundle.tar"):
		return "emulated-release"
	default:
		return "native-dev"
	}
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}

func humanAge(t time.Time) string {
	if t.IsZero() {
		return "?"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
