package cmd

import (
	"os"
	"path/filepath"

	"github.com/sofmeright/snapforge/src/cache"
	"github.com/sofmeright/snapforge/src/output"
	"github.com/spf13/cobra"
)

var cacheLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List cached build targets",
	RunE:  runCacheLs,
}

func init() {
	cacheCmd.AddCommand(cacheLsCmd)
}

func runCacheLs(cmd *cobra.Command, args []string) error {
	proj, cacheRoot, err := resolveProject()
	if err != nil {
		return err
	}
	nsDir := filepath.Join(cacheRoot, proj.Namespace())

	targets, err := cache.ListTargets(cacheRoot, proj)
	if err != nil {
		return err
	}

	w := os.Stdout
	sec := output.NewSection(w, "cache — "+nsDir, 0, useColor())
	if len(targets) == 0 {
		sec.Row("no cached targets")
		sec.Close()
		return nil
	}

	for _, t := range targets {
		sec.Row("%-14s %-20s %9s  %s",
			t.Key, profileHint(t.Path), humanSize(t.Size), humanAge(t.LastUsed))
	}
	sec.Close()
	return nil
}
