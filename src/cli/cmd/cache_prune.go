package cmd

import (
	"os"

	"github.com/sofmeright/snapforge/src/output"
	"github.com/sofmeright/snapforge/src/retention"
	"github.com/spf13/cobra"
)

var cpKeep int

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the most recently used targets",
	Long: `Prune keeps the --keep most recently used target directories and
deletes the rest. The deployment record is never pruned.`,
	RunE: runCachePrune,
}

func init() {
	cachePruneCmd.Flags().IntVar(&cpKeep, "keep", 3, "number of target directories to keep")

	cacheCmd.AddCommand(cachePruneCmd)
}

func runCachePrune(cmd *cobra.Command, args []string) error {
	proj, cacheRoot, err := resolveProject()
	if err != nil {
		return err
	}

	result, err := retention.Apply(&targetStore{root: cacheRoot, proj: proj}, cpKeep)
	if err != nil {
		return err
	}

	w := os.Stdout
	sec := output.NewSection(w, "prune", 0, useColor())
	sec.Row("%-10s %d", "matched", result.Matched)
	sec.Row("%-10s %d", "kept", result.Kept)
	sec.Row("%-10s %d", "pruned", len(result.Deleted))
	for _, d := range result.Deleted {
		sec.Row("  - %s", d)
	}
	sec.Close()

	printer := newPrinter()
	for _, e := range result.Errors {
		printer.Errorf("%v", e)
	}
	return nil
}
