package cmd

import (
	"fmt"

	"github.com/sofmeright/snapforge/src/cache"
	"github.com/spf13/cobra"
)

var cacheWipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Remove the project's whole cache namespace",
	Long: `Wipe deletes every cached target of this project, including the
deployment record. The next build starts from nothing.`,
	RunE: runCacheWipe,
}

func init() {
	cacheCmd.AddCommand(cacheWipeCmd)
}

func runCacheWipe(cmd *cobra.Command, args []string) error {
	proj, cacheRoot, err := resolveProject()
	if err != nil {
		return err
	}
	nsDir := cache.NamespaceDir(cacheRoot, proj)

	if err := cache.Wipe(cacheRoot, proj); err != nil {
		return fmt.Errorf("wiping cache namespace: %w", err)
	}
	newPrinter().Infof("removed %s", nsDir)
	return nil
}
