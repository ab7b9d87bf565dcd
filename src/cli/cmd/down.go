package cmd

import (
	"github.com/spf13/cobra"
)

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Tear down the deployment",
	Long: `Down stops and removes the project's compose deployment and drops
the deployment record. Cache artifacts stay in place.`,
	RunE: runDown,
}

func init() {
	rootCmd.AddCommand(downCmd)
}

func runDown(cmd *cobra.Command, args []string) error {
	t, err := resolveTarget("", "", false)
	if err != nil {
		return err
	}
	mgr := newManager(t)
	if err := mgr.Down(cmd.Context()); err != nil {
		return err
	}
	t.printer.Infof("deployment %s removed", mgr.Project)
	return nil
}
