package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sofmeright/snapforge/src/deploy"
	"github.com/sofmeright/snapforge/src/output"
	"github.com/sofmeright/snapforge/src/profile"
	"github.com/sofmeright/snapforge/src/tools"
	"github.com/spf13/cobra"
)

var statusProfile string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show deployment and artifact state",
	Long: `Status reports the live deployment as detected from the container
runtime, the recorded deployment descriptor, and which cache artifacts
the selected profile has. It changes nothing.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusProfile, "profile", "", "build profile (default from config)")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	t, err := resolveTarget(statusProfile, "", false)
	if err != nil {
		return err
	}
	w := os.Stdout
	color := useColor()

	record, err := deploy.ReadRecord(t.nsDir)
	if err != nil {
		t.printer.Warnf("deployment record unreadable: %v", err)
	}

	composeProject := deploy.ComposeProject(cfg, t.proj.Name)
	runner := tools.NewExecRunner(verbose, cfg.Machine.BackendImage)
	state, err := deploy.Detect(cmd.Context(), runner, composeProject, cfg.Machine.BackendImage, record)
	if err != nil {
		return err
	}

	sec := output.NewSection(w, "deployment — "+composeProject, 0, color)
	if state.Running {
		sec.Row("%-10s running", "state")
		sec.Row("%-10s %s", "profile", state.Profile)
		if state.Tag != "" {
			sec.Row("%-10s %s", "tag", state.Tag)
		}
	} else {
		sec.Row("%-10s absent", "state")
	}
	if record != nil {
		sec.Separator()
		sec.Row("%-10s %s (%s)", "recorded", record.Profile, record.Tag)
		sec.Row("%-10s %s", "ports", joinPorts(record.Ports))
		sec.Row("%-10s %s", "updated", record.UpdatedAt.Format(time.RFC3339))
	}
	sec.Close()

	art := output.NewSection(w, "artifacts — "+t.prof.String(), 0, color)
	paths := t.dir.Artifacts()
	if t.prof == profile.NativeDev {
		art.Row("native-dev builds straight into the image daemon, no cache artifacts")
	}
	for _, p := range paths {
		name := filepath.Base(p)
		fi, err := os.Stat(p)
		switch {
		case err != nil:
			art.RowStatus(fmt.Sprintf("%-28s", name), "", output.StatusSkipped)
		case fi.IsDir():
			art.RowStatus(fmt.Sprintf("%-28s", name), "dir", output.StatusSuccess)
		default:
			art.RowStatus(fmt.Sprintf("%-28s", name), humanSize(fi.Size()), output.StatusSuccess)
		}
	}
	art.Close()
	return nil
}

func joinPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = fmt.Sprintf("%d", p)
	}
	return strings.Join(parts, ", ")
}
