package cmd

import (
	"context"
	"os"

	"github.com/sofmeright/snapforge/src/output"
	"github.com/sofmeright/snapforge/src/pipeline"
	"github.com/sofmeright/snapforge/src/profile"
	"github.com/sofmeright/snapforge/src/tools"
	"github.com/spf13/cobra"
)

var (
	buildProfile string
	buildTag     string
	buildForce   bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the selected profile's artifacts",
	Long: `Build runs the stage chain for one profile: a native image for
native-dev, boot bundle and root filesystem for the emulated profiles,
plus snapshot, machine image, and integrity seal for the verifiable
ones. Completed stages are skipped unless the build context changed or
--force is set.`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildProfile, "profile", "", "build profile (default from config)")
	buildCmd.Flags().StringVar(&buildTag, "tag", "", "image tag (default: config, then git derivation)")
	buildCmd.Flags().BoolVar(&buildForce, "force", false, "rebuild every stage")

	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	t, err := resolveTarget(buildProfile, buildTag, true)
	if err != nil {
		return err
	}
	if err := preflight(t, nil, false); err != nil {
		return err
	}
	_, err = buildPipeline(cmd.Context(), t, buildForce)
	return err
}

// preflight checks the environment and prints any non-fatal notes.
func preflight(t *target, ports []int, ownPorts bool) error {
	pre := &pipeline.Preflight{
		Config:   cfg,
		Project:  t.proj,
		Profile:  t.prof,
		Ports:    ports,
		OwnPorts: ownPorts,
	}
	notes, err := pre.Check()
	if err != nil {
		return err
	}
	for _, n := range notes {
		t.printer.Infof("%s", n)
	}
	return nil
}

// buildPipeline is the shared build path behind build, up, and hot
// reload. In CI it also drops the JUnit stage report.
func buildPipeline(ctx context.Context, t *target, force bool) (*pipeline.Result, error) {
	w := os.Stdout
	output.CIHeader(w)
	output.ContextBlock(w, []output.KV{
		{Key: "project", Value: t.proj.Name},
		{Key: "profile", Value: t.prof.String()},
		{Key: "tag", Value: t.tag},
		{Key: "cache", Value: t.dir.Path},
	})

	pipe := &pipeline.Pipeline{
		Config:  cfg,
		Project: t.proj,
		Profile: t.prof,
		Tag:     t.tag,
		Dir:     t.dir,
		Runner:  tools.NewExecRunner(verbose, cfg.Machine.BackendImage),
		Printer: t.printer,
		Out:     w,
		Color:   useColor(),
		Force:   force,
	}
	res, err := pipe.Run(ctx)
	if res != nil && output.IsCI() {
		if repErr := output.WriteStageReport(".snapforge/reports", t.prof.String(), res.Stages); repErr != nil {
			t.printer.Warnf("stage report not written: %v", repErr)
		}
	}
	return res, err
}

// deployPorts lists the host ports a deployment of this profile binds.
func deployPorts(p profile.Profile) []int {
	ports := []int{cfg.Machine.Ports.Service}
	if p.Debug() && p != profile.NativeDev {
		ports = append(ports, cfg.Machine.Ports.Debug)
	}
	return ports
}
