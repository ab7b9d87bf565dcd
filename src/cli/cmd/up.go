package cmd

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/sofmeright/snapforge/src/deploy"
	"github.com/sofmeright/snapforge/src/tools"
	"github.com/sofmeright/snapforge/src/watch"
	"github.com/spf13/cobra"
)

var (
	upProfile string
	upTag     string
	upForce   bool
	upHot     bool
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Build and deploy the selected profile",
	Long: `Up builds any missing artifacts, compares the live deployment with
the requested profile and tag, and applies the smallest sufficient
action: nothing, a workload swap, or a full recreate. With --hot it
stays in the foreground and redeploys on source changes.`,
	RunE: runUp,
}

func init() {
	upCmd.Flags().StringVar(&upProfile, "profile", "", "build profile (default from config)")
	upCmd.Flags().StringVar(&upTag, "tag", "", "image tag (default: config, then git derivation)")
	upCmd.Flags().BoolVar(&upForce, "force", false, "rebuild every stage")
	upCmd.Flags().BoolVar(&upHot, "hot", false, "watch sources and redeploy on change")

	rootCmd.AddCommand(upCmd)
}

func runUp(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	t, err := resolveTarget(upProfile, upTag, true)
	if err != nil {
		return err
	}

	// An existing record means any bound ports belong to our own
	// deployment; the state machine takes it from there.
	record, err := deploy.ReadRecord(t.nsDir)
	if err != nil {
		t.printer.Warnf("ignoring unreadable deployment record: %v", err)
	}
	if err := preflight(t, deployPorts(t.prof), record != nil); err != nil {
		return err
	}

	if _, err := buildPipeline(ctx, t, upForce); err != nil {
		return err
	}

	mgr := newManager(t)
	action, err := mgr.Up(ctx)
	if err != nil {
		return err
	}
	reportAction(t, action)

	if !upHot {
		return nil
	}
	return watchLoop(ctx, t)
}

func newManager(t *target) *deploy.Manager {
	return &deploy.Manager{
		Config:       cfg,
		Runner:       tools.NewExecRunner(verbose, cfg.Machine.BackendImage),
		Printer:      t.printer,
		Profile:      t.prof,
		Tag:          t.tag,
		Project:      deploy.ComposeProject(cfg, t.proj.Name),
		Dir:          t.dir,
		NamespaceDir: t.nsDir,
	}
}

func reportAction(t *target, action deploy.Action) {
	switch action {
	case deploy.NoOp:
		t.printer.Infof("deployment already current")
	case deploy.SwapWorkload:
		t.printer.Infof("workload swapped to %s", t.tag)
	case deploy.Recreate:
		t.printer.Infof("deployment recreated (%s, %s)", t.prof, t.tag)
	}
}

// watchLoop keeps rebuilding and swapping the workload until the context
// is cancelled.
func watchLoop(ctx context.Context, t *target) error {
	t.printer.Headf("watching %s", t.proj.Root)

	sess, err := watch.New(watch.Config{
		Root:     t.proj.Root,
		Debounce: time.Duration(cfg.Watch.DebounceMS) * time.Millisecond,
		Ignore:   watchIgnore(t),
		OnChange: func(ctx context.Context, changed []string) error {
			t.printer.Infof("%d files changed", len(changed))
			return hotReload(ctx, t)
		},
		Printer: t.printer,
	})
	if err != nil {
		return err
	}
	return sess.Run(ctx)
}

// hotReload rebuilds whatever the change invalidated and recreates the
// workload so it picks up the new bytes under the unchanged tag.
func hotReload(ctx context.Context, t *target) error {
	if _, err := buildPipeline(ctx, t, false); err != nil {
		return err
	}
	return newManager(t).Swap(ctx)
}

// watchIgnore extends the config denylist with the cache root when it
// lives inside the project tree; artifact writes must not retrigger the
// watcher.
func watchIgnore(t *target) []string {
	patterns := append([]string{}, cfg.Watch.Ignore...)
	cacheRoot := filepath.Dir(t.nsDir)
	if rel, err := filepath.Rel(t.proj.Root, cacheRoot); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
		patterns = append(patterns, filepath.ToSlash(rel)+"/**")
	}
	return patterns
}
