package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sofmeright/snapforge/src/cache"
	"github.com/sofmeright/snapforge/src/config"
	"github.com/sofmeright/snapforge/src/gitver"
	"github.com/sofmeright/snapforge/src/output"
	"github.com/sofmeright/snapforge/src/profile"
	"github.com/sofmeright/snapforge/src/project"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	noColor bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "snapforge",
	Short: "Deterministic container build and verification pipeline",
	Long: `Snapforge turns one build recipe into three shapes of the same
application: a native dev container, an emulated RISC-V machine, or a
cryptographically sealed verifiable snapshot.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it.
		if cmd.Name() == "version" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		warnings, err := config.Validate(cfg)
		if err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		for _, w := range warnings {
			newPrinter().Warnf("%s", w)
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .snapforge.yml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context, which is how the watcher and long tool runs shut down.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func useColor() bool {
	return !noColor && output.UseColor()
}

func newPrinter() *output.Printer {
	p := output.NewPrinter()
	p.Color = useColor()
	return p
}

// target bundles everything a command resolves up front: config and flags
// reduced to one project, profile, tag, and cache directory.
type target struct {
	proj    *project.Context
	prof    profile.Profile
	tag     string
	dir     *cache.Dir
	nsDir   string
	printer *output.Printer
}

// resolveProject loads the project for the working directory and the
// cache root serving it.
func resolveProject() (*project.Context, string, error) {
	rootDir, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("getting working directory: %w", err)
	}
	proj, err := project.Load(rootDir, cfg.Project, cfg.Image.Dockerfile)
	if err != nil {
		return nil, "", err
	}
	cacheRoot, err := cache.Root(cfg.Cache.Dir)
	if err != nil {
		return nil, "", err
	}
	return proj, cacheRoot, nil
}

// resolveTarget resolves flag and config inputs into a build target. An
// empty tag falls back to the configured one, then to git derivation.
// Read-only commands pass create=false so they never touch the cache.
func resolveTarget(profileName, tag string, create bool) (*target, error) {
	proj, cacheRoot, err := resolveProject()
	if err != nil {
		return nil, err
	}

	if profileName == "" {
		profileName = cfg.Profile
	}
	prof, err := profile.Parse(profileName)
	if err != nil {
		return nil, err
	}

	if tag == "" {
		tag = cfg.Image.Tag
	}
	if tag == "" {
		tag = gitver.Detect(proj.Root).ImageTag(proj.Name)
	}

	tgt := cache.Target{ImageTag: tag, Profile: prof, SideImage: cfg.Image.SideImage}
	var dir *cache.Dir
	if create {
		if dir, err = cache.Resolve(cacheRoot, proj, tgt); err != nil {
			return nil, err
		}
	} else {
		dir = &cache.Dir{
			Path:   filepath.Join(cache.NamespaceDir(cacheRoot, proj), tgt.Key()),
			Target: tgt,
		}
	}

	return &target{
		proj:    proj,
		prof:    prof,
		tag:     tag,
		dir:     dir,
		nsDir:   cache.NamespaceDir(cacheRoot, proj),
		printer: newPrinter(),
	}, nil
}
