package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/sofmeright/snapforge/src/badge"
	"github.com/spf13/cobra"
)

var (
	badgeOut     string
	badgeProfile string
	badgeFont    string
)

var badgeCmd = &cobra.Command{
	Use:   "badge",
	Short: "Write an attestation badge for the selected profile",
	Long: `Badge renders an SVG badge showing the profile and, once the target
is sealed, the leading hex of its machine state hash. Embed it in a
README to advertise the attested build.`,
	RunE: runBadge,
}

func init() {
	badgeCmd.Flags().StringVar(&badgeOut, "out", "badge.svg", "output path")
	badgeCmd.Flags().StringVar(&badgeProfile, "profile", "", "build profile (default from config)")
	badgeCmd.Flags().StringVar(&badgeFont, "font", "", "built-in font name or TTF path")

	rootCmd.AddCommand(badgeCmd)
}

func runBadge(cmd *cobra.Command, args []string) error {
	t, err := resolveTarget(badgeProfile, "", false)
	if err != nil {
		return err
	}

	// Sealed means the root hash exists; the badge value comes from the
	// machine state hash recorded in the snapshot.
	stateHash := ""
	if t.dir.Exists(t.dir.RootHashFile()) {
		raw, err := os.ReadFile(t.dir.SnapshotHashFile())
		if err != nil {
			return fmt.Errorf("reading state hash: %w", err)
		}
		stateHash = strings.TrimSpace(string(raw))
	}

	eng, err := badgeEngine(badgeFont)
	if err != nil {
		return err
	}
	svg := eng.Generate(badge.ForProfile(t.prof, stateHash))
	if err := os.WriteFile(badgeOut, []byte(svg), 0o644); err != nil {
		return fmt.Errorf("writing badge: %w", err)
	}
	t.printer.Infof("badge written to %s", badgeOut)
	return nil
}

func badgeEngine(font string) (*badge.Engine, error) {
	if font == "" {
		return badge.NewDefault()
	}
	var (
		m   *badge.FontMetrics
		err error
	)
	if strings.ContainsAny(font, "./") {
		m, err = badge.LoadFontFile(font, badge.DefaultSize)
	} else {
		m, err = badge.LoadBuiltinFont(font, badge.DefaultSize)
	}
	if err != nil {
		return nil, err
	}
	return badge.New(m), nil
}
