package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sofmeright/snapforge/src/profile"
)

// Validate checks structural invariants of a loaded Config.
// Returns warnings (soft issues) and a hard error if the config is invalid.
func Validate(cfg *Config) (warnings []string, err error) {
	var errs []string

	if cfg.Profile != "" {
		if _, perr := profile.Parse(cfg.Profile); perr != nil {
			errs = append(errs, fmt.Sprintf("profile: %v", perr))
		}
	}

	if cfg.Image.Dockerfile == "" {
		errs = append(errs, "image.dockerfile: must not be empty")
	} else if rerr := relativePathError(cfg.Image.Dockerfile); rerr != "" {
		errs = append(errs, "image.dockerfile: "+rerr)
	}

	if cfg.Image.Context == "" {
		errs = append(errs, "image.context: must not be empty")
	}

	if cfg.Context.IgnoreFile != "" {
		if rerr := relativePathError(cfg.Context.IgnoreFile); rerr != "" {
			errs = append(errs, "context.ignore_file: "+rerr)
		}
	}

	if cfg.Machine.BackendImage == "" {
		errs = append(errs, "machine.backend_image: must not be empty")
	}

	ports := cfg.Machine.Ports
	for name, p := range map[string]int{"service": ports.Service, "debug": ports.Debug} {
		if p < 1 || p > 65535 {
			errs = append(errs, fmt.Sprintf("machine.ports.%s: %d out of range 1-65535", name, p))
		}
	}
	if ports.Service == ports.Debug {
		errs = append(errs, fmt.Sprintf("machine.ports: service and debug must differ, both are %d", ports.Service))
	}

	if cfg.Watch.DebounceMS < 0 {
		errs = append(errs, fmt.Sprintf("watch.debounce_ms: must not be negative, got %d", cfg.Watch.DebounceMS))
	}
	for i, pat := range cfg.Watch.Ignore {
		if _, merr := doublestar.Match(pat, ""); merr != nil {
			errs = append(errs, fmt.Sprintf("watch.ignore[%d]: invalid pattern %q", i, pat))
		}
	}

	if cfg.Image.SideImage != "" {
		if strings.ContainsAny(cfg.Image.SideImage, " \t") {
			errs = append(errs, fmt.Sprintf("image.side_image: %q contains whitespace", cfg.Image.SideImage))
		}
		if p, perr := profile.Parse(cfg.Profile); perr == nil && !p.Verifiable() {
			warnings = append(warnings, fmt.Sprintf("image.side_image is set but profile %s never loads it", p))
		}
	}

	if len(errs) > 0 {
		return warnings, fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return warnings, nil
}

// relativePathError rejects absolute, tilde, and traversal paths.
// Returns an empty string when the path is acceptable.
func relativePathError(p string) string {
	if filepath.IsAbs(p) {
		return fmt.Sprintf("path %q must be relative, not absolute", p)
	}
	if strings.HasPrefix(p, "~") {
		return fmt.Sprintf("path %q must not start with ~", p)
	}
	if strings.Contains(p, "..") {
		return fmt.Sprintf("path %q must not contain '..'", p)
	}
	return ""
}
