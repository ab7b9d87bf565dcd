package deploy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/sofmeright/snapforge/src/config"
	"github.com/sofmeright/snapforge/src/profile"
)

// recordFile is the deployment descriptor inside the project's cache
// namespace.
const recordFile = "deployment.toml"

// Record describes the last successful up. The state machine uses it as
// a hint for the deployed tag of machine-backed profiles; status prints
// it. Live inspection stays authoritative.
type Record struct {
	Profile   string    `toml:"profile"`
	Tag       string    `toml:"tag"`
	Project   string    `toml:"project"`
	Ports     []int     `toml:"ports"`
	UpdatedAt time.Time `toml:"updated_at"`
}

// NewRecord captures the state a successful up leaves behind.
func NewRecord(p profile.Profile, tag, project string, ports config.PortsConfig) *Record {
	rec := &Record{
		Profile:   p.String(),
		Tag:       tag,
		Project:   project,
		Ports:     []int{ports.Service},
		UpdatedAt: time.Now().UTC(),
	}
	if p.Debug() && p != profile.NativeDev {
		rec.Ports = append(rec.Ports, ports.Debug)
	}
	return rec
}

// ReadRecord loads the descriptor, nil without error when none exists.
func ReadRecord(namespaceDir string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(namespaceDir, recordFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := toml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", recordFile, err)
	}
	return &rec, nil
}

// WriteRecord persists the descriptor after a deployment change.
func WriteRecord(namespaceDir string, rec *Record) error {
	data, err := toml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("rendering %s: %w", recordFile, err)
	}
	if err := os.MkdirAll(namespaceDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(namespaceDir, recordFile), data, 0o644)
}

// RemoveRecord drops the descriptor on teardown. Absence is fine.
func RemoveRecord(namespaceDir string) error {
	err := os.Remove(filepath.Join(namespaceDir, recordFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
