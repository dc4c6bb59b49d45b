// Package manifest handles mcc.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/mcc/vm"
)

// Manifest represents an mcc.toml project configuration.
type Manifest struct {
	Project Project     `toml:"project"`
	VM      VMConfig    `toml:"vm"`
	Build   BuildConfig `toml:"build"`

	// Dir is the directory containing the mcc.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// VMConfig sizes the runtime's memory regions and cycle limit.
// Zero values fall back to the built-in defaults.
type VMConfig struct {
	StackSize  int64 `toml:"stack-size"`
	HeapSize   int64 `toml:"heap-size"`
	CycleLimit int64 `toml:"cycle-limit"`
}

// BuildConfig configures compiler output.
type BuildConfig struct {
	Output   string `toml:"output"`
	DumpCode bool   `toml:"dump-code"`
}

// Default returns a manifest with every field at its built-in default.
func Default() *Manifest {
	return &Manifest{
		VM: VMConfig{
			StackSize: vm.DefaultStackSize,
			HeapSize:  vm.DefaultHeapSize,
		},
	}
}

// Load parses an mcc.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "mcc.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.VM.StackSize == 0 {
		m.VM.StackSize = vm.DefaultStackSize
	}
	if m.VM.HeapSize == 0 {
		m.VM.HeapSize = vm.DefaultHeapSize
	}
	if m.VM.StackSize < 0 || m.VM.HeapSize < 0 || m.VM.CycleLimit < 0 {
		return nil, fmt.Errorf("negative size in %s", path)
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find an mcc.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "mcc.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// OutputPath returns the configured image output path resolved against
// the manifest directory, or "" when none is configured.
func (m *Manifest) OutputPath() string {
	if m.Build.Output == "" {
		return ""
	}
	if filepath.IsAbs(m.Build.Output) || m.Dir == "" {
		return m.Build.Output
	}
	return filepath.Join(m.Dir, m.Build.Output)
}
