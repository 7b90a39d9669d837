// Package manifest handles fox.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/chazu/fox/vm"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "fox.toml"

// Manifest represents a fox.toml project configuration.
type Manifest struct {
	Project Project           `toml:"project"`
	VM      VMConfig          `toml:"vm"`
	GC      GCConfig          `toml:"gc"`
	Log     LogConfig         `toml:"log"`
	Modules map[string]string `toml:"modules"` // module name -> .foxc path

	// Dir is the directory containing the fox.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Entry   string `toml:"entry"`  // compiled entry point (.foxc)
	Module  string `toml:"module"` // module the entry point runs in
}

// VMConfig configures interpreter limits.
type VMConfig struct {
	MaxFrames int  `toml:"max-frames"`
	StackSize int  `toml:"stack-size"`
	Trace     bool `toml:"trace"`
}

// GCConfig configures the collector.
type GCConfig struct {
	InitialThreshold int     `toml:"initial-threshold"`
	GrowthFactor     float64 `toml:"growth-factor"`
	Stress           bool    `toml:"stress"`
}

// LogConfig configures commonlog output.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	Path      string `toml:"path"` // empty logs to stderr
}

// Default returns the manifest used when no fox.toml exists.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

// Load parses a fox.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
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

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.applyDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find a fox.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
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

func (m *Manifest) validate() error {
	switch {
	case m.VM.MaxFrames < 0:
		return fmt.Errorf("vm.max-frames must not be negative (got %d)", m.VM.MaxFrames)
	case m.VM.StackSize < 0:
		return fmt.Errorf("vm.stack-size must not be negative (got %d)", m.VM.StackSize)
	case m.GC.InitialThreshold < 0:
		return fmt.Errorf("gc.initial-threshold must not be negative (got %d)", m.GC.InitialThreshold)
	case m.GC.GrowthFactor != 0 && m.GC.GrowthFactor < 1:
		return fmt.Errorf("gc.growth-factor must be at least 1 (got %g)", m.GC.GrowthFactor)
	}
	for name := range m.Modules {
		if name == vm.CoreModule {
			return fmt.Errorf("modules: %q is reserved", name)
		}
	}
	return nil
}

func (m *Manifest) applyDefaults() {
	d := vm.DefaultConfig()
	if m.Project.Entry == "" {
		m.Project.Entry = "main.foxc"
	}
	if m.Project.Module == "" {
		m.Project.Module = vm.MainModule
	}
	if m.VM.MaxFrames == 0 {
		m.VM.MaxFrames = d.MaxFrames
	}
	if m.VM.StackSize == 0 {
		m.VM.StackSize = d.StackSize
	}
	if m.GC.InitialThreshold == 0 {
		m.GC.InitialThreshold = d.InitialGCThreshold
	}
	if m.GC.GrowthFactor == 0 {
		m.GC.GrowthFactor = d.GCGrowthFactor
	}
}

// VMConfig converts the [vm] and [gc] sections into a vm.Config.
func (m *Manifest) VMConfig() vm.Config {
	return vm.Config{
		MaxFrames:          m.VM.MaxFrames,
		StackSize:          m.VM.StackSize,
		InitialGCThreshold: m.GC.InitialThreshold,
		GCGrowthFactor:     m.GC.GrowthFactor,
		GCStress:           m.GC.Stress,
		Trace:              m.VM.Trace,
	}
}

// EntryPath returns the absolute path of the entry code object.
func (m *Manifest) EntryPath() string {
	return m.resolve(m.Project.Entry)
}

// ModulePaths returns the preloaded modules in name order with absolute
// code object paths.
func (m *Manifest) ModulePaths() []ModulePath {
	names := make([]string, 0, len(m.Modules))
	for name := range m.Modules {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make([]ModulePath, len(names))
	for i, name := range names {
		paths[i] = ModulePath{Name: name, Path: m.resolve(m.Modules[name])}
	}
	return paths
}

// ModulePath names a module and the code object that defines it.
type ModulePath struct {
	Name string
	Path string
}

// LogPath returns the log file path, or nil to log to stderr.
func (m *Manifest) LogPath() *string {
	if m.Log.Path == "" {
		return nil
	}
	p := m.resolve(m.Log.Path)
	return &p
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
