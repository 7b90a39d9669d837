package manifest

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/fox/vm"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "test-app"
version = "0.1.0"
entry = "build/app.foxc"
module = "app"

[vm]
max-frames = 128
stack-size = 512
trace = true

[gc]
initial-threshold = 4096
growth-factor = 1.5
stress = true

[log]
verbosity = 2
path = "fox.log"

[modules]
util = "build/util.foxc"
math = "/opt/fox/math.foxc"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if m.Project.Module != "app" {
		t.Errorf("project module = %q, want app", m.Project.Module)
	}
	if got, want := m.EntryPath(), filepath.Join(m.Dir, "build", "app.foxc"); got != want {
		t.Errorf("entry path = %q, want %q", got, want)
	}

	want := vm.Config{
		MaxFrames:          128,
		StackSize:          512,
		InitialGCThreshold: 4096,
		GCGrowthFactor:     1.5,
		GCStress:           true,
		Trace:              true,
	}
	if diff := cmp.Diff(want, m.VMConfig()); diff != "" {
		t.Errorf("VMConfig mismatch (-want +got):\n%s", diff)
	}

	if m.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", m.Log.Verbosity)
	}
	if p := m.LogPath(); p == nil || *p != filepath.Join(m.Dir, "fox.log") {
		t.Errorf("log path = %v, want fox.log under %s", p, m.Dir)
	}

	wantModules := []ModulePath{
		{Name: "math", Path: "/opt/fox/math.foxc"},
		{Name: "util", Path: filepath.Join(m.Dir, "build", "util.foxc")},
	}
	if diff := cmp.Diff(wantModules, m.ModulePaths()); diff != "" {
		t.Errorf("ModulePaths mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Entry != "main.foxc" {
		t.Errorf("default entry = %q, want main.foxc", m.Project.Entry)
	}
	if m.Project.Module != vm.MainModule {
		t.Errorf("default module = %q, want %q", m.Project.Module, vm.MainModule)
	}
	if diff := cmp.Diff(vm.DefaultConfig(), m.VMConfig()); diff != "" {
		t.Errorf("default VMConfig mismatch (-want +got):\n%s", diff)
	}
	if m.LogPath() != nil {
		t.Errorf("default log path = %v, want nil", *m.LogPath())
	}
	if len(m.ModulePaths()) != 0 {
		t.Errorf("default modules = %v, want none", m.ModulePaths())
	}
}

func TestLoadManifestInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad toml", "[project\nname = 1", "parse error"},
		{"negative frames", "[vm]\nmax-frames = -1", "max-frames"},
		{"negative stack", "[vm]\nstack-size = -5", "stack-size"},
		{"negative threshold", "[gc]\ninitial-threshold = -1", "initial-threshold"},
		{"shrinking growth", "[gc]\ngrowth-factor = 0.5", "growth-factor"},
		{"reserved module", "[modules]\ncore = \"core.foxc\"", "reserved"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.content)
			_, err := Load(dir)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadManifestMissing(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing fox.toml")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error = %v, want a not-exist error", err)
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `
[project]
name = "parent-project"
`)

	sub := filepath.Join(root, "build", "nested")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(sub)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "parent-project" {
		t.Errorf("project name = %q, want parent-project", m.Project.Name)
	}
	abs, _ := filepath.Abs(root)
	if m.Dir != abs {
		t.Errorf("dir = %q, want %q", m.Dir, abs)
	}
}

func TestFindAndLoadNoManifest(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil manifest, got %+v", m)
	}
}

func TestDefaultManifest(t *testing.T) {
	m := Default("/work")
	if got := m.EntryPath(); got != filepath.Join("/work", "main.foxc") {
		t.Errorf("entry path = %q", got)
	}
	if m.VMConfig().MaxFrames != 64 {
		t.Errorf("max frames = %d, want 64", m.VMConfig().MaxFrames)
	}
}
