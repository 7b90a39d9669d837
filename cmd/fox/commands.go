package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/chazu/fox/manifest"
	"github.com/chazu/fox/pkg/bytecode"
	"github.com/chazu/fox/vm"
)

const exitConfig = 78

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

func newRunCommand(g *globalOptions) *cobra.Command {
	var (
		stress    bool
		trace     bool
		maxFrames int
		module    string
	)

	cmd := &cobra.Command{
		Use:   "run [file.foxc]",
		Short: "Run a compiled code object",
		Long: `Run loads fox.toml (searching upward from --dir), preloads every module
listed under [modules], then interprets the entry code object. A file
argument overrides the manifest entry.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest(g.dir)
			if err != nil {
				return &exitError{code: exitConfig, err: err}
			}
			if g.verbosity == 0 && g.logPath == "" {
				configureLogging(m.Log.Verbosity, derefString(m.LogPath()))
			}

			cfg := m.VMConfig()
			flags := cmd.Flags()
			if flags.Changed("gc-stress") {
				cfg.GCStress = stress
			}
			if flags.Changed("trace") {
				cfg.Trace = trace
			}
			if flags.Changed("max-frames") {
				cfg.MaxFrames = maxFrames
			}

			machine := vm.New(vm.WithConfig(cfg), vm.WithStdout(cmd.OutOrStdout()))

			for _, mp := range m.ModulePaths() {
				file, err := readCodeObject(mp.Path)
				if err != nil {
					return err
				}
				if err := interpret(machine, mp.Name, file); err != nil {
					return err
				}
			}

			entry, entryModule := m.EntryPath(), m.Project.Module
			if len(args) == 1 {
				entry = args[0]
			}
			file, err := readCodeObject(entry)
			if err != nil {
				return err
			}
			switch {
			case module != "":
				entryModule = module
			case len(args) == 1 && file.Module != "":
				entryModule = file.Module
			}
			return interpret(machine, entryModule, file)
		},
	}

	cmd.Flags().BoolVar(&stress, "gc-stress", false, "collect garbage before every allocation")
	cmd.Flags().BoolVar(&trace, "trace", false, "log every executed instruction (needs -vv)")
	cmd.Flags().IntVar(&maxFrames, "max-frames", 0, "call depth limit per fiber")
	cmd.Flags().StringVarP(&module, "module", "m", "", "module to run the entry point in")
	return cmd
}

func interpret(machine *vm.VM, module string, file *bytecode.File) error {
	_, err := machine.Interpret(module, file.Main)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, vm.ErrCompile):
		return &exitError{code: exitCompile, err: err}
	default:
		return &exitError{code: exitSoftware, err: err}
	}
}

// ---------------------------------------------------------------------------
// dis
// ---------------------------------------------------------------------------

func newDisCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dis file.foxc",
		Short: "Disassemble a compiled code object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := readCodeObject(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if file.Module != "" {
				fmt.Fprintf(out, "; module %s\n", file.Module)
			}
			fmt.Fprintln(out, file.Main.Disassemble())
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// config
// ---------------------------------------------------------------------------

func newConfigCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective fox.toml configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest(g.dir)
			if err != nil {
				return &exitError{code: exitConfig, err: err}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", filepath.Join(m.Dir, manifest.FileName))
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(m)
		},
	}
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fox %s (code object format %d)\n", Version, bytecode.FormatVersion)
		},
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// loadManifest finds fox.toml above dir, falling back to defaults rooted
// at dir when there is none.
func loadManifest(dir string) (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m != nil {
		return m, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return manifest.Default(abs), nil
}

func readCodeObject(path string) (*bytecode.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &exitError{code: exitNoInput, err: err}
	}
	file, err := bytecode.Unmarshal(data)
	if err != nil {
		return nil, &exitError{code: exitCompile, err: fmt.Errorf("%s: %w", path, err)}
	}
	return file, nil
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
