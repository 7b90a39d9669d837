// Fox CLI - runs and inspects compiled fox code objects
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

// Exit codes follow the sysexits convention.
const (
	exitUsage    = 64
	exitCompile  = 65
	exitNoInput  = 66
	exitSoftware = 70
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

type globalOptions struct {
	verbosity int
	logPath   string
	dir       string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "fox",
		Short:         "Run and inspect fox bytecode",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(opts.verbosity, opts.logPath)
		},
	}
	root.PersistentFlags().CountVarP(&opts.verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	root.PersistentFlags().StringVar(&opts.logPath, "log", "", "write logs to this file instead of stderr")
	root.PersistentFlags().StringVarP(&opts.dir, "dir", "C", ".", "project directory (searched upward for fox.toml)")

	root.AddCommand(
		newRunCommand(opts),
		newDisCommand(),
		newConfigCommand(opts),
		newVersionCommand(),
	)
	return root
}

// configureLogging sets up commonlog. A zero verbosity leaves logging at
// its quiet default.
func configureLogging(verbosity int, path string) {
	if verbosity == 0 && path == "" {
		return
	}
	var p *string
	if path != "" {
		p = &path
	}
	commonlog.Configure(verbosity, p)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitUsage)
	}
}
