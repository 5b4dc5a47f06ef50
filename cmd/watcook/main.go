// Command watcook compiles WebAssembly text in memory and runs it.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/wasm-cook/backend"
	"github.com/wippyai/wasm-cook/backend/wat"
)

func init() {
	backend.Register(wat.Provider())
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "watcook",
		Short:         "Compile WebAssembly text in memory and run it",
		Long:          `watcook compiles .wat units without writing artifacts to disk, links them against host modules and search paths, and calls their exports.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newReplCmd())

	root.PersistentFlags().String("config", ".", "directory to search upwards for watcook.toml")
	root.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	root.PersistentFlags().BoolP("verbose", "v", false, "log pipeline decisions to stderr")
	root.PersistentFlags().StringP("debug", "g", "", "debug info to embed: none or a list of source,lines,vars")
	root.PersistentFlags().StringArrayP("search", "L", nil, "directory holding <module>.wasm artifacts (repeatable)")
	root.PersistentFlags().StringArray("option", nil, "passthrough compiler option (repeatable)")
	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		newPrinter(root, os.Stderr).failure(err)
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
