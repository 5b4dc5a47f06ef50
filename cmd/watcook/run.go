package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/wippyai/wasm-cook/loader"
	"github.com/wippyai/wasm-cook/source"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] <file.wat|-> [export [args...]]",
		Short: "Cook a unit and call one of its exports",
		Long: `Cook a unit in memory, instantiate it and call an export.

Without an export name the first of _start, run and main is called, or the
only export when there is just one. Arguments are parsed by the export's
parameter types.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRun,
	}
	cmd.Flags().StringP("module", "m", "", "artifact to instantiate (default: the unit's only or base-named artifact)")
	cmd.Flags().Bool("list", false, "list the exports and the instantiated units, then exit")
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func runRun(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	e, err := setup(cmd)
	if err != nil {
		return err
	}

	host, err := e.host(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, host.Close(ctx)) }()

	name, r, err := open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	s := e.session(host)
	if err := e.cook(ctx, s, name, r); err != nil {
		return err
	}
	l, err := s.Loader()
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, l.Close(ctx)) }()

	module, _ := cmd.Flags().GetString("module")
	if module == "" {
		module = pickArtifact(l, source.New(name, "").BaseName())
	}
	u, err := l.Resolve(ctx, module)
	if err != nil {
		return err
	}

	funcs := make([]funcInfo, 0)
	for _, exp := range u.Exports() {
		funcs = append(funcs, describe(u, exp))
	}

	out := cmd.OutOrStdout()
	if list, _ := cmd.Flags().GetBool("list"); list {
		for _, f := range funcs {
			fmt.Fprintln(out, f.signature())
		}
		units := make([]string, 0)
		for _, iu := range l.Units() {
			units = append(units, iu.Name())
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "instantiated: %s\n", strings.Join(units, ", "))
		return nil
	}

	var fi *funcInfo
	if len(args) > 1 {
		fi = findFunc(funcs, args[1])
		if fi == nil {
			_, err := u.Function(args[1])
			return err
		}
	} else {
		fi = entryPoint(funcs)
		if fi == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "no entry point in %s; exports:\n", u.Name())
			for _, f := range funcs {
				fmt.Fprintln(cmd.ErrOrStderr(), "  "+f.signature())
			}
			return nil
		}
	}

	var rest []string
	if len(args) > 2 {
		rest = args[2:]
	}
	params, err := convertArgs(*fi, rest)
	if err != nil {
		return err
	}
	res, err := u.Call(ctx, fi.name, params...)
	if err != nil {
		return err
	}
	if len(res) > 0 {
		fmt.Fprintln(out, formatResults(*fi, res))
	}
	return nil
}

// pickArtifact returns the only artifact, else the one named base, else
// the first by name.
func pickArtifact(l *loader.Loader, base string) string {
	names := l.Artifacts()
	if len(names) == 1 || !slices.Contains(names, base) {
		if len(names) == 0 {
			return base
		}
		return names[0]
	}
	return base
}

func findFunc(funcs []funcInfo, name string) *funcInfo {
	for i := range funcs {
		if funcs[i].name == name {
			return &funcs[i]
		}
	}
	return nil
}

func entryPoint(funcs []funcInfo) *funcInfo {
	for _, name := range []string{"_start", "run", "main"} {
		if f := findFunc(funcs, name); f != nil {
			return f
		}
	}
	if len(funcs) == 1 {
		return &funcs[0]
	}
	return nil
}
