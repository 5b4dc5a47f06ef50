package main

import (
	"bytes"
	"context"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/wasm-cook/scope"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [flags] <file.wat>...",
		Short: "Cook units and report diagnostics without running them",
		Long: `Cook every given unit in its own session and print its diagnostics.
Units are compiled concurrently; output keeps the argument order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCheck,
	}
	cmd.Flags().Int("jobs", 0, "max parallel sessions (0=GOMAXPROCS)")
	return cmd
}

type checkResult struct {
	out bytes.Buffer
	err error
}

func runCheck(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	e, err := setup(cmd)
	if err != nil {
		return err
	}

	var console bytes.Buffer
	host, err := e.host(ctx, &console)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, host.Close(ctx)) }()

	jobs, _ := cmd.Flags().GetInt("jobs")
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	results := make([]checkResult, len(args))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(args)))
	for i, path := range args {
		g.Go(func() error {
			results[i].err = e.check(gctx, host, path, &results[i].out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var failed error
	for i := range results {
		if _, err := results[i].out.WriteTo(cmd.ErrOrStderr()); err != nil {
			return err
		}
		failed = multierr.Append(failed, results[i].err)
	}
	return failed
}

// check cooks one file with diagnostics going to w.
func (e *env) check(ctx context.Context, host scope.Context, path string, w *bytes.Buffer) error {
	name, r, err := open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	s := e.session(host)
	local := *e
	local.out = e.out.fork(w)
	if err := local.cook(ctx, s, name, r); err != nil {
		return err
	}
	l, err := s.Loader()
	if err != nil {
		return err
	}
	return l.Close(ctx)
}
