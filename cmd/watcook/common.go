package main

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-cook/backend"
	"github.com/wippyai/wasm-cook/backend/wat"
	"github.com/wippyai/wasm-cook/config"
	"github.com/wippyai/wasm-cook/diag"
	"github.com/wippyai/wasm-cook/errors"
	"github.com/wippyai/wasm-cook/loader"
	"github.com/wippyai/wasm-cook/scope"
	"github.com/wippyai/wasm-cook/session"
)

// env is what every subcommand needs: effective configuration, a logger
// and a diagnostic printer.
type env struct {
	cfg *config.Config
	log *zap.Logger
	out *printer
}

func setup(cmd *cobra.Command) (*env, error) {
	flags := cmd.Root().PersistentFlags()

	verbose, _ := flags.GetBool("verbose")
	log := zap.NewNop()
	if verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		log = l
	}
	backend.SetLogger(log.Named("backend"))
	wat.SetLogger(log.Named("wat"))
	diag.SetLogger(log.Named("diag"))
	scope.SetLogger(log.Named("scope"))
	loader.SetLogger(log.Named("loader"))
	session.SetLogger(log.Named("session"))

	dir, _ := flags.GetString("config")
	cfg, err := config.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}

	if g, _ := flags.GetString("debug"); g != "" {
		d, err := backend.ParseDebugInfo(backend.OptDebugPrefix + g)
		if err != nil {
			return nil, err
		}
		cfg.Debug = config.Debug{Source: d.Source, Lines: d.Lines, Vars: d.Vars}
	}
	search, _ := flags.GetStringArray("search")
	for _, p := range search {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, errors.IO(errors.PhaseConfigure, "cannot resolve "+p, err)
		}
		cfg.Search.Paths = append(cfg.Search.Paths, abs)
	}
	extra, _ := flags.GetStringArray("option")
	cfg.Compiler.Options = append(cfg.Compiler.Options, extra...)

	log.Debug("configuration",
		zap.String("dir", cfg.Dir),
		zap.String("debug", cfg.DebugInfo().Token()),
		zap.Strings("search", cfg.SearchDirs()),
		zap.Strings("host", cfg.Host.Modules))

	return &env{cfg: cfg, log: log, out: newPrinter(cmd, cmd.ErrOrStderr())}, nil
}

// host creates the configured host scope; console output goes to w.
func (e *env) host(ctx context.Context, w io.Writer) (*scope.Host, error) {
	return e.cfg.NewHost(ctx, w, scope.WithLogger(e.log.Named("host")))
}

// session creates a session configured from e with the given parent.
func (e *env) session(parent scope.Context) *session.Session {
	opts := append(e.cfg.SessionOptions(), session.WithLogger(e.log.Named("session")))
	if parent != nil {
		opts = append(opts, session.WithParent(parent))
	}
	return session.New(opts...)
}

// cook compiles r and prints every diagnostic. When the failure came from
// a diagnostic the returned error only counts them.
func (e *env) cook(ctx context.Context, s *session.Session, name string, r io.Reader) error {
	err := s.CookReader(ctx, name, r)
	o := s.Outcome()
	if o == nil {
		return err
	}
	e.out.diagnostics(o.Diagnostics())
	if err != nil && o.Errors()+o.Warnings() > 0 {
		return &reportedError{name: name, errors: o.Errors(), warnings: o.Warnings()}
	}
	return err
}

// open returns the unit reader for path; "-" is standard input.
func open(path string) (string, io.ReadCloser, error) {
	if path == "-" {
		return "stdin.wat", io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", nil, errors.IO(errors.PhaseSource, "cannot open "+path, err)
	}
	return path, f, nil
}
