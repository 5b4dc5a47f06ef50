// Package config handles watcook.toml project configuration.
package config

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/wasm-cook/backend"
	"github.com/wippyai/wasm-cook/backend/wat"
	"github.com/wippyai/wasm-cook/errors"
	"github.com/wippyai/wasm-cook/scope"
	"github.com/wippyai/wasm-cook/session"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "watcook.toml"

// Config represents a watcook.toml file.
type Config struct {
	Debug    Debug    `toml:"debug"`
	Search   Search   `toml:"search"`
	Compiler Compiler `toml:"compiler"`
	Host     Host     `toml:"host"`

	// Dir is the directory containing the file (set at load time).
	Dir string `toml:"-"`
}

// Debug selects the debug information of compiled artifacts.
type Debug struct {
	Source bool `toml:"source"`
	Lines  bool `toml:"lines"`
	Vars   bool `toml:"vars"`
}

// Search lists directories holding pre-built <module>.wasm artifacts.
type Search struct {
	Paths []string `toml:"paths"`
}

// Compiler configures backend choice and passthrough options.
type Compiler struct {
	Options       []string `toml:"options"`
	PreferDefault bool     `toml:"prefer-default"`
	SkipDiscovery bool     `toml:"skip-discovery"`
}

// Host names the built-in host modules exposed to cooked units.
type Host struct {
	Modules []string `toml:"modules"`
}

// Default returns the configuration used when no file exists.
func Default(dir string) *Config {
	return &Config{Dir: dir, Host: Host{Modules: scope.Builtins()}}
}

// Load parses watcook.toml from dir. Unknown keys are an error.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IO(errors.PhaseConfigure, "cannot read "+path, err)
	}
	c, err := Parse(string(data))
	if err != nil {
		return nil, errors.New(errors.PhaseConfigure, errors.KindInvalidInput).
			Path(path).
			Detailf("parse error in %s", path).
			Cause(err).
			Build()
	}
	if c.Dir, err = filepath.Abs(dir); err != nil {
		return nil, errors.IO(errors.PhaseConfigure, "cannot resolve "+dir, err)
	}
	return c, nil
}

// Parse decodes configuration text. Dir is left empty.
func Parse(text string) (*Config, error) {
	var c Config
	md, err := toml.Decode(text, &c)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.InvalidInput(errors.PhaseConfigure, "unknown keys: "+strings.Join(keys, ", "))
	}
	for _, m := range c.Host.Modules {
		if !scope.IsBuiltin(m) {
			return nil, errors.InvalidInput(errors.PhaseConfigure,
				"unknown host module "+m+" (have "+strings.Join(scope.Builtins(), ", ")+")")
		}
	}
	return &c, nil
}

// FindAndLoad walks up from startDir to the first directory holding
// watcook.toml and loads it. Without one it returns Default(startDir).
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, errors.IO(errors.PhaseConfigure, "cannot resolve "+startDir, err)
	}
	for d := dir; ; {
		if _, err := os.Stat(filepath.Join(d, FileName)); err == nil {
			return Load(d)
		}
		parent := filepath.Dir(d)
		if parent == d {
			return Default(dir), nil
		}
		d = parent
	}
}

// DebugInfo returns the configured debug information.
func (c *Config) DebugInfo() backend.DebugInfo {
	return backend.DebugInfo{Source: c.Debug.Source, Lines: c.Debug.Lines, Vars: c.Debug.Vars}
}

// SearchDirs returns the search paths made absolute against Dir.
func (c *Config) SearchDirs() []string {
	dirs := make([]string, 0, len(c.Search.Paths))
	for _, p := range c.Search.Paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(c.Dir, p)
		}
		dirs = append(dirs, p)
	}
	return dirs
}

// Resolver returns the backend resolver, with the WAT compiler as default.
func (c *Config) Resolver() backend.Resolver {
	return backend.Resolver{
		Default:       wat.New(),
		PreferDefault: c.Compiler.PreferDefault,
		SkipDiscovery: c.Compiler.SkipDiscovery,
	}
}

// SessionOptions converts the configuration into session options.
func (c *Config) SessionOptions() []session.Option {
	opts := []session.Option{
		session.WithDebugInfo(c.DebugInfo()),
		session.WithResolver(c.Resolver()),
	}
	for _, dir := range c.SearchDirs() {
		opts = append(opts, session.WithSearchDir(dir))
	}
	if len(c.Compiler.Options) > 0 {
		opts = append(opts, session.WithOptions(slices.Clone(c.Compiler.Options)...))
	}
	return opts
}

// NewHost creates a host scope with the configured built-in modules. The
// console module writes to out.
func (c *Config) NewHost(ctx context.Context, out io.Writer, opts ...scope.Option) (*scope.Host, error) {
	h := scope.NewHost(ctx, opts...)
	for _, m := range c.Host.Modules {
		if err := h.AddBuiltin(m, out); err != nil {
			_ = h.Close(ctx)
			return nil, err
		}
	}
	return h, nil
}
