// Package source wraps compilation input as an addressable, in-memory unit.
package source

import (
	"io"
	"path"
	"strings"

	"github.com/wippyai/wasm-cook/errors"
)

const (
	// Scheme prefixes every synthetic identity.
	Scheme = "memory:///"
	// DefaultIdentity is used for units created without a name.
	DefaultIdentity = Scheme + "unit.wat"
	// DefaultBaseName names the artifact of an anonymous single-module unit.
	DefaultBaseName = "main"
)

// Unit is one virtual compilation input. It never touches the filesystem.
type Unit struct {
	name     string
	text     string
	identity string
}

// New creates a unit from text. An empty name selects the fixed default
// identity.
func New(name, text string) *Unit {
	return &Unit{
		name:     name,
		text:     text,
		identity: identityFor(name),
	}
}

// Read creates a unit from r. Read failures are reported as KindIO errors.
func Read(name string, r io.Reader) (*Unit, error) {
	if r == nil {
		return nil, errors.IO(errors.PhaseSource, "nil reader", nil)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.IO(errors.PhaseSource, "read "+identityFor(name), err)
	}
	return New(name, string(data)), nil
}

func identityFor(name string) string {
	if name == "" {
		return DefaultIdentity
	}
	clean := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	return Scheme + strings.TrimPrefix(clean, "/")
}

// Name returns the logical name the unit was created with, possibly empty.
func (u *Unit) Name() string { return u.name }

// Text returns the raw source text.
func (u *Unit) Text() string { return u.text }

// Identity returns the synthetic identity, stable for the unit's lifetime.
func (u *Unit) Identity() string { return u.identity }

// Reader returns a fresh reader over the text.
func (u *Unit) Reader() io.Reader { return strings.NewReader(u.text) }

// BaseName derives a default artifact name from the logical name: the last
// path element without extension, or DefaultBaseName.
func (u *Unit) BaseName() string {
	if u.name == "" {
		return DefaultBaseName
	}
	base := path.Base(strings.TrimPrefix(u.identity, Scheme))
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		return DefaultBaseName
	}
	return base
}

// Same reports whether two units share an identity. Content is not compared.
func (u *Unit) Same(other *Unit) bool {
	if u == nil || other == nil {
		return u == other
	}
	return u.identity == other.identity
}

func (u *Unit) String() string { return u.identity }
