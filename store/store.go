// Package store intercepts compiler output in memory.
//
// A Store is handed to a backend as its file manager. Artifacts the backend
// writes are buffered under their logical name and never reach a
// filesystem. Reads of pre-existing artifacts are delegated to the
// registered search locations, so references to external modules resolve as
// they would in an on-disk build.
package store

import (
	"bytes"
	"io"
	"io/fs"
	"path"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-cook/errors"
)

// Location is a named, read-only source of pre-existing artifacts.
type Location struct {
	FS   fs.FS
	Name string
}

// Store buffers the artifacts of one compilation.
type Store struct {
	blobs     map[string][]byte
	logger    *zap.Logger
	locations []Location
	mu        sync.RWMutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithLocations registers search locations at construction.
func WithLocations(locs ...Location) Option {
	return func(s *Store) { s.locations = append(s.locations, locs...) }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		blobs:  make(map[string][]byte),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddLocation appends a search location. A later location with the same
// name replaces the earlier one in place.
func (s *Store) AddLocation(loc Location) error {
	if loc.Name == "" || loc.FS == nil {
		return errors.InvalidInput(errors.PhaseConfigure, "location needs a name and a filesystem")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.locations {
		if s.locations[i].Name == loc.Name {
			s.locations[i] = loc
			return nil
		}
	}
	s.locations = append(s.locations, loc)
	return nil
}

// Locations returns the names of the search locations in order.
func (s *Store) Locations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.locations))
	for i, loc := range s.locations {
		names[i] = loc.Name
	}
	return names
}

// Output returns a writer for the named artifact. The bytes become visible
// when the writer is closed; writing the same name again replaces them.
func (s *Store) Output(name string) (io.WriteCloser, error) {
	if name == "" {
		return nil, errors.InvalidInput(errors.PhaseCompile, "artifact name is empty")
	}
	return &output{store: s, name: name}, nil
}

// Put stores data under name directly.
func (s *Store) Put(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blobs[name]; exists {
		s.logger.Debug("artifact overwritten", zap.String("name", name))
	}
	s.blobs[name] = data
	s.logger.Debug("artifact captured", zap.String("name", name), zap.Int("size", len(data)))
}

// Input opens a pre-existing artifact from the named location. It returns
// an error matching fs.ErrNotExist when the location or file is missing.
func (s *Store) Input(location, name string) (io.ReadCloser, error) {
	s.mu.RLock()
	var fsys fs.FS
	for _, loc := range s.locations {
		if loc.Name == location {
			fsys = loc.FS
			break
		}
	}
	s.mu.RUnlock()

	if fsys == nil {
		return nil, &fs.PathError{Op: "open", Path: location, Err: fs.ErrNotExist}
	}
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	return fsys.Open(path.Clean(name))
}

// Find looks name up in every location, in order, and returns the first
// match's bytes and location name.
func (s *Store) Find(name string) ([]byte, string, error) {
	for _, loc := range s.Locations() {
		f, err := s.Input(loc, name)
		if err != nil {
			if errors.IsNotExist(err) {
				continue
			}
			return nil, loc, errors.IO(errors.PhaseLinking, "open "+loc+"/"+name, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, loc, errors.IO(errors.PhaseLinking, "read "+loc+"/"+name, err)
		}
		return data, loc, nil
	}
	return nil, "", &fs.PathError{Op: "find", Path: name, Err: fs.ErrNotExist}
}

// Bytes returns the captured artifact and whether it exists.
func (s *Store) Bytes(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[name]
	return data, ok
}

// Names returns the captured artifact names, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.blobs))
	for name := range s.blobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of captured artifacts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Claim transfers ownership of every captured artifact to the caller and
// leaves the store empty.
func (s *Store) Claim() map[string][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	claimed := s.blobs
	s.blobs = make(map[string][]byte)
	return claimed
}

type output struct {
	store  *Store
	name   string
	buf    bytes.Buffer
	closed bool
}

func (o *output) Write(p []byte) (int, error) {
	if o.closed {
		return 0, fs.ErrClosed
	}
	return o.buf.Write(p)
}

func (o *output) Close() error {
	if o.closed {
		return fs.ErrClosed
	}
	o.closed = true
	o.store.Put(o.name, o.buf.Bytes())
	return nil
}
