package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned by a Source that does not hold a class.
var ErrNotFound = errors.New("class not found in source")

// ClassFileExt is the extension of class files in directory sources.
const ClassFileExt = ".class"

// Source supplies class-file bytes by internal name ("com/acme/Widget").
type Source interface {
	// Find returns the bytes of name, or an error wrapping ErrNotFound.
	Find(ctx context.Context, name string) ([]byte, error)

	// Names lists every class the source holds, sorted.
	Names(ctx context.Context) ([]string, error)

	// Location describes the source, for diagnostics and code sources.
	Location() string
}

// ---------------------------------------------------------------------------
// Directory source
// ---------------------------------------------------------------------------

// DirSource reads class files laid out by package under a root directory:
// com/acme/Widget is read from <root>/com/acme/Widget.class.
type DirSource struct {
	root string
}

// NewDirSource creates a source rooted at dir, which must exist.
func NewDirSource(dir string) (*DirSource, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("class directory %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("class directory %s is not a directory", abs)
	}
	return &DirSource{root: abs}, nil
}

// ErrInvalidName is returned by DirSource.Write for names that would
// leave the root directory.
var ErrInvalidName = errors.New("invalid class name")

// path maps name into the root. Names that are absolute or climb out of
// the root with ".." have no path.
func (d *DirSource) path(name string) (string, bool) {
	rel := filepath.FromSlash(name) + ClassFileExt
	if name == "" || strings.HasPrefix(name, "/") || !filepath.IsLocal(rel) {
		return "", false
	}
	return filepath.Join(d.root, rel), true
}

func (d *DirSource) Find(_ context.Context, name string) ([]byte, error) {
	path, ok := d.path(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q is outside %s", ErrNotFound, name, d.root)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, d.root)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (d *DirSource) Names(ctx context.Context) ([]string, error) {
	var names []string
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() || !strings.HasSuffix(path, ClassFileExt) {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		names = append(names, strings.TrimSuffix(filepath.ToSlash(rel), ClassFileExt))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.root, err)
	}
	sort.Strings(names)
	return names, nil
}

func (d *DirSource) Location() string { return "dir:" + d.root }

// Write stores data as the class file for name, creating package
// directories as needed.
func (d *DirSource) Write(name string, data []byte) error {
	path, ok := d.path(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ---------------------------------------------------------------------------
// Memory source
// ---------------------------------------------------------------------------

// MemorySource holds class files in memory, typically the output of
// classfile.Spec.Pack.
type MemorySource struct {
	name string

	mu      sync.RWMutex
	classes map[string][]byte
}

// NewMemorySource creates a source over a copy of classes.
func NewMemorySource(name string, classes map[string][]byte) *MemorySource {
	m := &MemorySource{name: name, classes: make(map[string][]byte, len(classes))}
	for k, v := range classes {
		m.classes[k] = v
	}
	return m
}

// Put adds or replaces a class.
func (m *MemorySource) Put(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[name] = data
}

func (m *MemorySource) Find(_ context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.classes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, m.Location())
	}
	return data, nil
}

func (m *MemorySource) Names(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.classes))
	for n := range m.classes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemorySource) Location() string { return "mem:" + m.name }
