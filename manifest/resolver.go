package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/classreg/loader"
	"github.com/chazu/classreg/store"
)

// Order returns the declared loaders with every parent before its
// children. Built-in loaders come first. Unknown parents, duplicate names
// and parent cycles are errors.
func (m *Manifest) Order() ([]LoaderConfig, error) {
	byName := make(map[string]LoaderConfig, len(m.Loaders))
	for _, lc := range m.Loaders {
		if _, dup := byName[lc.Name]; dup {
			return nil, fmt.Errorf("loader %q declared twice", lc.Name)
		}
		if err := checkKind(lc); err != nil {
			return nil, err
		}
		byName[lc.Name] = lc
	}

	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int, len(byName))
	var order []LoaderConfig

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("loader parent cycle: %s -> %s", strings.Join(path, " -> "), name)
		}
		lc, ok := byName[name]
		if !ok {
			if IsBuiltinLoader(name) {
				return nil
			}
			return fmt.Errorf("loader %q has unknown parent %q", path[len(path)-1], name)
		}

		state[name] = visiting
		if lc.Parent != "" {
			if err := visit(lc.Parent, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, lc)
		return nil
	}

	// Built-ins first, then declaration order.
	for _, name := range []string{loader.BootName, loader.PlatformName} {
		if _, ok := byName[name]; ok {
			if err := visit(name, nil); err != nil {
				return nil, err
			}
		}
	}
	for _, lc := range m.Loaders {
		if err := visit(lc.Name, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func checkKind(lc LoaderConfig) error {
	want := defaultKind(lc.Name)
	if lc.Kind != "" && lc.Kind != want {
		if IsBuiltinLoader(lc.Name) {
			return fmt.Errorf("loader %q is built in with kind %s, not %s", lc.Name, want, lc.Kind)
		}
		return fmt.Errorf("loader %q: only the built-in loaders have kind %s", lc.Name, lc.Kind)
	}
	if IsBuiltinLoader(lc.Name) && lc.Parent != "" {
		return fmt.Errorf("built-in loader %q cannot declare a parent", lc.Name)
	}
	return nil
}

// Build creates the loader graph the manifest declares and opens every
// class path entry.
func (m *Manifest) Build() (*loader.Registries, error) {
	order, err := m.Order()
	if err != nil {
		return nil, err
	}

	rs := loader.New(m.Options())
	for _, lc := range order {
		l, err := m.buildLoader(rs, lc)
		if err != nil {
			rs.Close()
			return nil, fmt.Errorf("loader %s: %w", lc.Name, err)
		}
		for _, entry := range lc.Classpath {
			src, err := OpenSource(m.Dir, entry)
			if err != nil {
				rs.Close()
				return nil, fmt.Errorf("loader %s: %w", lc.Name, err)
			}
			l.AddSource(src)
		}
	}
	return rs, nil
}

func (m *Manifest) buildLoader(rs *loader.Registries, lc LoaderConfig) (*loader.Loader, error) {
	switch lc.Name {
	case loader.BootName:
		return rs.Boot(), nil
	case loader.PlatformName:
		return rs.Platform(), nil
	}
	parent, ok := rs.Loader(lc.Parent)
	if !ok {
		return nil, fmt.Errorf("parent %q not built", lc.Parent)
	}
	return rs.NewLoader(lc.Name, parent)
}

// OpenSource opens a class path entry: "dir:PATH", "sqlite:PATH" or
// "duckdb:PATH". Relative paths are resolved against base.
func OpenSource(base, entry string) (loader.Source, error) {
	scheme, path, ok := strings.Cut(entry, ":")
	if !ok || path == "" {
		return nil, fmt.Errorf("class path entry %q: want <kind>:<path>", entry)
	}
	if path != ":memory:" && !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}

	switch scheme {
	case "dir":
		return loader.NewDirSource(path)
	case store.SQLite, store.DuckDB:
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, err
			}
		}
		return store.Open(scheme, path)
	}
	return nil, fmt.Errorf("class path entry %q: unknown kind %q", entry, scheme)
}
