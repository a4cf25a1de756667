package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chazu/classreg/registry"
	"github.com/chazu/classreg/symbol"
)

// ---------------------------------------------------------------------------
// Loader: one node of the loader graph
// ---------------------------------------------------------------------------

// Loader is a class loader: an identity, an engine, a parent to delegate
// to first, and the sources it defines classes from.
type Loader struct {
	id     *registry.ClassLoader
	parent *Loader
	engine *registry.Engine
	regs   *Registries
	domain *registry.ProtectionDomain

	mu      sync.RWMutex
	sources []Source
}

// Identity returns the loader identity classes record as their definer.
// The boot loader's identity is nil.
func (l *Loader) Identity() *registry.ClassLoader { return l.id }

// Name returns the configured loader name.
func (l *Loader) Name() string {
	if l.id == nil {
		return BootName
	}
	return l.id.Name
}

// Kind returns the loader kind.
func (l *Loader) Kind() registry.LoaderKind {
	if l.id == nil {
		return registry.BootLoader
	}
	return l.id.Kind
}

// Parent returns the loader delegated to first, nil for the boot loader.
func (l *Loader) Parent() *Loader { return l.parent }

// Engine returns the loader's resolution engine.
func (l *Loader) Engine() *registry.Engine { return l.engine }

func (l *Loader) String() string { return l.id.String() }

// AddSource appends src to the loader's class path.
func (l *Loader) AddSource(src Source) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources = append(l.sources, src)
	log.Debugf("%s: added source %s", l, src.Location())
}

// Sources returns the loader's class path in search order.
func (l *Loader) Sources() []Source {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Source(nil), l.sources...)
}

// find searches the class path for t. A miss is (nil, nil).
func (l *Loader) find(ctx context.Context, t *symbol.Symbol) ([]byte, error) {
	name := symbol.ClassName(t)
	for _, src := range l.Sources() {
		data, err := src.Find(ctx, name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", src.Location(), err)
		}
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// registry.Delegate
// ---------------------------------------------------------------------------

// FindClass asks the parent first, then defines t from the class path.
// When the parent answers, both loaders are constrained to agree on t.
func (l *Loader) FindClass(r *registry.Resolution, t *symbol.Symbol) (*registry.Class, error) {
	if l.parent != nil {
		c, err := l.parent.engine.LoadClass(r, t, nil)
		if err != nil {
			return nil, err
		}
		if c != nil {
			if err := l.regs.constraints.CheckConstraint(t, l.id, l.parent.id); err != nil {
				return nil, &registry.Error{Kind: registry.KindLinkage, Type: t, Msg: "loader constraint violated for " + t.String(), Cause: err}
			}
			return c, nil
		}
	}

	data, err := l.find(r.Context(), t)
	if err != nil || data == nil {
		return nil, err
	}
	return l.engine.DefineClass(r, t, data, registry.Ordinary{Domain: l.domain})
}

// FindLinked links t through the parent or from the class path without
// defining it.
func (l *Loader) FindLinked(r *registry.Resolution, t *symbol.Symbol, def registry.Definition) (*registry.LinkedClass, error) {
	if l.parent != nil {
		lc, err := l.parent.engine.LoadLinkedClass(r, t, def)
		if err != nil || lc != nil {
			return lc, err
		}
	}

	data, err := l.find(r.Context(), t)
	if err != nil || data == nil {
		return nil, err
	}
	raw, err := l.engine.CreateRawDescriptor(r, data, t, def)
	if err != nil {
		return nil, err
	}
	return l.engine.CreateLinkedClass(r, raw, def)
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// LoadClass loads name, an internal name, a dotted name, or a descriptor.
// A class that cannot be found is a registry.KindClassNotFound error.
func (l *Loader) LoadClass(ctx context.Context, name string) (*registry.Class, error) {
	t := l.regs.Symbol(name)
	c, err := l.engine.LoadClass(registry.NewResolution(ctx), t, l.domain)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, &registry.Error{Kind: registry.KindClassNotFound, Type: t, Msg: fmt.Sprintf("%s (loader %s)", name, l)}
	}
	return c, nil
}

// FindLoadedClass returns name if this loader already loaded it.
func (l *Loader) FindLoadedClass(name string) *registry.Class {
	return l.engine.FindLoadedClass(l.regs.Symbol(name))
}

// DefineClass defines a class from data. name may be empty for hidden
// and anonymous definitions.
func (l *Loader) DefineClass(ctx context.Context, name string, data []byte, def registry.Definition) (*registry.Class, error) {
	var expected *symbol.Symbol
	if name != "" {
		expected = l.regs.Symbol(name)
	}
	if def == nil {
		def = registry.Ordinary{Domain: l.domain}
	}
	return l.engine.DefineClass(registry.NewResolution(ctx), expected, data, def)
}

// Names lists every class on the loader's own class path, without
// duplicates. Parents are not included.
func (l *Loader) Names(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var names []string
	for _, src := range l.Sources() {
		ns, err := src.Names(ctx)
		if err != nil {
			return nil, err
		}
		for _, n := range ns {
			if _, dup := seen[n]; !dup {
				seen[n] = struct{}{}
				names = append(names, n)
			}
		}
	}
	return names, nil
}

// close closes every source that holds resources.
func (l *Loader) close() error {
	var errs []error
	for _, src := range l.Sources() {
		if c, ok := src.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", src.Location(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// internalName converts a dotted binary name to an internal name.
// Descriptors and internal names pass through.
func internalName(name string) string {
	if strings.ContainsAny(name, "/;[") {
		return name
	}
	return strings.ReplaceAll(name, ".", "/")
}

var _ registry.Delegate = (*Loader)(nil)
