// Package loader builds the loader graph around registry engines: the boot
// and platform loaders, any number of application loaders with a parent,
// the class sources each loader defines from, and the collaborators every
// engine shares (symbols, decoder, constraints, primitive classes).
package loader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/classreg/classfile"
	"github.com/chazu/classreg/constraints"
	"github.com/chazu/classreg/registry"
	"github.com/chazu/classreg/symbol"
)

var log = commonlog.GetLogger("classreg.loader")

// Names of the built-in loaders.
const (
	BootName     = "boot"
	PlatformName = "platform"
)

// DefaultPreloadLimit bounds concurrent loads in Preload.
const DefaultPreloadLimit = 8

// ErrDuplicateLoader is returned when a loader name is taken.
var ErrDuplicateLoader = errors.New("duplicate loader name")

// Options configure every engine of a Registries.
type Options struct {
	// EnforceFinalSuper rejects subclasses of final classes.
	EnforceFinalSuper bool

	// ReservedPrefixes are the package prefixes only trusted loaders may
	// define into. Empty means the engine default.
	ReservedPrefixes []string

	// RestrictedPackages are package prefixes application code with a
	// protection domain may not resolve.
	RestrictedPackages []string

	// PreloadLimit bounds concurrent loads in Preload.
	PreloadLimit int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{EnforceFinalSuper: true, PreloadLimit: DefaultPreloadLimit}
}

// ---------------------------------------------------------------------------
// Registries
// ---------------------------------------------------------------------------

// Registries owns a loader graph and the state its engines share.
type Registries struct {
	opts        Options
	symbols     *symbol.Table
	decoder     *classfile.Decoder
	constraints *constraints.Coordinator
	primitives  primitives
	access      packageAccess

	mu       sync.RWMutex
	boot     *Loader
	platform *Loader
	byID     map[uuid.UUID]*Loader
	byName   map[string]*Loader
}

// New creates a loader graph with a boot loader and a platform loader.
func New(opts Options) *Registries {
	if opts.PreloadLimit <= 0 {
		opts.PreloadLimit = DefaultPreloadLimit
	}
	syms := symbol.NewTable()
	rs := &Registries{
		opts:        opts,
		symbols:     syms,
		decoder:     classfile.NewDecoder(syms),
		constraints: constraints.New(),
		primitives:  newPrimitives(syms),
		access:      packageAccess{restricted: opts.RestrictedPackages},
		byID:        make(map[uuid.UUID]*Loader),
		byName:      make(map[string]*Loader),
	}

	rs.boot = rs.newLoader(nil, nil)
	rs.byName[BootName] = rs.boot
	rs.platform = rs.newLoader(registry.NewClassLoader(PlatformName, registry.PlatformLoader), rs.boot)
	rs.register(rs.platform)
	return rs
}

func (rs *Registries) newLoader(id *registry.ClassLoader, parent *Loader) *Loader {
	l := &Loader{id: id, parent: parent, regs: rs}
	if id != nil && !id.IsTrusted() {
		l.domain = &registry.ProtectionDomain{CodeSource: "loader:" + id.Name}
	}

	opts := []registry.Option{
		registry.WithDecoder(registry.ClassfileDecoder{Decoder: rs.decoder}),
		registry.WithConstraints(rs.constraints),
		registry.WithDelegate(l),
		registry.WithPackageAccess(rs.access),
		registry.WithPrimitives(rs.primitives),
		registry.WithEnforceFinalSuper(rs.opts.EnforceFinalSuper),
	}
	if len(rs.opts.ReservedPrefixes) > 0 {
		opts = append(opts, registry.WithReservedPrefixes(rs.opts.ReservedPrefixes...))
	}
	l.engine = registry.NewEngine(id, rs.symbols, opts...)
	return l
}

func (rs *Registries) register(l *Loader) {
	rs.byID[l.id.ID] = l
	rs.byName[l.id.Name] = l
	log.Debugf("created loader %s (parent %s)", l, l.parent)
}

// NewLoader creates an application loader delegating to parent, or to the
// platform loader when parent is nil.
func (rs *Registries) NewLoader(name string, parent *Loader, sources ...Source) (*Loader, error) {
	if name == "" {
		return nil, errors.New("loader name is empty")
	}
	if parent == nil {
		parent = rs.platform
	}
	if parent.regs != rs {
		return nil, fmt.Errorf("parent %s belongs to another loader graph", parent)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, taken := rs.byName[name]; taken {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateLoader, name)
	}
	l := rs.newLoader(registry.NewClassLoader(name, registry.AppLoader), parent)
	l.sources = append(l.sources, sources...)
	rs.register(l)
	return l, nil
}

// Boot returns the boot loader.
func (rs *Registries) Boot() *Loader { return rs.boot }

// Platform returns the platform loader.
func (rs *Registries) Platform() *Loader { return rs.platform }

// Loader returns the loader called name.
func (rs *Registries) Loader(name string) (*Loader, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	l, ok := rs.byName[name]
	return l, ok
}

// ByIdentity returns the loader with the given identity; nil is boot.
func (rs *Registries) ByIdentity(id *registry.ClassLoader) *Loader {
	if id.IsBoot() {
		return rs.boot
	}
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.byID[id.ID]
}

// Loaders returns every loader: boot, platform, then application loaders
// sorted by name.
func (rs *Registries) Loaders() []*Loader {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	var apps []*Loader
	for _, l := range rs.byID {
		if l != rs.platform {
			apps = append(apps, l)
		}
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].Name() < apps[j].Name() })
	return append([]*Loader{rs.boot, rs.platform}, apps...)
}

// Symbols returns the symbol table every engine interns into.
func (rs *Registries) Symbols() *symbol.Table { return rs.symbols }

// Constraints returns the shared constraint coordinator.
func (rs *Registries) Constraints() *constraints.Coordinator { return rs.constraints }

// Symbol interns a class name given as an internal name, a dotted name,
// or a descriptor.
func (rs *Registries) Symbol(name string) *symbol.Symbol {
	return rs.symbols.FromClassName(internalName(name))
}

// Preload loads names through l concurrently, at most PreloadLimit at a
// time, and returns the classes in the order of names. The first failure
// cancels the remaining loads.
func (rs *Registries) Preload(ctx context.Context, l *Loader, names []string) ([]*registry.Class, error) {
	classes := make([]*registry.Class, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rs.opts.PreloadLimit)
	for i, name := range names {
		g.Go(func() error {
			c, err := l.LoadClass(gctx, name)
			if err != nil {
				return fmt.Errorf("preload %s: %w", name, err)
			}
			classes[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Infof("%s: preloaded %d classes", l, len(names))
	return classes, nil
}

// Close closes the sources of every loader.
func (rs *Registries) Close() error {
	var errs []error
	for _, l := range rs.Loaders() {
		if err := l.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
