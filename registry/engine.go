package registry

import (
	"sync"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/chazu/classreg/classfile"
	"github.com/chazu/classreg/symbol"
)

var log = commonlog.GetLogger("classreg.registry")

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// Decoder turns class bytes into a raw descriptor. Malformed input fails;
// the engine reports untyped failures as KindFormat.
type Decoder interface {
	Decode(data []byte, loader *ClassLoader, expected *symbol.Symbol, def Definition) (*classfile.RawDescriptor, error)
}

// ClassfileDecoder adapts a classfile.Decoder to Decoder.
type ClassfileDecoder struct {
	*classfile.Decoder
}

func (d ClassfileDecoder) Decode(data []byte, _ *ClassLoader, expected *symbol.Symbol, def Definition) (*classfile.RawDescriptor, error) {
	return d.Decoder.Decode(data, classfile.Options{Expected: expected, Hidden: isHidden(def)})
}

// Constraints tracks cross-loader loading constraints. The engine reports
// every definition, rename and removal.
type Constraints interface {
	RecordConstraint(t *symbol.Symbol, c *Class, loader *ClassLoader) error
	RemoveConstraint(c *Class, t *symbol.Symbol)
	OnClassDefined(c *Class)
}

// Delegate is the loader-specific half of the pipeline, invoked under the
// per-symbol lock when a name is not cached. Both methods return nil with
// no error when the loader cannot find the type.
type Delegate interface {
	// FindClass defines t through this engine or obtains it from another
	// loader.
	FindClass(r *Resolution, t *symbol.Symbol) (*Class, error)

	// FindLinked links t without defining it.
	FindLinked(r *Resolution, t *symbol.Symbol, def Definition) (*LinkedClass, error)
}

// PackageAccess checks that code in a protection domain may use a class
// resolved by a non-boot loader.
type PackageAccess interface {
	CheckPackageAccess(loader *ClassLoader, c *Class, pd *ProtectionDomain) error
}

// Primitives resolves primitive element types of array names.
type Primitives interface {
	Primitive(t *symbol.Symbol) *Class
}

// LoadListener is notified after a class is durably defined.
type LoadListener interface {
	OnClassDefined(c *Class)
}

// ListenerFunc adapts a function to LoadListener.
type ListenerFunc func(c *Class)

func (f ListenerFunc) OnClassDefined(c *Class) { f(c) }

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

// entry is a value in the defined mapping.
type entry struct {
	class *Class
}

// Engine resolves, links and defines classes for one defining loader. It
// owns two caches keyed by type symbol: defined classes, and linked
// classes that have not been promoted to defined classes yet.
type Engine struct {
	loader      *ClassLoader
	symbols     *symbol.Table
	decoder     Decoder
	builder     Builder
	constraints Constraints
	delegate    Delegate
	access      PackageAccess
	primitives  Primitives

	enforceFinalSuper bool
	reservedPrefixes  []string

	defined      sync.Map // *symbol.Symbol -> *entry
	transitional sync.Map // *symbol.Symbol -> *LinkedClass
	locks        *lockTable

	listener atomic.Pointer[LoadListener]

	strongMu     sync.Mutex
	strongHidden []*Class

	stats counters
}

// Option configures an Engine.
type Option func(*Engine)

func WithDecoder(d Decoder) Option { return func(e *Engine) { e.decoder = d } }
func WithBuilder(b Builder) Option { return func(e *Engine) { e.builder = b } }
func WithConstraints(c Constraints) Option { return func(e *Engine) { e.constraints = c } }
func WithDelegate(d Delegate) Option { return func(e *Engine) { e.delegate = d } }
func WithPackageAccess(p PackageAccess) Option { return func(e *Engine) { e.access = p } }
func WithPrimitives(p Primitives) Option { return func(e *Engine) { e.primitives = p } }
func WithEnforceFinalSuper(enforce bool) Option { return func(e *Engine) { e.enforceFinalSuper = enforce } }

// WithReservedPrefixes replaces the internal-name prefixes only trusted
// loaders may define into. The default is "java/".
func WithReservedPrefixes(prefixes ...string) Option {
	return func(e *Engine) { e.reservedPrefixes = append([]string(nil), prefixes...) }
}

// NewEngine creates the engine for loader. Without WithDecoder the engine
// decodes the classfile wire format; without WithDelegate every miss is
// reported as absent.
func NewEngine(loader *ClassLoader, symbols *symbol.Table, opts ...Option) *Engine {
	e := &Engine{
		loader:            loader,
		symbols:           symbols,
		builder:           DefaultBuilder,
		constraints:       noConstraints{},
		delegate:          noDelegate{},
		enforceFinalSuper: true,
		reservedPrefixes:  []string{"java/"},
		locks:             newLockTable(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.decoder == nil {
		e.decoder = ClassfileDecoder{classfile.NewDecoder(symbols)}
	}
	return e
}

// SetDelegate installs the delegate after construction, for loaders that
// need the engine before they can build themselves.
func (e *Engine) SetDelegate(d Delegate) { e.delegate = d }

// Loader returns the identity of the loader this engine defines for.
func (e *Engine) Loader() *ClassLoader { return e.loader }

// Symbols returns the engine's symbol table.
func (e *Engine) Symbols() *symbol.Table { return e.symbols }

// RegisterLoadListener installs l, replacing any previous listener. It is
// called synchronously after every ordinary or strong hidden definition.
func (e *Engine) RegisterLoadListener(l LoadListener) {
	if l == nil {
		e.listener.Store(nil)
		return
	}
	e.listener.Store(&l)
}

// LoadedClasses returns a snapshot of every class registered by name.
func (e *Engine) LoadedClasses() []*Class {
	var out []*Class
	e.defined.Range(func(_, v any) bool {
		out = append(out, v.(*entry).class)
		return true
	})
	return out
}

// StrongHiddenClasses returns a snapshot of the strong hidden list.
func (e *Engine) StrongHiddenClasses() []*Class {
	e.strongMu.Lock()
	defer e.strongMu.Unlock()
	return append([]*Class(nil), e.strongHidden...)
}

// lookup is the non-blocking read of the defined mapping.
func (e *Engine) lookup(t *symbol.Symbol) *Class {
	if v, ok := e.defined.Load(t); ok {
		return v.(*entry).class
	}
	return nil
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

type noConstraints struct{}

func (noConstraints) RecordConstraint(*symbol.Symbol, *Class, *ClassLoader) error { return nil }
func (noConstraints) RemoveConstraint(*Class, *symbol.Symbol) {}
func (noConstraints) OnClassDefined(*Class) {}

type noDelegate struct{}

func (noDelegate) FindClass(*Resolution, *symbol.Symbol) (*Class, error) { return nil, nil }
func (noDelegate) FindLinked(*Resolution, *symbol.Symbol, Definition) (*LinkedClass, error) {
	return nil, nil
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats is a snapshot of the engine's diagnostic counters.
type Stats struct {
	LoadRequests       uint64
	LoadHits           uint64
	LinkedRequests     uint64
	LinkedHits         uint64
	Defined            uint64
	HiddenDefined      uint64
	Locks              int
	TransitionalLinked int
}

type counters struct {
	loads, loadHits, linked, linkedHits, defined, hidden atomic.Uint64
}

// Stats returns the engine's counters. They are diagnostics only.
func (e *Engine) Stats() Stats {
	transitional := 0
	e.transitional.Range(func(_, _ any) bool {
		transitional++
		return true
	})
	return Stats{
		LoadRequests:       e.stats.loads.Load(),
		LoadHits:           e.stats.loadHits.Load(),
		LinkedRequests:     e.stats.linked.Load(),
		LinkedHits:         e.stats.linkedHits.Load(),
		Defined:            e.stats.defined.Load(),
		HiddenDefined:      e.stats.hidden.Load(),
		Locks:              e.locks.size(),
		TransitionalLinked: transitional,
	}
}
