package registry

import (
	"sync"
	"sync/atomic"

	"github.com/chazu/classreg/classfile"
	"github.com/chazu/classreg/symbol"
)

// ---------------------------------------------------------------------------
// Class: a defined runtime class
// ---------------------------------------------------------------------------

var nextClassID atomic.Uint64

// Class is a fully defined class owned by the engine of its defining
// loader. Array and primitive classes are Classes too, but are never
// stored in an engine: arrays hang off their elemental class.
type Class struct {
	id         uint64
	name       atomic.Pointer[symbol.Symbol]
	symbols    *symbol.Table
	linked     *LinkedClass
	flags      classfile.Flags
	loader     *ClassLoader
	super      *Class
	interfaces []*Class
	def        Definition

	// Array shape. elemental is nil for non-array classes.
	elemental *Class
	component *Class
	dims      int
	primitive bool

	arraysMu sync.Mutex
	arrays   []*Class // arrays[i] has i+1 dimensions
}

func newClass(symbols *symbol.Table, linked *LinkedClass, loader *ClassLoader, super *Class, interfaces []*Class, def Definition) *Class {
	c := &Class{
		id:         nextClassID.Add(1),
		symbols:    symbols,
		linked:     linked,
		flags:      linked.Flags(),
		loader:     loader,
		super:      super,
		interfaces: interfaces,
		def:        normalize(def),
	}
	c.name.Store(linked.Type())
	return c
}

// NewPrimitiveClass creates the class object for a primitive type such as
// "I". Primitive classes belong to the boot loader.
func NewPrimitiveClass(symbols *symbol.Table, t *symbol.Symbol) *Class {
	c := &Class{
		id:        nextClassID.Add(1),
		symbols:   symbols,
		flags:     classfile.AccPublic | classfile.AccFinal | classfile.AccAbstract,
		def:       Ordinary{},
		primitive: true,
	}
	c.name.Store(t)
	return c
}

// ID returns the class's unique, monotonically assigned identity.
func (c *Class) ID() uint64 { return c.id }

// Type returns the class's current type symbol.
func (c *Class) Type() *symbol.Symbol { return c.name.Load() }

// Rename changes the class's type. Redefinition tooling calls it before
// handing the class to Engine.OnClassRenamed.
func (c *Class) Rename(t *symbol.Symbol) { c.name.Store(t) }

func (c *Class) String() string { return c.Type().String() }

// Linked returns the structural node, nil for array and primitive classes.
func (c *Class) Linked() *LinkedClass { return c.linked }

func (c *Class) Flags() classfile.Flags { return c.flags }
func (c *Class) Loader() *ClassLoader { return c.loader }
func (c *Class) Super() *Class { return c.super }
func (c *Class) Definition() Definition { return c.def }
func (c *Class) IsInterface() bool { return c.flags.IsInterface() }
func (c *Class) IsFinal() bool { return c.flags.IsFinal() }
func (c *Class) IsPublic() bool { return c.flags.IsPublic() }
func (c *Class) IsHidden() bool { return c.flags.IsHidden() }
func (c *Class) IsPrimitive() bool { return c.primitive }
func (c *Class) IsArray() bool { return c.dims > 0 }

// Interfaces returns the directly implemented interfaces in declaration
// order.
func (c *Class) Interfaces() []*Class { return append([]*Class(nil), c.interfaces...) }

// IsAnonymous reports whether c was defined as an unsafe anonymous class.
func (c *Class) IsAnonymous() bool {
	_, ok := c.def.(Anonymous)
	return ok
}

// Host returns the host class of an anonymous class, or nil.
func (c *Class) Host() *Class {
	if a, ok := c.def.(Anonymous); ok {
		return a.Host
	}
	return nil
}

// Package returns the package of the class's internal name.
func (c *Class) Package() string {
	if c.elemental != nil {
		return c.elemental.Package()
	}
	return symbol.PackageOf(c.Type())
}

// Dimensions returns the array dimension count, 0 for non-arrays.
func (c *Class) Dimensions() int { return c.dims }

// Elemental returns the innermost element class of an array, or c itself.
func (c *Class) Elemental() *Class {
	if c.elemental == nil {
		return c
	}
	return c.elemental
}

// Component returns the element class of an array with one dimension
// fewer, or nil for non-arrays.
func (c *Class) Component() *Class { return c.component }

// IsSubclassOf reports whether c is other or extends it.
func (c *Class) IsSubclassOf(other *Class) bool {
	for current := c; current != nil; current = current.super {
		if current == other {
			return true
		}
	}
	return false
}

// Implements reports whether c or one of its superclasses implements
// iface, directly or through superinterfaces.
func (c *Class) Implements(iface *Class) bool {
	for current := c; current != nil; current = current.super {
		for _, i := range current.interfaces {
			if i == iface || i.Implements(iface) {
				return true
			}
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Array derivation
// ---------------------------------------------------------------------------

// ArrayClass returns the array class with dims more dimensions than c.
// Results are memoized on the elemental class, so repeated calls return
// the identical instance.
func (c *Class) ArrayClass(dims int) *Class {
	if dims <= 0 {
		return c
	}
	if c.elemental != nil {
		return c.elemental.ArrayClass(c.dims + dims)
	}

	c.arraysMu.Lock()
	defer c.arraysMu.Unlock()

	for len(c.arrays) < dims {
		component := c
		if n := len(c.arrays); n > 0 {
			component = c.arrays[n-1]
		}
		c.arrays = append(c.arrays, c.newArray(component, len(c.arrays)+1))
	}
	return c.arrays[dims-1]
}

func (c *Class) newArray(component *Class, dims int) *Class {
	arr := &Class{
		id:        nextClassID.Add(1),
		symbols:   c.symbols,
		flags:     classfile.AccFinal | classfile.AccAbstract | (c.flags & classfile.AccPublic),
		loader:    c.loader,
		super:     c.root(),
		def:       Ordinary{},
		elemental: c,
		component: component,
		dims:      dims,
	}
	arr.name.Store(c.symbols.ArrayOf(c.Type(), dims))
	return arr
}

// root walks to the top of c's superclass chain. Primitives have none.
func (c *Class) root() *Class {
	if c.primitive {
		return nil
	}
	r := c
	for r.super != nil {
		r = r.super
	}
	return r
}

// ---------------------------------------------------------------------------
// Visibility and sealing
// ---------------------------------------------------------------------------

// sameRuntimePackage reports whether both classes share a defining loader
// and a package name.
func (c *Class) sameRuntimePackage(other *Class) bool {
	return c.Elemental().loader == other.Elemental().loader && c.Package() == other.Package()
}

// accessibleFrom reports whether accessor may reference c under standard
// class accessibility: public, or same runtime package. Anonymous classes
// access through their host.
func (c *Class) accessibleFrom(accessor *Class) bool {
	if c.IsPublic() {
		return true
	}
	if host := accessor.Host(); host != nil {
		accessor = host
	}
	return c.sameRuntimePackage(accessor)
}

// permitsSubclass reports whether sub may extend or implement c. Classes
// without a permitted-subclass list are unrestricted.
func (c *Class) permitsSubclass(sub *Class) bool {
	if c.linked == nil || len(c.linked.permitted) == 0 {
		return true
	}
	if c.loader != sub.loader {
		return false
	}
	if !c.IsPublic() && !c.sameRuntimePackage(sub) {
		return false
	}
	for _, p := range c.linked.permitted {
		if p == sub.Type() {
			return true
		}
	}
	return false
}
