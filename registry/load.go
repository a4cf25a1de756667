package registry

import (
	"github.com/chazu/classreg/symbol"
)

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

// LoadClass resolves t to a defined class. Array types resolve their
// elemental type and derive the array class from it. A nil class with a
// nil error means the type could not be found.
//
// On a miss the per-symbol lock is taken and the delegate consulted. A
// class the delegate obtained from another loader is recorded here as an
// initiated entry. Classes resolved by a non-boot loader are checked for
// package access against pd.
func (e *Engine) LoadClass(r *Resolution, t *symbol.Symbol, pd *ProtectionDomain) (*Class, error) {
	if symbol.IsArray(t) {
		return e.loadArray(r, t, pd)
	}
	if symbol.IsPrimitive(t) {
		return e.primitive(t), nil
	}

	e.stats.loads.Add(1)
	c := e.lookup(t)
	if c != nil {
		e.stats.loadHits.Add(1)
	} else {
		var err error
		if c, err = e.loadLocked(r, t); err != nil || c == nil {
			return nil, err
		}
	}

	if e.access != nil && !e.loader.IsBoot() {
		if err := e.access.CheckPackageAccess(e.loader, c, pd); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// loadLocked is the slow path of LoadClass, run under t's lock.
func (e *Engine) loadLocked(r *Resolution, t *symbol.Symbol) (*Class, error) {
	release, err := e.locks.acquire(r, t)
	if err != nil {
		return nil, err
	}
	defer release()

	if c := e.lookup(t); c != nil {
		return c, nil
	}
	found, err := e.delegate.FindClass(r, t)
	if err != nil || found == nil {
		return nil, err
	}
	if c := e.lookup(t); c != nil {
		return c, nil
	}
	return e.registerInitiated(found, t)
}

func (e *Engine) loadArray(r *Resolution, t *symbol.Symbol, pd *ProtectionDomain) (*Class, error) {
	elem := e.symbols.Elemental(t)
	var ec *Class
	if symbol.IsPrimitive(elem) {
		ec = e.primitive(elem)
	} else {
		c, err := e.LoadClass(r, elem, pd)
		if err != nil {
			return nil, err
		}
		ec = c
	}
	if ec == nil {
		return nil, nil
	}
	return ec.ArrayClass(symbol.Dimensions(t)), nil
}

func (e *Engine) primitive(t *symbol.Symbol) *Class {
	if e.primitives == nil {
		return nil
	}
	return e.primitives.Primitive(t)
}

// LoadLinkedClass resolves t to a linked node without defining it. A
// defined class answers with its own node and evicts any transitional
// entry for t; otherwise the delegate links t under the per-symbol lock
// and the result is cached transitionally until t is defined.
func (e *Engine) LoadLinkedClass(r *Resolution, t *symbol.Symbol, def Definition) (*LinkedClass, error) {
	if symbol.IsArray(t) || symbol.IsPrimitive(t) {
		return nil, newError(KindLinkage, t, "%s has no linked form", t)
	}

	e.stats.linked.Add(1)
	if c := e.lookup(t); c != nil {
		e.stats.linkedHits.Add(1)
		e.transitional.Delete(t)
		return c.Linked(), nil
	}

	release, err := e.locks.acquire(r, t)
	if err != nil {
		return nil, err
	}
	defer release()

	if c := e.lookup(t); c != nil {
		e.transitional.Delete(t)
		return c.Linked(), nil
	}
	if v, ok := e.transitional.Load(t); ok {
		e.stats.linkedHits.Add(1)
		return v.(*LinkedClass), nil
	}

	lc, err := e.delegate.FindLinked(r, t, def)
	if err != nil || lc == nil {
		return nil, err
	}
	if e.lookup(t) == nil {
		e.transitional.Store(t, lc)
	}
	return lc, nil
}

// FindLoadedClass returns the class registered for t without loading. For
// arrays the elemental type must already be loaded.
func (e *Engine) FindLoadedClass(t *symbol.Symbol) *Class {
	if symbol.IsArray(t) {
		elem := e.symbols.Elemental(t)
		var ec *Class
		if symbol.IsPrimitive(elem) {
			ec = e.primitive(elem)
		} else {
			ec = e.FindLoadedClass(elem)
		}
		if ec == nil {
			return nil
		}
		return ec.ArrayClass(symbol.Dimensions(t))
	}
	if symbol.IsPrimitive(t) {
		return e.primitive(t)
	}
	return e.lookup(t)
}
