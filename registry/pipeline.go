package registry

import (
	"errors"
	"strings"

	"github.com/chazu/classreg/classfile"
	"github.com/chazu/classreg/symbol"
)

// ---------------------------------------------------------------------------
// Decode
// ---------------------------------------------------------------------------

// CreateRawDescriptor decodes data. Untrusted loaders may not define
// classes under a reserved package prefix.
func (e *Engine) CreateRawDescriptor(r *Resolution, data []byte, expected *symbol.Symbol, def Definition) (*classfile.RawDescriptor, error) {
	raw, err := e.decoder.Decode(data, e.loader, expected, normalize(def))
	if err != nil {
		return nil, classifyDecodeError(expected, err)
	}
	if !e.loader.IsTrusted() {
		name := symbol.ClassName(raw.Type)
		for _, prefix := range e.reservedPrefixes {
			if strings.HasPrefix(name, prefix) {
				return nil, newError(KindSecurity, raw.Type, "define class in prohibited package name: %s", name)
			}
		}
	}
	return raw, nil
}

func classifyDecodeError(expected *symbol.Symbol, err error) error {
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, classfile.ErrWrongName) {
		return &Error{Kind: KindNoClassDefFound, Type: expected, Cause: err}
	}
	return &Error{Kind: KindFormat, Type: expected, Cause: err}
}

// ---------------------------------------------------------------------------
// Link
// ---------------------------------------------------------------------------

// CreateLinkedClass links raw: its superclass and interfaces are linked
// recursively through LoadLinkedClass, with circularity checked against
// r's chain. For registered definitions a transitionally cached node for
// the same type is returned as is; anonymous and hidden classes are always
// linked from their own descriptor.
func (e *Engine) CreateLinkedClass(r *Resolution, raw *classfile.RawDescriptor, def Definition) (*LinkedClass, error) {
	t := raw.Type
	if addedToRegistry(def) {
		if v, ok := e.transitional.Load(t); ok {
			return v.(*LinkedClass), nil
		}
	}

	super, interfaces, err := e.linkSupertypes(r, raw, def)
	if err != nil {
		return nil, err
	}

	if e.enforceFinalSuper && super != nil && super.Flags().IsFinal() {
		return nil, newError(KindIncompatibleHierarchy, t, "class %s is a subclass of final class %s", t, raw.Super)
	}

	return e.builder.Build(raw, patchFlags(def, raw.Flags), super, interfaces)
}

// linkSupertypes resolves the direct supertypes of raw with raw's type on
// the chain. The type is popped on every return path. Supertypes are
// always linked as ordinary classes in the same protection domain.
func (e *Engine) linkSupertypes(r *Resolution, raw *classfile.RawDescriptor, def Definition) (*LinkedClass, []*LinkedClass, error) {
	r.push(raw.Type)
	defer r.pop()

	def = Ordinary{Domain: domainOf(def)}

	var super *LinkedClass
	if raw.Super != nil {
		if r.Contains(raw.Super) {
			return nil, nil, e.circularity(r, raw.Type, raw.Super)
		}
		lc, err := e.loadLinkedRecursively(r, raw.Type, raw.Super, def, true)
		if err != nil {
			return nil, nil, err
		}
		super = lc
	}

	interfaces := make([]*LinkedClass, len(raw.Interfaces))
	for i, it := range raw.Interfaces {
		if r.Contains(it) {
			return nil, nil, e.circularity(r, raw.Type, it)
		}
		lc, err := e.loadLinkedRecursively(r, raw.Type, it, def, false)
		if err != nil {
			return nil, nil, err
		}
		interfaces[i] = lc
	}
	return super, interfaces, nil
}

func (e *Engine) circularity(r *Resolution, t, edge *symbol.Symbol) error {
	return newError(KindCircularity, t, "%s -> %s", r, edge)
}

func (e *Engine) loadLinkedRecursively(r *Resolution, sub, t *symbol.Symbol, def Definition, notInterface bool) (*LinkedClass, error) {
	lc, err := e.LoadLinkedClass(r, t, def)
	if err != nil {
		return nil, err
	}
	if lc == nil {
		return nil, newError(KindNoClassDefFound, t, "%s (required by %s)", t, sub)
	}
	if notInterface == lc.IsInterface() {
		return nil, roleMismatch(sub, t, notInterface)
	}
	return lc, nil
}

func roleMismatch(sub, t *symbol.Symbol, notInterface bool) error {
	if notInterface {
		return newError(KindIncompatibleHierarchy, sub, "class %s has interface %s as super class", sub, t)
	}
	return newError(KindIncompatibleHierarchy, sub, "super interface %s of %s is in fact not an interface", t, sub)
}

// ---------------------------------------------------------------------------
// Define
// ---------------------------------------------------------------------------

// DefineClass decodes, links and defines a class from data. Ordinary
// definitions are registered by name and fail with KindDuplicateDefinition
// if the name is taken; strong hidden classes go to the strong list;
// anonymous and weak hidden classes are only returned.
func (e *Engine) DefineClass(r *Resolution, expected *symbol.Symbol, data []byte, def Definition) (*Class, error) {
	def = normalize(def)
	raw, err := e.CreateRawDescriptor(r, data, expected, def)
	if err != nil {
		return nil, err
	}
	t := raw.Type

	if addedToRegistry(def) {
		release, err := e.locks.acquire(r, t)
		if err != nil {
			return nil, err
		}
		defer release()

		if e.lookup(t) != nil {
			return nil, newError(KindDuplicateDefinition, t, "class %s already defined by %s", t, e.loader)
		}
	}

	linked, err := e.CreateLinkedClass(r, raw, def)
	if err != nil {
		return nil, err
	}
	c, err := e.createClass(r, linked, def)
	if err != nil {
		return nil, err
	}

	switch {
	case addedToRegistry(def):
		if err := e.registerClass(c, t); err != nil {
			return nil, err
		}
	case isStrongHidden(def):
		e.registerStrongHidden(c)
	default:
		e.stats.hidden.Add(1)
		log.Debugf("defined unregistered class %s in %s", c, e.loader)
	}
	return c, nil
}

// createClass resolves the supertypes of linked as defined classes and
// builds the Class, then runs the access and sealing checks.
func (e *Engine) createClass(r *Resolution, linked *LinkedClass, def Definition) (*Class, error) {
	t := linked.Type()

	var super *Class
	if ls := linked.Super(); ls != nil {
		sc, err := e.loadClassRecursively(r, t, ls.Type(), true)
		if err != nil {
			return nil, err
		}
		super = sc
	}

	linkedInterfaces := linked.Interfaces()
	interfaces := make([]*Class, len(linkedInterfaces))
	for i, li := range linkedInterfaces {
		ic, err := e.loadClassRecursively(r, t, li.Type(), false)
		if err != nil {
			return nil, err
		}
		interfaces[i] = ic
	}

	if e.enforceFinalSuper && super != nil && super.IsFinal() {
		return nil, newError(KindIncompatibleHierarchy, t, "class %s is a subclass of final class %s", t, super)
	}

	c := newClass(e.symbols, linked, e.loader, super, interfaces, def)

	if super != nil {
		if !super.accessibleFrom(c) {
			return nil, newError(KindIllegalAccess, t, "class %s cannot access its superclass %s", t, super)
		}
		if !super.permitsSubclass(c) {
			return nil, newError(KindIncompatibleHierarchy, t, "class %s is not a permitted subclass of class %s", t, super)
		}
	}
	for _, iface := range interfaces {
		if !iface.accessibleFrom(c) {
			return nil, newError(KindIllegalAccess, t, "class %s cannot access its superinterface %s", t, iface)
		}
		if !iface.permitsSubclass(c) {
			return nil, newError(KindIncompatibleHierarchy, t, "class %s is not a permitted subclass of interface %s", t, iface)
		}
	}
	return c, nil
}

// loadClassRecursively resolves a supertype as a defined class. A missing
// type is a KindNoClassDefFound failure carrying any not-found cause.
func (e *Engine) loadClassRecursively(r *Resolution, sub, t *symbol.Symbol, notInterface bool) (*Class, error) {
	c, err := e.LoadClass(r, t, nil)
	if err != nil {
		var le *Error
		if errors.As(err, &le) && le.Kind == KindClassNotFound {
			return nil, &Error{Kind: KindNoClassDefFound, Type: t, Msg: t.String(), Cause: err}
		}
		return nil, err
	}
	if c == nil {
		return nil, newError(KindNoClassDefFound, t, "%s (required by %s)", t, sub)
	}
	if notInterface == c.IsInterface() {
		return nil, roleMismatch(sub, t, notInterface)
	}
	return c, nil
}
