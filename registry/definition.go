package registry

import "github.com/chazu/classreg/classfile"

// ---------------------------------------------------------------------------
// Definition: how a class is being defined
// ---------------------------------------------------------------------------

// Definition describes the kind of a class definition. It is a closed
// union: Ordinary, Anonymous, or Hidden. A nil Definition is treated as
// Ordinary with no protection domain.
type Definition interface {
	definition()
}

// ProtectionDomain is the opaque security context a class is defined in.
// A nil domain means trusted code.
type ProtectionDomain struct {
	CodeSource string
}

// Ordinary is a regular, name-registered definition.
type Ordinary struct {
	Domain *ProtectionDomain
}

// Anonymous is an unsafe anonymous definition bound to a host class. It is
// never registered by name.
type Anonymous struct {
	Domain  *ProtectionDomain
	Host    *Class
	Patches []any
}

// Hidden is a hidden definition nested in a dynamic nest host. It is never
// registered by name; Strong hidden classes are kept reachable from the
// engine's strong list for the engine's lifetime.
type Hidden struct {
	Domain    *ProtectionDomain
	Nest      *Class
	ClassData any
	Strong    bool
}

func (Ordinary) definition() {}
func (Anonymous) definition() {}
func (Hidden) definition() {}

// normalize maps nil to the default ordinary definition.
func normalize(def Definition) Definition {
	if def == nil {
		return Ordinary{}
	}
	return def
}

// addedToRegistry reports whether classes of this definition are entered
// into the name-keyed cache.
func addedToRegistry(def Definition) bool {
	switch normalize(def).(type) {
	case Ordinary:
		return true
	default:
		return false
	}
}

func isStrongHidden(def Definition) bool {
	h, ok := def.(Hidden)
	return ok && h.Strong
}

func isHidden(def Definition) bool {
	_, ok := def.(Hidden)
	return ok
}

func domainOf(def Definition) *ProtectionDomain {
	switch d := normalize(def).(type) {
	case Ordinary:
		return d.Domain
	case Anonymous:
		return d.Domain
	case Hidden:
		return d.Domain
	}
	return nil
}

// patchFlags adds runtime-only flags implied by the definition.
func patchFlags(def Definition, flags classfile.Flags) classfile.Flags {
	if isHidden(def) {
		flags |= classfile.AccHidden
	}
	return flags
}
