package registry

import (
	"github.com/chazu/classreg/classfile"
	"github.com/chazu/classreg/symbol"
)

// ---------------------------------------------------------------------------
// LinkedClass: structurally resolved, not yet defined
// ---------------------------------------------------------------------------

// LinkedClass is the immutable structural node produced by linking: the
// resolved supertypes plus the computed instance layout.
type LinkedClass struct {
	typ        *symbol.Symbol
	super      *LinkedClass
	interfaces []*LinkedClass
	flags      classfile.Flags
	permitted  []*symbol.Symbol
	members    []classfile.Member
	fieldNames []string // declared instance fields
	numFields  int      // instance fields including inherited ones
}

func (lc *LinkedClass) Type() *symbol.Symbol { return lc.typ }
func (lc *LinkedClass) Super() *LinkedClass { return lc.super }
func (lc *LinkedClass) Flags() classfile.Flags { return lc.flags }
func (lc *LinkedClass) IsInterface() bool { return lc.flags.IsInterface() }
func (lc *LinkedClass) Permitted() []*symbol.Symbol { return lc.permitted }
func (lc *LinkedClass) Members() []classfile.Member { return lc.members }
func (lc *LinkedClass) NumFields() int { return lc.numFields }
func (lc *LinkedClass) Interfaces() []*LinkedClass { return append([]*LinkedClass(nil), lc.interfaces...) }
func (lc *LinkedClass) DeclaredFieldNames() []string { return lc.fieldNames }

// FieldIndex returns the slot index of an instance field, searching
// superclasses, or -1 if the field does not exist.
func (lc *LinkedClass) FieldIndex(name string) int {
	for i, n := range lc.fieldNames {
		if n == name {
			return lc.fieldOffset() + i
		}
	}
	if lc.super != nil {
		return lc.super.FieldIndex(name)
	}
	return -1
}

// fieldOffset is the first slot index of this class's own fields.
func (lc *LinkedClass) fieldOffset() int {
	if lc.super == nil {
		return 0
	}
	return lc.super.numFields
}

// Builder allocates LinkedClass nodes. It performs no resolution: super
// and interfaces are already linked when Build is called.
type Builder interface {
	Build(raw *classfile.RawDescriptor, flags classfile.Flags, super *LinkedClass, interfaces []*LinkedClass) (*LinkedClass, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(raw *classfile.RawDescriptor, flags classfile.Flags, super *LinkedClass, interfaces []*LinkedClass) (*LinkedClass, error)

func (f BuilderFunc) Build(raw *classfile.RawDescriptor, flags classfile.Flags, super *LinkedClass, interfaces []*LinkedClass) (*LinkedClass, error) {
	return f(raw, flags, super, interfaces)
}

// DefaultBuilder lays out non-static fields after the superclass's fields.
var DefaultBuilder Builder = BuilderFunc(NewLinkedClass)

// NewLinkedClass allocates a LinkedClass for raw with the given patched
// flags and resolved supertypes.
func NewLinkedClass(raw *classfile.RawDescriptor, flags classfile.Flags, super *LinkedClass, interfaces []*LinkedClass) (*LinkedClass, error) {
	lc := &LinkedClass{
		typ:        raw.Type,
		super:      super,
		interfaces: interfaces,
		flags:      flags,
		permitted:  raw.Permitted,
		members:    raw.Members,
	}
	for _, m := range raw.Members {
		if !m.Method && !m.Flags.IsStatic() {
			lc.fieldNames = append(lc.fieldNames, m.Name)
		}
	}
	lc.numFields = lc.fieldOffset() + len(lc.fieldNames)
	return lc, nil
}
