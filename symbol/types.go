package symbol

import "strings"

// ---------------------------------------------------------------------------
// Type descriptors
// ---------------------------------------------------------------------------

// Type symbols use descriptor syntax:
//
//	Lpkg/Name;   a class or interface
//	[Lpkg/Name;  an array, one '[' per dimension
//	I, J, Z ...  a primitive
const (
	arrayPrefix = '['
	classPrefix = 'L'
	classSuffix = ';'
	primitives  = "BCDFIJSZV"
)

// IsArray reports whether s names an array type.
func IsArray(s *Symbol) bool {
	return s != nil && len(s.name) > 1 && s.name[0] == arrayPrefix
}

// IsPrimitive reports whether s names a primitive type.
func IsPrimitive(s *Symbol) bool {
	return s != nil && len(s.name) == 1 && strings.IndexByte(primitives, s.name[0]) >= 0
}

// IsClass reports whether s names a class or interface type.
func IsClass(s *Symbol) bool {
	return s != nil && isClassDescriptor(s.name)
}

func isClassDescriptor(name string) bool {
	return len(name) > 2 && name[0] == classPrefix && name[len(name)-1] == classSuffix
}

// Dimensions returns the number of array dimensions of s (0 for non-arrays).
func Dimensions(s *Symbol) int {
	if s == nil {
		return 0
	}
	n := 0
	for n < len(s.name) && s.name[n] == arrayPrefix {
		n++
	}
	return n
}

// ClassName returns the internal name ("pkg/Name") of a class symbol,
// or the raw descriptor for anything else.
func ClassName(s *Symbol) string {
	if !IsClass(s) {
		return s.String()
	}
	return s.name[1 : len(s.name)-1]
}

// PackageOf returns the package part of a class symbol's internal name,
// "" for the unnamed package.
func PackageOf(s *Symbol) string {
	name := ClassName(s)
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[:i]
	}
	return ""
}

// Elemental strips every array dimension from s. Non-arrays are returned
// unchanged.
func (t *Table) Elemental(s *Symbol) *Symbol {
	dims := Dimensions(s)
	if dims == 0 {
		return s
	}
	return t.Intern(s.name[dims:])
}

// ArrayOf returns the symbol for a dims-dimensional array of elem.
func (t *Table) ArrayOf(elem *Symbol, dims int) *Symbol {
	if dims <= 0 {
		return elem
	}
	return t.Intern(strings.Repeat(string(arrayPrefix), dims) + elem.name)
}

// FromClassName interns the class symbol for an internal name such as
// "java/lang/Object". Names already in descriptor form are interned as is.
func (t *Table) FromClassName(name string) *Symbol {
	if isClassDescriptor(name) || (len(name) > 0 && name[0] == arrayPrefix) {
		return t.Intern(name)
	}
	return t.Intern(string(classPrefix) + name + string(classSuffix))
}
