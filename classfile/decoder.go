package classfile

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/chazu/classreg/symbol"
)

// RawDescriptor is the unlinked result of decoding a class file. It is
// consumed once by the link phase and never cached.
type RawDescriptor struct {
	Type       *symbol.Symbol
	Super      *symbol.Symbol // nil only for the hierarchy root
	Interfaces []*symbol.Symbol
	Flags      Flags
	Permitted  []*symbol.Symbol
	Members    []Member
	Major      uint16
	Minor      uint16
}

// IsRoot reports whether the descriptor declares no superclass.
func (d *RawDescriptor) IsRoot() bool { return d.Super == nil }

// Options tune a single Decode call.
type Options struct {
	// Expected, when set, is the type the caller asked for. A file
	// declaring a different name fails with ErrWrongName.
	Expected *symbol.Symbol

	// Hidden requests a hidden-class name: the declared name gets a
	// "+N" suffix unique to this decoder, and Expected is ignored.
	Hidden bool
}

// Decoder turns class-file bytes into raw descriptors.
type Decoder struct {
	symbols  *symbol.Table
	hiddenID atomic.Uint64
}

// NewDecoder creates a decoder interning names into symbols.
func NewDecoder(symbols *symbol.Table) *Decoder {
	return &Decoder{symbols: symbols}
}

// Symbols returns the table names are interned into.
func (d *Decoder) Symbols() *symbol.Table { return d.symbols }

// Decode parses and checks data.
func (d *Decoder) Decode(data []byte, opts Options) (*RawDescriptor, error) {
	f, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if f.Magic != Magic {
		return nil, fmt.Errorf("%w: 0x%08X", ErrBadMagic, f.Magic)
	}
	if f.Major < MinMajorVersion || f.Major > MaxMajorVersion {
		return nil, fmt.Errorf("%w: %d.%d", ErrVersion, f.Major, f.Minor)
	}
	if err := checkName(f.Name); err != nil {
		return nil, err
	}
	if err := checkFlags(f); err != nil {
		return nil, err
	}

	name := f.Name
	if opts.Hidden {
		name = fmt.Sprintf("%s+%d", name, d.hiddenID.Add(1))
	}
	raw := &RawDescriptor{
		Type:    d.symbols.FromClassName(name),
		Flags:   f.Flags & classFileMask,
		Members: f.Members,
		Major:   f.Major,
		Minor:   f.Minor,
	}
	if !opts.Hidden && opts.Expected != nil && opts.Expected != raw.Type {
		return nil, fmt.Errorf("%w: %s (wrong name: %s)", ErrWrongName, opts.Expected, f.Name)
	}

	switch {
	case f.Super == "" && f.Name != RootClass:
		return nil, fmt.Errorf("%w: %s has no superclass", ErrBadHierarchy, f.Name)
	case f.Super != "" && f.Name == RootClass:
		return nil, fmt.Errorf("%w: %s cannot have a superclass", ErrBadHierarchy, f.Name)
	case f.Super != "":
		if err := checkName(f.Super); err != nil {
			return nil, err
		}
		if f.Flags.IsInterface() && f.Super != RootClass {
			return nil, fmt.Errorf("%w: interface %s must extend %s", ErrBadHierarchy, f.Name, RootClass)
		}
		raw.Super = d.symbols.FromClassName(f.Super)
	}

	if raw.Interfaces, err = d.internAll(f.Interfaces); err != nil {
		return nil, err
	}
	if raw.Permitted, err = d.internAll(f.Permitted); err != nil {
		return nil, err
	}
	return raw, nil
}

func (d *Decoder) internAll(names []string) ([]*symbol.Symbol, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]*symbol.Symbol, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if err := checkName(n); err != nil {
			return nil, err
		}
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, n)
		}
		seen[n] = struct{}{}
		out = append(out, d.symbols.FromClassName(n))
	}
	return out, nil
}

// checkName accepts internal names such as "pkg/sub/Name".
func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, ".;[") ||
		strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") || strings.Contains(name, "//") {
		return fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return nil
}

func checkFlags(f *File) error {
	flags := f.Flags
	if flags.IsInterface() {
		if !flags.IsAbstract() || flags.IsFinal() || flags.Has(AccEnum) {
			return fmt.Errorf("%w: interface %s is %q", ErrBadFlags, f.Name, flags)
		}
	}
	if flags.IsFinal() && flags.IsAbstract() {
		return fmt.Errorf("%w: %s is both final and abstract", ErrBadFlags, f.Name)
	}
	if flags.Has(AccAnnotation) && !flags.IsInterface() {
		return fmt.Errorf("%w: annotation %s is not an interface", ErrBadFlags, f.Name)
	}
	if flags.IsFinal() && len(f.Permitted) > 0 {
		return fmt.Errorf("%w: final class %s cannot list permitted subclasses", ErrBadFlags, f.Name)
	}
	return nil
}
