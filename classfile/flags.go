package classfile

import (
	"fmt"
	"sort"
	"strings"
)

// Flags holds class or member access flags.
type Flags uint32

// Access flags. The low 16 bits follow the class-file layout; bits above
// that are runtime-only markers patched in during definition.
const (
	AccPublic     Flags = 0x0001
	AccPrivate    Flags = 0x0002
	AccProtected  Flags = 0x0004
	AccStatic     Flags = 0x0008
	AccFinal      Flags = 0x0010
	AccSuper      Flags = 0x0020
	AccInterface  Flags = 0x0200
	AccAbstract   Flags = 0x0400
	AccSynthetic  Flags = 0x1000
	AccAnnotation Flags = 0x2000
	AccEnum       Flags = 0x4000
	AccModule     Flags = 0x8000

	// AccHidden marks classes defined through a hidden definition.
	AccHidden Flags = 0x04000000

	classFileMask Flags = 0xFFFF
)

var flagNames = map[string]Flags{
	"public":     AccPublic,
	"private":    AccPrivate,
	"protected":  AccProtected,
	"static":     AccStatic,
	"final":      AccFinal,
	"super":      AccSuper,
	"interface":  AccInterface,
	"abstract":   AccAbstract,
	"synthetic":  AccSynthetic,
	"annotation": AccAnnotation,
	"enum":       AccEnum,
	"module":     AccModule,
}

// Has reports whether every bit of mask is set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

func (f Flags) IsPublic() bool { return f.Has(AccPublic) }
func (f Flags) IsFinal() bool { return f.Has(AccFinal) }
func (f Flags) IsInterface() bool { return f.Has(AccInterface) }
func (f Flags) IsAbstract() bool { return f.Has(AccAbstract) }
func (f Flags) IsStatic() bool { return f.Has(AccStatic) }
func (f Flags) IsHidden() bool { return f.Has(AccHidden) }

// String renders the set flag names, sorted, separated by spaces.
func (f Flags) String() string {
	var names []string
	for name, bit := range flagNames {
		if f.Has(bit) {
			names = append(names, name)
		}
	}
	if f.IsHidden() {
		names = append(names, "hidden")
	}
	sort.Strings(names)
	return strings.Join(names, " ")
}

// ParseFlags converts flag names ("public", "final", ...) into Flags.
func ParseFlags(names []string) (Flags, error) {
	var f Flags
	for _, n := range names {
		bit, ok := flagNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return 0, fmt.Errorf("unknown access flag %q", n)
		}
		f |= bit
	}
	return f, nil
}
