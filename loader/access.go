package loader

import (
	"strings"

	"github.com/chazu/classreg/registry"
	"github.com/chazu/classreg/symbol"
)

// primitiveDescriptors are the primitive type symbols, void included.
const primitiveDescriptors = "BCDFIJSZV"

// primitives holds one boot-owned class per primitive type.
type primitives map[*symbol.Symbol]*registry.Class

func newPrimitives(syms *symbol.Table) primitives {
	p := make(primitives, len(primitiveDescriptors))
	for _, d := range primitiveDescriptors {
		t := syms.Intern(string(d))
		p[t] = registry.NewPrimitiveClass(syms, t)
	}
	return p
}

func (p primitives) Primitive(t *symbol.Symbol) *registry.Class { return p[t] }

// packageAccess denies code running in a protection domain the use of
// classes in restricted packages. Trusted code (a nil domain) is never
// checked.
type packageAccess struct {
	restricted []string
}

func (a packageAccess) CheckPackageAccess(loader *registry.ClassLoader, c *registry.Class, pd *registry.ProtectionDomain) error {
	if pd == nil || len(a.restricted) == 0 {
		return nil
	}
	pkg := c.Package()
	for _, p := range a.restricted {
		p = strings.TrimSuffix(strings.ReplaceAll(p, ".", "/"), "/")
		if pkg == p || strings.HasPrefix(pkg, p+"/") {
			log.Warningf("%s: denied access to %s from %s", loader, c, pd.CodeSource)
			return &registry.Error{
				Kind: registry.KindSecurity,
				Type: c.Type(),
				Msg:  "access to package " + pkg + " denied to " + pd.CodeSource,
			}
		}
	}
	return nil
}

var (
	_ registry.Primitives    = primitives(nil)
	_ registry.PackageAccess = packageAccess{}
)
