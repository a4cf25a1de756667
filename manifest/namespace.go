package manifest

import (
	"fmt"
	"strings"

	"github.com/chazu/classreg/loader"
)

// PackagePrefix converts a package prefix given in binary ("java.lang")
// or internal ("java/lang/") form into the internal form with a trailing
// slash.
func PackagePrefix(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), ".", "/")
	s = strings.Trim(s, "/")
	if s == "" {
		return ""
	}
	return s + "/"
}

func normalizePrefixes(prefixes []string) ([]string, error) {
	var out []string
	for _, p := range prefixes {
		if strings.ContainsAny(p, ";[") {
			return nil, fmt.Errorf("reserved prefix %q is not a package name", p)
		}
		n := PackagePrefix(p)
		if n == "" {
			return nil, fmt.Errorf("reserved prefix %q is empty", p)
		}
		out = append(out, n)
	}
	return out, nil
}

// builtinLoaders maps the names of built-in loaders to their kind.
var builtinLoaders = map[string]string{
	loader.BootName:     "boot",
	loader.PlatformName: "platform",
}

// IsBuiltinLoader reports whether name refers to a loader every graph
// already has.
func IsBuiltinLoader(name string) bool {
	_, ok := builtinLoaders[name]
	return ok
}

func defaultKind(name string) string {
	if k, ok := builtinLoaders[name]; ok {
		return k
	}
	return "app"
}
