package registry

import (
	"fmt"

	"github.com/google/uuid"
)

// LoaderKind distinguishes the built-in loaders from application loaders.
type LoaderKind uint8

const (
	// BootLoader is the null loader: trusted, no package-access checks.
	BootLoader LoaderKind = iota
	// PlatformLoader is trusted but is a real loader object.
	PlatformLoader
	// AppLoader is any untrusted application or user loader.
	AppLoader
)

func (k LoaderKind) String() string {
	switch k {
	case BootLoader:
		return "boot"
	case PlatformLoader:
		return "platform"
	case AppLoader:
		return "app"
	}
	return fmt.Sprintf("LoaderKind(%d)", uint8(k))
}

// ParseLoaderKind parses "boot", "platform" or "app".
func ParseLoaderKind(s string) (LoaderKind, error) {
	switch s {
	case "boot":
		return BootLoader, nil
	case "platform":
		return PlatformLoader, nil
	case "app", "":
		return AppLoader, nil
	}
	return 0, fmt.Errorf("unknown loader kind %q", s)
}

// ClassLoader is the identity of a defining loader.
type ClassLoader struct {
	ID   uuid.UUID
	Name string
	Kind LoaderKind
}

// NewClassLoader creates a loader identity with a fresh id.
func NewClassLoader(name string, kind LoaderKind) *ClassLoader {
	return &ClassLoader{ID: uuid.New(), Name: name, Kind: kind}
}

// IsBoot reports whether l is the null (boot) loader.
func (l *ClassLoader) IsBoot() bool { return l == nil || l.Kind == BootLoader }

// IsTrusted reports whether l may define classes in reserved packages.
func (l *ClassLoader) IsTrusted() bool {
	return l.IsBoot() || l.Kind == PlatformLoader
}

func (l *ClassLoader) String() string {
	if l == nil {
		return "<boot>"
	}
	return fmt.Sprintf("%s(%s)", l.Name, l.Kind)
}
