package classfile

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// ---------------------------------------------------------------------------
// TOML class specs
// ---------------------------------------------------------------------------

// Spec is a human-editable description of one or more classes, packed into
// class files by `classreg pack` and by tests.
//
//	[[class]]
//	name = "com/acme/Widget"
//	super = "java/lang/Object"
//	interfaces = ["com/acme/Shape"]
//	flags = ["public", "final"]
//
//	  [[class.member]]
//	  name = "width"
//	  descriptor = "I"
//	  flags = ["private"]
type Spec struct {
	Classes []ClassSpec `toml:"class"`
}

// ClassSpec describes a single class.
type ClassSpec struct {
	Name       string       `toml:"name"`
	Super      string       `toml:"super"`
	Interfaces []string     `toml:"interfaces"`
	Flags      []string     `toml:"flags"`
	Permitted  []string     `toml:"permitted"`
	Members    []MemberSpec `toml:"member"`
	Version    uint16       `toml:"version"`
}

// MemberSpec describes a field or method.
type MemberSpec struct {
	Name       string   `toml:"name"`
	Descriptor string   `toml:"descriptor"`
	Flags      []string `toml:"flags"`
	Method     bool     `toml:"method"`
}

// ParseSpec decodes a TOML class spec.
func ParseSpec(data []byte) (*Spec, error) {
	var s Spec
	if _, err := toml.Decode(string(data), &s); err != nil {
		return nil, fmt.Errorf("parse class spec: %w", err)
	}
	return &s, nil
}

// File converts the spec into a wire File.
func (c ClassSpec) File() (*File, error) {
	flags, err := ParseFlags(c.Flags)
	if err != nil {
		return nil, fmt.Errorf("class %s: %w", c.Name, err)
	}
	f := &File{
		Magic:      Magic,
		Major:      c.Version,
		Name:       c.Name,
		Super:      c.Super,
		Interfaces: c.Interfaces,
		Flags:      flags,
		Permitted:  c.Permitted,
	}
	if f.Major == 0 {
		f.Major = MaxMajorVersion
	}
	for _, m := range c.Members {
		mf, err := ParseFlags(m.Flags)
		if err != nil {
			return nil, fmt.Errorf("class %s member %s: %w", c.Name, m.Name, err)
		}
		f.Members = append(f.Members, Member{
			Name:       m.Name,
			Descriptor: m.Descriptor,
			Flags:      mf,
			Method:     m.Method,
		})
	}
	return f, nil
}

// Pack encodes every class of the spec, keyed by internal name.
func (s *Spec) Pack() (map[string][]byte, error) {
	out := make(map[string][]byte, len(s.Classes))
	for _, c := range s.Classes {
		if _, dup := out[c.Name]; dup {
			return nil, fmt.Errorf("%w: class %s declared twice", ErrDuplicateEntry, c.Name)
		}
		f, err := c.File()
		if err != nil {
			return nil, err
		}
		data, err := Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", c.Name, err)
		}
		out[c.Name] = data
	}
	return out, nil
}
