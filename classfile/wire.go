// Package classfile defines the class-file wire format and decodes it into
// raw class descriptors.
//
// A class file is a canonical CBOR map. Decoding checks the envelope
// (magic, version, names, basic flag consistency) and interns every type
// name; it does not verify member bodies.
package classfile

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Magic identifies a class file.
const Magic uint32 = 0xCAFEBABE

// Supported major versions.
const (
	MinMajorVersion uint16 = 45
	MaxMajorVersion uint16 = 65
)

// RootClass is the internal name of the hierarchy root, the only class
// allowed to omit its superclass.
const RootClass = "java/lang/Object"

// File is the on-the-wire class-file layout.
type File struct {
	Magic      uint32   `cbor:"1,keyasint"`
	Major      uint16   `cbor:"2,keyasint"`
	Minor      uint16   `cbor:"3,keyasint,omitempty"`
	Name       string   `cbor:"4,keyasint"`
	Super      string   `cbor:"5,keyasint,omitempty"`
	Interfaces []string `cbor:"6,keyasint,omitempty"`
	Flags      Flags    `cbor:"7,keyasint"`
	Permitted  []string `cbor:"8,keyasint,omitempty"` // sealed: permitted subclasses
	Members    []Member `cbor:"9,keyasint,omitempty"`
}

// Member is an opaque field or method entry. The engine only counts
// non-static fields for layout; everything else is carried through.
type Member struct {
	Name       string `cbor:"1,keyasint"`
	Descriptor string `cbor:"2,keyasint"`
	Flags      Flags  `cbor:"3,keyasint,omitempty"`
	Method     bool   `cbor:"4,keyasint,omitempty"`
}

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("classfile: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	dm, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		MaxArrayElements:  65535,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("classfile: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

// Marshal serializes a File to canonical CBOR. A zero Magic or Major is
// filled in with the current defaults.
func Marshal(f *File) ([]byte, error) {
	out := *f
	if out.Magic == 0 {
		out.Magic = Magic
	}
	if out.Major == 0 {
		out.Major = MaxMajorVersion
	}
	return cborEncMode.Marshal(&out)
}

// Unmarshal deserializes a File from CBOR bytes without validating it.
func Unmarshal(data []byte) (*File, error) {
	if len(data) == 0 {
		return nil, ErrTruncated
	}
	var f File
	if err := cborDecMode.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &f, nil
}

// Decoding errors. Everything except ErrWrongName is a format problem.
var (
	ErrTruncated      = errors.New("classfile: truncated class file")
	ErrMalformed      = errors.New("classfile: malformed class file")
	ErrBadMagic       = errors.New("classfile: bad magic number")
	ErrVersion        = errors.New("classfile: unsupported class file version")
	ErrBadName        = errors.New("classfile: illegal class name")
	ErrBadHierarchy   = errors.New("classfile: illegal superclass or interface declaration")
	ErrBadFlags       = errors.New("classfile: illegal class modifiers")
	ErrDuplicateEntry = errors.New("classfile: duplicate entry")

	// ErrWrongName reports a well-formed file whose name differs from the
	// one the caller asked for.
	ErrWrongName = errors.New("classfile: wrong name")
)
