package registry

import (
	"fmt"

	"github.com/chazu/classreg/symbol"
)

// Kind classifies a resolution failure. Every kind aborts the current call.
type Kind uint8

const (
	KindSecurity Kind = iota + 1
	KindFormat
	KindCircularity
	KindIncompatibleHierarchy
	KindDuplicateDefinition
	KindIllegalAccess
	KindNoClassDefFound
	KindClassNotFound
	KindLinkage
)

var kindNames = map[Kind]string{
	KindSecurity:              "security violation",
	KindFormat:                "class format error",
	KindCircularity:           "class circularity error",
	KindIncompatibleHierarchy: "incompatible class change",
	KindDuplicateDefinition:   "duplicate class definition",
	KindIllegalAccess:         "illegal access",
	KindNoClassDefFound:       "no class definition found",
	KindClassNotFound:         "class not found",
	KindLinkage:               "linkage error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is a typed resolution failure.
type Error struct {
	Kind  Kind
	Type  *symbol.Symbol
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Msg != "" {
		msg += ": " + e.Msg
	} else if e.Type != nil {
		msg += ": " + e.Type.String()
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same kind, so callers can write
// errors.Is(err, registry.ErrCircularity).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Type == nil && t.Msg == "" && t.Cause == nil
}

// Sentinels for errors.Is.
var (
	ErrSecurity              = &Error{Kind: KindSecurity}
	ErrFormat                = &Error{Kind: KindFormat}
	ErrCircularity           = &Error{Kind: KindCircularity}
	ErrIncompatibleHierarchy = &Error{Kind: KindIncompatibleHierarchy}
	ErrDuplicateDefinition   = &Error{Kind: KindDuplicateDefinition}
	ErrIllegalAccess         = &Error{Kind: KindIllegalAccess}
	ErrNoClassDefFound       = &Error{Kind: KindNoClassDefFound}
	ErrClassNotFound         = &Error{Kind: KindClassNotFound}
	ErrLinkage               = &Error{Kind: KindLinkage}
)

func newError(kind Kind, t *symbol.Symbol, format string, args ...any) *Error {
	return &Error{Kind: kind, Type: t, Msg: fmt.Sprintf(format, args...)}
}

// InvariantError is the panic value raised when the engine observes a
// state its locking should have made impossible.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return "classreg: internal invariant violated: " + e.Msg }
