// Package symbol interns type names into identity-unique tokens.
//
// Two lookups of the same name through the same Table always return the
// same *Symbol, so symbols can be compared with == and used as map keys
// and lock keys without hashing the underlying string.
package symbol

import "sync"

// ---------------------------------------------------------------------------
// Symbol
// ---------------------------------------------------------------------------

// Symbol is a canonical type name. Compare symbols by pointer.
type Symbol struct {
	name string
	id   uint32
}

// String returns the interned name.
func (s *Symbol) String() string {
	if s == nil {
		return "<nil>"
	}
	return s.name
}

// ID returns the dense index assigned at interning time.
func (s *Symbol) ID() uint32 { return s.id }

// ---------------------------------------------------------------------------
// Table: Interned symbols
// ---------------------------------------------------------------------------

// Table interns names to unique symbols.
type Table struct {
	mu     sync.RWMutex
	byName map[string]*Symbol
	byID   []*Symbol
}

// NewTable creates a new empty symbol table.
func NewTable() *Table {
	return &Table{
		byName: make(map[string]*Symbol),
		byID:   make([]*Symbol, 0, 256),
	}
}

// Intern returns the symbol for name, creating it if needed.
func (t *Table) Intern(name string) *Symbol {
	// Fast path: read-only lookup
	t.mu.RLock()
	if s, ok := t.byName[name]; ok {
		t.mu.RUnlock()
		return s
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Double-check after acquiring write lock
	if s, ok := t.byName[name]; ok {
		return s
	}

	s := &Symbol{name: name, id: uint32(len(t.byID))}
	t.byName[name] = s
	t.byID = append(t.byID, s)
	return s
}

// Lookup returns the symbol for name without creating one.
func (t *Table) Lookup(name string) (*Symbol, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byName[name]
	return s, ok
}

// ByID returns the symbol with the given id, or nil.
func (t *Table) ByID(id uint32) *Symbol {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if int(id) >= len(t.byID) {
		return nil
	}
	return t.byID[id]
}

// Len returns the number of interned symbols.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}
