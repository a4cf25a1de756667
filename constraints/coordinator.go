// Package constraints tracks cross-loader loading constraints: for each
// type name, the class every loader resolved it to, and groups of loaders
// that are required to agree on that class.
package constraints

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/classreg/registry"
	"github.com/chazu/classreg/symbol"
)

var log = commonlog.GetLogger("classreg.constraints")

// ErrViolation reports two classes competing for one name where the
// recorded constraints require a single class.
var ErrViolation = errors.New("loading constraint violated")

// ---------------------------------------------------------------------------
// Coordinator
// ---------------------------------------------------------------------------

// Coordinator implements registry.Constraints. It is safe for concurrent
// use by every engine of a loader graph.
type Coordinator struct {
	mu      sync.RWMutex
	buckets map[*symbol.Symbol]*bucket
	defined map[uuid.UUID]int
}

// bucket holds the constraints of one type name.
type bucket struct {
	resolved map[uuid.UUID]*registry.Class
	groups   []*group
}

// group is a set of loaders that must resolve the name to the same class.
// class is nil until a member resolves it.
type group struct {
	loaders map[uuid.UUID]struct{}
	class   *registry.Class
}

// New creates an empty coordinator.
func New() *Coordinator {
	return &Coordinator{
		buckets: make(map[*symbol.Symbol]*bucket),
		defined: make(map[uuid.UUID]int),
	}
}

// key identifies a loader; the boot loader is the nil UUID.
func key(l *registry.ClassLoader) uuid.UUID {
	if l == nil {
		return uuid.Nil
	}
	return l.ID
}

func (co *Coordinator) bucket(t *symbol.Symbol) *bucket {
	b := co.buckets[t]
	if b == nil {
		b = &bucket{resolved: make(map[uuid.UUID]*registry.Class)}
		co.buckets[t] = b
	}
	return b
}

func (b *bucket) groupOf(k uuid.UUID) *group {
	for _, g := range b.groups {
		if _, ok := g.loaders[k]; ok {
			return g
		}
	}
	return nil
}

// RecordConstraint records that loader resolves t to c. It fails if loader
// already resolves t to another class, or if a loader it must agree with
// resolved t differently.
func (co *Coordinator) RecordConstraint(t *symbol.Symbol, c *registry.Class, loader *registry.ClassLoader) error {
	co.mu.Lock()
	defer co.mu.Unlock()

	k := key(loader)
	b := co.bucket(t)
	if prev := b.resolved[k]; prev != nil && prev != c {
		return fmt.Errorf("%w: %s already resolves %s to class #%d, not #%d", ErrViolation, loader, t, prev.ID(), c.ID())
	}
	g := b.groupOf(k)
	if g != nil && g.class != nil && g.class != c {
		return fmt.Errorf("%w: %s resolves %s to class #%d, a constrained loader uses #%d", ErrViolation, loader, t, c.ID(), g.class.ID())
	}

	b.resolved[k] = c
	if g != nil {
		g.class = c
	}
	return nil
}

// CheckConstraint requires loaders a and b to resolve t to the same class
// from now on. It fails if they already disagree.
func (co *Coordinator) CheckConstraint(t *symbol.Symbol, a, b *registry.ClassLoader) error {
	co.mu.Lock()
	defer co.mu.Unlock()

	ka, kb := key(a), key(b)
	bk := co.bucket(t)
	ga, gb := bk.groupOf(ka), bk.groupOf(kb)

	ca, cb := bk.classFor(ka, ga), bk.classFor(kb, gb)
	if ca != nil && cb != nil && ca != cb {
		return fmt.Errorf("%w: %s and %s resolve %s to different classes (#%d, #%d)", ErrViolation, a, b, t, ca.ID(), cb.ID())
	}

	switch {
	case ga == nil && gb == nil:
		ga = &group{loaders: map[uuid.UUID]struct{}{ka: {}, kb: {}}}
		bk.groups = append(bk.groups, ga)
	case ga == nil:
		gb.loaders[ka] = struct{}{}
		ga = gb
	case gb == nil:
		ga.loaders[kb] = struct{}{}
	case ga != gb:
		for l := range gb.loaders {
			ga.loaders[l] = struct{}{}
		}
		bk.removeGroup(gb)
	}
	if ca != nil {
		ga.class = ca
	} else if cb != nil {
		ga.class = cb
	}
	return nil
}

// classFor returns the class k resolves t to, directly or through its
// group.
func (b *bucket) classFor(k uuid.UUID, g *group) *registry.Class {
	if c := b.resolved[k]; c != nil {
		return c
	}
	if g != nil {
		return g.class
	}
	return nil
}

func (b *bucket) removeGroup(g *group) {
	for i, x := range b.groups {
		if x == g {
			b.groups = append(b.groups[:i], b.groups[i+1:]...)
			return
		}
	}
}

// RemoveConstraint drops every constraint tying t to c. Groups keep their
// loaders but forget c.
func (co *Coordinator) RemoveConstraint(c *registry.Class, t *symbol.Symbol) {
	co.mu.Lock()
	defer co.mu.Unlock()

	b := co.buckets[t]
	if b == nil {
		return
	}
	for k, rc := range b.resolved {
		if rc == c {
			delete(b.resolved, k)
		}
	}
	for _, g := range b.groups {
		if g.class == c {
			g.class = nil
			for k := range g.loaders {
				if rc := b.resolved[k]; rc != nil {
					g.class = rc
					break
				}
			}
		}
	}
	if len(b.resolved) == 0 && len(b.groups) == 0 {
		delete(co.buckets, t)
	}
	log.Debugf("removed constraints of %s on class #%d", t, c.ID())
}

// OnClassDefined counts c against its defining loader.
func (co *Coordinator) OnClassDefined(c *registry.Class) {
	co.mu.Lock()
	co.defined[key(c.Loader())]++
	co.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Lookup returns the class loader resolves t to, or nil.
func (co *Coordinator) Lookup(t *symbol.Symbol, loader *registry.ClassLoader) *registry.Class {
	co.mu.RLock()
	defer co.mu.RUnlock()
	if b := co.buckets[t]; b != nil {
		return b.resolved[key(loader)]
	}
	return nil
}

// Constrained reports whether any constraint mentions t.
func (co *Coordinator) Constrained(t *symbol.Symbol) bool {
	co.mu.RLock()
	defer co.mu.RUnlock()
	_, ok := co.buckets[t]
	return ok
}

// Len returns the number of constrained type names.
func (co *Coordinator) Len() int {
	co.mu.RLock()
	defer co.mu.RUnlock()
	return len(co.buckets)
}

// Defined returns how many classes loader has defined.
func (co *Coordinator) Defined(loader *registry.ClassLoader) int {
	co.mu.RLock()
	defer co.mu.RUnlock()
	return co.defined[key(loader)]
}

var _ registry.Constraints = (*Coordinator)(nil)
