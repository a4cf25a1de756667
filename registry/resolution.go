package registry

import (
	"context"
	"strings"

	"github.com/chazu/classreg/symbol"
)

// ---------------------------------------------------------------------------
// Resolution: per-request resolution context
// ---------------------------------------------------------------------------

// Resolution carries the state of one logical resolution request through
// every recursive call: the chain of symbols currently being linked, used
// for circularity detection, and the per-symbol locks the request holds.
//
// A Resolution must not be shared between concurrent requests.
type Resolution struct {
	ctx context.Context

	// chain is an arena of in-flight symbols; index maps a symbol to its
	// position so membership tests do not walk the chain.
	chain []*symbol.Symbol
	index map[*symbol.Symbol]int

	held map[lockKey]int
}

// NewResolution starts a resolution request. Lock waits made on behalf of
// the request give up when ctx is done.
func NewResolution(ctx context.Context) *Resolution {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Resolution{
		ctx:   ctx,
		index: make(map[*symbol.Symbol]int),
		held:  make(map[lockKey]int),
	}
}

// Context returns the request's context.
func (r *Resolution) Context() context.Context { return r.ctx }

// Depth returns the number of symbols currently on the chain.
func (r *Resolution) Depth() int { return len(r.chain) }

// Contains reports whether t is being resolved on this request's chain.
func (r *Resolution) Contains(t *symbol.Symbol) bool {
	_, ok := r.index[t]
	return ok
}

// push adds t to the chain. A symbol is pushed at most once at a time;
// callers check Contains first.
func (r *Resolution) push(t *symbol.Symbol) {
	r.index[t] = len(r.chain)
	r.chain = append(r.chain, t)
}

// pop removes the most recently pushed symbol.
func (r *Resolution) pop() {
	n := len(r.chain) - 1
	if n < 0 {
		panic(&InvariantError{Msg: "resolution chain underflow"})
	}
	delete(r.index, r.chain[n])
	r.chain[n] = nil
	r.chain = r.chain[:n]
}

// String renders the chain from outermost to innermost, for diagnostics.
func (r *Resolution) String() string {
	parts := make([]string, len(r.chain))
	for i, t := range r.chain {
		parts[i] = t.String()
	}
	return strings.Join(parts, " -> ")
}
