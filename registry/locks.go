package registry

import (
	"sync"

	"github.com/chazu/classreg/symbol"
)

// ---------------------------------------------------------------------------
// Per-symbol locks
// ---------------------------------------------------------------------------

// lockKey names one lock: a symbol within one engine.
type lockKey struct {
	table *lockTable
	sym   *symbol.Symbol
}

// symbolLock is a context-aware mutex. refs counts holders and waiters so
// the table can drop idle entries.
type symbolLock struct {
	sem  chan struct{}
	refs int
}

// lockTable hands out one lock per symbol. The table mutex is only held
// while looking up or dropping an entry, never while a lock is held, so
// unrelated symbols never wait on each other.
type lockTable struct {
	mu    sync.Mutex
	locks map[*symbol.Symbol]*symbolLock
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[*symbol.Symbol]*symbolLock)}
}

// acquire locks t on behalf of r and returns the matching release. A
// request that already holds t re-enters without waiting, so a symbol
// reached again through its own resolution is left for the chain to
// report as a circularity instead of deadlocking. Once r's context is
// done no new lock is granted.
func (lt *lockTable) acquire(r *Resolution, t *symbol.Symbol) (func(), error) {
	key := lockKey{table: lt, sym: t}
	if r.held[key] > 0 {
		r.held[key]++
		return func() { r.held[key]-- }, nil
	}

	if err := r.ctx.Err(); err != nil {
		return nil, err
	}

	lt.mu.Lock()
	l := lt.locks[t]
	if l == nil {
		l = &symbolLock{sem: make(chan struct{}, 1)}
		lt.locks[t] = l
	}
	l.refs++
	lt.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-r.ctx.Done():
		lt.drop(t, l)
		return nil, r.ctx.Err()
	}
	// select picks at random when both are ready; a done request never
	// holds a lock.
	if err := r.ctx.Err(); err != nil {
		<-l.sem
		lt.drop(t, l)
		return nil, err
	}

	r.held[key] = 1
	return func() {
		if r.held[key]--; r.held[key] == 0 {
			delete(r.held, key)
		}
		<-l.sem
		lt.drop(t, l)
	}, nil
}

func (lt *lockTable) drop(t *symbol.Symbol, l *symbolLock) {
	lt.mu.Lock()
	if l.refs--; l.refs == 0 {
		delete(lt.locks, t)
	}
	lt.mu.Unlock()
}

// size returns the number of live lock entries.
func (lt *lockTable) size() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return len(lt.locks)
}
