package registry

import (
	"context"
	"errors"

	"github.com/chazu/classreg/symbol"
)

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

// registerClass enters a freshly defined class under t. The caller holds
// t's lock and has checked the name is free, so an existing entry is an
// invariant violation. A constraint conflict rolls the entry back.
func (e *Engine) registerClass(c *Class, t *symbol.Symbol) error {
	ent := &entry{class: c}
	if prev, loaded := e.defined.LoadOrStore(t, ent); loaded {
		log.Criticalf("%s: %s registered twice (existing %s)", e.loader, t, prev.(*entry).class)
		panic(&InvariantError{Msg: "class " + t.String() + " registered twice"})
	}
	e.transitional.Delete(t)

	if err := e.constraints.RecordConstraint(t, c, e.loader); err != nil {
		e.defined.CompareAndDelete(t, ent)
		return asLinkage(t, err)
	}
	e.constraints.OnClassDefined(c)
	e.stats.defined.Add(1)
	log.Debugf("%s defined %s", e.loader, t)
	e.notify(c)
	return nil
}

// registerInitiated records c, defined by another loader, as initiated by
// this one. Listeners are not notified: c was not defined here.
func (e *Engine) registerInitiated(c *Class, t *symbol.Symbol) (*Class, error) {
	ent := &entry{class: c}
	if prev, loaded := e.defined.LoadOrStore(t, ent); loaded {
		return prev.(*entry).class, nil
	}
	e.transitional.Delete(t)

	if err := e.constraints.RecordConstraint(t, c, e.loader); err != nil {
		e.defined.CompareAndDelete(t, ent)
		return nil, asLinkage(t, err)
	}
	log.Debugf("%s initiated %s (defined by %s)", e.loader, t, c.Loader())
	return c, nil
}

func (e *Engine) registerStrongHidden(c *Class) {
	e.strongMu.Lock()
	e.strongHidden = append(e.strongHidden, c)
	e.strongMu.Unlock()

	e.stats.hidden.Add(1)
	log.Debugf("%s defined strong hidden %s", e.loader, c)
	e.notify(c)
}

func (e *Engine) notify(c *Class) {
	if l := e.listener.Load(); l != nil {
		(*l).OnClassDefined(c)
	}
}

func asLinkage(t *symbol.Symbol, err error) error {
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return &Error{Kind: KindLinkage, Type: t, Msg: "loading constraint violated for " + t.String(), Cause: err}
}

// ---------------------------------------------------------------------------
// Redefinition support
// ---------------------------------------------------------------------------

// OnClassRenamed re-registers c under its current type after redefinition
// tooling renamed it. A constraint held by whatever class previously
// occupied the name is removed before c's constraint is recorded. If c's
// constraint is refused the previous entry and its constraint are
// restored.
func (e *Engine) OnClassRenamed(c *Class) error {
	t := c.Type()
	release, err := e.locks.acquire(NewResolution(context.Background()), t)
	if err != nil {
		return err
	}
	defer release()

	old := e.lookup(t)
	if old != nil {
		e.constraints.RemoveConstraint(old, t)
	}
	ent := &entry{class: c}
	e.defined.Store(t, ent)
	e.transitional.Delete(t)

	if err := e.constraints.RecordConstraint(t, c, c.Loader()); err != nil {
		log.Errorf("%s: renamed class %s violates a loading constraint: %s", e.loader, t, err.Error())
		if old == nil {
			e.defined.CompareAndDelete(t, ent)
		} else {
			e.defined.CompareAndSwap(t, ent, &entry{class: old})
			if rerr := e.constraints.RecordConstraint(t, old, old.Loader()); rerr != nil {
				log.Criticalf("%s: cannot restore constraint for %s: %s", e.loader, t, rerr.Error())
			}
		}
		return asLinkage(t, err)
	}
	log.Infof("%s renamed class registered as %s", e.loader, t)
	return nil
}

// OnInnerClassRemoved drops t from both caches together with its loading
// constraint. Unknown names are ignored.
func (e *Engine) OnInnerClassRemoved(t *symbol.Symbol) {
	// A background resolution is always granted the lock.
	release, _ := e.locks.acquire(NewResolution(context.Background()), t)
	defer release()

	e.transitional.Delete(t)
	v, ok := e.defined.LoadAndDelete(t)
	if !ok {
		return
	}
	e.constraints.RemoveConstraint(v.(*entry).class, t)
	log.Infof("%s removed %s", e.loader, t)
}
