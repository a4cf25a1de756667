package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/classreg/classfile"
	"github.com/chazu/classreg/symbol"
)

// ---------------------------------------------------------------------------
// Rename and removal
// ---------------------------------------------------------------------------

func TestOnClassRenamedRemovesStaleConstraintFirst(t *testing.T) {
	env := newEnv(t, platformLoader())
	env.add(&classfile.File{Name: "com/acme/Widget", Flags: public})
	env.add(&classfile.File{Name: "com/acme/Gadget", Flags: public})

	widget := env.mustLoad("com/acme/Widget")
	gadget := env.mustLoad("com/acme/Gadget")
	s2 := env.sym("com/acme/Gadget")
	require.Same(t, gadget, env.constraints.lookup(s2))

	mark := len(env.constraints.ops)
	widget.Rename(s2)
	require.NoError(t, env.engine.OnClassRenamed(widget))

	ops := env.constraints.ops[mark:]
	require.Len(t, ops, 2)
	assert.Equal(t, constraintOp{"remove", s2, gadget}, ops[0])
	assert.Equal(t, constraintOp{"record", s2, widget}, ops[1])

	assert.Same(t, widget, env.engine.FindLoadedClass(s2))
	assert.Same(t, widget, env.constraints.lookup(s2))

	// The old name is left for a later rename or removal.
	assert.Same(t, widget, env.engine.FindLoadedClass(env.sym("com/acme/Widget")))
}

func TestOnClassRenamedToFreeName(t *testing.T) {
	env := newEnv(t, platformLoader())
	env.add(&classfile.File{Name: "com/acme/Widget", Flags: public})
	widget := env.mustLoad("com/acme/Widget")

	fresh := env.sym("com/acme/Widget$Redefined")
	mark := len(env.constraints.ops)
	widget.Rename(fresh)
	require.NoError(t, env.engine.OnClassRenamed(widget))

	assert.Equal(t, []constraintOp{{"record", fresh, widget}}, env.constraints.ops[mark:])
	assert.Same(t, widget, env.engine.FindLoadedClass(fresh))
}

func TestOnClassRenamedRollsBackRefusedConstraint(t *testing.T) {
	env := newEnv(t, platformLoader())
	env.add(&classfile.File{Name: "com/acme/Widget", Flags: public})
	env.add(&classfile.File{Name: "com/acme/Gadget", Flags: public})
	widget := env.mustLoad("com/acme/Widget")
	gadget := env.mustLoad("com/acme/Gadget")

	// A free name is left free.
	fresh := env.sym("com/acme/Widget$Redefined")
	env.constraints.reject[fresh] = true
	widget.Rename(fresh)
	err := env.engine.OnClassRenamed(widget)
	require.ErrorIs(t, err, ErrLinkage)
	assert.ErrorIs(t, err, errConflict)
	assert.Nil(t, env.engine.FindLoadedClass(fresh))
	assert.Nil(t, env.constraints.lookup(fresh))

	// An occupied name gets its previous class and constraint back.
	s2 := env.sym("com/acme/Gadget")
	env.constraints.refuse = widget
	widget.Rename(s2)
	err = env.engine.OnClassRenamed(widget)
	require.ErrorIs(t, err, ErrLinkage)
	assert.Same(t, gadget, env.engine.FindLoadedClass(s2))
	assert.Same(t, gadget, env.constraints.lookup(s2))
}

func TestOnInnerClassRemoved(t *testing.T) {
	env := newEnv(t, platformLoader())
	env.add(&classfile.File{Name: "com/acme/Widget$Inner", Flags: public})
	s := env.sym("com/acme/Widget$Inner")
	inner := env.mustLoad("com/acme/Widget$Inner")
	require.Same(t, inner, env.constraints.lookup(s))

	env.engine.OnInnerClassRemoved(s)
	assert.Nil(t, env.engine.FindLoadedClass(s))
	assert.Nil(t, env.constraints.lookup(s))
	assert.NotContains(t, env.engine.LoadedClasses(), inner)

	// A transitionally linked node goes too.
	r := NewResolution(context.Background())
	lc, err := env.engine.LoadLinkedClass(r, s, nil)
	require.NoError(t, err)
	require.NotNil(t, lc)
	before := env.engine.Stats().TransitionalLinked
	env.engine.OnInnerClassRemoved(s)
	assert.Equal(t, before-1, env.engine.Stats().TransitionalLinked)

	// Unknown names are ignored, and the name can be defined again.
	env.engine.OnInnerClassRemoved(env.sym("com/acme/Nothing"))
	again := env.mustLoad("com/acme/Widget$Inner")
	assert.NotSame(t, inner, again)
}

func TestOnInnerClassRemovedWaitsForLock(t *testing.T) {
	env := newEnv(t, platformLoader())
	env.add(&classfile.File{Name: "com/acme/Widget$Inner", Flags: public})
	s := env.sym("com/acme/Widget$Inner")
	inner := env.mustLoad("com/acme/Widget$Inner")

	release, err := env.engine.locks.acquire(NewResolution(context.Background()), s)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		env.engine.OnInnerClassRemoved(s)
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("removal ran while the symbol was locked")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Same(t, inner, env.engine.FindLoadedClass(s))

	release()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("removal did not finish after the lock was released")
	}
	assert.Nil(t, env.engine.FindLoadedClass(s))
	assert.Nil(t, env.constraints.lookup(s))
}

// ---------------------------------------------------------------------------
// Constraints and delegation
// ---------------------------------------------------------------------------

func TestConstraintViolationRollsBack(t *testing.T) {
	env := newEnv(t, platformLoader())
	env.add(&classfile.File{Name: "com/acme/Widget", Flags: public})
	widget := env.sym("com/acme/Widget")

	var notified int
	env.engine.RegisterLoadListener(ListenerFunc(func(c *Class) {
		if c.Type() == widget {
			notified++
		}
	}))

	env.constraints.reject[widget] = true
	_, err := env.load("com/acme/Widget")
	require.ErrorIs(t, err, ErrLinkage)
	assert.ErrorIs(t, err, errConflict)
	assert.Nil(t, env.engine.FindLoadedClass(widget))
	assert.Zero(t, notified)

	delete(env.constraints.reject, widget)
	c := env.mustLoad("com/acme/Widget")
	assert.Same(t, c, env.engine.FindLoadedClass(widget))
	assert.Equal(t, 1, notified)
	assert.Contains(t, env.constraints.defined, c)
}

func TestParentDelegationRecordsInitiatedEntry(t *testing.T) {
	syms := symbol.NewTable()
	boot := newEnvWithSymbols(t, syms, nil)
	user := newEnvWithSymbols(t, syms, appLoader())
	user.delegate.parent = boot.engine
	user.add(&classfile.File{Name: "com/acme/Widget", Flags: public})

	var bootDefined, userDefined []string
	boot.engine.RegisterLoadListener(ListenerFunc(func(c *Class) { bootDefined = append(bootDefined, c.Type().String()) }))
	user.engine.RegisterLoadListener(ListenerFunc(func(c *Class) { userDefined = append(userDefined, c.Type().String()) }))

	widget := user.mustLoad("com/acme/Widget")
	objectSym := syms.FromClassName(classfile.RootClass)
	object := boot.engine.FindLoadedClass(objectSym)
	require.NotNil(t, object)

	assert.Same(t, object, widget.Super())
	assert.Nil(t, object.Loader())
	assert.Same(t, user.engine.Loader(), widget.Loader())

	// Object is initiated by the user loader, defined by boot.
	assert.Same(t, object, user.engine.FindLoadedClass(objectSym))
	assert.Same(t, object, user.constraints.lookup(objectSym))
	assert.Equal(t, []string{"Ljava/lang/Object;"}, bootDefined)
	assert.Equal(t, []string{"Lcom/acme/Widget;"}, userDefined)
	assert.EqualValues(t, 1, user.engine.Stats().Defined)
	assert.Zero(t, user.engine.Stats().TransitionalLinked)

	// The boot loader never sees the child's classes.
	assert.Nil(t, boot.engine.FindLoadedClass(syms.FromClassName("com/acme/Widget")))
}

func TestRegisterTwicePanics(t *testing.T) {
	env := newEnv(t, platformLoader())
	c := env.mustLoad(classfile.RootClass)

	defer func() {
		v := recover()
		require.NotNil(t, v)
		ie, ok := v.(*InvariantError)
		require.True(t, ok, "panic value %T", v)
		assert.Contains(t, ie.Error(), "registered twice")
	}()
	_ = env.engine.registerClass(c, c.Type())
	t.Fatal("registerClass did not panic")
}

// ---------------------------------------------------------------------------
// Resolution chain and locks
// ---------------------------------------------------------------------------

func TestResolutionChain(t *testing.T) {
	syms := symbol.NewTable()
	a, b := syms.Intern("La;"), syms.Intern("Lb;")
	r := NewResolution(nil)
	require.NotNil(t, r.Context())

	r.push(a)
	r.push(b)
	assert.Equal(t, 2, r.Depth())
	assert.True(t, r.Contains(a))
	assert.Equal(t, "La; -> Lb;", r.String())

	r.pop()
	assert.False(t, r.Contains(b))
	r.pop()
	assert.Zero(t, r.Depth())
	assert.Panics(t, r.pop)
}

func TestLockTableReentry(t *testing.T) {
	syms := symbol.NewTable()
	s := syms.Intern("La;")
	lt := newLockTable()
	r := NewResolution(context.Background())

	release1, err := lt.acquire(r, s)
	require.NoError(t, err)
	release2, err := lt.acquire(r, s)
	require.NoError(t, err)
	assert.Equal(t, 1, lt.size())

	other := NewResolution(context.Background())
	ctx, cancel := context.WithCancel(context.Background())
	blocked := NewResolution(ctx)
	go cancel()
	_, err = lt.acquire(blocked, s)
	assert.ErrorIs(t, err, context.Canceled)

	release2()
	assert.Equal(t, 1, lt.size())
	release1()
	assert.Zero(t, lt.size())

	release3, err := lt.acquire(other, s)
	require.NoError(t, err)
	release3()
	assert.Zero(t, lt.size())
}
