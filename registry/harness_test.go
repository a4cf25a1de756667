package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chazu/classreg/classfile"
	"github.com/chazu/classreg/symbol"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

// countingDecoder counts successful decodes per declared type.
type countingDecoder struct {
	inner Decoder

	mu     sync.Mutex
	counts map[string]int
}

func (d *countingDecoder) Decode(data []byte, loader *ClassLoader, expected *symbol.Symbol, def Definition) (*classfile.RawDescriptor, error) {
	raw, err := d.inner.Decode(data, loader, expected, def)
	if err == nil {
		d.mu.Lock()
		d.counts[raw.Type.String()]++
		d.mu.Unlock()
	}
	return raw, err
}

func (d *countingDecoder) count(descriptor string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[descriptor]
}

func (d *countingDecoder) total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.counts {
		n += c
	}
	return n
}

// mapDelegate serves class bytes from a map keyed by internal name,
// optionally asking a parent engine first.
type mapDelegate struct {
	engine  *Engine
	parent  *Engine
	classes map[string][]byte

	// beforeFind, if set, runs at the start of FindClass with t's lock held.
	beforeFind func(t *symbol.Symbol)
}

func (d *mapDelegate) FindClass(r *Resolution, t *symbol.Symbol) (*Class, error) {
	if d.beforeFind != nil {
		d.beforeFind(t)
	}
	if d.parent != nil {
		c, err := d.parent.LoadClass(r, t, nil)
		if err != nil || c != nil {
			return c, err
		}
	}
	data, ok := d.classes[symbol.ClassName(t)]
	if !ok {
		return nil, nil
	}
	return d.engine.DefineClass(r, t, data, nil)
}

func (d *mapDelegate) FindLinked(r *Resolution, t *symbol.Symbol, def Definition) (*LinkedClass, error) {
	if d.parent != nil {
		lc, err := d.parent.LoadLinkedClass(r, t, def)
		if err != nil || lc != nil {
			return lc, err
		}
	}
	data, ok := d.classes[symbol.ClassName(t)]
	if !ok {
		return nil, nil
	}
	raw, err := d.engine.CreateRawDescriptor(r, data, t, def)
	if err != nil {
		return nil, err
	}
	return d.engine.CreateLinkedClass(r, raw, def)
}

type constraintOp struct {
	op string
	t  *symbol.Symbol
	c  *Class
}

// recordingConstraints logs every call and keeps one class per symbol.
type recordingConstraints struct {
	mu      sync.Mutex
	ops     []constraintOp
	current map[*symbol.Symbol]*Class
	defined []*Class
	reject  map[*symbol.Symbol]bool
	refuse  *Class // refused under every symbol
}

func newRecordingConstraints() *recordingConstraints {
	return &recordingConstraints{
		current: make(map[*symbol.Symbol]*Class),
		reject:  make(map[*symbol.Symbol]bool),
	}
}

var errConflict = errors.New("constraint conflict")

func (rc *recordingConstraints) RecordConstraint(t *symbol.Symbol, c *Class, _ *ClassLoader) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.reject[t] || (c != nil && c == rc.refuse) {
		return errConflict
	}
	rc.ops = append(rc.ops, constraintOp{"record", t, c})
	rc.current[t] = c
	return nil
}

func (rc *recordingConstraints) RemoveConstraint(c *Class, t *symbol.Symbol) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.ops = append(rc.ops, constraintOp{"remove", t, c})
	if rc.current[t] == c {
		delete(rc.current, t)
	}
}

func (rc *recordingConstraints) OnClassDefined(c *Class) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.defined = append(rc.defined, c)
}

func (rc *recordingConstraints) lookup(t *symbol.Symbol) *Class {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.current[t]
}

// recordingAccess records every protection domain it is asked about and
// rejects one type.
type recordingAccess struct {
	mu    sync.Mutex
	calls []*ProtectionDomain
	deny  *symbol.Symbol
}

func (a *recordingAccess) CheckPackageAccess(_ *ClassLoader, c *Class, pd *ProtectionDomain) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, pd)
	if c.Type() == a.deny {
		return newError(KindSecurity, c.Type(), "access to %s denied", c)
	}
	return nil
}

func (a *recordingAccess) domains() []*ProtectionDomain {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*ProtectionDomain(nil), a.calls...)
}

type primitiveTable map[*symbol.Symbol]*Class

func (p primitiveTable) Primitive(t *symbol.Symbol) *Class { return p[t] }

// ---------------------------------------------------------------------------
// Environment
// ---------------------------------------------------------------------------

type testEnv struct {
	t           *testing.T
	syms        *symbol.Table
	engine      *Engine
	decoder     *countingDecoder
	delegate    *mapDelegate
	constraints *recordingConstraints
}

// newEnv creates an engine for loader with java/lang/Object available.
func newEnv(t *testing.T, loader *ClassLoader, opts ...Option) *testEnv {
	t.Helper()
	return newEnvWithSymbols(t, symbol.NewTable(), loader, opts...)
}

func newEnvWithSymbols(t *testing.T, syms *symbol.Table, loader *ClassLoader, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		t:           t,
		syms:        syms,
		decoder:     &countingDecoder{inner: ClassfileDecoder{classfile.NewDecoder(syms)}, counts: make(map[string]int)},
		constraints: newRecordingConstraints(),
		delegate:    &mapDelegate{classes: make(map[string][]byte)},
	}
	opts = append([]Option{
		WithDecoder(env.decoder),
		WithConstraints(env.constraints),
		WithDelegate(env.delegate),
	}, opts...)
	env.engine = NewEngine(loader, syms, opts...)
	env.delegate.engine = env.engine
	if loader.IsTrusted() {
		env.add(&classfile.File{Name: classfile.RootClass, Flags: classfile.AccPublic})
	}
	return env
}

func (env *testEnv) bytes(f *classfile.File) []byte {
	env.t.Helper()
	data, err := classfile.Marshal(f)
	require.NoError(env.t, err)
	return data
}

// add makes f available to the delegate. A missing super defaults to
// java/lang/Object.
func (env *testEnv) add(f *classfile.File) {
	env.t.Helper()
	if f.Super == "" && f.Name != classfile.RootClass {
		f.Super = classfile.RootClass
	}
	env.delegate.classes[f.Name] = env.bytes(f)
}

func (env *testEnv) sym(name string) *symbol.Symbol {
	return env.syms.FromClassName(name)
}

func (env *testEnv) load(name string) (*Class, error) {
	return env.engine.LoadClass(NewResolution(context.Background()), env.sym(name), nil)
}

func (env *testEnv) mustLoad(name string) *Class {
	env.t.Helper()
	c, err := env.load(name)
	require.NoError(env.t, err)
	require.NotNil(env.t, c, "class %s not found", name)
	return c
}

func (env *testEnv) define(name string, def Definition) (*Class, error) {
	return env.engine.DefineClass(NewResolution(context.Background()), env.sym(name), env.delegate.classes[name], def)
}

func platformLoader() *ClassLoader { return NewClassLoader("platform", PlatformLoader) }
func appLoader() *ClassLoader { return NewClassLoader("app", AppLoader) }

const (
	public = classfile.AccPublic
	final  = classfile.AccFinal
	iface  = classfile.AccInterface | classfile.AccAbstract
)
