package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/classreg/classfile"
	"github.com/chazu/classreg/registry"
)

func classBytes(t *testing.T, name, super string, flags classfile.Flags) []byte {
	t.Helper()
	data, err := classfile.Marshal(&classfile.File{Name: name, Super: super, Flags: flags})
	require.NoError(t, err)
	return data
}

// bootClasses is a boot class path holding the hierarchy root and a class
// in a restricted package.
func bootClasses(t *testing.T) *MemorySource {
	return NewMemorySource("boot", map[string][]byte{
		classfile.RootClass: classBytes(t, classfile.RootClass, "", classfile.AccPublic),
		"sun/misc/Unsafe":   classBytes(t, "sun/misc/Unsafe", classfile.RootClass, classfile.AccPublic|classfile.AccFinal),
	})
}

func appClasses(t *testing.T) *MemorySource {
	return NewMemorySource("app", map[string][]byte{
		"com/acme/Shape":  classBytes(t, "com/acme/Shape", classfile.RootClass, classfile.AccPublic),
		"com/acme/Widget": classBytes(t, "com/acme/Widget", "com/acme/Shape", classfile.AccPublic),
	})
}

func newGraph(t *testing.T, opts Options) (*Registries, *Loader) {
	t.Helper()
	rs := New(opts)
	rs.Boot().AddSource(bootClasses(t))
	app, err := rs.NewLoader("app", nil, appClasses(t))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, rs.Close()) })
	return rs, app
}

func TestLoaderGraph(t *testing.T) {
	rs, app := newGraph(t, DefaultOptions())

	assert.Equal(t, BootName, rs.Boot().Name())
	assert.Equal(t, registry.BootLoader, rs.Boot().Kind())
	assert.Nil(t, rs.Boot().Identity())
	assert.Same(t, rs.Platform(), app.Parent())
	assert.Same(t, rs.Boot(), rs.Platform().Parent())
	assert.Equal(t, registry.AppLoader, app.Kind())

	got, ok := rs.Loader("app")
	require.True(t, ok)
	assert.Same(t, app, got)
	assert.Same(t, app, rs.ByIdentity(app.Identity()))
	assert.Same(t, rs.Boot(), rs.ByIdentity(nil))

	_, err := rs.NewLoader("app", nil)
	assert.ErrorIs(t, err, ErrDuplicateLoader)
	_, err = rs.NewLoader("", nil)
	assert.Error(t, err)

	names := make([]string, 0, 3)
	for _, l := range rs.Loaders() {
		names = append(names, l.Name())
	}
	assert.Equal(t, []string{"boot", "platform", "app"}, names)
}

func TestParentFirstDelegation(t *testing.T) {
	rs, app := newGraph(t, DefaultOptions())
	ctx := context.Background()

	w, err := app.LoadClass(ctx, "com.acme.Widget")
	require.NoError(t, err)
	assert.Same(t, app.Identity(), w.Loader())
	assert.Equal(t, "com/acme", w.Package())

	obj := w.Super().Super()
	require.NotNil(t, obj)
	assert.Nil(t, obj.Loader(), "root class comes from the boot loader")

	// The root class is initiated by every loader on the way down.
	assert.Same(t, obj, app.FindLoadedClass(classfile.RootClass))
	assert.Same(t, obj, rs.Platform().FindLoadedClass(classfile.RootClass))
	assert.Same(t, obj, rs.Constraints().Lookup(rs.Symbol(classfile.RootClass), app.Identity()))

	// Defined stats count only classes the loader itself defined.
	assert.Equal(t, 2, rs.Constraints().Defined(app.Identity()))
	assert.Equal(t, 1, rs.Constraints().Defined(nil))

	// A loader never sees its children's classes.
	assert.Nil(t, rs.Platform().FindLoadedClass("com/acme/Widget"))
}

func TestSiblingLoadersDefineSeparately(t *testing.T) {
	rs, app := newGraph(t, DefaultOptions())
	other, err := rs.NewLoader("other", nil, appClasses(t))
	require.NoError(t, err)
	ctx := context.Background()

	a, err := app.LoadClass(ctx, "com/acme/Widget")
	require.NoError(t, err)
	b, err := other.LoadClass(ctx, "com/acme/Widget")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Same(t, a.Super().Super(), b.Super().Super())
}

func TestChildLoaderSeesParentClasses(t *testing.T) {
	rs, app := newGraph(t, DefaultOptions())
	plugin, err := rs.NewLoader("plugin", app, NewMemorySource("plugin", map[string][]byte{
		"com/acme/plugin/Gear": classBytes(t, "com/acme/plugin/Gear", "com/acme/Widget", classfile.AccPublic),
	}))
	require.NoError(t, err)

	g, err := plugin.LoadClass(context.Background(), "com/acme/plugin/Gear")
	require.NoError(t, err)
	assert.Same(t, app.Identity(), g.Super().Loader())
	assert.Same(t, g.Super(), app.FindLoadedClass("com/acme/Widget"))
}

func TestLoadClassNotFound(t *testing.T) {
	_, app := newGraph(t, DefaultOptions())

	_, err := app.LoadClass(context.Background(), "com.acme.Missing")
	assert.ErrorIs(t, err, registry.ErrClassNotFound)
	assert.Contains(t, err.Error(), "com.acme.Missing")
}

func TestReservedPackagesNeedTrustedLoader(t *testing.T) {
	rs, app := newGraph(t, DefaultOptions())
	app.AddSource(NewMemorySource("sneaky", map[string][]byte{
		"java/lang/Sneaky": classBytes(t, "java/lang/Sneaky", classfile.RootClass, classfile.AccPublic),
	}))

	_, err := app.LoadClass(context.Background(), "java.lang.Sneaky")
	assert.ErrorIs(t, err, registry.ErrSecurity)
	assert.Nil(t, rs.Boot().FindLoadedClass("java/lang/Sneaky"))
}

func TestRestrictedPackageAccess(t *testing.T) {
	opts := DefaultOptions()
	opts.RestrictedPackages = []string{"sun.misc"}
	rs, app := newGraph(t, opts)
	ctx := context.Background()

	_, err := app.LoadClass(ctx, "sun.misc.Unsafe")
	assert.ErrorIs(t, err, registry.ErrSecurity)

	// Trusted loaders are not checked.
	c, err := rs.Platform().LoadClass(ctx, "sun/misc/Unsafe")
	require.NoError(t, err)
	assert.True(t, c.IsFinal())
}

func TestArraysAndPrimitives(t *testing.T) {
	_, app := newGraph(t, DefaultOptions())
	ctx := context.Background()

	ints, err := app.LoadClass(ctx, "[[I")
	require.NoError(t, err)
	assert.Equal(t, 2, ints.Dimensions())
	assert.True(t, ints.Elemental().IsPrimitive())

	widgets, err := app.LoadClass(ctx, "[Lcom/acme/Widget;")
	require.NoError(t, err)
	assert.Same(t, app.FindLoadedClass("com/acme/Widget"), widgets.Component())

	again, err := app.LoadClass(ctx, "[Lcom/acme/Widget;")
	require.NoError(t, err)
	assert.Same(t, widgets, again)
}

func TestDefineClassOnLoader(t *testing.T) {
	_, app := newGraph(t, DefaultOptions())
	ctx := context.Background()
	data := classBytes(t, "com/acme/Gadget", classfile.RootClass, classfile.AccPublic)

	g, err := app.DefineClass(ctx, "com.acme.Gadget", data, nil)
	require.NoError(t, err)
	assert.Same(t, g, app.FindLoadedClass("com/acme/Gadget"))
	assert.Equal(t, "loader:app", g.Definition().(registry.Ordinary).Domain.CodeSource)

	_, err = app.DefineClass(ctx, "com.acme.Gadget", data, nil)
	assert.ErrorIs(t, err, registry.ErrDuplicateDefinition)

	h, err := app.DefineClass(ctx, "", data, registry.Hidden{Nest: g})
	require.NoError(t, err)
	assert.True(t, h.IsHidden())
	assert.Same(t, g, app.FindLoadedClass("com/acme/Gadget"))
}

func TestPreload(t *testing.T) {
	rs, app := newGraph(t, Options{PreloadLimit: 1})
	ctx := context.Background()

	names, err := app.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"com/acme/Shape", "com/acme/Widget"}, names)

	classes, err := rs.Preload(ctx, app, names)
	require.NoError(t, err)
	require.Len(t, classes, 2)
	assert.Same(t, classes[0], classes[1].Super())

	_, err = rs.Preload(ctx, app, []string{"com/acme/Widget", "com/acme/Nope"})
	assert.ErrorIs(t, err, registry.ErrClassNotFound)
}

func TestInternalName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"com.acme.Widget", "com/acme/Widget"},
		{"com/acme/Widget", "com/acme/Widget"},
		{"[Lcom/acme/Widget;", "[Lcom/acme/Widget;"},
		{"Widget", "Widget"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, internalName(tt.in), tt.in)
	}
}
