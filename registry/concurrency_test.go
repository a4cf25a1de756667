package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/classreg/classfile"
	"github.com/chazu/classreg/symbol"
)

// ---------------------------------------------------------------------------
// Concurrent resolution
// ---------------------------------------------------------------------------

func TestConcurrentLoadDoesWorkOnce(t *testing.T) {
	env := newEnv(t, platformLoader())
	env.add(&classfile.File{Name: "com/acme/Shape", Flags: public | iface})
	env.add(&classfile.File{Name: "com/acme/Widget", Interfaces: []string{"com/acme/Shape"}, Flags: public})

	const workers = 32
	results := make([]*Class, workers)
	start := make(chan struct{})

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			<-start
			c, err := env.engine.LoadClass(NewResolution(context.Background()), env.sym("com/acme/Widget"), nil)
			results[i] = c
			return err
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	require.NotNil(t, results[0])
	for _, c := range results {
		assert.Same(t, results[0], c)
	}
	assert.Equal(t, 1, env.decoder.count("Lcom/acme/Widget;"))
	assert.EqualValues(t, 3, env.engine.Stats().Defined)
	assert.Zero(t, env.engine.Stats().Locks)
}

func TestConcurrentDefineFirstWriterWins(t *testing.T) {
	env := newEnv(t, platformLoader())
	env.add(&classfile.File{Name: "com/acme/Widget", Flags: public})
	env.mustLoad(classfile.RootClass)

	const workers = 16
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		winner    atomic.Pointer[Class]
		errs      = make(chan error, workers)
		start     = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			c, err := env.define("com/acme/Widget", nil)
			if err != nil {
				errs <- err
				return
			}
			successes.Add(1)
			winner.Store(c)
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	assert.EqualValues(t, 1, successes.Load())
	failures := 0
	for err := range errs {
		assert.ErrorIs(t, err, ErrDuplicateDefinition)
		failures++
	}
	assert.Equal(t, workers-1, failures)
	assert.Same(t, winner.Load(), env.engine.FindLoadedClass(env.sym("com/acme/Widget")))
}

func TestUnrelatedSymbolsDoNotBlock(t *testing.T) {
	env := newEnv(t, platformLoader())
	env.add(&classfile.File{Name: "com/acme/Slow", Flags: public})
	env.add(&classfile.File{Name: "com/acme/Fast", Flags: public})
	env.mustLoad(classfile.RootClass)

	slow := env.sym("com/acme/Slow")
	entered := make(chan struct{})
	proceed := make(chan struct{})
	env.delegate.beforeFind = func(t *symbol.Symbol) {
		if t == slow {
			close(entered)
			<-proceed
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := env.load("com/acme/Slow")
		done <- err
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	fast, err := env.engine.LoadClass(NewResolution(ctx), env.sym("com/acme/Fast"), nil)
	require.NoError(t, err)
	assert.NotNil(t, fast)
	assert.Nil(t, env.engine.FindLoadedClass(slow))

	close(proceed)
	require.NoError(t, <-done)
	assert.NotNil(t, env.engine.FindLoadedClass(slow))
}

func TestLockWaitHonoursContext(t *testing.T) {
	env := newEnv(t, platformLoader())
	env.add(&classfile.File{Name: "com/acme/Slow", Flags: public})

	slow := env.sym("com/acme/Slow")
	entered := make(chan struct{})
	proceed := make(chan struct{})
	var once sync.Once
	env.delegate.beforeFind = func(t *symbol.Symbol) {
		if t == slow {
			once.Do(func() {
				close(entered)
				<-proceed
			})
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := env.load("com/acme/Slow")
		done <- err
	}()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := env.engine.LoadClass(NewResolution(ctx), slow, nil)
	assert.ErrorIs(t, err, context.Canceled)

	close(proceed)
	require.NoError(t, <-done)
	assert.NotNil(t, env.engine.FindLoadedClass(slow))
}

// A cycle whose edges are discovered by two different requests is not
// reported as a circularity: each request only sees its own chain. The
// two requests wait on each other's locks until their contexts expire.
func TestCrossRequestCycleIsNotDetected(t *testing.T) {
	env := newEnv(t, platformLoader())
	env.add(&classfile.File{Name: "com/acme/A", Super: "com/acme/B", Flags: public})
	env.add(&classfile.File{Name: "com/acme/B", Super: "com/acme/A", Flags: public})

	// Both requests take their first lock before either links.
	var barrier sync.WaitGroup
	barrier.Add(2)
	env.delegate.beforeFind = func(*symbol.Symbol) {
		barrier.Done()
		barrier.Wait()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, name := range []string{"com/acme/A", "com/acme/B"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.engine.LoadClass(NewResolution(ctx), env.sym(name), nil)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, ErrCircularity)
	}
	assert.Nil(t, env.engine.FindLoadedClass(env.sym("com/acme/A")))
	assert.Nil(t, env.engine.FindLoadedClass(env.sym("com/acme/B")))
	assert.Zero(t, env.engine.Stats().Locks)

	// The same cycle within one request is detected.
	env.delegate.beforeFind = nil
	_, err := env.load("com/acme/A")
	assert.ErrorIs(t, err, ErrCircularity)
}
