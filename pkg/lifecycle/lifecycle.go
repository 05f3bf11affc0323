package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ReadinessChecker reports whether a subsystem is ready to serve traffic.
type ReadinessChecker interface {
	Ready() bool
}

// Coordinator manages startup, drain, and shutdown hooks for the application
// lifecycle. Shutdown runs in two phases: drain hooks finish in-flight work
// while shared resources are still open, then shutdown hooks release them.
type Coordinator struct {
	ctx        context.Context
	cancel     context.CancelFunc
	startupWg  sync.WaitGroup
	drainWg    sync.WaitGroup
	shutdownWg sync.WaitGroup
	drained    chan struct{}
	drainOnce  sync.Once
	ready      bool
	watched    map[string]ReadinessChecker
	readyMu    sync.RWMutex
}

// New creates a Coordinator with a cancellable context.
func New() *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		ctx:     ctx,
		cancel:  cancel,
		drained: make(chan struct{}),
		watched: make(map[string]ReadinessChecker),
	}
}

// Context returns the coordinator's context, cancelled on shutdown.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// OnStartup registers a function to run concurrently during startup.
func (c *Coordinator) OnStartup(fn func()) {
	c.startupWg.Go(fn)
}

// OnDrain registers a function that runs once the context is cancelled.
// Every drain hook returns before any shutdown hook starts.
func (c *Coordinator) OnDrain(fn func()) {
	c.drainWg.Go(func() {
		<-c.ctx.Done()
		fn()
	})
}

// OnShutdown registers a function that releases a resource after all drain
// hooks have returned.
func (c *Coordinator) OnShutdown(fn func()) {
	c.shutdownWg.Go(func() {
		<-c.drained
		fn()
	})
}

// Watch gates readiness on rc under name, replacing any checker already
// watched under that name.
func (c *Coordinator) Watch(name string, rc ReadinessChecker) {
	c.readyMu.Lock()
	defer c.readyMu.Unlock()
	c.watched[name] = rc
}

// Ready reports whether startup has finished and every watched subsystem is
// ready.
func (c *Coordinator) Ready() bool {
	c.readyMu.RLock()
	defer c.readyMu.RUnlock()
	if !c.ready {
		return false
	}
	for _, rc := range c.watched {
		if !rc.Ready() {
			return false
		}
	}
	return true
}

// Readiness returns the current state of each watched subsystem.
func (c *Coordinator) Readiness() map[string]bool {
	c.readyMu.RLock()
	defer c.readyMu.RUnlock()
	states := make(map[string]bool, len(c.watched))
	for name, rc := range c.watched {
		states[name] = rc.Ready()
	}
	return states
}

// WaitForStartup blocks until all startup hooks have completed and sets the ready flag.
func (c *Coordinator) WaitForStartup() {
	c.startupWg.Wait()
	c.readyMu.Lock()
	c.ready = true
	c.readyMu.Unlock()
}

// Shutdown cancels the context, waits for drain hooks, then waits for
// shutdown hooks. Both phases share the given timeout.
func (c *Coordinator) Shutdown(timeout time.Duration) error {
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.drainWg.Wait()
		c.drainOnce.Do(func() { close(c.drained) })
		c.shutdownWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}
