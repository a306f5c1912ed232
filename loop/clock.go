package loop

import (
	"sync/atomic"
	"time"
)

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// Clock is the time source and scheduler injected into every state machine.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// RealClock schedules callbacks with the runtime timer and runs them on the loop.
type RealClock struct {
	post func(func()) bool
}

func NewRealClock(l *Loop) RealClock {
	if l == nil {
		return RealClock{}
	}
	return RealClock{post: l.Post}
}

func (c RealClock) Now() time.Time {
	return time.Now()
}

func (c RealClock) AfterFunc(d time.Duration, f func()) Timer {
	rt := &realTimer{}
	rt.t = time.AfterFunc(d, func() {
		run := func() {
			if rt.stopped.Load() {
				return
			}
			f()
		}
		if c.post == nil {
			run()
			return
		}
		c.post(run)
	})
	return rt
}

type realTimer struct {
	t       *time.Timer
	stopped atomic.Bool
}

// Stop also discards a callback that already fired but is still queued.
func (t *realTimer) Stop() bool {
	t.stopped.Store(true)
	return t.t.Stop()
}

// Every calls f every d until the returned timer is stopped.
func Every(c Clock, d time.Duration, f func()) Timer {
	t := &ticker{clock: c, every: d, f: f}
	t.arm()
	return t
}

type ticker struct {
	clock   Clock
	every   time.Duration
	f       func()
	current Timer
	stopped bool
}

func (t *ticker) arm() {
	t.current = t.clock.AfterFunc(t.every, func() {
		if t.stopped {
			return
		}
		t.f()
		if !t.stopped {
			t.arm()
		}
	})
}

func (t *ticker) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	if t.current != nil {
		t.current.Stop()
	}
	return true
}

// Timers is a named set of timers owned by one component and cancelled as a unit.
type Timers struct {
	named map[string]Timer
}

// Set replaces (and stops) any timer registered under name.
func (g *Timers) Set(name string, t Timer) {
	if g.named == nil {
		g.named = make(map[string]Timer)
	}
	if old, ok := g.named[name]; ok {
		old.Stop()
	}
	g.named[name] = t
}

func (g *Timers) Active(name string) bool {
	_, ok := g.named[name]
	return ok
}

func (g *Timers) Stop(name string) {
	if t, ok := g.named[name]; ok {
		t.Stop()
		delete(g.named, name)
	}
}

// Forget drops name without stopping it, used by one-shot callbacks that already ran.
func (g *Timers) Forget(name string) {
	delete(g.named, name)
}

func (g *Timers) StopAll() {
	for name, t := range g.named {
		t.Stop()
		delete(g.named, name)
	}
}
