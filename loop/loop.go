// Package loop provides the single event loop every client component runs on,
// together with the clock abstraction used by its timers.
package loop

import (
	"context"
	"errors"
	"sync"
)

var ErrStopped = errors.New("event loop stopped")

// Loop runs posted closures one at a time on a single goroutine.
type Loop struct {
	queue chan func()
	done  chan struct{}
	once  sync.Once
}

func New(size int) *Loop {
	if size <= 0 {
		size = 256
	}
	return &Loop{
		queue: make(chan func(), size),
		done:  make(chan struct{}),
	}
}

// Post queues f. It reports false once the loop has stopped.
func (l *Loop) Post(f func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case <-l.done:
		return false
	case l.queue <- f:
		return true
	}
}

// Do runs f on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, f func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		f()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes closures until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer l.once.Do(func() { close(l.done) })

	for {
		select {
		case <-ctx.Done():
			return
		case f := <-l.queue:
			f()
		}
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
