// Package host provides the runtime the bridge is written against: a single
// event loop, named host events, and the host API implementation.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dropbear/gravity/internal/bridge"
)

var (
	// ErrLoopStopped is returned for work handed to a loop that is no longer running.
	ErrLoopStopped = errors.New("event loop stopped")
	// ErrNoListener is returned when an event nobody listens to is dispatched.
	ErrNoListener = errors.New("no listener for event")
)

type task struct {
	run    func()
	cancel func()
}

// Loop runs queued work one item at a time on a single goroutine. Event
// listeners and asynchronous completions all execute on it, so they never
// run concurrently with each other.
type Loop struct {
	logger *slog.Logger

	mu        sync.Mutex
	queue     []task
	listeners map[string][]func(bridge.Event) error
	stopped   bool
	wake      chan struct{}
}

// NewLoop creates a Loop. Nothing runs until Run is called.
func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger:    logger,
		listeners: make(map[string][]func(bridge.Event) error),
		wake:      make(chan struct{}, 1),
	}
}

// AddEventListener subscribes fn to the named event.
func (l *Loop) AddEventListener(name string, fn func(bridge.Event) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners[name] = append(l.listeners[name], fn)
}

// Post queues fn. It never blocks, including when called from the loop
// itself. It returns false once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	return l.enqueue(task{run: fn})
}

// Dispatch queues the named event for its listeners. The returned channel
// receives the listeners' combined error once they have all run, or
// ErrLoopStopped if the loop stops first.
func (l *Loop) Dispatch(name string, ev bridge.Event) <-chan error {
	result := make(chan error, 1)
	t := task{
		run: func() {
			result <- l.fire(name, ev)
		},
		cancel: func() {
			result <- ErrLoopStopped
		},
	}
	if !l.enqueue(t) {
		result <- ErrLoopStopped
	}
	return result
}

// DispatchWait dispatches the event and waits for its listeners or ctx.
func (l *Loop) DispatchWait(ctx context.Context, name string, ev bridge.Event) error {
	select {
	case err := <-l.Dispatch(name, ev):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes queued work until ctx is cancelled. Work still queued at
// that point is dropped.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.mu.Lock()
		var next *task
		if len(l.queue) > 0 {
			t := l.queue[0]
			l.queue[0] = task{}
			l.queue = l.queue[1:]
			next = &t
		}
		l.mu.Unlock()

		if next != nil {
			if ctx.Err() != nil {
				l.stop(next)
				return nil
			}
			l.safeRun(next.run)
			continue
		}

		select {
		case <-ctx.Done():
			l.stop(nil)
			return nil
		case <-l.wake:
		}
	}
}

func (l *Loop) enqueue(t task) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, t)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

func (l *Loop) stop(current *task) {
	l.mu.Lock()
	l.stopped = true
	dropped := l.queue
	l.queue = nil
	l.mu.Unlock()

	if current != nil && current.cancel != nil {
		current.cancel()
	}
	for _, t := range dropped {
		if t.cancel != nil {
			t.cancel()
		}
	}
}

func (l *Loop) fire(name string, ev bridge.Event) error {
	l.mu.Lock()
	fns := append([]func(bridge.Event) error(nil), l.listeners[name]...)
	l.mu.Unlock()

	if len(fns) == 0 {
		return fmt.Errorf("%w: %s", ErrNoListener, name)
	}

	var errs []error
	for _, fn := range fns {
		if err := l.callListener(name, fn, ev); err != nil {
			l.logger.Error("uncaught error in event handler", "event", name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *Loop) callListener(name string, fn func(bridge.Event) error, ev bridge.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener for %s panicked: %v", name, r)
		}
	}()
	return fn(ev)
}

func (l *Loop) safeRun(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("uncaught panic on event loop", "panic", r)
		}
	}()
	fn()
}
