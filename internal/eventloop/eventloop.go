// internal/eventloop/eventloop.go
package eventloop

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop cancels the callback. It reports whether the call prevented a
	// pending run.
	Stop() bool
}

// Loop serializes every callback touching the document. All controller state
// is owned by the loop and only mutated from callbacks it runs.
type Loop interface {
	// Post queues fn behind the callbacks already waiting.
	Post(fn func())
	// AfterFunc runs fn on the loop once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
	// Every runs fn on the loop every d until the timer is stopped.
	Every(d time.Duration, fn func()) Timer
	// Go runs work off the loop. The continuation it returns, if any, is
	// posted back to the loop.
	Go(work func() func())
	// Now is the loop's notion of the current time.
	Now() time.Time
}

// EventLoop is the production Loop, backed by a single goroutine.
type EventLoop struct {
	logger *zap.Logger

	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	running atomic.Bool
	closed  atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
	work   sync.WaitGroup
}

var _ Loop = (*EventLoop)(nil)

// New creates a stopped EventLoop.
func New(logger *zap.Logger) *EventLoop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventLoop{
		logger: logger.Named("eventloop"),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start launches the loop goroutine. It returns an error if called twice.
func (l *EventLoop) Start(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("event loop already started")
	}
	ctx, l.cancel = context.WithCancel(ctx)
	go l.run(ctx)
	return nil
}

// Stop halts the loop and waits for background work started through Go.
// Callbacks still queued are discarded.
func (l *EventLoop) Stop() {
	if !l.closed.CompareAndSwap(false, true) {
		return
	}
	if l.cancel != nil {
		l.cancel()
		<-l.done
	}
	l.work.Wait()
}

func (l *EventLoop) run(ctx context.Context) {
	defer close(l.done)
	for {
		for {
			fn := l.next()
			if fn == nil {
				break
			}
			l.invoke(fn)
			if ctx.Err() != nil {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}

func (l *EventLoop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

func (l *EventLoop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Recovered from panic in loop callback.", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}

// Post implements Loop. Posting to a stopped loop is a no-op.
func (l *EventLoop) Post(fn func()) {
	if fn == nil || l.closed.Load() {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop and waits for it to return.
func (l *EventLoop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return fmt.Errorf("event loop stopped")
	}
}

type realTimer struct {
	stopped atomic.Bool
	mu      sync.Mutex
	timer   *time.Timer
}

func (t *realTimer) Stop() bool {
	if !t.stopped.CompareAndSwap(false, true) {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	return true
}

// AfterFunc implements Loop.
func (l *EventLoop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &realTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped.CompareAndSwap(false, true) {
				fn()
			}
		})
	})
	return t
}

// Every implements Loop.
func (l *EventLoop) Every(d time.Duration, fn func()) Timer {
	t := &realTimer{}
	var tick func()
	tick = func() {
		l.Post(func() {
			if t.stopped.Load() {
				return
			}
			fn()
			t.mu.Lock()
			if !t.stopped.Load() {
				t.timer = time.AfterFunc(d, tick)
			}
			t.mu.Unlock()
		})
	}
	t.mu.Lock()
	t.timer = time.AfterFunc(d, tick)
	t.mu.Unlock()
	return t
}

// Go implements Loop.
func (l *EventLoop) Go(work func() func()) {
	if l.closed.Load() {
		return
	}
	l.work.Add(1)
	go func() {
		defer l.work.Done()
		if cont := work(); cont != nil {
			l.Post(cont)
		}
	}()
}

// Now implements Loop.
func (l *EventLoop) Now() time.Time { return time.Now() }
