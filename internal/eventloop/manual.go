// internal/eventloop/manual.go
package eventloop

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ManualLoop is a deterministic Loop driven by the caller. Nothing runs until
// RunPending, Advance or Settle is called, and time only moves through Advance.
type ManualLoop struct {
	mu       sync.Mutex
	now      time.Time
	queue    []func()
	timers   []*manualTimer
	seq      uint64
	inflight int
	arrived  chan struct{}
}

var _ Loop = (*ManualLoop)(nil)

// NewManual creates a ManualLoop whose clock starts at start.
func NewManual(start time.Time) *ManualLoop {
	return &ManualLoop{now: start, arrived: make(chan struct{}, 1)}
}

type manualTimer struct {
	loop    *ManualLoop
	due     time.Time
	period  time.Duration
	seq     uint64
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.loop.mu.Lock()
	defer t.loop.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Post implements Loop.
func (m *ManualLoop) Post(fn func()) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
}

// AfterFunc implements Loop.
func (m *ManualLoop) AfterFunc(d time.Duration, fn func()) Timer {
	return m.schedule(d, 0, fn)
}

// Every implements Loop.
func (m *ManualLoop) Every(d time.Duration, fn func()) Timer {
	if d <= 0 {
		d = time.Nanosecond
	}
	return m.schedule(d, d, fn)
}

func (m *ManualLoop) schedule(d, period time.Duration, fn func()) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{loop: m, due: m.now.Add(d), period: period, seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Go implements Loop. The work runs on its own goroutine; Settle waits for it.
func (m *ManualLoop) Go(work func() func()) {
	m.mu.Lock()
	m.inflight++
	m.mu.Unlock()
	go func() {
		cont := work()
		m.mu.Lock()
		if cont != nil {
			m.queue = append(m.queue, cont)
		}
		m.inflight--
		m.mu.Unlock()
		select {
		case m.arrived <- struct{}{}:
		default:
		}
	}()
}

// Now implements Loop.
func (m *ManualLoop) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// RunPending drains the queue, including callbacks queued while draining, and
// returns how many ran.
func (m *ManualLoop) RunPending() int {
	ran := 0
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return ran
		}
		fn := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		m.mu.Unlock()

		fn()
		ran++
	}
}

// Advance moves the clock forward by d, firing due timers in order and
// draining the queue after each one.
func (m *ManualLoop) Advance(d time.Duration) {
	m.RunPending()
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		t := m.nextDue(target)
		if t == nil {
			break
		}
		t.fn()
		m.RunPending()
	}

	m.mu.Lock()
	if m.now.Before(target) {
		m.now = target
	}
	m.mu.Unlock()
	m.RunPending()
}

// nextDue pops the earliest live timer due at or before target and moves the
// clock to its deadline.
func (m *ManualLoop) nextDue(target time.Time) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	m.timers = live
	if len(m.timers) == 0 {
		return nil
	}
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].due.Equal(m.timers[j].due) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].due.Before(m.timers[j].due)
	})
	t := m.timers[0]
	if t.due.After(target) {
		return nil
	}
	if t.due.After(m.now) {
		m.now = t.due
	}
	if t.period > 0 {
		t.due = t.due.Add(t.period)
		m.seq++
		t.seq = m.seq
	} else {
		t.stopped = true
		m.timers = m.timers[1:]
	}
	return t
}

// Pending reports how many timers are still scheduled.
func (m *ManualLoop) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Settle drains the queue until no background work started through Go is in
// flight. Timers are not fired.
func (m *ManualLoop) Settle(ctx context.Context) error {
	for {
		m.RunPending()
		m.mu.Lock()
		idle := m.inflight == 0 && len(m.queue) == 0
		m.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-m.arrived:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
