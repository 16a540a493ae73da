// internal/eventloop/eventloop_test.go
package eventloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestManualLoop_PostRunsInOrder(t *testing.T) {
	m := NewManual(epoch)
	var got []int
	m.Post(func() {
		got = append(got, 1)
		m.Post(func() { got = append(got, 3) })
	})
	m.Post(func() { got = append(got, 2) })

	assert.Empty(t, got, "nothing runs before the loop is driven")
	assert.Equal(t, 3, m.RunPending())
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestManualLoop_AdvanceFiresDueTimers(t *testing.T) {
	m := NewManual(epoch)
	var got []string
	m.AfterFunc(100*time.Millisecond, func() { got = append(got, "b") })
	m.AfterFunc(50*time.Millisecond, func() { got = append(got, "a") })
	late := m.AfterFunc(time.Second, func() { got = append(got, "late") })

	m.Advance(99 * time.Millisecond)
	assert.Equal(t, []string{"a"}, got)

	m.Advance(time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, epoch.Add(100*time.Millisecond), m.Now())

	assert.True(t, late.Stop())
	assert.False(t, late.Stop(), "second stop reports nothing was prevented")
	m.Advance(time.Hour)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Zero(t, m.Pending())
}

func TestManualLoop_TimerSeesItsOwnDeadline(t *testing.T) {
	m := NewManual(epoch)
	var at time.Time
	m.AfterFunc(30*time.Millisecond, func() { at = m.Now() })
	m.Advance(time.Second)
	assert.Equal(t, epoch.Add(30*time.Millisecond), at)
}

func TestManualLoop_Every(t *testing.T) {
	m := NewManual(epoch)
	ticks := 0
	var timer Timer
	timer = m.Every(10*time.Millisecond, func() {
		ticks++
		if ticks == 3 {
			timer.Stop()
		}
	})
	m.Advance(25 * time.Millisecond)
	assert.Equal(t, 2, ticks)
	m.Advance(time.Second)
	assert.Equal(t, 3, ticks)
}

func TestManualLoop_SettleWaitsForBackgroundWork(t *testing.T) {
	m := NewManual(epoch)
	release := make(chan struct{})
	var result string
	m.Go(func() func() {
		<-release
		return func() { result = "done" }
	})
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Settle(ctx))
	assert.Equal(t, "done", result)
}

func TestManualLoop_SettleHonoursContext(t *testing.T) {
	m := NewManual(epoch)
	release := make(chan struct{})
	m.Go(func() func() {
		<-release
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Settle(ctx), context.Canceled)

	close(release)
	require.NoError(t, m.Settle(context.Background()))
}

func TestEventLoop_RunsCallbacksAndTimers(t *testing.T) {
	loop := New(zaptest.NewLogger(t))
	require.NoError(t, loop.Start(context.Background()))
	defer loop.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var n atomic.Int32
	require.NoError(t, loop.Do(ctx, func() { n.Add(1) }))
	assert.Equal(t, int32(1), n.Load())

	fired := make(chan struct{})
	loop.AfterFunc(5*time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-ctx.Done():
		t.Fatal("timer never fired")
	}

	cont := make(chan struct{})
	loop.Go(func() func() {
		return func() { close(cont) }
	})
	select {
	case <-cont:
	case <-ctx.Done():
		t.Fatal("continuation never posted")
	}
}

func TestEventLoop_RecoversFromPanics(t *testing.T) {
	loop := New(zaptest.NewLogger(t))
	require.NoError(t, loop.Start(context.Background()))
	defer loop.Stop()

	loop.Post(func() { panic("boom") })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ran := false
	require.NoError(t, loop.Do(ctx, func() { ran = true }))
	assert.True(t, ran)
}

func TestEventLoop_StoppedTimerNeverFires(t *testing.T) {
	loop := New(zaptest.NewLogger(t))
	require.NoError(t, loop.Start(context.Background()))
	defer loop.Stop()

	var fired atomic.Bool
	timer := loop.AfterFunc(20*time.Millisecond, func() { fired.Store(true) })
	assert.True(t, timer.Stop())
	time.Sleep(40 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, loop.Do(ctx, func() {}))
	assert.False(t, fired.Load())
}

func TestEventLoop_DoubleStart(t *testing.T) {
	loop := New(nil)
	require.NoError(t, loop.Start(context.Background()))
	defer loop.Stop()
	assert.Error(t, loop.Start(context.Background()))
}
