package auth

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestDebouncerCoalescesBurst(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	var calls atomic.Int32
	d := NewDebouncer(mock, 100*time.Millisecond, func() { calls.Add(1) })

	for i := 0; i < 5; i++ {
		d.Trigger()
		mock.Add(50 * time.Millisecond)
	}
	require.Zero(t, calls.Load())

	mock.Add(100 * time.Millisecond)
	require.Equal(t, int32(1), calls.Load())
}

func TestDebouncerIgnoresSupersededFire(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	var calls atomic.Int32
	d := NewDebouncer(mock, 100*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	d.mu.Lock()
	stale := d.gen
	d.mu.Unlock()

	// A timer that started firing before the next Trigger took the lock.
	d.Trigger()
	d.fire(stale)
	require.Zero(t, calls.Load())

	d.mu.Lock()
	require.NotNil(t, d.timer, "latest timer stays cancellable")
	d.mu.Unlock()

	d.Stop()
	mock.Add(time.Second)
	require.Zero(t, calls.Load())
}

func TestDebouncerStopCancelsPending(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	var calls atomic.Int32
	d := NewDebouncer(mock, 100*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	d.Stop()
	mock.Add(time.Second)
	require.Zero(t, calls.Load())

	d.Trigger()
	mock.Add(100 * time.Millisecond)
	require.Equal(t, int32(1), calls.Load())
}
