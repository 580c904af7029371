// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package loop

import (
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-pw/api"
	"github.com/momentics/hioload-pw/dispatch"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	r, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRuntime_StartStop(t *testing.T) {
	r := newRuntime(t)
	assert.Equal(t, StateIdle, r.State())
	assert.False(t, r.Alive())

	require.NoError(t, r.Start())
	assert.True(t, r.Alive())
	assert.ErrorIs(t, r.Start(), api.ErrAlreadyRunning)

	require.NoError(t, r.Stop())
	assert.Equal(t, StateStopped, r.State())
	assert.False(t, r.Alive())
	assert.NoError(t, r.Err())
	assert.ErrorIs(t, r.Start(), api.ErrAlreadyRunning)
}

func TestRuntime_StopIsIdempotent(t *testing.T) {
	r := newRuntime(t)
	require.NoError(t, r.Start())
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Stop())
	}
	assert.Equal(t, StateStopped, r.State())

	idle := newRuntime(t)
	require.NoError(t, idle.Stop())
	require.NoError(t, idle.Stop())
	assert.Equal(t, StateStopped, idle.State())
	assert.ErrorIs(t, idle.Start(), api.ErrLoopStopped)
}

func TestRuntime_StartThenImmediateClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		r, err := New()
		require.NoError(t, err)
		require.NoError(t, r.Start())
		require.NoError(t, r.Close())

		select {
		case <-r.Done():
		default:
			t.Fatal("worker not joined before close returned")
		}
		assert.Equal(t, StateStopped, r.State())
		assert.True(t, r.native.Closed())
		assert.True(t, r.Closed())
	}
}

func TestRuntime_CallbackPanicIsIterationFault(t *testing.T) {
	r := newRuntime(t)
	require.NoError(t, r.Start())
	require.NoError(t, r.Invoke(func() { panic("boom") }))

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("faulted worker did not exit")
	}
	assert.False(t, r.Alive())
	assert.ErrorIs(t, r.Err(), api.ErrIterationFault)
	require.NoError(t, r.Stop())
	assert.ErrorIs(t, r.Start(), api.ErrAlreadyRunning)
}

func TestRuntime_AttachOnlyWhileIdle(t *testing.T) {
	r := newRuntime(t)
	var calls atomic.Int32
	attach := func(api.Loop) (io.Closer, error) {
		calls.Add(1)
		return closerFunc(func() error { return nil }), nil
	}

	require.NoError(t, r.Attach(KindRegistry, attach))
	assert.ErrorIs(t, r.Attach(KindRegistry, attach), api.ErrAlreadyAttached)
	assert.EqualValues(t, 1, calls.Load())

	require.NoError(t, r.Start())
	assert.ErrorIs(t, r.Attach(KindStream, attach), api.ErrAlreadyRunning)
	assert.EqualValues(t, 1, calls.Load(), "late attach must not reach the native loop")
}

func TestRuntime_AttachFailureNotRecorded(t *testing.T) {
	r := newRuntime(t)
	boom := errors.New("boom")
	err := r.Attach(KindStream, func(api.Loop) (io.Closer, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	require.NoError(t, r.Attach(KindStream, func(api.Loop) (io.Closer, error) {
		return closerFunc(func() error { return nil }), nil
	}))
}

func TestRuntime_CloseReleasesAttachmentsInReverse(t *testing.T) {
	var order []Kind
	hooked := 0
	r, err := New(WithCloseHook(func(*Runtime) { hooked++ }))
	require.NoError(t, err)

	for _, k := range []Kind{KindRegistry, KindStream} {
		k := k
		require.NoError(t, r.Attach(k, func(api.Loop) (io.Closer, error) {
			return closerFunc(func() error { order = append(order, k); return nil }), nil
		}))
	}
	require.NoError(t, r.Start())
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	assert.Equal(t, []Kind{KindStream, KindRegistry}, order)
	assert.Equal(t, 1, hooked)
}

func TestRuntime_PostStampsLoopID(t *testing.T) {
	q := dispatch.New()
	r := newRuntime(t, WithDispatcher(q), WithID("loop-a"))
	assert.Same(t, q, r.Events())

	require.NoError(t, r.Start())
	require.NoError(t, r.Invoke(func() { r.Post(api.RegistryRemoved(3)) }))
	require.Eventually(t, func() bool { return q.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	var got api.Event
	q.HandleAll(func(ev api.Event) { got = ev })
	assert.Equal(t, 1, q.Drain())
	assert.Equal(t, "loop-a", got.Loop)
	assert.Equal(t, uint32(3), got.ID)
}

func TestRuntime_StopWithFullInvokeQueue(t *testing.T) {
	r := newRuntime(t, WithInvokeQueueSize(2))
	require.NoError(t, r.Start())

	entered := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, r.Invoke(func() {
		close(entered)
		<-release
	}))
	<-entered

	var err error
	for i := 0; i < 8 && err == nil; i++ {
		err = r.Invoke(func() {})
	}
	require.ErrorIs(t, err, api.ErrQueueFull)

	stopped := make(chan error, 1)
	go func() { stopped <- r.Stop() }()
	require.Eventually(t, func() bool { return r.State() == StateStopRequested }, time.Second, time.Millisecond)

	select {
	case err := <-stopped:
		t.Fatalf("Stop returned while the worker was busy: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, StateStopped, r.State())
	assert.NoError(t, r.Err())
	require.NoError(t, r.Close())
	assert.True(t, r.Closed())
}
