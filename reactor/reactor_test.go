// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-pw/api"
)

func TestLoop_InvokeRunsInOrderOnIterate(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, l.Invoke(func() { got = append(got, i) }))
	}
	n, err := l.Iterate(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestLoop_IterateTimesOutWithoutWork(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	n, err := l.Iterate(10 * time.Millisecond)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoop_InvokeQueueFull(t *testing.T) {
	l, err := New(WithInvokeQueueSize(2))
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Invoke(func() {}))
	require.NoError(t, l.Invoke(func() {}))
	err = l.Invoke(func() {})
	assert.ErrorIs(t, err, api.ErrQueueFull)
}

func TestLoop_CloseRejectsFurtherUse(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	assert.True(t, l.Closed())
	assert.ErrorIs(t, l.Invoke(func() {}), api.ErrLoopClosed)
	_, err = l.Iterate(0)
	assert.ErrorIs(t, err, api.ErrLoopClosed)
}

func TestLoop_CloseWhileIteratingIsBusy(t *testing.T) {
	l, err := New()
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, l.Invoke(func() {
		close(entered)
		<-release
	}))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = l.Iterate(-1)
	}()

	<-entered
	assert.ErrorIs(t, l.Close(), api.ErrLoopBusy)
	close(release)
	<-done
	require.NoError(t, l.Close())
}

func TestLoop_InLoopFollowsEnteredThread(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("thread identity is only tracked on linux")
	}
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	assert.False(t, l.InLoop())

	result := make(chan bool, 2)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		l.Enter()
		defer l.Leave()
		result <- l.InLoop()
		ran := false
		_ = l.Invoke(func() { ran = true })
		result <- ran
	}()
	assert.True(t, <-result, "entered thread is the loop thread")
	assert.True(t, <-result, "invoke from the loop thread runs inline")
	assert.Zero(t, l.Pending())
}
