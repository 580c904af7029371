//go:build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package affinity

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSetAffinity_PinsCallingThread(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var orig unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(0, &orig))
	defer unix.SchedSetaffinity(0, &orig)

	cpu := -1
	for i := 0; i < 1024; i++ {
		if orig.IsSet(i) {
			cpu = i
			break
		}
	}
	require.GreaterOrEqual(t, cpu, 0)

	require.NoError(t, SetAffinity(cpu))
	var now unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(0, &now))
	assert.Equal(t, 1, now.Count())
	assert.True(t, now.IsSet(cpu))
}

func TestSetAffinity_RejectsNegative(t *testing.T) {
	assert.Error(t, SetAffinity(-1))
}
