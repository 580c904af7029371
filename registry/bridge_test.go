// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-pw/api"
	"github.com/momentics/hioload-pw/fake"
	"github.com/momentics/hioload-pw/loop"
)

func startRuntime(t *testing.T, svc *fake.Service) *loop.Runtime {
	t.Helper()
	rt, err := loop.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	require.NoError(t, Attach(rt, svc))
	require.NoError(t, rt.Start())
	return rt
}

func drainUntil(t *testing.T, rt *loop.Runtime, want int) []api.Event {
	t.Helper()
	var got []api.Event
	rt.Events().HandleAll(func(ev api.Event) { got = append(got, ev) })
	require.Eventually(t, func() bool {
		rt.Events().Drain()
		return len(got) >= want
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestAttach_ForwardsAddAndRemove(t *testing.T) {
	svc := fake.NewService()
	rt := startRuntime(t, svc)
	reg := svc.Registry()
	require.NotNil(t, reg)

	require.NoError(t, reg.Add(7, "PipeWire:Interface:Node", 3, map[string]string{"media.class": "Video/Source"}))
	require.NoError(t, reg.Remove(7))

	got := drainUntil(t, rt, 2)
	require.Len(t, got, 2)
	assert.Equal(t, api.EventRegistryAdded, got[0].Kind)
	assert.Equal(t, api.RegistryEntry{
		ID:          7,
		Type:        "PipeWire:Interface:Node",
		Version:     3,
		Permissions: fake.PermAll,
		Props:       map[string]string{"media.class": "Video/Source"},
	}, got[0].Entry)
	assert.Equal(t, rt.ID(), got[0].Loop)
	assert.Equal(t, api.EventRegistryRemoved, got[1].Kind)
	assert.Equal(t, uint32(7), got[1].ID)
}

func TestAttach_AfterStartMakesNoNativeCall(t *testing.T) {
	svc := fake.NewService()
	rt, err := loop.New()
	require.NoError(t, err)
	defer rt.Close()
	require.NoError(t, rt.Start())

	assert.ErrorIs(t, Attach(rt, svc), api.ErrAlreadyRunning)
	assert.Zero(t, svc.Connects())
	assert.Zero(t, svc.Registrations())
}

func TestAttach_Twice(t *testing.T) {
	svc := fake.NewService()
	rt, err := loop.New()
	require.NoError(t, err)
	defer rt.Close()

	require.NoError(t, Attach(rt, svc))
	assert.ErrorIs(t, Attach(rt, svc), api.ErrAlreadyAttached)
	assert.Equal(t, 1, svc.Registrations())
}

func TestAttach_ServiceFailures(t *testing.T) {
	boom := errors.New("boom")
	for name, set := range map[string]func(*fake.Service){
		"connect":  func(s *fake.Service) { s.ConnectErr = boom },
		"registry": func(s *fake.Service) { s.RegistryErr = boom },
		"listener": func(s *fake.Service) { s.ListenerErr = boom },
	} {
		t.Run(name, func(t *testing.T) {
			svc := fake.NewService()
			set(svc)
			rt, err := loop.New()
			require.NoError(t, err)
			defer rt.Close()

			err = Attach(rt, svc)
			assert.ErrorIs(t, err, api.ErrListenerUnavailable)
			assert.ErrorIs(t, err, boom)
			assert.Zero(t, svc.Registrations())
		})
	}
}

func TestClose_ReleasesListener(t *testing.T) {
	svc := fake.NewService()
	rt := startRuntime(t, svc)
	require.Equal(t, 1, svc.Registrations())

	require.NoError(t, rt.Close())
	assert.Zero(t, svc.Registrations())
	assert.True(t, svc.Registry().Destroyed())
}
