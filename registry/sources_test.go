// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/momentics/hioload-pw/api"
)

func entry(id uint32) api.RegistryEntry {
	return api.RegistryEntry{ID: id, Type: "Node", Version: 3}
}

func TestSources_AddedMinusRemoved(t *testing.T) {
	s := NewSources()
	events := []api.Event{
		api.RegistryAdded(entry(1)),
		api.FormatChanged(api.StreamFormat{MediaType: api.MediaTypeVideo}),
		api.RegistryAdded(entry(2)),
		api.FrameReady(api.NewFrame([]byte{1}, 1, api.StreamFormat{}, nil)),
		api.RegistryRemoved(1),
		api.RegistryAdded(entry(3)),
		api.RegistryRemoved(9),
	}
	for _, ev := range events {
		s.Apply(ev)
	}
	assert.Equal(t, []uint32{2, 3}, s.IDs())
	assert.Equal(t, 2, s.Len())
	e, ok := s.Get(2)
	assert.True(t, ok)
	assert.Equal(t, entry(2), e)
	_, ok = s.Get(1)
	assert.False(t, ok)
}

func TestSources_SnapshotIsCopy(t *testing.T) {
	s := NewSources()
	s.Apply(api.RegistryAdded(entry(4)))
	snap := s.Snapshot()
	delete(snap, 4)
	assert.Equal(t, 1, s.Len())
}

func TestSources_Freeze(t *testing.T) {
	s := NewSources()
	assert.True(t, s.Apply(api.RegistryAdded(entry(5))))
	s.Freeze()
	assert.True(t, s.Frozen())
	assert.False(t, s.Apply(api.RegistryRemoved(5)))
	assert.False(t, s.Apply(api.RegistryAdded(entry(6))))
	assert.Equal(t, []uint32{5}, s.IDs())
}
