// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package registry

import (
	"maps"
	"slices"

	"github.com/momentics/hioload-pw/api"
)

// Sources is the host-side view of the registry. It is owned by the host
// goroutine and fed from drained events only.
type Sources struct {
	entries map[uint32]api.RegistryEntry
	frozen  bool
}

// NewSources returns an empty table.
func NewSources() *Sources {
	return &Sources{entries: make(map[uint32]api.RegistryEntry)}
}

// Apply folds a registry event into the table and reports whether it changed.
// Other event kinds and any event after Freeze are ignored.
func (s *Sources) Apply(ev api.Event) bool {
	if s.frozen {
		return false
	}
	switch ev.Kind {
	case api.EventRegistryAdded:
		s.entries[ev.Entry.ID] = ev.Entry
		return true
	case api.EventRegistryRemoved:
		if _, ok := s.entries[ev.ID]; !ok {
			return false
		}
		delete(s.entries, ev.ID)
		return true
	}
	return false
}

// Get returns the entry for id.
func (s *Sources) Get(id uint32) (api.RegistryEntry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

// Snapshot returns a copy of the table.
func (s *Sources) Snapshot() map[uint32]api.RegistryEntry {
	return maps.Clone(s.entries)
}

// IDs returns the known ids in ascending order.
func (s *Sources) IDs() []uint32 {
	return slices.Sorted(maps.Keys(s.entries))
}

// Len returns the number of known entries.
func (s *Sources) Len() int { return len(s.entries) }

// Freeze keeps the table at its last known state.
func (s *Sources) Freeze() { s.frozen = true }

// Frozen reports whether Freeze was called.
func (s *Sources) Frozen() bool { return s.frozen }
