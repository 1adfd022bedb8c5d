package bridge

import (
	"fmt"
	"sort"

	"github.com/kamstrup/intmap"
)

// Mirror is the bidirectional Entity <-> Handle table. Entries live in an arena
// indexed by slot; two reverse tables map each side to its slot. Every
// mutation updates both directions before returning.
//
// Only the Coordinator mutates a Mirror owned by a Bridge; everything else
// should treat it as read-only.
type Mirror struct {
	entries  []MirrorEntry // Entity == 0 marks a free slot
	free     []int32
	byEntity *intmap.Map[Entity, int32]
	byHandle *intmap.Map[Handle, int32]
	counts   [numStates]int
}

// NewMirror creates an empty mirror sized for about capacity entries.
func NewMirror(capacity int) *Mirror {
	if capacity < 16 {
		capacity = 16
	}
	return &Mirror{
		entries:  make([]MirrorEntry, 0, capacity),
		byEntity: intmap.New[Entity, int32](capacity),
		byHandle: intmap.New[Handle, int32](capacity),
	}
}

func (m *Mirror) alloc(entry MirrorEntry) int32 {
	if n := len(m.free); n > 0 {
		slot := m.free[n-1]
		m.free = m.free[:n-1]
		m.entries[slot] = entry
		return slot
	}
	m.entries = append(m.entries, entry)
	return int32(len(m.entries) - 1)
}

func (m *Mirror) setState(slot int32, state State, tick uint64) {
	entry := &m.entries[slot]
	m.counts[entry.State]--
	m.counts[state]++
	entry.State = state
	entry.Since = tick
}

// Track creates an unbound entry for e. If e is already mirrored the existing
// entry is returned together with ErrAlreadyTracked.
func (m *Mirror) Track(e Entity, tick uint64) (MirrorEntry, error) {
	if e == 0 {
		return MirrorEntry{}, entityErr("track", e, 0, ErrUnknownEntity)
	}
	if slot, ok := m.byEntity.Get(e); ok {
		return m.entries[slot], entityErr("track", e, 0, ErrAlreadyTracked)
	}

	entry := MirrorEntry{Entity: e, State: StateTracked, Since: tick}
	m.byEntity.Put(e, m.alloc(entry))
	m.counts[StateTracked]++
	return entry, nil
}

// Bind pairs e with h and marks the entry Bound, creating it if e was not
// tracked. It fails with ErrAlreadyBound if e already holds a handle, if h is
// mapped to any entity, or if e is being torn down.
func (m *Mirror) Bind(e Entity, h Handle, tick uint64) (MirrorEntry, error) {
	if e == 0 {
		return MirrorEntry{}, entityErr("bind", e, h, ErrUnknownEntity)
	}
	if h == 0 {
		return MirrorEntry{}, entityErr("bind", e, h, ErrInvalidHandle)
	}
	if other, ok := m.byHandle.Get(h); ok {
		return MirrorEntry{}, entityErr("bind", e, h,
			fmt.Errorf("%w: handle held by entity %d", ErrAlreadyBound, m.entries[other].Entity))
	}

	slot, ok := m.byEntity.Get(e)
	if !ok {
		slot = m.alloc(MirrorEntry{Entity: e, State: StateTracked, Since: tick})
		m.byEntity.Put(e, slot)
		m.counts[StateTracked]++
	}

	entry := &m.entries[slot]
	if entry.Handle != 0 {
		return *entry, entityErr("bind", e, h,
			fmt.Errorf("%w: entity holds handle %d", ErrAlreadyBound, entry.Handle))
	}
	if entry.State == StatePendingDestroy {
		return *entry, entityErr("bind", e, h, fmt.Errorf("%w: entity is pending destroy", ErrAlreadyBound))
	}

	entry.Handle = h
	m.byHandle.Put(h, slot)
	m.setState(slot, StateBound, tick)
	return *entry, nil
}

// LookupByEntity returns the handle bound to e.
func (m *Mirror) LookupByEntity(e Entity) (Handle, bool) {
	slot, ok := m.byEntity.Get(e)
	if !ok || m.entries[slot].Handle == 0 {
		return 0, false
	}
	return m.entries[slot].Handle, true
}

// LookupByHandle returns the entity bound to h.
func (m *Mirror) LookupByHandle(h Handle) (Entity, bool) {
	slot, ok := m.byHandle.Get(h)
	if !ok {
		return 0, false
	}
	return m.entries[slot].Entity, true
}

// Entry returns a copy of e's entry.
func (m *Mirror) Entry(e Entity) (MirrorEntry, bool) {
	slot, ok := m.byEntity.Get(e)
	if !ok {
		return MirrorEntry{}, false
	}
	return m.entries[slot], true
}

// MarkPendingDestroy moves e's entry to PendingDestroy, keeping its handle.
func (m *Mirror) MarkPendingDestroy(e Entity, tick uint64) (MirrorEntry, bool) {
	slot, ok := m.byEntity.Get(e)
	if !ok {
		return MirrorEntry{}, false
	}
	if m.entries[slot].State != StatePendingDestroy {
		m.setState(slot, StatePendingDestroy, tick)
	}
	return m.entries[slot], true
}

// Detach drops e's handle from both directions but keeps the entry. It returns
// the handle that was released.
func (m *Mirror) Detach(e Entity) (Handle, bool) {
	slot, ok := m.byEntity.Get(e)
	if !ok {
		return 0, false
	}
	entry := &m.entries[slot]
	h := entry.Handle
	if h == 0 {
		return 0, false
	}
	m.byHandle.Del(h)
	entry.Handle = 0
	return h, true
}

// Unbind removes e's entry and both of its mappings. It is a no-op when e is
// not mirrored.
func (m *Mirror) Unbind(e Entity) {
	slot, ok := m.byEntity.Get(e)
	if !ok {
		return
	}
	entry := m.entries[slot]
	if entry.Handle != 0 {
		if owner, ok := m.byHandle.Get(entry.Handle); ok && owner == slot {
			m.byHandle.Del(entry.Handle)
		}
	}
	m.byEntity.Del(e)
	m.counts[entry.State]--
	m.entries[slot] = MirrorEntry{}
	m.free = append(m.free, slot)
}

// Len returns the number of mirrored entities.
func (m *Mirror) Len() int {
	return m.byEntity.Len()
}

// Count returns how many entries are in state.
func (m *Mirror) Count(state State) int {
	if state >= numStates {
		return 0
	}
	return m.counts[state]
}

// Snapshot copies every entry in state, ordered by Entity. The result is
// independent of later mutations.
func (m *Mirror) Snapshot(state State) []MirrorEntry {
	out := make([]MirrorEntry, 0, m.Count(state))
	for _, entry := range m.entries {
		if entry.Entity != 0 && entry.State == state {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entity < out[j].Entity })
	return out
}

// All copies every entry, ordered by Entity.
func (m *Mirror) All() []MirrorEntry {
	out := make([]MirrorEntry, 0, m.Len())
	for _, entry := range m.entries {
		if entry.Entity != 0 {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entity < out[j].Entity })
	return out
}

// Verify checks that both directions agree. Any disagreement is reported as
// ErrMappingInconsistency.
func (m *Mirror) Verify() error {
	var err error
	fail := func(e Entity, h Handle, format string, args ...any) bool {
		err = entityErr("verify", e, h, fmt.Errorf("%w: "+format, append([]any{ErrMappingInconsistency}, args...)...))
		return false
	}

	live := 0
	for _, entry := range m.entries {
		if entry.Entity != 0 {
			live++
		}
	}
	if live != m.byEntity.Len() {
		return entityErr("verify", 0, 0,
			fmt.Errorf("%w: %d live entries but %d entity keys", ErrMappingInconsistency, live, m.byEntity.Len()))
	}

	m.byEntity.ForEach(func(e Entity, slot int32) bool {
		if int(slot) >= len(m.entries) || m.entries[slot].Entity != e {
			return fail(e, 0, "entity key points at slot %d owned by another entity", slot)
		}
		h := m.entries[slot].Handle
		if h == 0 {
			return true
		}
		if back, ok := m.byHandle.Get(h); !ok || back != slot {
			return fail(e, h, "handle does not map back to entity")
		}
		return true
	})
	if err != nil {
		return err
	}

	m.byHandle.ForEach(func(h Handle, slot int32) bool {
		if int(slot) >= len(m.entries) || m.entries[slot].Handle != h {
			return fail(0, h, "handle key points at slot %d holding another handle", slot)
		}
		e := m.entries[slot].Entity
		if back, ok := m.byEntity.Get(e); !ok || back != slot {
			return fail(e, h, "entity does not map back to handle")
		}
		return true
	})
	return err
}
