package bridge_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/plus3/navbridge/bridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirrorTrackAndBind(t *testing.T) {
	m := bridge.NewMirror(0)

	entry, err := m.Track(1, 10)
	require.NoError(t, err)
	assert.Equal(t, bridge.StateTracked, entry.State)
	assert.False(t, entry.Bound())
	assert.Equal(t, uint64(10), entry.Since)

	_, ok := m.LookupByEntity(1)
	assert.False(t, ok, "tracked entity has no handle")

	entry, err = m.Track(1, 11)
	assert.ErrorIs(t, err, bridge.ErrAlreadyTracked)
	assert.Equal(t, uint64(10), entry.Since, "existing entry returned")

	entry, err = m.Bind(1, 100, 12)
	require.NoError(t, err)
	assert.Equal(t, bridge.StateBound, entry.State)
	assert.Equal(t, bridge.Handle(100), entry.Handle)

	h, ok := m.LookupByEntity(1)
	require.True(t, ok)
	assert.Equal(t, bridge.Handle(100), h)

	e, ok := m.LookupByHandle(100)
	require.True(t, ok)
	assert.Equal(t, bridge.Entity(1), e)

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 1, m.Count(bridge.StateBound))
	assert.Equal(t, 0, m.Count(bridge.StateTracked))
	assert.NoError(t, m.Verify())
}

func TestMirrorBindCreatesEntry(t *testing.T) {
	m := bridge.NewMirror(0)

	entry, err := m.Bind(7, 70, 1)
	require.NoError(t, err)
	assert.Equal(t, bridge.StateBound, entry.State)
	assert.Equal(t, 1, m.Len())
}

func TestMirrorBindConflicts(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(m *bridge.Mirror)
		entity bridge.Entity
		handle bridge.Handle
		want   error
	}{
		{
			name:   "entity already has a handle",
			setup:  func(m *bridge.Mirror) { _, _ = m.Bind(1, 10, 0) },
			entity: 1,
			handle: 11,
			want:   bridge.ErrAlreadyBound,
		},
		{
			name:   "handle held by another entity",
			setup:  func(m *bridge.Mirror) { _, _ = m.Bind(1, 10, 0) },
			entity: 2,
			handle: 10,
			want:   bridge.ErrAlreadyBound,
		},
		{
			name: "entity pending destroy",
			setup: func(m *bridge.Mirror) {
				_, _ = m.Bind(1, 10, 0)
				m.MarkPendingDestroy(1, 1)
				m.Detach(1)
			},
			entity: 1,
			handle: 11,
			want:   bridge.ErrAlreadyBound,
		},
		{
			name:   "zero handle",
			setup:  func(m *bridge.Mirror) {},
			entity: 1,
			handle: 0,
			want:   bridge.ErrInvalidHandle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := bridge.NewMirror(0)
			tt.setup(m)
			before := m.All()

			_, err := m.Bind(tt.entity, tt.handle, 5)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var entityErr *bridge.EntityError
			require.True(t, errors.As(err, &entityErr))
			assert.Equal(t, "bind", entityErr.Op)

			assert.Equal(t, before, m.All(), "failed bind must not change the mirror")
			assert.NoError(t, m.Verify())
		})
	}
}

func TestMirrorUnbindIdempotent(t *testing.T) {
	m := bridge.NewMirror(0)
	_, err := m.Bind(1, 10, 0)
	require.NoError(t, err)

	m.Unbind(1)
	assert.Equal(t, 0, m.Len())
	_, ok := m.LookupByHandle(10)
	assert.False(t, ok)

	m.Unbind(1)
	m.Unbind(42)
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 0, m.Count(bridge.StateBound))
	assert.NoError(t, m.Verify())

	// Both sides are free again.
	_, err = m.Bind(1, 10, 1)
	assert.NoError(t, err)
}

func TestMirrorDetachKeepsEntry(t *testing.T) {
	m := bridge.NewMirror(0)
	_, err := m.Bind(1, 10, 0)
	require.NoError(t, err)

	entry, ok := m.MarkPendingDestroy(1, 3)
	require.True(t, ok)
	assert.Equal(t, bridge.StatePendingDestroy, entry.State)
	assert.Equal(t, bridge.Handle(10), entry.Handle)

	h, ok := m.Detach(1)
	require.True(t, ok)
	assert.Equal(t, bridge.Handle(10), h)

	_, ok = m.LookupByHandle(10)
	assert.False(t, ok)
	entry, ok = m.Entry(1)
	require.True(t, ok)
	assert.Equal(t, bridge.StatePendingDestroy, entry.State)
	assert.False(t, entry.Bound())

	_, ok = m.Detach(1)
	assert.False(t, ok, "second detach has nothing to release")
	assert.NoError(t, m.Verify())
}

func TestMirrorSnapshotIsSortedCopy(t *testing.T) {
	m := bridge.NewMirror(0)
	for _, e := range []bridge.Entity{5, 3, 9, 1} {
		_, err := m.Bind(e, bridge.Handle(e*10), 0)
		require.NoError(t, err)
	}
	_, err := m.Track(4, 0)
	require.NoError(t, err)

	snap := m.Snapshot(bridge.StateBound)
	require.Len(t, snap, 4)
	for i, want := range []bridge.Entity{1, 3, 5, 9} {
		assert.Equal(t, want, snap[i].Entity)
	}

	m.Unbind(3)
	m.Unbind(5)
	assert.Equal(t, bridge.Entity(3), snap[1].Entity, "snapshot unaffected by later mutation")
	assert.Len(t, m.Snapshot(bridge.StateBound), 2)
	assert.Len(t, m.Snapshot(bridge.StateTracked), 1)
}

// Random binds and unbinds must keep both directions in agreement.
func TestMirrorBijectionUnderRandomOps(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	m := bridge.NewMirror(0)

	entities := make(map[bridge.Entity]bridge.Handle)
	handles := make(map[bridge.Handle]bridge.Entity)

	for i := 0; i < 20000; i++ {
		e := bridge.Entity(rng.Intn(200) + 1)
		h := bridge.Handle(rng.Intn(200) + 1)

		switch rng.Intn(4) {
		case 0, 1:
			_, err := m.Bind(e, h, uint64(i))
			_, eTaken := entities[e]
			_, hTaken := handles[h]
			if eTaken || hTaken {
				require.ErrorIs(t, err, bridge.ErrAlreadyBound)
			} else {
				require.NoError(t, err)
				entities[e] = h
				handles[h] = e
			}
		case 2:
			m.Unbind(e)
			if old, ok := entities[e]; ok {
				delete(handles, old)
				delete(entities, e)
			}
		case 3:
			if old, ok := entities[e]; ok {
				got, ok := m.LookupByHandle(old)
				require.True(t, ok)
				require.Equal(t, e, got)
			}
		}

		if i%500 == 0 {
			require.NoError(t, m.Verify())
		}
	}

	require.NoError(t, m.Verify())
	assert.Equal(t, len(entities), m.Len())
	assert.Equal(t, len(entities), m.Count(bridge.StateBound))
	for e, h := range entities {
		got, ok := m.LookupByEntity(e)
		require.True(t, ok)
		assert.Equal(t, h, got)
		back, ok := m.LookupByHandle(h)
		require.True(t, ok)
		assert.Equal(t, e, back)
	}
}

func BenchmarkMirrorBindUnbind(b *testing.B) {
	m := bridge.NewMirror(1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e := bridge.Entity(i%1024 + 1)
		_, _ = m.Bind(e, bridge.Handle(e), 0)
		m.Unbind(e)
	}
}

func BenchmarkMirrorLookup(b *testing.B) {
	m := bridge.NewMirror(10000)
	for e := bridge.Entity(1); e <= 10000; e++ {
		_, _ = m.Bind(e, bridge.Handle(e+1_000_000), 0)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = m.LookupByHandle(bridge.Handle(i%10000 + 1_000_001))
	}
}

func BenchmarkMirrorSnapshot(b *testing.B) {
	m := bridge.NewMirror(10000)
	for e := bridge.Entity(1); e <= 10000; e++ {
		_, _ = m.Bind(e, bridge.Handle(e), 0)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.Snapshot(bridge.StateBound)
	}
}
