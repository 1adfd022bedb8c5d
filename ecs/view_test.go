package ecs_test

import (
	"testing"

	"github.com/plus3/navbridge/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type steering struct {
	*Position
	Vel *Velocity `ecs:"optional"`
}

func TestViewOptionalFields(t *testing.T) {
	storage := newTestStorage()
	view := ecs.NewView[steering](storage)

	still := storage.Spawn(Position{X: 1})
	moving := storage.Spawn(Position{X: 2}, Velocity{DX: 1})
	storage.Spawn(Velocity{})

	got := view.Get(still)
	require.NotNil(t, got)
	assert.Nil(t, got.Vel)

	got = view.Get(moving)
	require.NotNil(t, got)
	require.NotNil(t, got.Vel)
	assert.Equal(t, float32(1), got.Vel.DX)

	n := 0
	for range view.Iter() {
		n++
	}
	assert.Equal(t, 2, n)
}

func TestViewWritesThrough(t *testing.T) {
	storage := newTestStorage()
	view := ecs.NewView[struct {
		*Position
		*Velocity
	}](storage)

	id := storage.Spawn(Position{}, Velocity{DX: 2, DY: 3})
	for item := range view.Values() {
		item.Position.X += item.Velocity.DX
		item.Position.Y += item.Velocity.DY
	}

	assert.Equal(t, Position{X: 2, Y: 3}, *ecs.ReadComponent[Position](storage, id))
}

func TestViewGetMissingRequired(t *testing.T) {
	storage := newTestStorage()
	view := ecs.NewView[struct {
		*Position
		*Health
	}](storage)

	id := storage.Spawn(Position{})
	assert.Nil(t, view.Get(id))
	assert.Nil(t, view.GetRef(nil))
}

func TestViewGetRefAfterMove(t *testing.T) {
	storage := newTestStorage()
	view := ecs.NewView[struct{ *Position }](storage)

	id := storage.Spawn(Position{X: 8})
	ref := storage.CreateEntityRef(id)
	storage.AddComponent(id, Health{})

	got := view.GetRef(ref)
	require.NotNil(t, got)
	assert.Equal(t, float32(8), got.Position.X)
}

func TestViewSpawnSkipsNilOptional(t *testing.T) {
	storage := newTestStorage()
	spawned := 0
	storage.AddHooks(ecs.Hooks{Spawned: func(ecs.EntityId) { spawned++ }})
	view := ecs.NewView[steering](storage)

	a := view.Spawn(steering{Position: &Position{X: 1}})
	b := view.Spawn(steering{Position: &Position{X: 2}, Vel: &Velocity{DX: 4}})

	assert.Equal(t, 2, spawned)
	assert.Nil(t, ecs.ReadComponent[Velocity](storage, a))
	assert.Equal(t, float32(4), ecs.ReadComponent[Velocity](storage, b).DX)
	assert.Equal(t, storage.Spawn(Position{}).ArchetypeId(), a.ArchetypeId())

	assert.Panics(t, func() { view.Spawn(steering{}) })
}

func TestNewViewRejectsBadFields(t *testing.T) {
	storage := newTestStorage()

	assert.Panics(t, func() {
		ecs.NewView[struct {
			Id ecs.EntityId
			*Position
		}](storage)
	})
	assert.Panics(t, func() {
		ecs.NewView[struct {
			Vel *Velocity `ecs:"maybe"`
		}](storage)
	})
	assert.Panics(t, func() { ecs.NewView[Position](storage) })
}
