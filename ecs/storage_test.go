package ecs_test

import (
	"reflect"
	"testing"

	"github.com/plus3/navbridge/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnAndRead(t *testing.T) {
	storage := newTestStorage()

	id := storage.Spawn(Position{X: 1, Y: 2}, Label("scout"))

	pos := ecs.ReadComponent[Position](storage, id)
	require.NotNil(t, pos)
	assert.Equal(t, Position{X: 1, Y: 2}, *pos)
	assert.Equal(t, Label("scout"), *ecs.ReadComponent[Label](storage, id))

	assert.True(t, storage.HasComponent(id, reflect.TypeOf(Position{})))
	assert.False(t, storage.HasComponent(id, reflect.TypeOf(Velocity{})))
	assert.Nil(t, ecs.ReadComponent[Velocity](storage, id))
	assert.Nil(t, ecs.ReadComponent[Position](storage, ecs.NewEntityId(7, 7)))
}

func TestSpawnOrderDoesNotSplitArchetypes(t *testing.T) {
	storage := newTestStorage()

	a := storage.Spawn(Position{}, Velocity{})
	b := storage.Spawn(Velocity{}, Position{})

	assert.Equal(t, a.ArchetypeId(), b.ArchetypeId())
	assert.NotEqual(t, a, b)
}

func TestReadComponentIsMutable(t *testing.T) {
	storage := newTestStorage()

	id := storage.Spawn(Health{Current: 10, Max: 10})
	ecs.ReadComponent[Health](storage, id).Current = 3

	assert.Equal(t, 3, ecs.ReadComponent[Health](storage, id).Current)
}

func TestComponentsSurviveArchetypeMoves(t *testing.T) {
	storage := newTestStorage()

	id := storage.Spawn(Position{X: 4, Y: 5})
	moved := storage.AddComponent(id, &Velocity{DX: 1})
	require.NotEqual(t, id, moved)

	back := storage.RemoveComponent(moved, reflect.TypeOf(Velocity{}))
	require.NotZero(t, back)

	assert.Equal(t, Position{X: 4, Y: 5}, *ecs.ReadComponent[Position](storage, back))
	assert.Nil(t, ecs.ReadComponent[Velocity](storage, back))
	assert.Equal(t, back, storage.RemoveComponent(back, reflect.TypeOf(Health{})))
}

func TestFreedSlotIsReused(t *testing.T) {
	storage := newTestStorage()

	first := storage.Spawn(Position{X: 1})
	storage.Delete(first)
	second := storage.Spawn(Position{X: 2})

	// a stale id now addresses the new entity; only EntityRef can tell them apart
	assert.Equal(t, first, second)
	assert.Equal(t, float32(2), ecs.ReadComponent[Position](storage, first).X)
}

func TestEntityRefFollowsEntity(t *testing.T) {
	storage := newTestStorage()

	id := storage.Spawn(Position{X: 3})
	ref := storage.CreateEntityRef(id)
	require.NotNil(t, ref)
	assert.Same(t, ref, storage.CreateEntityRef(id))

	moved := storage.AddComponent(id, Velocity{})
	current, ok := storage.ResolveEntityRef(ref)
	require.True(t, ok)
	assert.Equal(t, moved, current)
	assert.Same(t, ref, storage.CreateEntityRef(moved))

	moved = storage.RemoveComponent(moved, reflect.TypeOf(Velocity{}))
	assert.Equal(t, moved, ref.Id)
	assert.Equal(t, float32(3), ecs.ReadComponent[Position](storage, ref.Id).X)

	assert.True(t, ref.Valid())
	storage.Delete(moved)
	_, ok = storage.ResolveEntityRef(ref)
	assert.False(t, ok)
	assert.False(t, ref.Valid())
	assert.Nil(t, ref.Archetype)
}

func TestEntityIdParts(t *testing.T) {
	id := ecs.NewEntityId(7, 42)
	assert.Equal(t, uint32(7), id.ArchetypeId())
	assert.Equal(t, uint32(42), id.Index())
	assert.Equal(t, "7:42", id.String())
	assert.Equal(t, "4294967295:0", ecs.NewEntityId(^uint32(0), 0).String())

	var ref *ecs.EntityRef
	assert.False(t, ref.Valid())
}

func TestInvalidateEntityRef(t *testing.T) {
	storage := newTestStorage()

	id := storage.Spawn(Position{})
	ref := storage.CreateEntityRef(id)

	assert.True(t, storage.InvalidateEntityRef(ref))
	assert.False(t, storage.InvalidateEntityRef(ref))
	assert.True(t, storage.Alive(id), "invalidating a ref keeps the entity")
	assert.NotSame(t, ref, storage.CreateEntityRef(id))

	assert.Nil(t, storage.CreateEntityRef(ecs.NewEntityId(12, 0)))
}

func TestCompactRepointsRefs(t *testing.T) {
	storage := newTestStorage()

	var ids []ecs.EntityId
	for i := range 4 {
		ids = append(ids, storage.Spawn(Position{X: float32(i)}))
	}
	ref := storage.CreateEntityRef(ids[3])
	storage.Delete(ids[0])
	storage.Delete(ids[1])

	archetype := storage.GetArchetype(Position{})
	archetype.Compact()

	assert.Equal(t, 2, archetype.Len())
	assert.Equal(t, uint32(1), ref.Id.Index())
	assert.Equal(t, float32(3), ecs.ReadComponent[Position](storage, ref.Id).X)
}

func TestCompactEmptyArchetype(t *testing.T) {
	storage := newTestStorage()

	id := storage.Spawn(Position{})
	storage.Delete(id)

	archetype := storage.GetArchetype(Position{})
	archetype.Compact()
	assert.Equal(t, 0, archetype.Len())

	again := storage.Spawn(Position{X: 9})
	assert.Equal(t, uint32(0), again.Index())
}

func TestSpawnUnregisteredComponentPanics(t *testing.T) {
	storage := newTestStorage()

	assert.Panics(t, func() { storage.Spawn(struct{ N int }{}) })
	assert.Panics(t, func() { storage.Spawn() })
}
