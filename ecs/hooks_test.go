package ecs_test

import (
	"fmt"
	"reflect"
	"slices"
	"testing"

	"github.com/plus3/navbridge/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHooksFireInOrder(t *testing.T) {
	storage := newTestStorage()

	var events []string
	storage.AddHooks(ecs.Hooks{
		Spawned:  func(id ecs.EntityId) { events = append(events, "spawned") },
		Deleting: func(id ecs.EntityId) { events = append(events, "deleting") },
		ComponentAdded: func(id ecs.EntityId, t reflect.Type) {
			events = append(events, "added:"+t.Name())
		},
		ComponentRemoving: func(id ecs.EntityId, t reflect.Type) {
			events = append(events, "removing:"+t.Name())
		},
	})

	id := storage.Spawn(Position{X: 1})
	id = storage.AddComponent(id, Velocity{DX: 2})
	id = storage.RemoveComponent(id, reflect.TypeOf(Velocity{}))
	storage.Delete(id)

	assert.Equal(t, []string{
		"spawned",
		"added:Velocity",
		"removing:Velocity",
		"deleting",
	}, events)
}

func TestHooksSeeDataBeforeRemoval(t *testing.T) {
	storage := newTestStorage()

	var seenHealth int
	var seenX float32
	storage.AddHooks(ecs.Hooks{
		Deleting: func(id ecs.EntityId) {
			seenX = ecs.ReadComponent[Position](storage, id).X
		},
		ComponentRemoving: func(id ecs.EntityId, t reflect.Type) {
			seenHealth = ecs.ReadComponent[Health](storage, id).Current
		},
	})

	id := storage.Spawn(Position{X: 7}, Health{Current: 42})
	id = storage.RemoveComponent(id, reflect.TypeOf(Health{}))
	assert.Equal(t, 42, seenHealth)

	storage.Delete(id)
	assert.Equal(t, float32(7), seenX)
}

func TestOverwritingComponentDoesNotFireHook(t *testing.T) {
	storage := newTestStorage()

	added := 0
	storage.AddHooks(ecs.Hooks{
		ComponentAdded: func(ecs.EntityId, reflect.Type) { added++ },
	})

	id := storage.Spawn(Position{X: 1})
	same := storage.AddComponent(id, Position{X: 5})

	assert.Equal(t, id, same)
	assert.Equal(t, 0, added)
	assert.Equal(t, float32(5), ecs.ReadComponent[Position](storage, id).X)
}

func TestRemovingLastComponentDeletes(t *testing.T) {
	storage := newTestStorage()

	var events []string
	storage.AddHooks(ecs.Hooks{
		Deleting: func(ecs.EntityId) { events = append(events, "deleting") },
		ComponentRemoving: func(ecs.EntityId, reflect.Type) {
			events = append(events, "removing")
		},
	})

	id := storage.Spawn(Position{})
	assert.Equal(t, ecs.EntityId(0), storage.RemoveComponent(id, reflect.TypeOf(Position{})))
	assert.False(t, storage.Alive(id))
	assert.Equal(t, []string{"removing", "deleting"}, events)
}

func TestDeleteDeadEntityIsNoop(t *testing.T) {
	storage := newTestStorage()

	deletes := 0
	storage.AddHooks(ecs.Hooks{Deleting: func(ecs.EntityId) { deletes++ }})

	id := storage.Spawn(Position{})
	storage.Delete(id)
	storage.Delete(id)

	assert.Equal(t, 1, deletes)
	assert.Equal(t, ecs.EntityId(0), storage.AddComponent(id, Velocity{}))
	assert.Equal(t, ecs.EntityId(0), storage.RemoveComponent(id, reflect.TypeOf(Position{})))
}

func TestMultipleHookSets(t *testing.T) {
	storage := newTestStorage()

	var order []int
	for i := range 3 {
		storage.AddHooks(ecs.Hooks{Spawned: func(ecs.EntityId) { order = append(order, i) }})
	}
	storage.AddHooks(ecs.Hooks{})

	storage.Spawn(Position{})
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestAlive(t *testing.T) {
	storage := newTestStorage()

	assert.False(t, storage.Alive(0))
	assert.False(t, storage.Alive(ecs.NewEntityId(99, 1)))

	id := storage.Spawn(Position{})
	assert.True(t, storage.Alive(id))

	moved := storage.AddComponent(id, Velocity{})
	assert.False(t, storage.Alive(id))
	assert.True(t, storage.Alive(moved))
}

func TestEntitiesWith(t *testing.T) {
	storage := newTestStorage()

	a := storage.Spawn(Position{})
	b := storage.Spawn(Position{}, Velocity{})
	storage.Spawn(Velocity{})
	c := storage.Spawn(Position{}, Health{})
	storage.Delete(c)

	var got []ecs.EntityId
	for id := range storage.EntitiesWith(reflect.TypeOf(Position{})) {
		got = append(got, id)
	}
	slices.Sort(got)
	want := []ecs.EntityId{a, b}
	slices.Sort(want)
	assert.Equal(t, want, got)

	count := 0
	for range storage.EntitiesWith(reflect.TypeOf(Position{})) {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestRegistryLookup(t *testing.T) {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterComponent[Position](registry)
	ecs.RegisterComponent[Health](registry)

	typ, ok := registry.Lookup("Position")
	require.True(t, ok)
	assert.Equal(t, reflect.TypeOf(Position{}), typ)

	typ, ok = registry.Lookup(fmt.Sprintf("%T", Health{}))
	require.True(t, ok)
	assert.Equal(t, reflect.TypeOf(Health{}), typ)

	_, ok = registry.Lookup("Velocity")
	assert.False(t, ok)

	assert.True(t, registry.Registered(reflect.TypeOf(Position{})))
	assert.False(t, registry.Registered(reflect.TypeOf(Velocity{})))
}

func TestArchetypeLen(t *testing.T) {
	storage := newTestStorage()

	first := storage.Spawn(Position{})
	storage.Spawn(Position{})
	storage.Spawn(Position{})

	archetype := storage.GetArchetype(Position{})
	require.NotNil(t, archetype)
	assert.Equal(t, 3, archetype.Len())

	storage.Delete(first)
	assert.Equal(t, 2, archetype.Len())
}
