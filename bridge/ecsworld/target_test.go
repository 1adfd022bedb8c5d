package ecsworld

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plus3/navbridge/bridge"
	"github.com/plus3/navbridge/ecs"
)

func spawnKeyed(t *testing.T, w *World, pos bridge.Vec2) bridge.Entity {
	t.Helper()
	id, err := w.SpawnPrefab("walker", pos)
	require.NoError(t, err)
	key, ok := w.Key(id)
	require.True(t, ok)
	return key
}

func resolved(t *testing.T, w *World, key bridge.Entity) ecs.EntityId {
	t.Helper()
	id, ok := w.Resolve(key)
	require.True(t, ok)
	return id
}

func targetScheduler(storage *ecs.Storage, w *World) *ecs.Scheduler {
	scheduler := ecs.NewScheduler(storage)
	scheduler.Register(NewTargetSystem(w))
	scheduler.Register(&ArrivalSystem{})
	return scheduler
}

func TestTargetSystemTracksTarget(t *testing.T) {
	storage, w, _ := attached(t)
	follower := spawnKeyed(t, w, bridge.Vec2{})
	target := spawnKeyed(t, w, bridge.Vec2{X: 10})
	require.NoError(t, w.SetTarget(follower, target, 1))
	scheduler := targetScheduler(storage, w)

	scheduler.Once(0)
	id := resolved(t, w, follower)
	goal := ecs.ReadComponent[NavGoal](storage, id)
	te := ecs.ReadComponent[TargetEntity](storage, id)
	require.NotNil(t, te)
	assert.True(t, goal.Active)
	assert.Equal(t, bridge.Vec2{X: 10}, goal.Point)
	assert.False(t, te.AtTarget)
	assert.InDelta(t, 2.0, te.reach, 1e-9, "two walker radii plus MaxDistance")

	ecs.ReadComponent[Position](storage, resolved(t, w, target)).SetVec(bridge.Vec2{X: 20, Y: 5})
	scheduler.Once(0)
	assert.Equal(t, bridge.Vec2{X: 20, Y: 5}, goal.Point)
	assert.True(t, goal.Active)

	ecs.ReadComponent[Position](storage, id).SetVec(bridge.Vec2{X: 19, Y: 5})
	scheduler.Once(0)
	assert.True(t, te.AtTarget)
	assert.False(t, goal.Active)

	ecs.ReadComponent[Position](storage, resolved(t, w, target)).SetVec(bridge.Vec2{X: 30, Y: 5})
	scheduler.Once(0)
	assert.False(t, te.AtTarget, "a target that moves away is chased again")
	assert.True(t, goal.Active)
}

func TestArrivalUsesTargetReach(t *testing.T) {
	storage, w, _ := attached(t)
	follower := spawnKeyed(t, w, bridge.Vec2{})
	target := spawnKeyed(t, w, bridge.Vec2{X: 10})
	require.NoError(t, w.SetTarget(follower, target, 1))
	scheduler := targetScheduler(storage, w)
	id := resolved(t, w, follower)
	fb := ecs.ReadComponent[NavFeedback](storage, id)

	fb.Goal = bridge.Vec2{X: 10}
	fb.Status = bridge.PathBlocked
	fb.Remaining = 3
	scheduler.Once(0)
	assert.True(t, ecs.ReadComponent[NavGoal](storage, id).Active)

	fb.Remaining = 1.5
	scheduler.Once(0)
	assert.False(t, ecs.ReadComponent[NavGoal](storage, id).Active)
	assert.True(t, ecs.ReadComponent[TargetEntity](storage, id).AtTarget)

	fb.Goal = bridge.Vec2{X: 4}
	fb.Remaining = 0
	ecs.ReadComponent[Position](storage, resolved(t, w, target)).SetVec(bridge.Vec2{X: 50})
	scheduler.Once(0)
	assert.True(t, ecs.ReadComponent[NavGoal](storage, id).Active,
		"feedback for an older goal does not count as arrival")
}

func TestTargetLost(t *testing.T) {
	tests := []struct {
		name string
		lose func(storage *ecs.Storage, w *World, target bridge.Entity)
	}{
		{"released", func(_ *ecs.Storage, w *World, target bridge.Entity) {
			require.NoError(t, w.Release(target))
		}},
		{"deleted", func(storage *ecs.Storage, w *World, target bridge.Entity) {
			storage.Delete(resolved(t, w, target))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, w, _ := attached(t)
			follower := spawnKeyed(t, w, bridge.Vec2{})
			target := spawnKeyed(t, w, bridge.Vec2{X: 10})
			require.NoError(t, w.SetTarget(follower, target, 1))
			scheduler := targetScheduler(storage, w)

			scheduler.Once(0)
			require.True(t, ecs.ReadComponent[NavGoal](storage, resolved(t, w, follower)).Active)

			tt.lose(storage, w, target)
			scheduler.Once(0)

			id := resolved(t, w, follower)
			assert.False(t, ecs.ReadComponent[NavGoal](storage, id).Active)
			assert.False(t, storage.HasComponent(id, reflect.TypeFor[TargetEntity]()))
		})
	}
}

func TestSetTarget(t *testing.T) {
	storage, w, _ := attached(t)
	follower := spawnKeyed(t, w, bridge.Vec2{})

	assert.ErrorIs(t, w.SetTarget(99, follower, 1), bridge.ErrUnknownEntity)
	assert.ErrorIs(t, w.SetTarget(follower, 99, 1), bridge.ErrUnknownEntity)

	require.NoError(t, w.SetTarget(follower, follower, 0))
	targetScheduler(storage, w).Once(0)
	assert.False(t, storage.HasComponent(resolved(t, w, follower), reflect.TypeFor[TargetEntity]()),
		"an agent cannot follow itself")

	other := spawnKeyed(t, w, bridge.Vec2{X: 3})
	var cmds ecs.Commands
	w.QueueTarget(&cmds, resolved(t, w, follower), other, 2)
	cmds.Flush(storage)
	te := ecs.ReadComponent[TargetEntity](storage, resolved(t, w, follower))
	require.NotNil(t, te)
	assert.Equal(t, other, te.Key)
	assert.Equal(t, 2.0, te.MaxDistance)
}

func TestLocate(t *testing.T) {
	storage, w, _ := attached(t)
	key := spawnKeyed(t, w, bridge.Vec2{X: 1, Y: 2})

	pos, radius, ok := w.Locate(key)
	require.True(t, ok)
	assert.Equal(t, bridge.Vec2{X: 1, Y: 2}, pos)
	assert.Equal(t, 0.5, radius)

	ecs.ReadComponent[AgentParams](storage, resolved(t, w, key)).Radius = 0
	_, radius, _ = w.Locate(key)
	assert.Equal(t, 0.5, radius, "falls back to the prefab radius")

	_, _, ok = w.Locate(42)
	assert.False(t, ok)
}
