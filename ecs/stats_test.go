package ecs_test

import (
	"testing"

	"github.com/plus3/navbridge/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectStats(t *testing.T) {
	storage := newTestStorage()

	empty := storage.CollectStats()
	assert.Zero(t, empty.ArchetypeCount)
	assert.Zero(t, empty.TotalEntityCount)
	assert.Empty(t, empty.SingletonTypes)

	storage.Spawn(Position{}, Velocity{})
	storage.Spawn(Position{}, Velocity{})
	dead := storage.Spawn(Position{})
	storage.Delete(dead)
	storage.Spawn(Label("x"))
	ecs.NewSingleton(storage, Clock{})

	stats := storage.CollectStats()
	assert.Equal(t, 3, stats.ArchetypeCount)
	assert.Equal(t, 3, stats.TotalEntityCount)
	assert.Equal(t, 1, stats.SingletonCount)
	assert.Equal(t, []string{"ecs_test.Clock"}, stats.SingletonTypes)

	require.Len(t, stats.ArchetypeBreakdown, 3)
	counts := map[int]int{}
	for i, a := range stats.ArchetypeBreakdown {
		counts[a.EntityCount]++
		if i > 0 {
			assert.Less(t, stats.ArchetypeBreakdown[i-1].ID, a.ID)
		}
		if a.EntityCount == 2 {
			assert.ElementsMatch(t, []string{"ecs_test.Position", "ecs_test.Velocity"}, a.ComponentTypes)
		}
	}
	assert.Equal(t, map[int]int{0: 1, 1: 1, 2: 1}, counts)
}
