package ecsworld

import (
	"fmt"

	"github.com/plus3/navbridge/bridge"
	"github.com/plus3/navbridge/ecs"
)

// agentComponents is the default component set of a prefab instance. The
// prefab's parameters are copied into AgentParams so later prefab reloads do
// not change live agents.
func (w *World) agentComponents(name string, pos bridge.Vec2) ([]any, error) {
	prefab, ok := w.prefabs[name]
	if !ok {
		return nil, fmt.Errorf("ecsworld: unknown prefab %q", name)
	}
	return []any{
		Navigable{Prefab: name},
		Position{X: pos.X, Y: pos.Y},
		Velocity{},
		NavGoal{},
		NavFeedback{},
		AgentParams{
			Radius:       prefab.Radius,
			MaxSpeed:     prefab.MaxSpeed,
			Acceleration: prefab.Acceleration,
		},
	}, nil
}

// SpawnPrefab creates a navigable entity from the named prefab at pos. The
// bridge sees it through the Spawned hook. Do not call it while a system is
// iterating; use QueueSpawnPrefab instead.
func (w *World) SpawnPrefab(name string, pos bridge.Vec2) (ecs.EntityId, error) {
	components, err := w.agentComponents(name, pos)
	if err != nil {
		return 0, err
	}
	return w.storage.Spawn(components...), nil
}

// QueueSpawnPrefab defers SpawnPrefab to the next command flush.
func (w *World) QueueSpawnPrefab(cmds *ecs.Commands, name string, pos bridge.Vec2) error {
	components, err := w.agentComponents(name, pos)
	if err != nil {
		return err
	}
	cmds.Spawn(components...)
	return nil
}

// SetGoal points the agent known by key e at target. It requires the default
// NavGoal component.
func (w *World) SetGoal(e bridge.Entity, target bridge.Vec2) error {
	id, err := w.resolveKey(e)
	if err != nil {
		return err
	}
	goal := ecs.ReadComponent[NavGoal](w.storage, id)
	if goal == nil {
		return fmt.Errorf("ecsworld: entity %d has no NavGoal", e)
	}
	goal.Point = target
	goal.Active = true
	return nil
}

// SetTarget makes the agent known by key e follow the entity known by key
// target. Call it between frames; systems use QueueTarget.
func (w *World) SetTarget(e, target bridge.Entity, maxDistance float64) error {
	id, err := w.resolveKey(e)
	if err != nil {
		return err
	}
	if _, err := w.resolveKey(target); err != nil {
		return fmt.Errorf("ecsworld: target %d: %w", target, err)
	}
	w.storage.AddComponent(id, TargetEntity{Key: target, MaxDistance: maxDistance})
	return nil
}

// QueueTarget defers SetTarget for the entity at id to the next command flush.
func (w *World) QueueTarget(cmds *ecs.Commands, id ecs.EntityId, target bridge.Entity, maxDistance float64) {
	cmds.AddComponent(id, TargetEntity{Key: target, MaxDistance: maxDistance})
}
