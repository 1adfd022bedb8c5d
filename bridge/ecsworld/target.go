package ecsworld

import (
	"reflect"

	"github.com/plus3/navbridge/ecs"
)

type followView struct {
	*TargetEntity
	*NavGoal
}

// TargetSystem points each follower's NavGoal at its target entity. A follower
// within reach of its target is AtTarget and has no active goal. When the
// target is gone or being released, the follower loses its goal and its
// TargetEntity. Register it before System so the goal is pushed the same frame.
type TargetSystem struct {
	Followers ecs.Query[followView]

	world *World
}

func NewTargetSystem(w *World) *TargetSystem {
	return &TargetSystem{world: w}
}

func (s *TargetSystem) Execute(frame *ecs.UpdateFrame) {
	for id, f := range s.Followers.Iter() {
		target, targetRadius, ok := s.world.Locate(f.TargetEntity.Key)
		if key, self := s.world.Key(id); self && key == f.TargetEntity.Key {
			ok = false
		}
		if !ok {
			f.NavGoal.Active = false
			f.TargetEntity.AtTarget = false
			frame.Commands.RemoveComponent(id, reflect.TypeFor[TargetEntity]())
			s.world.log.Debug().
				Stringer("entity", id).
				Uint64("target", uint64(f.TargetEntity.Key)).
				Uint64("frame", frame.Frame).
				Msg("target lost")
			continue
		}

		pos, radius, ok := s.world.locate(id)
		if !ok {
			continue
		}
		f.TargetEntity.reach = radius + targetRadius + f.TargetEntity.MaxDistance
		f.TargetEntity.AtTarget = pos.Dist(target) <= f.TargetEntity.reach
		f.NavGoal.Point = target
		f.NavGoal.Active = !f.TargetEntity.AtTarget
	}
}
