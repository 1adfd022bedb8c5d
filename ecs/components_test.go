package ecs_test

import "github.com/plus3/navbridge/ecs"

type Position struct {
	X, Y float32
}

type Velocity struct {
	DX, DY float32
}

type Health struct {
	Current int
	Max     int
}

// Label is a non-struct component.
type Label string

func newTestStorage() *ecs.Storage {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterComponent[Position](registry)
	ecs.RegisterComponent[Velocity](registry)
	ecs.RegisterComponent[Health](registry)
	ecs.RegisterComponent[Label](registry)
	return ecs.NewStorage(registry)
}

// funcSystem runs fn as a scheduler system.
type funcSystem struct {
	fn func(*ecs.UpdateFrame)
}

func (s *funcSystem) Execute(frame *ecs.UpdateFrame) {
	s.fn(frame)
}

func commandSystem(fn func(*ecs.Commands)) *funcSystem {
	return &funcSystem{fn: func(frame *ecs.UpdateFrame) { fn(frame.Commands) }}
}
