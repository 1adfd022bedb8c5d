package ecsworld

import (
	"github.com/plus3/navbridge/bridge"
	"github.com/plus3/navbridge/ecs"
)

// Accessor interfaces let the mapping table point at any component type. They
// are implemented on the pointer receiver so writes land in storage.

// Tag marks an entity as navigable and carries the stable key the bridge
// knows it by.
type Tag interface {
	Key() bridge.Entity
	SetKey(bridge.Entity)
	PrefabName() string
}

// Vector is a planar position or velocity component.
type Vector interface {
	Vec() bridge.Vec2
	SetVec(bridge.Vec2)
}

// Goal supplies the navigation target.
type Goal interface {
	Target() (bridge.Vec2, bool)
}

// FeedbackSink stores what the host reported for the entity.
type FeedbackSink interface {
	SetFeedback(bridge.Feedback)
}

// Tuning overrides prefab movement parameters per entity.
type Tuning interface {
	Tuning() (radius, maxSpeed, acceleration float64)
}

// Navigable is the default tag component.
type Navigable struct {
	Prefab string
	key    bridge.Entity
}

func (n *Navigable) Key() bridge.Entity       { return n.key }
func (n *Navigable) SetKey(key bridge.Entity) { n.key = key }
func (n *Navigable) PrefabName() string       { return n.Prefab }

type Position struct {
	X, Y float64
}

func (p *Position) Vec() bridge.Vec2     { return bridge.Vec2{X: p.X, Y: p.Y} }
func (p *Position) SetVec(v bridge.Vec2) { p.X, p.Y = v.X, v.Y }

type Velocity struct {
	X, Y float64
}

func (v *Velocity) Vec() bridge.Vec2     { return bridge.Vec2{X: v.X, Y: v.Y} }
func (v *Velocity) SetVec(u bridge.Vec2) { v.X, v.Y = u.X, u.Y }

// NavGoal is the point the agent should walk to while Active is set.
type NavGoal struct {
	Point  bridge.Vec2
	Active bool
}

func (g *NavGoal) Target() (bridge.Vec2, bool) { return g.Point, g.Active }

// NavFeedback mirrors the host's last report for the agent.
type NavFeedback struct {
	Status    bridge.PathStatus
	Goal      bridge.Vec2
	Remaining float64
	Handle    bridge.Handle
}

func (f *NavFeedback) SetFeedback(fb bridge.Feedback) {
	f.Status = fb.Status
	f.Goal = fb.Goal
	f.Remaining = fb.Remaining
	f.Handle = fb.Handle
}

// TargetEntity makes the agent follow another navigable entity, known by its
// bridge key. The agent is at the target once the centers are within both
// radii plus MaxDistance.
type TargetEntity struct {
	Key         bridge.Entity
	MaxDistance float64
	AtTarget    bool

	reach float64 // radii plus MaxDistance, refreshed by TargetSystem
}

// AgentParams overrides the prefab's movement parameters.
type AgentParams struct {
	Radius       float64
	MaxSpeed     float64
	Acceleration float64
}

func (p *AgentParams) Tuning() (float64, float64, float64) {
	return p.Radius, p.MaxSpeed, p.Acceleration
}

// RegisterComponents registers the default component set.
func RegisterComponents(registry *ecs.ComponentRegistry) {
	ecs.RegisterComponent[Navigable](registry)
	ecs.RegisterComponent[Position](registry)
	ecs.RegisterComponent[Velocity](registry)
	ecs.RegisterComponent[NavGoal](registry)
	ecs.RegisterComponent[NavFeedback](registry)
	ecs.RegisterComponent[AgentParams](registry)
	ecs.RegisterComponent[TargetEntity](registry)
}
