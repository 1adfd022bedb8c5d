package bridge

import (
	"fmt"
	"math"
)

// Entity identifies an entity inside one ECS world generation. Zero is never valid.
type Entity uint64

// Handle identifies an object owned by the host runtime. Zero is never valid.
type Handle uint64

// State is a mirrored entity's position in the lifecycle.
type State uint8

const (
	StateUnseen State = iota
	StateTracked
	StateBound
	StatePendingDestroy
	StateRemoved

	numStates
)

func (s State) String() string {
	switch s {
	case StateUnseen:
		return "Unseen"
	case StateTracked:
		return "Tracked"
	case StateBound:
		return "Bound"
	case StatePendingDestroy:
		return "PendingDestroy"
	case StateRemoved:
		return "Removed"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// PathStatus is the host's view of an agent's navigation progress.
type PathStatus uint8

const (
	PathIdle PathStatus = iota
	PathMoving
	PathReached
	PathBlocked
)

func (s PathStatus) String() string {
	switch s {
	case PathIdle:
		return "Idle"
	case PathMoving:
		return "Moving"
	case PathReached:
		return "Reached"
	case PathBlocked:
		return "Blocked"
	}
	return fmt.Sprintf("PathStatus(%d)", uint8(s))
}

// Vec2 is a point or direction on the navigation plane.
type Vec2 struct {
	X, Y float64
}

func (v Vec2) Add(o Vec2) Vec2         { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2         { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(s float64) Vec2    { return Vec2{v.X * s, v.Y * s} }
func (v Vec2) Len() float64            { return math.Hypot(v.X, v.Y) }
func (v Vec2) Dist(o Vec2) float64     { return v.Sub(o).Len() }
func (v Vec2) ApproxEqual(o Vec2) bool { return v.Dist(o) < 1e-9 }

// MirrorEntry pairs an Entity with zero or one Handle.
type MirrorEntry struct {
	Entity Entity
	Handle Handle // zero while unbound
	State  State
	Since  uint64 // tick of the last state change
}

// Bound reports whether the entry currently holds a host handle.
func (e MirrorEntry) Bound() bool {
	return e.Handle != 0
}

// AgentState is what the World exposes for one entity each tick.
type AgentState struct {
	Position Vec2
	Velocity Vec2
	Goal     Vec2
	HasGoal  bool
}

// SyncFrame is the per-entity snapshot pushed to the host during one tick.
type SyncFrame struct {
	Tick      uint64
	DeltaTime float64
	Entity    Entity
	Handle    Handle
	Position  Vec2
	Velocity  Vec2
	Goal      Vec2
	HasGoal   bool
}

// Feedback is the host's authoritative view of an agent, written back to the World.
type Feedback struct {
	Position  Vec2
	Velocity  Vec2
	Status    PathStatus
	Goal      Vec2 // goal the host evaluated this tick
	HasGoal   bool
	Remaining float64 // straight-line distance left to Goal
	Handle    Handle  // filled in by the synchronizer before World.Write
}

// SpawnRequest describes the host object to create for an entity.
type SpawnRequest struct {
	Entity       Entity
	Prefab       string
	Position     Vec2
	Radius       float64
	MaxSpeed     float64
	Acceleration float64
}
