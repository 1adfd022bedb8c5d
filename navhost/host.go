// Package navhost is a navigation runtime for the bridge. Every agent is a
// circle body in a Chipmunk2D space that steers straight at its goal within
// its speed and acceleration limits; agents push each other apart on contact.
// There is no pathfinding: an agent pinned against others reports Blocked.
package navhost

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/jakecoffman/cp"
	"github.com/kamstrup/intmap"
	"github.com/rs/zerolog"

	"github.com/plus3/navbridge/bridge"
)

// ErrCapacity is returned by Spawn while the host is full. It is transient:
// the spawn may succeed once agents are destroyed.
var ErrCapacity = errors.New("navhost: at capacity")

const (
	blockedSpeedRatio = 0.05
	blockedAfter      = 0.5 // seconds without progress before Blocked
)

// Options tunes a Host. Zero fields take their defaults.
type Options struct {
	Capacity     int     // maximum live agents; 0 is unlimited
	StepInterval float64 // fixed physics step in seconds
	MaxSubsteps  int     // steps run per Step call at most
	ArriveRadius float64 // distance at which a goal counts as reached
	Damping      float64 // fraction of velocity kept per second
	Logger       *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.StepInterval <= 0 {
		o.StepInterval = 1.0 / 60
	}
	if o.MaxSubsteps <= 0 {
		o.MaxSubsteps = 8
	}
	if o.ArriveRadius <= 0 {
		o.ArriveRadius = 0.25
	}
	if o.Damping <= 0 || o.Damping > 1 {
		o.Damping = 1
	}
	return o
}

type agent struct {
	handle     bridge.Handle
	entity     bridge.Entity
	prefab     string
	body       *cp.Body
	shape      *cp.Shape
	radius     float64
	maxSpeed   float64
	accel      float64
	goal       cp.Vector
	hasGoal    bool
	status     bridge.PathStatus
	lastPos    cp.Vector
	stalledFor float64
}

// AgentInfo is a read-only view of one agent.
type AgentInfo struct {
	Handle   bridge.Handle
	Entity   bridge.Entity
	Prefab   string
	Position bridge.Vec2
	Velocity bridge.Vec2
	Radius   float64
	Goal     bridge.Vec2
	HasGoal  bool
	Status   bridge.PathStatus
}

// Host implements bridge.Host on a cp.Space. It is not safe for concurrent use.
type Host struct {
	space       *cp.Space
	agents      *intmap.Map[bridge.Handle, *agent]
	next        bridge.Handle
	debt        TickDebt
	opts        Options
	filter      func(bridge.SpawnRequest) error
	subscribers []func(bridge.Handle)
	log         zerolog.Logger
}

var _ bridge.Host = (*Host)(nil)

// New creates an empty host.
func New(opts Options) *Host {
	opts = opts.withDefaults()

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "navhost").Logger()
	}

	space := cp.NewSpace()
	space.Iterations = 10
	space.SetGravity(cp.Vector{})
	space.SetDamping(opts.Damping)

	return &Host{
		space:  space,
		agents: intmap.New[bridge.Handle, *agent](256),
		debt:   TickDebt{Interval: opts.StepInterval},
		opts:   opts,
		log:    log,
	}
}

// SetFilter installs an admission check run before every spawn. Returning an
// error wrapping bridge.ErrSpawnRejected refuses the agent.
func (h *Host) SetFilter(fn func(bridge.SpawnRequest) error) {
	h.filter = fn
}

// RejectPrefabs is a filter refusing the named prefabs.
func RejectPrefabs(names ...string) func(bridge.SpawnRequest) error {
	return func(req bridge.SpawnRequest) error {
		if slices.Contains(names, req.Prefab) {
			return fmt.Errorf("navhost: prefab %q not admitted: %w", req.Prefab, bridge.ErrSpawnRejected)
		}
		return nil
	}
}

// SetCapacity changes the agent limit. Live agents above the limit are kept.
func (h *Host) SetCapacity(n int) {
	h.opts.Capacity = n
}

// OnDestroyed registers fn to be called with the handle of every agent removed
// by Despawn. Destroy does not notify.
func (h *Host) OnDestroyed(fn func(bridge.Handle)) {
	h.subscribers = append(h.subscribers, fn)
}

// Space exposes the physics space, for obstacles and debugging.
func (h *Host) Space() *cp.Space {
	return h.space
}

// Len returns the number of live agents.
func (h *Host) Len() int {
	return h.agents.Len()
}

func (h *Host) Spawn(req bridge.SpawnRequest) (bridge.Handle, error) {
	if h.filter != nil {
		if err := h.filter(req); err != nil {
			return 0, err
		}
	}
	if req.Radius <= 0 || req.MaxSpeed <= 0 {
		return 0, fmt.Errorf("navhost: radius %v, max speed %v: %w", req.Radius, req.MaxSpeed, bridge.ErrSpawnRejected)
	}
	if h.opts.Capacity > 0 && h.agents.Len() >= h.opts.Capacity {
		return 0, ErrCapacity
	}

	mass := 1.0
	body := cp.NewBody(mass, cp.MomentForCircle(mass, 0, req.Radius, cp.Vector{}))
	body.SetPosition(cp.Vector{X: req.Position.X, Y: req.Position.Y})
	shape := cp.NewCircle(body, req.Radius, cp.Vector{})
	shape.SetFriction(0)
	shape.SetElasticity(0)
	h.space.AddBody(body)
	h.space.AddShape(shape)

	h.next++
	a := &agent{
		handle:   h.next,
		entity:   req.Entity,
		prefab:   req.Prefab,
		body:     body,
		shape:    shape,
		radius:   req.Radius,
		maxSpeed: req.MaxSpeed,
		accel:    req.Acceleration,
		status:   bridge.PathIdle,
	}
	h.agents.Put(a.handle, a)

	h.log.Debug().
		Uint64("handle", uint64(a.handle)).
		Uint64("entity", uint64(req.Entity)).
		Str("prefab", req.Prefab).
		Msg("agent spawned")
	return a.handle, nil
}

func (h *Host) remove(handle bridge.Handle) bool {
	a, ok := h.agents.Get(handle)
	if !ok {
		return false
	}
	h.space.RemoveShape(a.shape)
	h.space.RemoveBody(a.body)
	h.agents.Del(handle)
	return true
}

func (h *Host) Destroy(handle bridge.Handle) error {
	if !h.remove(handle) {
		return bridge.ErrInvalidHandle
	}
	h.log.Debug().Uint64("handle", uint64(handle)).Msg("agent destroyed")
	return nil
}

// Despawn removes an agent on the host's own initiative and tells the
// OnDestroyed subscribers.
func (h *Host) Despawn(handle bridge.Handle) error {
	if !h.remove(handle) {
		return bridge.ErrInvalidHandle
	}
	h.log.Debug().Uint64("handle", uint64(handle)).Msg("agent despawned")
	for _, fn := range h.subscribers {
		fn(handle)
	}
	return nil
}

// Apply stores the agent's goal and evaluates it against the current body
// position. A pushed position far from the body's is taken as a teleport.
func (h *Host) Apply(frame bridge.SyncFrame) error {
	a, ok := h.agents.Get(frame.Handle)
	if !ok {
		return bridge.ErrInvalidHandle
	}

	pos := cp.Vector{X: frame.Position.X, Y: frame.Position.Y}
	if pos.Distance(a.body.Position()) > a.radius {
		a.body.SetPosition(pos)
		a.body.SetVelocityVector(cp.Vector{X: frame.Velocity.X, Y: frame.Velocity.Y})
	}

	goal := cp.Vector{X: frame.Goal.X, Y: frame.Goal.Y}
	if frame.HasGoal != a.hasGoal || !goal.Equal(a.goal) {
		a.stalledFor = 0
	}
	a.goal = goal
	a.hasGoal = frame.HasGoal
	h.evaluate(a)
	return nil
}

// evaluate refreshes the path status from position and goal. Blocked sticks
// until the agent moves or gets a new goal.
func (h *Host) evaluate(a *agent) {
	switch {
	case !a.hasGoal:
		a.status = bridge.PathIdle
	case a.body.Position().Distance(a.goal) <= h.opts.ArriveRadius:
		a.status = bridge.PathReached
	case a.stalledFor >= blockedAfter:
		a.status = bridge.PathBlocked
	default:
		a.status = bridge.PathMoving
	}
}

func (h *Host) Query(handle bridge.Handle) (bridge.Feedback, error) {
	a, ok := h.agents.Get(handle)
	if !ok {
		return bridge.Feedback{}, bridge.ErrInvalidHandle
	}
	return h.feedback(a), nil
}

func (h *Host) feedback(a *agent) bridge.Feedback {
	pos := a.body.Position()
	vel := a.body.Velocity()
	fb := bridge.Feedback{
		Position: bridge.Vec2{X: pos.X, Y: pos.Y},
		Velocity: bridge.Vec2{X: vel.X, Y: vel.Y},
		Status:   a.status,
		Goal:     bridge.Vec2{X: a.goal.X, Y: a.goal.Y},
		HasGoal:  a.hasGoal,
	}
	if a.hasGoal {
		fb.Remaining = pos.Distance(a.goal)
	}
	return fb
}

// Step advances the simulation by dt seconds in fixed substeps and returns how
// many substeps ran.
func (h *Host) Step(dt float64) int {
	h.debt.Add(dt)
	n := h.debt.Take(h.opts.MaxSubsteps)
	for i := 0; i < n; i++ {
		h.steer(h.opts.StepInterval)
		h.space.Step(h.opts.StepInterval)
		h.settle(h.opts.StepInterval)
	}
	return n
}

// steer moves each agent's velocity toward its desired velocity, limited by
// its acceleration. Desired speed falls off near the goal so the agent can
// stop inside the arrive radius.
func (h *Host) steer(dt float64) {
	h.agents.ForEach(func(_ bridge.Handle, a *agent) bool {
		pos := a.body.Position()
		vel := a.body.Velocity()
		a.lastPos = pos

		desired := cp.Vector{}
		if a.hasGoal {
			toGoal := a.goal.Sub(pos)
			dist := toGoal.Length()
			if dist > h.opts.ArriveRadius {
				speed := min(a.maxSpeed, dist/dt)
				if a.accel > 0 {
					speed = min(speed, math.Sqrt(2*a.accel*dist))
				}
				desired = toGoal.Normalize().Mult(speed)
			}
		}

		change := desired.Sub(vel)
		if a.accel > 0 {
			change = change.Clamp(a.accel * dt)
		}
		a.body.SetVelocityVector(vel.Add(change))
		return true
	})
}

// settle measures each agent's progress over the last step and refreshes its
// status. An agent with a goal that barely moves for blockedAfter seconds is
// Blocked.
func (h *Host) settle(dt float64) {
	h.agents.ForEach(func(_ bridge.Handle, a *agent) bool {
		pos := a.body.Position()
		speed := pos.Distance(a.lastPos) / dt
		if a.hasGoal && pos.Distance(a.goal) > h.opts.ArriveRadius && speed < a.maxSpeed*blockedSpeedRatio {
			a.stalledFor += dt
		} else {
			a.stalledFor = 0
		}
		h.evaluate(a)
		return true
	})
}

// Agents returns every live agent ordered by handle.
func (h *Host) Agents() []AgentInfo {
	out := make([]AgentInfo, 0, h.agents.Len())
	h.agents.ForEach(func(_ bridge.Handle, a *agent) bool {
		fb := h.feedback(a)
		out = append(out, AgentInfo{
			Handle:   a.handle,
			Entity:   a.entity,
			Prefab:   a.prefab,
			Position: fb.Position,
			Velocity: fb.Velocity,
			Radius:   a.radius,
			Goal:     fb.Goal,
			HasGoal:  a.hasGoal,
			Status:   a.status,
		})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// Handles returns every live handle in ascending order.
func (h *Host) Handles() []bridge.Handle {
	out := make([]bridge.Handle, 0, h.agents.Len())
	h.agents.ForEach(func(handle bridge.Handle, _ *agent) bool {
		out = append(out, handle)
		return true
	})
	slices.Sort(out)
	return out
}
