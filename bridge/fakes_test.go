package bridge_test

import (
	"github.com/plus3/navbridge/bridge"
)

type fakeAgent struct {
	state    bridge.AgentState
	feedback bridge.Feedback
	writes   int
	released bool
}

// fakeWorld holds agents in a map and confirms releases through the notifier,
// which makes them visible on the following tick.
type fakeWorld struct {
	agents      map[bridge.Entity]*fakeAgent
	notify      bridge.Notifier
	readErr     map[bridge.Entity]error
	writeErr    map[bridge.Entity]error
	releases    []bridge.Entity
	nextID      bridge.Entity
	holdRelease bool
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		agents:   make(map[bridge.Entity]*fakeAgent),
		readErr:  make(map[bridge.Entity]error),
		writeErr: make(map[bridge.Entity]error),
	}
}

// add creates an agent and notifies the bridge.
func (w *fakeWorld) add(pos bridge.Vec2) bridge.Entity {
	w.nextID++
	e := w.nextID
	w.agents[e] = &fakeAgent{state: bridge.AgentState{Position: pos}}
	if w.notify != nil {
		w.notify.EntityCreated(e)
	}
	return e
}

// delete removes an agent and notifies the bridge.
func (w *fakeWorld) delete(e bridge.Entity) {
	delete(w.agents, e)
	if w.notify != nil {
		w.notify.EntityDestroyed(e)
	}
}

func (w *fakeWorld) SpawnParams(e bridge.Entity) (bridge.SpawnRequest, error) {
	a, ok := w.agents[e]
	if !ok {
		return bridge.SpawnRequest{}, bridge.ErrUnknownEntity
	}
	return bridge.SpawnRequest{Prefab: "walker", Position: a.state.Position, Radius: 0.5, MaxSpeed: 2}, nil
}

func (w *fakeWorld) Read(e bridge.Entity) (bridge.AgentState, error) {
	if err := w.readErr[e]; err != nil {
		return bridge.AgentState{}, err
	}
	a, ok := w.agents[e]
	if !ok {
		return bridge.AgentState{}, bridge.ErrUnknownEntity
	}
	return a.state, nil
}

func (w *fakeWorld) Write(e bridge.Entity, fb bridge.Feedback) error {
	if err := w.writeErr[e]; err != nil {
		return err
	}
	a, ok := w.agents[e]
	if !ok {
		return bridge.ErrUnknownEntity
	}
	a.feedback = fb
	a.state.Position = fb.Position
	a.state.Velocity = fb.Velocity
	a.writes++
	return nil
}

func (w *fakeWorld) Release(e bridge.Entity) error {
	a, ok := w.agents[e]
	if !ok {
		return bridge.ErrUnknownEntity
	}
	a.released = true
	w.releases = append(w.releases, e)
	if w.notify != nil && !w.holdRelease {
		w.notify.EntityReleased(e)
	}
	return nil
}

type hostAgent struct {
	req      bridge.SpawnRequest
	frame    bridge.SyncFrame
	position bridge.Vec2
}

// fakeHost moves each agent one unit toward its goal per Apply.
type fakeHost struct {
	agents     map[bridge.Handle]*hostAgent
	notify     bridge.Notifier
	next       bridge.Handle
	fixed      bridge.Handle // when set, every spawn returns this handle
	spawnErr   func(req bridge.SpawnRequest) error
	spawnCalls map[bridge.Entity]int
	applyErr   map[bridge.Handle]error
	queryErr   map[bridge.Handle]error
	destroyErr map[bridge.Handle]error
	destroyed  []bridge.Handle
	order      []string
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		agents:     make(map[bridge.Handle]*hostAgent),
		spawnCalls: make(map[bridge.Entity]int),
		applyErr:   make(map[bridge.Handle]error),
		queryErr:   make(map[bridge.Handle]error),
		destroyErr: make(map[bridge.Handle]error),
	}
}

// despawn removes an agent out-of-band and notifies the bridge.
func (h *fakeHost) despawn(handle bridge.Handle) {
	delete(h.agents, handle)
	if h.notify != nil {
		h.notify.HostDestroyed(handle)
	}
}

func (h *fakeHost) Spawn(req bridge.SpawnRequest) (bridge.Handle, error) {
	h.spawnCalls[req.Entity]++
	if h.spawnErr != nil {
		if err := h.spawnErr(req); err != nil {
			return 0, err
		}
	}
	handle := h.fixed
	if handle == 0 {
		h.next++
		handle = h.next
	}
	h.agents[handle] = &hostAgent{req: req, position: req.Position}
	return handle, nil
}

func (h *fakeHost) Destroy(handle bridge.Handle) error {
	if err := h.destroyErr[handle]; err != nil {
		return err
	}
	h.destroyed = append(h.destroyed, handle)
	if _, ok := h.agents[handle]; !ok {
		return bridge.ErrInvalidHandle
	}
	delete(h.agents, handle)
	return nil
}

func (h *fakeHost) Apply(frame bridge.SyncFrame) error {
	h.order = append(h.order, "apply")
	if err := h.applyErr[frame.Handle]; err != nil {
		return err
	}
	a, ok := h.agents[frame.Handle]
	if !ok {
		return bridge.ErrInvalidHandle
	}
	a.frame = frame
	if frame.HasGoal {
		step := frame.Goal.Sub(a.position)
		if d := step.Len(); d > 1 {
			step = step.Scale(1 / d)
		}
		a.position = a.position.Add(step)
	}
	return nil
}

func (h *fakeHost) Query(handle bridge.Handle) (bridge.Feedback, error) {
	h.order = append(h.order, "query")
	if err := h.queryErr[handle]; err != nil {
		return bridge.Feedback{}, err
	}
	a, ok := h.agents[handle]
	if !ok {
		return bridge.Feedback{}, bridge.ErrInvalidHandle
	}
	fb := bridge.Feedback{
		Position: a.position,
		Goal:     a.frame.Goal,
		HasGoal:  a.frame.HasGoal,
		Status:   bridge.PathIdle,
	}
	if a.frame.HasGoal {
		fb.Remaining = a.position.Dist(a.frame.Goal)
		fb.Status = bridge.PathMoving
		if fb.Remaining == 0 {
			fb.Status = bridge.PathReached
		}
	}
	return fb, nil
}

// newPair wires a fake world and host to a new bridge.
func newPair(opts bridge.Options) (*bridge.Bridge, *fakeWorld, *fakeHost) {
	w := newFakeWorld()
	h := newFakeHost()
	b := bridge.New(w, h, opts)
	w.notify = b
	h.notify = b
	return b, w, h
}
