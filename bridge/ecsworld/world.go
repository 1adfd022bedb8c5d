package ecsworld

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/kamstrup/intmap"
	"github.com/rs/zerolog"

	"github.com/plus3/navbridge/bridge"
	"github.com/plus3/navbridge/config"
	"github.com/plus3/navbridge/ecs"
)

var (
	tagIface      = reflect.TypeFor[Tag]()
	vectorIface   = reflect.TypeFor[Vector]()
	goalIface     = reflect.TypeFor[Goal]()
	feedbackIface = reflect.TypeFor[FeedbackSink]()
	tuningIface   = reflect.TypeFor[Tuning]()
)

// fields holds the mapping table resolved to component types. Optional
// entries are nil when unmapped.
type fields struct {
	tag      reflect.Type
	position reflect.Type
	velocity reflect.Type
	goal     reflect.Type
	feedback reflect.Type
	params   reflect.Type
}

// World adapts an ecs.Storage to bridge.World. Entities carrying the mapped
// tag component are navigable; each gets a stable bridge.Entity key on first
// observation, and an ecs.EntityRef follows it across archetype moves.
//
// Storage hooks become Notifier calls, so Spawn, Delete and component changes
// made anywhere (including Commands.Flush) reach the bridge.
type World struct {
	storage   *ecs.Storage
	notify    bridge.Notifier
	fields    fields
	refs      *intmap.Map[bridge.Entity, *ecs.EntityRef]
	releasing *intmap.Map[bridge.Entity, bool]
	queued    []bridge.Entity
	nextKey   bridge.Entity
	prefabs   map[string]config.PrefabSpec
	log       zerolog.Logger
}

var _ bridge.World = (*World)(nil)

// NewWorld resolves mapping against the storage's registry and installs the
// storage hooks. Nothing is reported to the bridge until Attach.
func NewWorld(storage *ecs.Storage, mapping config.Mapping, log zerolog.Logger) (*World, error) {
	f, err := resolve(storage.Registry(), mapping)
	if err != nil {
		return nil, err
	}

	w := &World{
		storage:   storage,
		fields:    f,
		refs:      intmap.New[bridge.Entity, *ecs.EntityRef](256),
		releasing: intmap.New[bridge.Entity, bool](16),
		prefabs:   make(map[string]config.PrefabSpec),
		log:       log,
	}
	storage.AddHooks(ecs.Hooks{
		Spawned:           w.spawned,
		Deleting:          w.deleting,
		ComponentAdded:    w.componentAdded,
		ComponentRemoving: w.componentRemoving,
	})
	return w, nil
}

func resolve(registry *ecs.ComponentRegistry, m config.Mapping) (fields, error) {
	var f fields
	var err error

	lookup := func(role, name string, iface reflect.Type, required bool) reflect.Type {
		if err != nil {
			return nil
		}
		if name == "" {
			if required {
				err = fmt.Errorf("ecsworld: mapping.%s is required", role)
			}
			return nil
		}
		t, ok := registry.Lookup(name)
		if !ok {
			err = fmt.Errorf("ecsworld: mapping.%s: component %q is not registered", role, name)
			return nil
		}
		if !reflect.PointerTo(t).Implements(iface) {
			err = fmt.Errorf("ecsworld: mapping.%s: *%s does not implement %s", role, t, iface)
			return nil
		}
		return t
	}

	f.tag = lookup("tag", m.Tag, tagIface, true)
	f.position = lookup("position", m.Position, vectorIface, true)
	f.velocity = lookup("velocity", m.Velocity, vectorIface, false)
	f.goal = lookup("goal", m.Goal, goalIface, false)
	f.feedback = lookup("feedback", m.Feedback, feedbackIface, false)
	f.params = lookup("params", m.Params, tuningIface, false)
	return f, err
}

// Attach sets the notification target and reports every navigable entity
// already in storage as created.
func (w *World) Attach(notify bridge.Notifier) {
	var ids []ecs.EntityId
	for id := range w.storage.EntitiesWith(w.fields.tag) {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		w.observe(id)
	}

	w.notify = notify
	keys := make([]bridge.Entity, 0, w.refs.Len())
	w.refs.ForEach(func(key bridge.Entity, _ *ecs.EntityRef) bool {
		keys = append(keys, key)
		return true
	})
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, key := range keys {
		notify.EntityCreated(key)
	}
}

// SetPrefabs replaces the prefab table.
func (w *World) SetPrefabs(prefabs []config.PrefabSpec) {
	w.prefabs = make(map[string]config.PrefabSpec, len(prefabs))
	for _, p := range prefabs {
		w.prefabs[p.Name] = p
	}
}

// Storage returns the underlying storage.
func (w *World) Storage() *ecs.Storage {
	return w.storage
}

// Len returns the number of entities holding a key.
func (w *World) Len() int {
	return w.refs.Len()
}

// Resolve returns the current id of the entity known by key e.
func (w *World) Resolve(e bridge.Entity) (ecs.EntityId, bool) {
	ref, ok := w.refs.Get(e)
	if !ok {
		return 0, false
	}
	return w.storage.ResolveEntityRef(ref)
}

// Key returns the bridge key of a navigable entity.
func (w *World) Key(id ecs.EntityId) (bridge.Entity, bool) {
	tag := w.tag(id)
	if tag == nil || tag.Key() == 0 {
		return 0, false
	}
	return tag.Key(), true
}

func (w *World) tag(id ecs.EntityId) Tag {
	tag, _ := w.storage.GetComponent(id, w.fields.tag).(Tag)
	return tag
}

func (w *World) observe(id ecs.EntityId) {
	tag := w.tag(id)
	if tag == nil {
		return
	}
	if key := tag.Key(); key != 0 {
		if _, known := w.refs.Get(key); known {
			return
		}
	}

	w.nextKey++
	key := w.nextKey
	tag.SetKey(key)
	w.refs.Put(key, w.storage.CreateEntityRef(id))
	if w.notify != nil {
		w.notify.EntityCreated(key)
	}
}

// forget drops the key of the entity at id. It reports false if the entity
// holds no key.
func (w *World) forget(id ecs.EntityId) (bridge.Entity, bool) {
	tag := w.tag(id)
	if tag == nil {
		return 0, false
	}
	key := tag.Key()
	if key == 0 {
		// The tag was overwritten in place; find the key by location.
		key = w.keyAt(id)
		if key == 0 {
			return 0, false
		}
	}
	ref, ok := w.refs.Get(key)
	if !ok {
		return 0, false
	}
	if current, alive := w.storage.ResolveEntityRef(ref); alive && current != id {
		return 0, false
	}
	w.refs.Del(key)
	tag.SetKey(0)
	return key, true
}

func (w *World) keyAt(id ecs.EntityId) bridge.Entity {
	var found bridge.Entity
	w.refs.ForEach(func(key bridge.Entity, ref *ecs.EntityRef) bool {
		if ref.Id == id {
			found = key
			return false
		}
		return true
	})
	return found
}

func (w *World) spawned(id ecs.EntityId) {
	if w.storage.HasComponent(id, w.fields.tag) {
		w.observe(id)
	}
}

func (w *World) componentAdded(id ecs.EntityId, compType reflect.Type) {
	if compType == w.fields.tag {
		w.observe(id)
	}
}

func (w *World) deleting(id ecs.EntityId) {
	key, ok := w.forget(id)
	if !ok {
		return
	}
	w.releasing.Del(key)
	if w.notify != nil {
		w.notify.EntityDestroyed(key)
	}
}

func (w *World) componentRemoving(id ecs.EntityId, compType reflect.Type) {
	if compType != w.fields.tag {
		return
	}
	key, ok := w.forget(id)
	if !ok {
		return
	}
	_, released := w.releasing.Get(key)
	w.releasing.Del(key)
	if w.notify == nil {
		return
	}
	if released {
		w.notify.EntityReleased(key)
	} else {
		w.notify.EntityDestroyed(key)
	}
}

func (w *World) resolveKey(e bridge.Entity) (ecs.EntityId, error) {
	id, ok := w.Resolve(e)
	if !ok {
		return 0, bridge.ErrUnknownEntity
	}
	return id, nil
}

func (w *World) vector(id ecs.EntityId, t reflect.Type) Vector {
	if t == nil {
		return nil
	}
	v, _ := w.storage.GetComponent(id, t).(Vector)
	return v
}

// Locate returns the position and radius of the entity known by key e. It
// reports false once the entity is gone or its release is pending.
func (w *World) Locate(e bridge.Entity) (bridge.Vec2, float64, bool) {
	if _, releasing := w.releasing.Get(e); releasing {
		return bridge.Vec2{}, 0, false
	}
	id, ok := w.Resolve(e)
	if !ok {
		return bridge.Vec2{}, 0, false
	}
	return w.locate(id)
}

func (w *World) locate(id ecs.EntityId) (bridge.Vec2, float64, bool) {
	pos := w.vector(id, w.fields.position)
	if pos == nil {
		return bridge.Vec2{}, 0, false
	}
	return pos.Vec(), w.radius(id), true
}

// radius is the entity's params radius, else its prefab's, else zero.
func (w *World) radius(id ecs.EntityId) float64 {
	if w.fields.params != nil {
		if tuning, ok := w.storage.GetComponent(id, w.fields.params).(Tuning); ok {
			if r, _, _ := tuning.Tuning(); r > 0 {
				return r
			}
		}
	}
	if tag := w.tag(id); tag != nil {
		if prefab, ok := w.prefabs[tag.PrefabName()]; ok {
			return prefab.Radius
		}
	}
	return 0
}

// SpawnParams builds the spawn request from the entity's prefab, overridden by
// its params component when present. An unknown prefab without overrides is
// rejected outright.
func (w *World) SpawnParams(e bridge.Entity) (bridge.SpawnRequest, error) {
	id, err := w.resolveKey(e)
	if err != nil {
		return bridge.SpawnRequest{}, err
	}

	pos := w.vector(id, w.fields.position)
	if pos == nil {
		return bridge.SpawnRequest{}, fmt.Errorf("entity has no %s: %w", w.fields.position, bridge.ErrSpawnRejected)
	}

	req := bridge.SpawnRequest{
		Entity:   e,
		Prefab:   w.tag(id).PrefabName(),
		Position: pos.Vec(),
	}

	prefab, hasPrefab := w.prefabs[req.Prefab]
	if hasPrefab {
		req.Radius = prefab.Radius
		req.MaxSpeed = prefab.MaxSpeed
		req.Acceleration = prefab.Acceleration
	}

	var tuning Tuning
	if w.fields.params != nil {
		tuning, _ = w.storage.GetComponent(id, w.fields.params).(Tuning)
	}
	if tuning != nil {
		radius, maxSpeed, accel := tuning.Tuning()
		if radius > 0 {
			req.Radius = radius
		}
		if maxSpeed > 0 {
			req.MaxSpeed = maxSpeed
		}
		if accel > 0 {
			req.Acceleration = accel
		}
	}

	if !hasPrefab && tuning == nil {
		return bridge.SpawnRequest{}, fmt.Errorf("unknown prefab %q: %w", req.Prefab, bridge.ErrSpawnRejected)
	}
	return req, nil
}

// Read collects position, velocity and goal from the mapped components.
func (w *World) Read(e bridge.Entity) (bridge.AgentState, error) {
	id, err := w.resolveKey(e)
	if err != nil {
		return bridge.AgentState{}, err
	}

	pos := w.vector(id, w.fields.position)
	if pos == nil {
		return bridge.AgentState{}, fmt.Errorf("entity has no %s component", w.fields.position)
	}

	state := bridge.AgentState{Position: pos.Vec()}
	if vel := w.vector(id, w.fields.velocity); vel != nil {
		state.Velocity = vel.Vec()
	}
	if w.fields.goal != nil {
		if goal, ok := w.storage.GetComponent(id, w.fields.goal).(Goal); ok {
			state.Goal, state.HasGoal = goal.Target()
		}
	}
	return state, nil
}

// Write stores host feedback into the mapped components.
func (w *World) Write(e bridge.Entity, fb bridge.Feedback) error {
	id, err := w.resolveKey(e)
	if err != nil {
		return err
	}

	if pos := w.vector(id, w.fields.position); pos != nil {
		pos.SetVec(fb.Position)
	}
	if vel := w.vector(id, w.fields.velocity); vel != nil {
		vel.SetVec(fb.Velocity)
	}
	if w.fields.feedback != nil {
		if sink, ok := w.storage.GetComponent(id, w.fields.feedback).(FeedbackSink); ok {
			sink.SetFeedback(fb)
		}
	}
	return nil
}

// Release queues removal of e's tag component. The removal happens on the next
// FlushReleases or ApplyReleases, and its hook confirms the release.
func (w *World) Release(e bridge.Entity) error {
	id, err := w.resolveKey(e)
	if err != nil {
		return err
	}
	if _, pending := w.releasing.Get(e); pending {
		return nil
	}
	w.releasing.Put(e, true)
	w.queued = append(w.queued, e)

	if w.fields.feedback != nil {
		if sink, ok := w.storage.GetComponent(id, w.fields.feedback).(FeedbackSink); ok {
			sink.SetFeedback(bridge.Feedback{Status: bridge.PathBlocked})
		}
	}
	w.log.Debug().Uint64("entity", uint64(e)).Msg("release queued")
	return nil
}

// FlushReleases moves queued releases into cmds.
func (w *World) FlushReleases(cmds *ecs.Commands) {
	for _, e := range w.queued {
		if id, ok := w.Resolve(e); ok {
			cmds.RemoveComponent(id, w.fields.tag)
		}
	}
	w.queued = w.queued[:0]
}

// ApplyReleases removes queued tags from storage immediately. Use it when no
// scheduler frame is running.
func (w *World) ApplyReleases() {
	queued := w.queued
	w.queued = nil
	for _, e := range queued {
		if id, ok := w.Resolve(e); ok {
			w.storage.RemoveComponent(id, w.fields.tag)
		}
	}
}

// PendingReleases returns the number of releases waiting to be flushed.
func (w *World) PendingReleases() int {
	return len(w.queued)
}
