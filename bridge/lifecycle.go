package bridge

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kamstrup/intmap"
	"github.com/rs/zerolog"
)

type eventKind uint8

const (
	eventEntityCreated eventKind = iota
	eventEntityDestroyed
	eventEntityReleased
	eventHostDestroyed
)

func (k eventKind) String() string {
	switch k {
	case eventEntityCreated:
		return "entity_created"
	case eventEntityDestroyed:
		return "entity_destroyed"
	case eventEntityReleased:
		return "entity_released"
	case eventHostDestroyed:
		return "host_destroyed"
	}
	return fmt.Sprintf("event(%d)", uint8(k))
}

type event struct {
	kind   eventKind
	entity Entity
	handle Handle
}

// spawnState is the retry bookkeeping of a Tracked entity.
type spawnState struct {
	attempts uint64
	nextTick uint64
	stalled  bool
	lastErr  error
}

// teardown records which sides of a PendingDestroy entry are confirmed gone.
type teardown struct {
	ecsGone       bool
	hostGone      bool
	releaseFailed bool
	destroyErrs   uint64
}

// coordinator owns every mirror mutation. Notifications are queued and applied
// in order at the start of each tick.
type coordinator struct {
	mirror  *Mirror
	world   World
	host    Host
	opts    *Options
	log     zerolog.Logger
	queue   []event
	drain   []event
	spawns  *intmap.Map[Entity, *spawnState]
	pending *intmap.Map[Entity, *teardown]
}

func newCoordinator(mirror *Mirror, world World, host Host, opts *Options, log zerolog.Logger) *coordinator {
	return &coordinator{
		mirror:  mirror,
		world:   world,
		host:    host,
		opts:    opts,
		log:     log,
		spawns:  intmap.New[Entity, *spawnState](256),
		pending: intmap.New[Entity, *teardown](64),
	}
}

func (c *coordinator) post(ev event) {
	c.queue = append(c.queue, ev)
}

// queued returns the number of notifications waiting for the next tick.
func (c *coordinator) queued() int {
	return len(c.queue)
}

// processEvents applies every notification posted before this call. Events
// posted while processing wait for the next tick.
func (c *coordinator) processEvents(tick uint64, r *Report) {
	c.drain, c.queue = c.queue, c.drain[:0]
	defer func() { c.drain = c.drain[:0] }()

	for _, ev := range c.drain {
		c.log.Trace().
			Str("event", ev.kind.String()).
			Uint64("entity", uint64(ev.entity)).
			Uint64("handle", uint64(ev.handle)).
			Msg("notification")

		switch ev.kind {
		case eventEntityCreated:
			c.track(ev.entity, tick, r)
		case eventEntityDestroyed, eventEntityReleased:
			c.ecsGone(ev.entity, tick, r)
		case eventHostDestroyed:
			c.hostDestroyed(ev.handle, tick, r)
		}
	}
}

func (c *coordinator) track(e Entity, tick uint64, r *Report) {
	_, err := c.mirror.Track(e, tick)
	switch {
	case errors.Is(err, ErrAlreadyTracked):
		c.log.Debug().Uint64("entity", uint64(e)).Msg("entity already mirrored")
	case err != nil:
		r.addError(err)
	default:
		c.spawns.Put(e, &spawnState{nextTick: tick})
	}
}

// ecsGone handles deletion or release of e on the ECS side.
func (c *coordinator) ecsGone(e Entity, tick uint64, r *Report) {
	entry, ok := c.mirror.Entry(e)
	if !ok {
		return
	}

	switch entry.State {
	case StateTracked:
		c.spawns.Del(e)
		c.remove(e, r)

	case StateBound:
		c.mirror.MarkPendingDestroy(e, tick)
		td := &teardown{ecsGone: true}
		c.pending.Put(e, td)
		c.destroyHost(e, entry.Handle, td, r)

	case StatePendingDestroy:
		td := c.teardownFor(e)
		td.ecsGone = true
		td.releaseFailed = false
		c.finish(e, td, r)
	}
}

// hostDestroyed handles an object that vanished on the host side.
func (c *coordinator) hostDestroyed(h Handle, tick uint64, r *Report) {
	e, ok := c.mirror.LookupByHandle(h)
	if !ok {
		return
	}
	entry, _ := c.mirror.Entry(e)
	if entry.State == StatePendingDestroy {
		// Our own destroy was still pending; the host beat us to it.
		c.mirror.Detach(e)
		td := c.teardownFor(e)
		td.hostGone = true
		c.finish(e, td, r)
		return
	}
	c.hostLost(e, tick, r)
}

// hostLost moves a Bound entry whose host object is gone to PendingDestroy and
// asks the World to release the entity.
func (c *coordinator) hostLost(e Entity, tick uint64, r *Report) {
	if _, ok := c.mirror.MarkPendingDestroy(e, tick); !ok {
		return
	}
	c.mirror.Detach(e)
	td := c.teardownFor(e)
	td.hostGone = true
	if td.ecsGone {
		c.finish(e, td, r)
		return
	}
	c.release(e, td, r)
}

func (c *coordinator) release(e Entity, td *teardown, r *Report) {
	err := c.world.Release(e)
	switch {
	case err == nil:
		td.releaseFailed = false
	case errors.Is(err, ErrUnknownEntity):
		td.ecsGone = true
		c.finish(e, td, r)
	default:
		td.releaseFailed = true
		r.addError(entityErr("release", e, 0, err))
	}
}

func (c *coordinator) destroyHost(e Entity, h Handle, td *teardown, r *Report) {
	err := c.host.Destroy(h)
	if err != nil && !errors.Is(err, ErrInvalidHandle) {
		td.destroyErrs++
		r.addError(entityErr("destroy", e, h, err))
		return
	}
	c.mirror.Detach(e)
	td.hostGone = true
	c.finish(e, td, r)
}

func (c *coordinator) teardownFor(e Entity) *teardown {
	td, ok := c.pending.Get(e)
	if !ok {
		td = &teardown{}
		c.pending.Put(e, td)
	}
	return td
}

// finish removes e once both sides are confirmed.
func (c *coordinator) finish(e Entity, td *teardown, r *Report) {
	if !td.ecsGone || !td.hostGone {
		return
	}
	c.pending.Del(e)
	c.remove(e, r)
}

func (c *coordinator) remove(e Entity, r *Report) {
	c.mirror.Unbind(e)
	r.Removed++
	c.log.Debug().Uint64("entity", uint64(e)).Msg("entity removed")
}

// retryTeardowns re-issues host destroys and world releases that failed on an
// earlier tick.
func (c *coordinator) retryTeardowns(r *Report) {
	type retry struct {
		entity Entity
		td     *teardown
	}
	var retries []retry
	c.pending.ForEach(func(e Entity, td *teardown) bool {
		if (td.ecsGone && !td.hostGone) || (td.hostGone && td.releaseFailed) {
			retries = append(retries, retry{e, td})
		}
		return true
	})
	sort.Slice(retries, func(i, j int) bool { return retries[i].entity < retries[j].entity })

	for _, rt := range retries {
		if rt.td.ecsGone {
			h, ok := c.mirror.LookupByEntity(rt.entity)
			if !ok {
				rt.td.hostGone = true
				c.finish(rt.entity, rt.td, r)
				continue
			}
			c.destroyHost(rt.entity, h, rt.td, r)
			continue
		}
		c.release(rt.entity, rt.td, r)
	}
}

// spawnDue tries to bind every Tracked entity whose backoff has elapsed. A
// failed Bind after a successful Spawn is fatal.
func (c *coordinator) spawnDue(tick uint64, r *Report) error {
	for _, entry := range c.mirror.Snapshot(StateTracked) {
		st, ok := c.spawns.Get(entry.Entity)
		if !ok {
			st = &spawnState{nextTick: tick}
			c.spawns.Put(entry.Entity, st)
		}
		if st.stalled || st.nextTick > tick {
			continue
		}
		if err := c.spawn(entry.Entity, st, tick, r); err != nil {
			return err
		}
	}
	return nil
}

func (c *coordinator) spawn(e Entity, st *spawnState, tick uint64, r *Report) error {
	req, err := c.world.SpawnParams(e)
	if errors.Is(err, ErrUnknownEntity) {
		c.spawns.Del(e)
		c.remove(e, r)
		return nil
	}
	if err == nil {
		req.Entity = e
		var h Handle
		h, err = c.host.Spawn(req)
		if err == nil {
			if _, bindErr := c.mirror.Bind(e, h, tick); bindErr != nil {
				if derr := c.host.Destroy(h); derr != nil && !errors.Is(derr, ErrInvalidHandle) {
					c.log.Error().Err(derr).Uint64("handle", uint64(h)).Msg("leaked host object")
				}
				return bindErr
			}
			c.spawns.Del(e)
			r.Spawned++
			c.log.Debug().Uint64("entity", uint64(e)).Uint64("handle", uint64(h)).Msg("entity bound")
			return nil
		}
	}

	st.attempts++
	st.lastErr = err
	r.SpawnFailures++

	if st.attempts < c.opts.MaxSpawnAttempts {
		st.nextTick = tick + c.opts.backoff(st.attempts)
		return nil
	}

	kind := WarnSpawnExhausted
	if errors.Is(err, ErrSpawnRejected) {
		kind = WarnSpawnRejected
	}
	st.stalled = true
	w := Warning{Entity: e, Kind: kind, Attempts: st.attempts, Err: err}
	r.Warnings = append(r.Warnings, w)
	c.log.Warn().
		Err(err).
		Uint64("entity", uint64(e)).
		Uint64("attempts", st.attempts).
		Str("kind", kind.String()).
		Msg("spawn abandoned")
	return nil
}

// rearm clears the stall on a Tracked entity so it is retried next tick.
func (c *coordinator) rearm(e Entity, tick uint64) bool {
	entry, ok := c.mirror.Entry(e)
	if !ok || entry.State != StateTracked {
		return false
	}
	c.spawns.Put(e, &spawnState{nextTick: tick + 1})
	return true
}

// stalled lists Tracked entities that stopped retrying, ordered by Entity.
func (c *coordinator) stalled() []Entity {
	var out []Entity
	for _, entry := range c.mirror.Snapshot(StateTracked) {
		if st, ok := c.spawns.Get(entry.Entity); ok && st.stalled {
			out = append(out, entry.Entity)
		}
	}
	return out
}
