package bridge

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// WarningKind says why an entity stopped retrying its spawn.
type WarningKind uint8

const (
	// WarnSpawnExhausted means MaxSpawnAttempts failures in a row, the last
	// one transient.
	WarnSpawnExhausted WarningKind = iota
	// WarnSpawnRejected means MaxSpawnAttempts failures in a row, the last one
	// ErrSpawnRejected.
	WarnSpawnRejected
)

func (k WarningKind) String() string {
	switch k {
	case WarnSpawnExhausted:
		return "spawn_exhausted"
	case WarnSpawnRejected:
		return "spawn_rejected"
	}
	return fmt.Sprintf("WarningKind(%d)", uint8(k))
}

// Warning is emitted once for each entity that gives up on spawning.
type Warning struct {
	Entity   Entity
	Kind     WarningKind
	Attempts uint64
	Err      error
}

// Report summarizes one Advance.
type Report struct {
	Tick           uint64
	Duration       time.Duration
	Synced         int // entities pushed and pulled without error
	Spawned        int
	SpawnFailures  int
	Removed        int
	Bound          int // entries in each state after the tick
	Tracked        int
	PendingDestroy int
	Errors         []error // per-entity errors, each an *EntityError
	Warnings       []Warning
}

func (r *Report) addError(err error) {
	r.Errors = append(r.Errors, err)
}

// Stats accumulates Report counters over the bridge's lifetime.
type Stats struct {
	Ticks         uint64
	Synced        uint64
	Spawned       uint64
	SpawnFailures uint64
	Removed       uint64
	Errors        uint64
	Warnings      uint64
	LastDuration  time.Duration
	MaxDuration   time.Duration
}

func (s *Stats) add(r *Report) {
	s.Ticks++
	s.Synced += uint64(r.Synced)
	s.Spawned += uint64(r.Spawned)
	s.SpawnFailures += uint64(r.SpawnFailures)
	s.Removed += uint64(r.Removed)
	s.Errors += uint64(len(r.Errors))
	s.Warnings += uint64(len(r.Warnings))
	s.LastDuration = r.Duration
	s.MaxDuration = max(s.MaxDuration, r.Duration)
}

// Bridge keeps an ECS World and a navigation Host in step. It is driven by
// calling Advance once per frame and is not safe for concurrent use; the
// Notifier methods must be called from the same goroutine as Advance.
type Bridge struct {
	world  World
	host   Host
	mirror *Mirror
	coord  *coordinator
	sync   synchronizer
	opts   Options
	log    zerolog.Logger
	tick   uint64
	halted error
	stats  Stats
}

var _ Notifier = (*Bridge)(nil)

// New creates a bridge between world and host.
func New(world World, host Host, opts Options) *Bridge {
	opts = opts.withDefaults()

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "navbridge").Logger()
	}

	b := &Bridge{
		world:  world,
		host:   host,
		mirror: NewMirror(opts.MirrorCapacity),
		opts:   opts,
		log:    log,
	}
	b.coord = newCoordinator(b.mirror, world, host, &b.opts, log)
	b.sync = synchronizer{world: world, host: host, coord: b.coord}
	return b
}

// Advance runs one tick: queued notifications are applied, Bound entries are
// synchronized, due spawns are attempted and failed teardowns are retried.
// Per-entity failures are returned in the Report. A non-nil error means the
// bridge halted; every later call returns ErrBridgeHalted.
func (b *Bridge) Advance(dt float64) (Report, error) {
	if b.halted != nil {
		return Report{Tick: b.tick}, fmt.Errorf("%w: %w", ErrBridgeHalted, b.halted)
	}

	start := time.Now()
	b.tick++
	r := Report{Tick: b.tick}

	b.coord.processEvents(b.tick, &r)
	b.sync.run(b.mirror.Snapshot(StateBound), b.tick, dt, &r)

	if err := b.coord.spawnDue(b.tick, &r); err != nil {
		return b.finishTick(&r, start, err)
	}
	b.coord.retryTeardowns(&r)

	var err error
	if b.opts.VerifyMirror {
		err = b.mirror.Verify()
	}
	return b.finishTick(&r, start, err)
}

func (b *Bridge) finishTick(r *Report, start time.Time, fatal error) (Report, error) {
	r.Bound = b.mirror.Count(StateBound)
	r.Tracked = b.mirror.Count(StateTracked)
	r.PendingDestroy = b.mirror.Count(StatePendingDestroy)
	r.Duration = time.Since(start)
	b.stats.add(r)

	for _, err := range r.Errors {
		b.log.Debug().Err(err).Uint64("tick", r.Tick).Msg("entity sync failed")
	}

	if fatal != nil {
		b.halted = fatal
		b.log.Error().Err(fatal).Uint64("tick", r.Tick).Msg("bridge halted")
		return *r, fatal
	}
	return *r, nil
}

// Halted returns the error that stopped the bridge, or nil.
func (b *Bridge) Halted() error {
	return b.halted
}

// Tick returns the number of the last completed tick.
func (b *Bridge) Tick() uint64 {
	return b.tick
}

// Stats returns the cumulative counters.
func (b *Bridge) Stats() Stats {
	return b.stats
}

// Mirror exposes the mirror for inspection. Callers must not mutate it.
func (b *Bridge) Mirror() *Mirror {
	return b.mirror
}

// Pending returns the number of notifications queued for the next tick.
func (b *Bridge) Pending() int {
	return b.coord.queued()
}

// Stalled lists Tracked entities that stopped retrying their spawn.
func (b *Bridge) Stalled() []Entity {
	return b.coord.stalled()
}

// RetrySpawn re-arms a stalled or backing-off entity so its spawn is tried on
// the next tick. It reports false if e is not Tracked.
func (b *Bridge) RetrySpawn(e Entity) bool {
	return b.coord.rearm(e, b.tick)
}

// RetryStalled re-arms every stalled entity and returns how many there were.
func (b *Bridge) RetryStalled() int {
	n := 0
	for _, e := range b.coord.stalled() {
		if b.coord.rearm(e, b.tick) {
			n++
		}
	}
	return n
}

// EntityCreated queues first observation of a navigable entity.
func (b *Bridge) EntityCreated(e Entity) {
	b.coord.post(event{kind: eventEntityCreated, entity: e})
}

// EntityDestroyed queues deletion of e in the ECS world.
func (b *Bridge) EntityDestroyed(e Entity) {
	b.coord.post(event{kind: eventEntityDestroyed, entity: e})
}

// EntityReleased queues confirmation that the World released e.
func (b *Bridge) EntityReleased(e Entity) {
	b.coord.post(event{kind: eventEntityReleased, entity: e})
}

// HostDestroyed queues destruction of h on the host side.
func (b *Bridge) HostDestroyed(h Handle) {
	b.coord.post(event{kind: eventHostDestroyed, handle: h})
}
