package bridge

import "errors"

// synchronizer runs the per-tick push and pull passes over Bound entries.
type synchronizer struct {
	world  World
	host   Host
	coord  *coordinator
	pushed []MirrorEntry
}

// run pushes every entry to the host, then pulls feedback for the entries
// that pushed cleanly. Per-entity failures are recorded on r and never stop
// the pass.
func (s *synchronizer) run(entries []MirrorEntry, tick uint64, dt float64, r *Report) {
	s.pushed = s.pushed[:0]

	for _, entry := range entries {
		if s.push(entry, tick, dt, r) {
			s.pushed = append(s.pushed, entry)
		}
	}

	for _, entry := range s.pushed {
		if s.pull(entry, tick, r) {
			r.Synced++
		}
	}
}

func (s *synchronizer) push(entry MirrorEntry, tick uint64, dt float64, r *Report) bool {
	state, err := s.world.Read(entry.Entity)
	if err != nil {
		s.worldFailed("read", entry, err, r)
		return false
	}

	frame := SyncFrame{
		Tick:      tick,
		DeltaTime: dt,
		Entity:    entry.Entity,
		Handle:    entry.Handle,
		Position:  state.Position,
		Velocity:  state.Velocity,
		Goal:      state.Goal,
		HasGoal:   state.HasGoal,
	}
	if err := s.host.Apply(frame); err != nil {
		s.hostFailed("apply", entry, err, tick, r)
		return false
	}
	return true
}

func (s *synchronizer) pull(entry MirrorEntry, tick uint64, r *Report) bool {
	fb, err := s.host.Query(entry.Handle)
	if err != nil {
		s.hostFailed("query", entry, err, tick, r)
		return false
	}

	fb.Handle = entry.Handle
	if err := s.world.Write(entry.Entity, fb); err != nil {
		s.worldFailed("write", entry, err, r)
		return false
	}
	return true
}

// worldFailed records a World error. A vanished entity is queued as destroyed
// so its host object is torn down next tick.
func (s *synchronizer) worldFailed(op string, entry MirrorEntry, err error, r *Report) {
	if errors.Is(err, ErrUnknownEntity) {
		s.coord.post(event{kind: eventEntityDestroyed, entity: entry.Entity})
	}
	r.addError(entityErr(op, entry.Entity, entry.Handle, err))
}

// hostFailed records a Host error. An invalid handle starts teardown at once.
func (s *synchronizer) hostFailed(op string, entry MirrorEntry, err error, tick uint64, r *Report) {
	if errors.Is(err, ErrInvalidHandle) {
		s.coord.hostLost(entry.Entity, tick, r)
	}
	r.addError(entityErr(op, entry.Entity, entry.Handle, err))
}
