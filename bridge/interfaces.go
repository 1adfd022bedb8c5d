package bridge

// World is the ECS side of the bridge. Implementations return ErrUnknownEntity
// for entities they no longer hold.
type World interface {
	// SpawnParams describes the host object to create for e.
	SpawnParams(e Entity) (SpawnRequest, error)
	// Read returns the navigation fields of e for this tick.
	Read(e Entity) (AgentState, error)
	// Write stores the host's feedback on e.
	Write(e Entity, fb Feedback) error
	// Release detaches e from navigation after its host object went away.
	// Completion is reported later through Notifier.EntityReleased or
	// Notifier.EntityDestroyed.
	Release(e Entity) error
}

// Host is the navigation runtime. Methods taking a Handle return
// ErrInvalidHandle once the object behind it is gone. A host must not reissue
// a handle while a HostDestroyed notification for it may still be queued.
type Host interface {
	// Spawn creates an object for req. ErrSpawnRejected means the host refused
	// it; other errors are transient. Both are retried with backoff.
	Spawn(req SpawnRequest) (Handle, error)
	Destroy(h Handle) error
	// Apply pushes one entity's state and goal to the host.
	Apply(frame SyncFrame) error
	// Query reads back the host's authoritative state.
	Query(h Handle) (Feedback, error)
}

// Notifier receives lifecycle events from either side. Calls only queue the
// event; it is applied at the start of the next Advance.
type Notifier interface {
	EntityCreated(e Entity)
	EntityDestroyed(e Entity)
	EntityReleased(e Entity)
	HostDestroyed(h Handle)
}
