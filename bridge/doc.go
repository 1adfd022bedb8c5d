// Package bridge keeps entities of an ECS world in step with agents owned by a
// host navigation runtime.
//
// Three parts cooperate inside a single Advance call per frame:
//
//   - Mirror pairs each navigable Entity with at most one host Handle.
//   - The synchronizer pushes position, velocity and goal to the host and
//     pulls position and path status back, for every Bound entry.
//   - The Coordinator drives each entity through
//     Tracked -> Bound -> PendingDestroy -> Removed, reacting to deletions on
//     either side and retrying failed spawns with backoff.
//
// The ECS and the host are reached only through the World and Host
// interfaces. A Bridge is not safe for concurrent use; call it from the
// goroutine that ticks the host.
package bridge
