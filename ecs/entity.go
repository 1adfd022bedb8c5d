package ecs

import "strconv"

// EntityId is archetype<<32 | slot. It changes whenever the entity moves to
// another archetype, and a freed slot is handed to the next entity spawned
// into the same archetype, so a stored id can alias a newer entity. Hold an
// EntityRef to track one entity over time.
type EntityId uint64

func NewEntityId(archetypeId uint32, index uint32) EntityId {
	return EntityId(uint64(archetypeId)<<32 | uint64(index))
}

func (e EntityId) ArchetypeId() uint32 { return uint32(e >> 32) }

func (e EntityId) Index() uint32 { return uint32(e) }

// String formats the id as archetype:slot.
func (e EntityId) String() string {
	return strconv.FormatUint(uint64(e.ArchetypeId()), 10) + ":" + strconv.FormatUint(uint64(e.Index()), 10)
}

// EntityRef follows an entity across archetype moves and Compact. Id is zero
// once the entity is deleted.
type EntityRef struct {
	Id        EntityId
	Archetype *Archetype
}

// Valid reports whether the referenced entity still exists.
func (r *EntityRef) Valid() bool {
	return r != nil && r.Archetype != nil && r.Id != 0
}
