package ecs

import (
	"iter"
	"reflect"
	"sort"
	"unsafe"
	"weak"
)

// Hooks observe structural changes made through a Storage. Any field may be nil.
// Deleting and ComponentRemoving run before the data is gone, so observers can
// still read the entity's components.
type Hooks struct {
	Spawned           func(id EntityId)
	Deleting          func(id EntityId)
	ComponentAdded    func(id EntityId, compType reflect.Type)
	ComponentRemoving func(id EntityId, compType reflect.Type)
}

// Storage is the main ECS storage interface
type Storage struct {
	archetypes map[uint32]*Archetype
	registry   *ComponentRegistry
	singletons map[reflect.Type]*singletonEntry
	hooks      []Hooks
}

// NewStorage creates a new ECS storage system with the given component registry
func NewStorage(registry *ComponentRegistry) *Storage {
	return &Storage{
		archetypes: make(map[uint32]*Archetype),
		registry:   registry,
		singletons: make(map[reflect.Type]*singletonEntry),
	}
}

// AddHooks registers a set of lifecycle observers. Hooks run synchronously in
// registration order.
func (s *Storage) AddHooks(h Hooks) {
	s.hooks = append(s.hooks, h)
}

// Registry returns the component registry backing this storage.
func (s *Storage) Registry() *ComponentRegistry {
	return s.registry
}

func (s *Storage) CreateEntityRef(id EntityId) *EntityRef {
	archetype := s.archetypes[id.ArchetypeId()]
	if archetype == nil {
		return nil
	}

	if weakPtr, ok := archetype.refs.Get(id); ok {
		if ref := weakPtr.Value(); ref != nil {
			return ref
		}
		archetype.refs.Del(id)
	}

	ref := &EntityRef{
		Id:        id,
		Archetype: archetype,
	}
	archetype.refs.Put(id, weak.Make(ref))

	return ref
}

func (s *Storage) ResolveEntityRef(ref *EntityRef) (EntityId, bool) {
	if !ref.Valid() {
		return 0, false
	}
	return ref.Id, true
}

func (s *Storage) InvalidateEntityRef(ref *EntityRef) bool {
	if !ref.Valid() {
		return false
	}

	archetype := s.archetypes[ref.Id.ArchetypeId()]
	if archetype != nil {
		archetype.refs.Del(ref.Id)
	}

	ref.Id = 0
	ref.Archetype = nil
	return true
}

// GetArchetype returns an archetype storage (if one exists)
func (s *Storage) GetArchetype(components ...any) *Archetype {
	types := extractComponentTypes(components)
	return s.archetypes[hashTypesToUint32(types)]
}

// GetArchetypeByTypes returns an archetype storage (if one exists) based on reflect.Type
func (s *Storage) GetArchetypeByTypes(types []reflect.Type) *Archetype {
	sort.Sort(byTypeName(types))
	return s.archetypes[hashTypesToUint32(types)]
}

// Alive reports whether id currently addresses a live entity.
func (s *Storage) Alive(id EntityId) bool {
	if id == 0 {
		return false
	}
	archetype, ok := s.archetypes[id.ArchetypeId()]
	if !ok || len(archetype.storages) == 0 {
		return false
	}
	return archetype.storages[0].Has(int(id.Index()))
}

// EntitiesWith yields every live entity carrying a component of compType.
// The storage must not change structurally while iterating.
func (s *Storage) EntitiesWith(compType reflect.Type) iter.Seq[EntityId] {
	return func(yield func(EntityId) bool) {
		for _, archetype := range s.archetypes {
			if !archetype.HasComponent(compType) {
				continue
			}
			for id := range archetype.Iter() {
				if !yield(id) {
					return
				}
			}
		}
	}
}

func (s *Storage) archetypeFor(types []reflect.Type) *Archetype {
	archetypeId := hashTypesToUint32(types)
	archetype, exists := s.archetypes[archetypeId]
	if !exists {
		archetype = NewArchetype(archetypeId, types, s.registry)
		s.archetypes[archetypeId] = archetype
	}
	return archetype
}

// Spawn creates a new entity with the provided components
func (s *Storage) Spawn(components ...any) EntityId {
	if len(components) == 0 {
		panic("cannot spawn entity without components")
	}

	archetype := s.archetypeFor(extractComponentTypes(components))
	id := NewEntityId(archetype.id, archetype.Spawn(components))

	for _, h := range s.hooks {
		if h.Spawned != nil {
			h.Spawned(id)
		}
	}
	return id
}

// Delete removes all data related to the entity ID. Deleting a dead entity is a no-op.
func (s *Storage) Delete(id EntityId) {
	if !s.Alive(id) {
		return
	}

	for _, h := range s.hooks {
		if h.Deleting != nil {
			h.Deleting(id)
		}
	}

	s.archetypes[id.ArchetypeId()].Delete(id.Index())
}

// AddComponent attaches component to the entity and returns its new id. If the
// entity already carries a component of that type the value is overwritten in
// place and the id is unchanged.
func (s *Storage) AddComponent(id EntityId, component any) EntityId {
	if !s.Alive(id) {
		return 0
	}
	oldArchetype := s.archetypes[id.ArchetypeId()]

	compType := reflect.TypeOf(component)
	value := reflect.ValueOf(component)
	if compType.Kind() == reflect.Ptr {
		compType = compType.Elem()
		value = value.Elem()
	}

	if oldArchetype.HasComponent(compType) {
		existing := oldArchetype.GetComponent(id.Index(), compType)
		reflect.ValueOf(existing).Elem().Set(value)
		return id
	}

	newTypes := make([]reflect.Type, 0, len(oldArchetype.types)+1)
	newTypes = append(newTypes, oldArchetype.types...)
	newTypes = append(newTypes, compType)
	sort.Sort(byTypeName(newTypes))

	components := make([]any, 0, len(newTypes))
	for _, typ := range newTypes {
		if typ == compType {
			components = append(components, component)
		} else {
			components = append(components, oldArchetype.GetComponent(id.Index(), typ))
		}
	}

	newId := s.move(id, oldArchetype, s.archetypeFor(newTypes), components)

	for _, h := range s.hooks {
		if h.ComponentAdded != nil {
			h.ComponentAdded(newId, compType)
		}
	}
	return newId
}

// RemoveComponent detaches the component of compType and returns the entity's
// new id. Removing the last component deletes the entity and returns 0.
func (s *Storage) RemoveComponent(id EntityId, compType reflect.Type) EntityId {
	if !s.Alive(id) {
		return 0
	}
	oldArchetype := s.archetypes[id.ArchetypeId()]
	if !oldArchetype.HasComponent(compType) {
		return id
	}

	for _, h := range s.hooks {
		if h.ComponentRemoving != nil {
			h.ComponentRemoving(id, compType)
		}
	}

	newTypes := make([]reflect.Type, 0, len(oldArchetype.types)-1)
	for _, typ := range oldArchetype.types {
		if typ != compType {
			newTypes = append(newTypes, typ)
		}
	}

	if len(newTypes) == 0 {
		s.Delete(id)
		return 0
	}

	components := make([]any, 0, len(newTypes))
	for _, typ := range newTypes {
		components = append(components, oldArchetype.GetComponent(id.Index(), typ))
	}

	return s.move(id, oldArchetype, s.archetypeFor(newTypes), components)
}

// move respawns the entity's data in dst, repoints any live EntityRef and
// frees the old slot.
func (s *Storage) move(id EntityId, src, dst *Archetype, components []any) EntityId {
	newId := NewEntityId(dst.id, dst.Spawn(components))

	if weakPtr, ok := src.refs.Get(id); ok {
		if ref := weakPtr.Value(); ref != nil {
			ref.Id = newId
			ref.Archetype = dst
		}
		src.refs.Del(id)
		dst.refs.Put(newId, weakPtr)
	}

	src.Delete(id.Index())
	return newId
}

// GetComponent returns the component for the given entity ID and component type
func (s *Storage) GetComponent(id EntityId, compType reflect.Type) any {
	archetype, ok := s.archetypes[id.ArchetypeId()]
	if !ok {
		return nil
	}
	return archetype.GetComponent(id.Index(), compType)
}

// HasComponent checks if an entity has a specific component type
func (s *Storage) HasComponent(id EntityId, compType reflect.Type) bool {
	archetype, ok := s.archetypes[id.ArchetypeId()]
	if !ok {
		return false
	}
	return archetype.HasComponent(compType)
}

// extractComponentTypes extracts and sorts component types from a slice of components
func extractComponentTypes(components []any) []reflect.Type {
	types := make([]reflect.Type, 0, len(components))
	for _, comp := range components {
		compType := reflect.TypeOf(comp)
		if compType.Kind() == reflect.Ptr {
			compType = compType.Elem()
		}

		switch compType.Kind() {
		case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func:
			panic("components cannot be pointers, maps, channels, or functions")
		}

		types = append(types, compType)
	}
	sort.Sort(byTypeName(types))
	return types
}

// hashTypesToUint32 generates a uint32 hash for a sorted slice of types
func hashTypesToUint32(types []reflect.Type) uint32 {
	var h uint32 = 2166136261     // FNV-1a 32-bit offset basis
	const prime uint32 = 16777619 // FNV-1a 32-bit prime

	for _, t := range types {
		ptr := (*eface)(unsafe.Pointer(&t)).data
		val := uint32(uintptr(ptr))
		if unsafe.Sizeof(uintptr(0)) == 8 {
			val ^= uint32(uintptr(ptr) >> 32)
		}

		h ^= val
		h *= prime
	}

	return h
}

type ComponentReader interface {
	GetComponent(EntityId, reflect.Type) any
}

// ReadComponent returns the entity's component of type T, or nil when absent.
func ReadComponent[T any](reader ComponentReader, entityId EntityId) *T {
	comp, _ := reader.GetComponent(entityId, reflect.TypeFor[T]()).(*T)
	return comp
}
