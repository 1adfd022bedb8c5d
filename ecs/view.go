package ecs

import (
	"iter"
	"reflect"
	"unsafe"
)

// View reads entities through a struct of component pointers. Embedded fields
// are required; named fields tagged `ecs:"optional"` may be nil.
//
//	type mover struct {
//		*Position
//		Vel *Velocity `ecs:"optional"`
//	}
type View[T any] struct {
	storage *Storage
	fields  []viewField
}

type viewField struct {
	typ      reflect.Type
	offset   uintptr
	optional bool
}

// NewView panics if T is not a struct of pointer fields or carries an unknown
// ecs tag.
func NewView[T any](storage *Storage) *View[T] {
	structType := reflect.TypeFor[T]()
	if structType.Kind() != reflect.Struct {
		panic("View type parameter must be a struct")
	}

	fields := make([]viewField, 0, structType.NumField())
	for i := range structType.NumField() {
		field := structType.Field(i)
		if field.Type.Kind() != reflect.Ptr {
			panic("View struct fields must be pointer types")
		}

		optional := false
		if tag := field.Tag.Get("ecs"); tag != "" && !field.Anonymous {
			if tag != "optional" {
				panic("invalid ecs tag value: \"" + tag + "\" (only \"optional\" is supported)")
			}
			optional = true
		}
		fields = append(fields, viewField{typ: field.Type.Elem(), offset: field.Offset, optional: optional})
	}
	return &View[T]{storage: storage, fields: fields}
}

// set points field i of the view struct at dst to component, which is nil or
// a *C boxed in an interface. It reports false for a missing required field.
func (v *View[T]) set(dst unsafe.Pointer, i int, component any) bool {
	slot := (*unsafe.Pointer)(unsafe.Add(dst, v.fields[i].offset))
	if component == nil {
		*slot = nil
		return v.fields[i].optional
	}
	*slot = dataPointer(&component)
	return true
}

// Fill points the fields of *ptr at the entity's components. It reports false
// when the entity is gone or lacks a required component.
func (v *View[T]) Fill(id EntityId, ptr *T) bool {
	archetype, ok := v.storage.archetypes[id.ArchetypeId()]
	if !ok {
		return false
	}
	for i, f := range v.fields {
		if !v.set(unsafe.Pointer(ptr), i, archetype.GetComponent(id.Index(), f.typ)) {
			return false
		}
	}
	return true
}

// Get is Fill returning nil on failure.
func (v *View[T]) Get(id EntityId) *T {
	var result T
	if !v.Fill(id, &result) {
		return nil
	}
	return &result
}

func (v *View[T]) GetRef(ref *EntityRef) *T {
	id, ok := v.storage.ResolveEntityRef(ref)
	if !ok {
		return nil
	}
	return v.Get(id)
}

func (v *View[T]) matchesArchetype(archetype *Archetype) bool {
	for _, f := range v.fields {
		if !f.optional && !archetype.HasComponent(f.typ) {
			return false
		}
	}
	return true
}

// buildStorageIndices maps each view field to its column in archetype, -1 when
// the archetype lacks it.
func (v *View[T]) buildStorageIndices(archetype *Archetype) []int {
	indices := make([]int, len(v.fields))
	for i, f := range v.fields {
		indices[i] = -1
		for col, t := range archetype.types {
			if t == f.typ {
				indices[i] = col
				break
			}
		}
	}
	return indices
}

func (v *View[T]) populateResult(dst unsafe.Pointer, archetype *Archetype, slot int, indices []int) bool {
	for i, col := range indices {
		var component any
		if col >= 0 {
			component = archetype.storages[col].Get(slot)
		}
		if !v.set(dst, i, component) {
			return false
		}
	}
	return true
}

// Iter walks the storage live. Systems should prefer Query, which snapshots
// once per frame.
func (v *View[T]) Iter() iter.Seq2[EntityId, T] {
	return func(yield func(EntityId, T) bool) {
		for _, archetype := range v.storage.archetypes {
			if len(archetype.storages) == 0 || !v.matchesArchetype(archetype) {
				continue
			}
			indices := v.buildStorageIndices(archetype)

			var item T
			for slot := range archetype.storages[0].Iter() {
				if !v.populateResult(unsafe.Pointer(&item), archetype, slot, indices) {
					continue
				}
				if !yield(NewEntityId(archetype.id, uint32(slot)), item) {
					return
				}
			}
		}
	}
}

func (v *View[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, item := range v.Iter() {
			if !yield(item) {
				return
			}
		}
	}
}

// Spawn creates an entity from copies of the non-nil fields of data. A nil
// required field panics.
func (v *View[T]) Spawn(data T) EntityId {
	base := unsafe.Pointer(&data)
	components := make([]any, 0, len(v.fields))
	for _, f := range v.fields {
		ptr := *(*unsafe.Pointer)(unsafe.Add(base, f.offset))
		if ptr == nil {
			if !f.optional {
				panic("required component is nil in View.Spawn")
			}
			continue
		}
		components = append(components, reflect.NewAt(f.typ, ptr).Elem().Interface())
	}
	return v.storage.Spawn(components...)
}
