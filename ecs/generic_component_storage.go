package ecs

import (
	"iter"
	"reflect"
	"unsafe"
)

// column holds one component type for one archetype. Indices are stable until
// Compact, which returns the old-to-new index map.
type column interface {
	Append(item any) int
	Delete(index int)
	Get(index int) any
	Has(index int) bool
	Compact() map[int]int
	Iter() iter.Seq[int]
}

// eface mirrors the runtime layout of an interface value, so the pointer a
// column hands out can be copied into a view struct without reflection.
type eface struct {
	typ  unsafe.Pointer
	data unsafe.Pointer
}

func dataPointer(v *any) unsafe.Pointer {
	return (*eface)(unsafe.Pointer(v)).data
}

// ComponentRegistry lists the component types a Storage accepts, with a
// column factory for each.
type ComponentRegistry struct {
	factories map[reflect.Type]func() column
}

func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{factories: make(map[reflect.Type]func() column)}
}

// RegisterComponent adds T to r. Spawning an unregistered type panics.
func RegisterComponent[T any](r *ComponentRegistry) {
	r.factories[reflect.TypeFor[T]()] = func() column {
		return &genericComponentStorage[T]{}
	}
}

// Lookup resolves a registered component type by its bare name ("Position")
// or its package-qualified name ("ecsworld.Position").
func (r *ComponentRegistry) Lookup(name string) (reflect.Type, bool) {
	var found reflect.Type
	for t := range r.factories {
		if t.String() == name {
			return t, true
		}
		if t.Name() == name {
			if found != nil {
				// ambiguous bare name; require the qualified form
				return nil, false
			}
			found = t
		}
	}
	return found, found != nil
}

// Registered reports whether t has a storage factory.
func (r *ComponentRegistry) Registered(t reflect.Type) bool {
	_, ok := r.factories[t]
	return ok
}

// getFactory returns nil for an unregistered type.
func (r *ComponentRegistry) getFactory(t reflect.Type) func() column {
	return r.factories[t]
}

const genericBlockSize = 64

// genericComponentStorage is the column for T, kept in fixed-size blocks so
// pointers into it survive appends. Deleted slots are reused LIFO.
type genericComponentStorage[T any] struct {
	blocks    [][genericBlockSize]T
	filled    [][genericBlockSize]bool
	freeSlots []int
	nextIndex int
}

// slot locates index; ok is false outside the allocated blocks.
func (cs *genericComponentStorage[T]) slot(index int) (block, offset int, ok bool) {
	if index < 0 || index >= cs.nextIndex {
		return 0, 0, false
	}
	return index / genericBlockSize, index % genericBlockSize, true
}

// Append stores item, a T or *T, and returns its index, or -1 for any other type.
func (cs *genericComponentStorage[T]) Append(item any) int {
	var value T
	switch v := item.(type) {
	case T:
		value = v
	case *T:
		value = *v
	default:
		return -1
	}

	var index int
	if n := len(cs.freeSlots); n > 0 {
		index = cs.freeSlots[n-1]
		cs.freeSlots = cs.freeSlots[:n-1]
	} else {
		index = cs.nextIndex
		cs.nextIndex++
		if index/genericBlockSize >= len(cs.blocks) {
			cs.blocks = append(cs.blocks, [genericBlockSize]T{})
			cs.filled = append(cs.filled, [genericBlockSize]bool{})
		}
	}

	b, o, _ := cs.slot(index)
	cs.blocks[b][o] = value
	cs.filled[b][o] = true
	return index
}

// Get returns a *T boxed in an interface, or nil for an empty slot.
func (cs *genericComponentStorage[T]) Get(index int) any {
	b, o, ok := cs.slot(index)
	if !ok || !cs.filled[b][o] {
		return nil
	}
	return &cs.blocks[b][o]
}

func (cs *genericComponentStorage[T]) Delete(index int) {
	b, o, ok := cs.slot(index)
	if !ok || !cs.filled[b][o] {
		return
	}
	var zero T
	cs.blocks[b][o] = zero
	cs.filled[b][o] = false
	cs.freeSlots = append(cs.freeSlots, index)
}

func (cs *genericComponentStorage[T]) Has(index int) bool {
	b, o, ok := cs.slot(index)
	return ok && cs.filled[b][o]
}

// Compact packs the live slots to the front in index order and returns the
// old-to-new index map. Pointers handed out before are invalidated.
func (cs *genericComponentStorage[T]) Compact() map[int]int {
	moved := make(map[int]int)
	live := cs.nextIndex - len(cs.freeSlots)
	n := max(1, (live+genericBlockSize-1)/genericBlockSize)
	blocks := make([][genericBlockSize]T, n)
	filled := make([][genericBlockSize]bool, n)

	next := 0
	for index := range cs.Iter() {
		b, o, _ := cs.slot(index)
		blocks[next/genericBlockSize][next%genericBlockSize] = cs.blocks[b][o]
		filled[next/genericBlockSize][next%genericBlockSize] = true
		moved[index] = next
		next++
	}

	cs.blocks, cs.filled = blocks, filled
	cs.freeSlots = nil
	cs.nextIndex = next
	return moved
}

// Iter yields the filled indices in ascending order.
func (cs *genericComponentStorage[T]) Iter() iter.Seq[int] {
	return func(yield func(int) bool) {
		for index := 0; index < cs.nextIndex; index++ {
			if cs.filled[index/genericBlockSize][index%genericBlockSize] && !yield(index) {
				return
			}
		}
	}
}
