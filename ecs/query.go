package ecs

import (
	"iter"
	"unsafe"
)

// Query is a View snapshot taken once per frame. The scheduler calls Execute
// right before the owning system runs, so a system sees the effects of every
// system before it. Matching archetypes are cached until a new archetype
// appears.
type Query[T any] struct {
	view       *View[T]
	storage    *Storage
	archetypes []*Archetype
	seen       int // len(storage.archetypes) when archetypes was built

	ids   []EntityId
	items []T
	ready bool
}

func NewQuery[T any](storage *Storage) *Query[T] {
	q := &Query[T]{}
	q.Init(storage)
	return q
}

// Init binds the query to storage and drops any cached state.
func (q *Query[T]) Init(storage *Storage) {
	q.view = NewView[T](storage)
	q.storage = storage
	q.archetypes = nil
	q.seen = -1
	q.ready = false
}

// Execute rebuilds the snapshot from the current storage.
func (q *Query[T]) Execute() {
	if n := len(q.storage.archetypes); n != q.seen {
		q.seen = n
		q.archetypes = q.archetypes[:0]
		for _, archetype := range q.storage.archetypes {
			if q.view.matchesArchetype(archetype) {
				q.archetypes = append(q.archetypes, archetype)
			}
		}
	}

	q.ids = q.ids[:0]
	q.items = q.items[:0]
	for _, archetype := range q.archetypes {
		q.collect(archetype)
	}
	q.ready = true
}

func (q *Query[T]) collect(archetype *Archetype) {
	if len(archetype.storages) == 0 {
		return
	}
	indices := q.view.buildStorageIndices(archetype)

	var item T
	for slot := range archetype.storages[0].Iter() {
		if !q.view.populateResult(unsafe.Pointer(&item), archetype, slot, indices) {
			continue
		}
		q.ids = append(q.ids, NewEntityId(archetype.id, uint32(slot)))
		q.items = append(q.items, item)
	}
}

// Len is the number of entities in the current snapshot.
func (q *Query[T]) Len() int {
	return len(q.ids)
}

// Iter yields each matched entity with its view. It panics before the first
// Execute.
func (q *Query[T]) Iter() iter.Seq2[EntityId, T] {
	if !q.ready {
		panic("Query.Iter() called before Query.Execute()")
	}
	return func(yield func(EntityId, T) bool) {
		for i, id := range q.ids {
			if !yield(id, q.items[i]) {
				return
			}
		}
	}
}

// Values is Iter without the ids.
func (q *Query[T]) Values() iter.Seq[T] {
	if !q.ready {
		panic("Query.Values() called before Query.Execute()")
	}
	return func(yield func(T) bool) {
		for _, item := range q.items {
			if !yield(item) {
				return
			}
		}
	}
}
