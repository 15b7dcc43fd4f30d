package history

import (
	"sync"
)

//Ring is a fixed capacity log of the most recent entries. Appending to a full
//ring silently evicts the oldest entry.
type Ring[T any] struct {
	mu       sync.RWMutex
	buffer   []T
	start    int
	count    int
	capacity int
}

//NewRing creates an empty ring that holds at most capacity entries
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}

	return &Ring[T]{
		buffer:   make([]T, capacity),
		capacity: capacity,
	}
}

func (r *Ring[T]) Add(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count < r.capacity {
		r.buffer[(r.start+r.count)%r.capacity] = item
		r.count++
		return
	}

	r.buffer[r.start] = item
	r.start = (r.start + 1) % r.capacity
}

func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

func (r *Ring[T]) Cap() int {
	return r.capacity
}

//Recent returns up to limit entries, newest first, that satisfy keep.
//A nil keep matches everything and a limit <= 0 returns every match.
func (r *Ring[T]) Recent(limit int, keep func(T) bool) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > r.count {
		limit = r.count
	}

	result := make([]T, 0, limit)
	for i := r.count - 1; i >= 0 && len(result) < limit; i-- {
		item := r.buffer[(r.start+i)%r.capacity]
		if keep == nil || keep(item) {
			result = append(result, item)
		}
	}

	return result
}
