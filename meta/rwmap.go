package meta

import "sync"

// RWMap is the concurrent keyed map of C4: a single reader/writer lock
// guarding a plain Go map, with the exact operation set spec §4.4
// mandates (try_emplace/find/erase/iter). Callers must follow the
// mandatory pattern of spec §5: acquire this lock, copy out the value,
// release this lock, then take the value's own entity lock before I/O.
type RWMap[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func NewRWMap[K comparable, V any]() *RWMap[K, V] {
	return &RWMap[K, V]{m: make(map[K]V)}
}

// TryEmplace inserts (k,v) iff k is absent, returning whether the
// insertion happened (and the value now stored under k either way).
// This is the sole mechanism for idempotent creation (P6).
func (r *RWMap[K, V]) TryEmplace(k K, v V) (stored V, inserted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.m[k]; ok {
		return existing, false
	}
	r.m[k] = v
	return v, true
}

func (r *RWMap[K, V]) Find(k K) (v V, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok = r.m[k]
	return
}

// Erase removes k, reporting whether it was present.
func (r *RWMap[K, V]) Erase(k K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[k]; !ok {
		return false
	}
	delete(r.m, k)
	return true
}

// Set unconditionally stores v under k (used by RenameBlob's atomic
// name-map swap, spec §4.5, which is not an emplace-if-absent).
func (r *RWMap[K, V]) Set(k K, v V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[k] = v
}

// Iter calls fn for a snapshot of the map's entries at call time. fn
// must not call back into r (no I/O, no nested lock on r).
func (r *RWMap[K, V]) Iter(fn func(k K, v V) bool) {
	r.mu.RLock()
	snap := make(map[K]V, len(r.m))
	for k, v := range r.m {
		snap[k] = v
	}
	r.mu.RUnlock()
	for k, v := range snap {
		if !fn(k, v) {
			return
		}
	}
}

func (r *RWMap[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// TagBlobKey is the composite (tag_id, blob_name) key of spec §4.4;
// callers of the metadata store never see it directly.
type TagBlobKey struct {
	Tag  TagID
	Name string
}
