// Package expiring introduces tables with the ability to prune their own elements.
// channel uses a Table to age out reassemblies that never receive their final fragment.
package expiring

import (
	"sync"
	"time"
)

// wrapped value with an expiration timer attached
type timedV[value_t any] struct {
	val value_t
	exp *time.Timer
	gen uint64 // guards against a stale timer pruning a newer value stored under the same key
}

// A Table is a mutex-guarded map whose elements prune themselves after their duration elapses.
// Tables must be created with New and should only be passed by reference.
//
// NOTE: accessing elements AT their expiration time is, by its very nature, a race.
// If a timer has not expired, then its associated data is guaranteed to not have been pruned. The inverse is not guaranteed.
type Table[key_t comparable, value_t any] struct {
	mu  sync.Mutex
	m   map[key_t]timedV[value_t]
	gen uint64
}

// New returns an empty table, ready for use.
func New[key_t comparable, value_t any]() *Table[key_t, value_t] {
	return &Table[key_t, value_t]{m: make(map[key_t]timedV[value_t])}
}

// Store saves the given k/v and sets them to expire after the given time.
// If a value was previously associated to this key, it will be overwritten and its timer reset.
// cleanup functions are called in given order, outside of the table lock, after an expired key is deleted.
// They are not called on Delete.
func (tbl *Table[key_t, value_t]) Store(key key_t, value value_t, expire time.Duration, cleanup ...func(key_t, value_t)) {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	if prior, found := tbl.m[key]; found {
		prior.exp.Stop()
	}
	tbl.gen++
	gen := tbl.gen
	tbl.m[key] = timedV[value_t]{
		val: value,
		gen: gen,
		exp: time.AfterFunc(expire, func() {
			tbl.mu.Lock()
			cur, found := tbl.m[key]
			if !found || cur.gen != gen {
				tbl.mu.Unlock()
				return
			}
			delete(tbl.m, key)
			tbl.mu.Unlock()
			for _, f := range cleanup {
				f(key, cur.val)
			}
		}),
	}
}

// Load fetches the value associated to the given key if available.
func (tbl *Table[key_t, value_t]) Load(key key_t) (value value_t, found bool) {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	tv, found := tbl.m[key]
	if !found {
		return value, false
	}
	return tv.val, true
}

// Delete destroys a key in the map and stops its timer (if found).
// Ineffectual if key is not found.
func (tbl *Table[key_t, value_t]) Delete(key key_t) (found bool) {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	tv, found := tbl.m[key]
	if !found {
		return false
	}
	tv.exp.Stop()
	delete(tbl.m, key)
	return true
}

// Refresh restarts the given key's timer (if it exists) with the given duration.
func (tbl *Table[key_t, value_t]) Refresh(key key_t, expire time.Duration) (found bool) {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	tv, found := tbl.m[key]
	if !found {
		return false
	}
	if !tv.exp.Stop() { // timer already fired; its func is waiting on the lock and will prune
		return false
	}
	tv.exp.Reset(expire)
	return true
}

// Len returns the number of unexpired elements.
func (tbl *Table[key_t, value_t]) Len() int {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	return len(tbl.m)
}

