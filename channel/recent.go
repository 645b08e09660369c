package channel

import "github.com/rflandau/arpchat/ktp"

// DefaultRecentCapacity is how many delivered correlation ids are remembered for de-duplication.
const DefaultRecentCapacity = 16

// Recent is a fixed-capacity, insertion-ordered set of correlation ids.
// Once full, inserting evicts the oldest id.
// Not safe for concurrent use.
type Recent struct {
	ring []ktp.ID
	next int // ring index the next insert overwrites
	size int
	set  map[ktp.ID]struct{}
}

// NewRecent returns an empty set holding at most capacity ids.
// A capacity below 1 is treated as 1.
func NewRecent(capacity int) *Recent {
	capacity = max(capacity, 1)
	return &Recent{
		ring: make([]ktp.ID, capacity),
		set:  make(map[ktp.ID]struct{}, capacity),
	}
}

// Contains reports whether id is currently remembered.
func (r *Recent) Contains(id ktp.ID) bool {
	_, found := r.set[id]
	return found
}

// Insert remembers id, evicting the oldest id if the set is full.
// Returns false (and changes nothing) if id was already present.
func (r *Recent) Insert(id ktp.ID) bool {
	if r.Contains(id) {
		return false
	}
	if r.size == len(r.ring) {
		delete(r.set, r.ring[r.next])
	} else {
		r.size++
	}
	r.ring[r.next] = id
	r.set[id] = struct{}{}
	r.next = (r.next + 1) % len(r.ring)
	return true
}

// Len returns the number of remembered ids.
func (r *Recent) Len() int {
	return r.size
}
