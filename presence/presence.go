// Package presence holds the liveness policy for peers: how often a session announces itself and how stale
// an announcement may grow before the peer is considered inactive or gone.
//
// Everything here is a pure function of timestamps.
package presence

import "time"

const (
	// HeartbeatInterval is how often a Ready session re-announces itself.
	// Sweeps of the online table run on the same cadence.
	HeartbeatInterval = 3 * time.Second
	// InactiveTimeout is the age after which a peer is flagged inactive.
	InactiveTimeout = 6 * time.Second
	// OfflineTimeout is the age after which a peer is removed and remembered as offline.
	OfflineTimeout = 12 * time.Second
)

// UpdateKind describes why a PresenceUpdate was raised.
type UpdateKind uint8

const (
	// Boring is a routine refresh of a peer that was already known (or newly heard without a join flag).
	Boring UpdateKind = iota
	// JoinOrReconnect is a peer that announced itself as joining, or that returned after being marked offline.
	JoinOrReconnect
	// UsernameChange is a known peer announcing under a new name.
	UsernameChange
)

func (k UpdateKind) String() string {
	switch k {
	case Boring:
		return "boring"
	case JoinOrReconnect:
		return "join or reconnect"
	case UsernameChange:
		return "username change"
	}
	return "unknown"
}

// Liveness is the verdict of a sweep on a single peer.
type Liveness uint8

const (
	Active Liveness = iota
	Inactive
	Offline
)

func (l Liveness) String() string {
	switch l {
	case Active:
		return "active"
	case Inactive:
		return "inactive"
	case Offline:
		return "offline"
	}
	return "unknown"
}

// Classify judges a peer last heard from at lastSeen.
// Thresholds are exclusive: a peer exactly InactiveTimeout old is still Active.
//
// Both thresholds are applied to the peer's own age.
func Classify(lastSeen, now time.Time) Liveness {
	age := now.Sub(lastSeen)
	switch {
	case age > OfflineTimeout:
		return Offline
	case age > InactiveTimeout:
		return Inactive
	default:
		return Active
	}
}

// HeartbeatDue reports whether at least HeartbeatInterval has passed since lastSweep.
// A zero lastSweep is always due.
func HeartbeatDue(lastSweep, now time.Time) bool {
	return lastSweep.IsZero() || now.Sub(lastSweep) >= HeartbeatInterval
}

// KindOf classifies an incoming announcement.
//
// known reports whether the peer was already in the online table (and, if so, under previous).
// wasOffline reports whether the peer had been swept as offline.
func KindOf(known bool, previous, username string, isJoin, wasOffline bool) UpdateKind {
	switch {
	case known && previous != username:
		return UsernameChange
	case known:
		return Boring
	case isJoin || wasOffline:
		return JoinOrReconnect
	default:
		return Boring
	}
}
