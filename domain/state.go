package domain

type ConnectionState int

const (
	Connecting ConnectionState = iota
	Open
	Closed
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// PresenceStatus is the observed status of a user within a room.
// Only the joined and left boundaries are ever broadcast.
type PresenceStatus string

const (
	PresenceJoined   PresenceStatus = "joined"
	PresenceActive   PresenceStatus = "active"
	PresenceInactive PresenceStatus = "inactive"
	PresenceLeft     PresenceStatus = "left"
)

// Boundary reports whether the status marks entering or leaving a room.
func (p PresenceStatus) Boundary() bool {
	return p == PresenceJoined || p == PresenceLeft
}
