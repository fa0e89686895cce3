package runtime

import (
	"log/slog"
	"sync"
	"time"

	"collab-hub/domain"
	"collab-hub/domain/envelope"
	"collab-hub/errors"
	"collab-hub/observability"
)

// Registry owns the rooms of the process. Rooms are created on first Join
// and dropped as soon as their last member leaves.
//
// Lock order is room.mu then Registry.mu then Connection.mu; the registry
// lock is never held while a room lock is being acquired.
type Registry struct {
	log      *slog.Logger
	monitor  *observability.MonitoringManager
	presence *Presence
	clock    func() time.Time
	evict    func(c *Connection, reason error)

	mu        sync.Mutex
	rooms     map[string]*Room
	lastEpoch uint64
}

func NewRegistry(log *slog.Logger, monitor *observability.MonitoringManager, presence *Presence) *Registry {
	r := &Registry{
		log:      log,
		monitor:  monitor,
		presence: presence,
		clock:    time.Now,
		evict:    func(*Connection, error) {},
		rooms:    make(map[string]*Room),
	}
	presence.registry = r
	return r
}

// Lookup returns the live room for eventID, or nil.
func (r *Registry) Lookup(eventID string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[eventID]
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *Registry) getOrCreate(eventID string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[eventID]; ok {
		return room
	}
	now := r.clock()
	r.lastEpoch = max(uint64(now.UnixNano()), r.lastEpoch+1)
	room := &Room{
		EventID:      eventID,
		CreatedAt:    now,
		Epoch:        r.lastEpoch,
		presence:     make(map[string]*presenceEntry),
		lastActivity: now,
		log:          r.log,
		monitor:      r.monitor,
		clock:        r.clock,
		evict:        r.evict,
	}
	r.rooms[eventID] = room
	r.monitor.RoomCreated()
	r.log.Debug("Room created", "event_id", eventID, "epoch", room.Epoch)
	return room
}

// destroy must be called with room.mu held and no members left.
func (r *Registry) destroy(room *Room) {
	room.destroyed = true
	r.presence.clear(room)

	r.mu.Lock()
	if r.rooms[room.EventID] == room {
		delete(r.rooms, room.EventID)
	}
	r.mu.Unlock()

	r.monitor.RoomDestroyed()
	r.log.Debug("Room destroyed", "event_id", room.EventID, "last_sequence", room.seq)
}

// Join adds c to the room of eventID. Joining twice is a no-op. A new member
// gets connection_established with the roster it joined into; the others
// learn about the user only if this is its first connection in the room.
func (r *Registry) Join(eventID string, c *Connection) (*Room, error) {
	for {
		room := r.getOrCreate(eventID)
		room.mu.Lock()
		if room.destroyed {
			// lost a race with the last Leave; the map entry is gone
			room.mu.Unlock()
			continue
		}
		err := r.join(room, c)
		room.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return room, nil
	}
}

func (r *Registry) join(room *Room, c *Connection) error {
	if room.isMember(c) {
		return nil
	}
	if err := c.addRoom(room.EventID); err != nil {
		if len(room.members) == 0 {
			r.destroy(room)
		}
		return err
	}
	room.members = append(room.members, c)

	if first := r.presence.joined(room, c); first && len(room.members) > 1 {
		joined := envelope.New(envelope.UserPresence{
			EventID:  room.EventID,
			UserID:   c.Identity.UserID,
			Username: c.Identity.Username,
			Status:   domain.PresenceJoined,
		}).From(c.Identity)
		if _, err := room.publish(joined, excludeConn(c)); err != nil {
			r.log.Error("Unable to publish presence", "event_id", room.EventID, "error", err)
		}
	}

	established := envelope.New(envelope.ConnectionEstablished{
		EventID:        room.EventID,
		ConnectionID:   c.ID,
		Roster:         room.roster(),
		LatestSequence: room.seq,
	})
	if err := room.unicast(c, established); err != nil {
		r.log.Error("Unable to send roster", "event_id", room.EventID, "error", err)
	}

	r.log.Debug("Joined room", "event_id", room.EventID,
		"connection_id", c.ID, "user_id", c.Identity.UserID, "members", len(room.members))
	return nil
}

// Leave removes c from the room of eventID. ErrRoomNotFound is returned when
// no such room is live; leaving a room c is not part of is a no-op.
func (r *Registry) Leave(eventID string, c *Connection) error {
	room := r.Lookup(eventID)
	if room == nil {
		c.removeRoom(eventID)
		return errors.ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.destroyed {
		c.removeRoom(eventID)
		return errors.ErrRoomNotFound
	}
	c.removeRoom(eventID)
	if !room.removeMember(c) {
		return nil
	}

	last := r.presence.left(room, c)
	if last && len(room.members) > 0 {
		left := envelope.New(envelope.UserPresence{
			EventID:  room.EventID,
			UserID:   c.Identity.UserID,
			Username: c.Identity.Username,
			Status:   domain.PresenceLeft,
		}).From(c.Identity)
		if _, err := room.publish(left, nil); err != nil {
			r.log.Error("Unable to publish presence", "event_id", room.EventID, "error", err)
		}
	}

	r.log.Debug("Left room", "event_id", room.EventID,
		"connection_id", c.ID, "user_id", c.Identity.UserID, "members", len(room.members))

	if len(room.members) == 0 {
		r.destroy(room)
	}
	return nil
}

// Broadcast publishes env from sender to the members selected by policy.
// The sender must be a member of the room.
func (r *Registry) Broadcast(eventID string, sender *Connection, env envelope.Envelope, policy envelope.Policy) (envelope.Envelope, error) {
	room := r.Lookup(eventID)
	if room == nil {
		return env, errors.ErrInvalidState
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.destroyed || !room.isMember(sender) {
		return env, errors.ErrInvalidState
	}

	switch policy {
	case envelope.PolicyOrigin:
		return env, room.unicast(sender, env)
	case envelope.PolicyOthers:
		return room.publish(env, excludeConn(sender))
	default:
		return room.publish(env, nil)
	}
}

// Snapshot lists the live rooms with their member counts.
func (r *Registry) Snapshot() map[string]int {
	r.mu.Lock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.Unlock()

	out := make(map[string]int, len(rooms))
	for _, room := range rooms {
		out[room.EventID] = room.Members()
	}
	return out
}
