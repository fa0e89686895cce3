package runtime

import (
	"log/slog"
	"time"

	"collab-hub/domain"
	"collab-hub/domain/envelope"
	"collab-hub/errors"
)

// presenceEntry is the state of one user in one room. Timer callbacks carry
// the generation they were armed with and do nothing once it moved on.
type presenceEntry struct {
	identity domain.Identity
	status   domain.PresenceStatus
	conns    map[string]*Connection
	typing   bool

	idleTimer   *time.Timer
	deadTimer   *time.Timer
	typingTimer *time.Timer
	idleGen     uint64
	deadGen     uint64
	typingGen   uint64
}

func (e *presenceEntry) stop() {
	for _, t := range []*time.Timer{e.idleTimer, e.deadTimer, e.typingTimer} {
		if t != nil {
			t.Stop()
		}
	}
	e.idleGen++
	e.deadGen++
	e.typingGen++
}

// Presence derives joined/active/inactive/left and typing state per (room, user).
// Only the joined and left boundaries, and typing changes, are broadcast.
type Presence struct {
	log      *slog.Logger
	idle     time.Duration
	dead     time.Duration
	typing   time.Duration
	registry *Registry
	onDead   func(conns []*Connection)
}

func NewPresence(log *slog.Logger, idle, dead, typing time.Duration) *Presence {
	return &Presence{
		log:    log,
		idle:   idle,
		dead:   dead,
		typing: typing,
		onDead: func([]*Connection) {},
	}
}

// Status returns the presence of userID in eventID, PresenceLeft if unknown.
func (p *Presence) Status(eventID, userID string) domain.PresenceStatus {
	room := p.registry.Lookup(eventID)
	if room == nil {
		return domain.PresenceLeft
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if e, ok := room.presence[userID]; ok {
		return e.status
	}
	return domain.PresenceLeft
}

// IsTyping reports the typing flag of userID in eventID.
func (p *Presence) IsTyping(eventID, userID string) bool {
	room := p.registry.Lookup(eventID)
	if room == nil {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	e, ok := room.presence[userID]
	return ok && e.typing
}

// Activity marks the user active in every room c joined.
func (p *Presence) Activity(c *Connection) {
	p.eachRoom(c, func(room *Room, e *presenceEntry) {
		e.status = domain.PresenceActive
		p.armIdle(room, e)
		p.armDead(room, e)
	})
}

// Refresh resets the idle and dead windows of c's user without changing its status.
func (p *Presence) Refresh(c *Connection) {
	p.eachRoom(c, func(room *Room, e *presenceEntry) {
		p.armIdle(room, e)
		p.armDead(room, e)
	})
}

// Mark records a status reported by the client. Only active and inactive
// are accepted; the boundaries belong to Join and Leave.
func (p *Presence) Mark(eventID string, c *Connection, status domain.PresenceStatus) error {
	if status.Boundary() {
		return errors.ErrInvalidState
	}
	room := p.registry.Lookup(eventID)
	if room == nil {
		return errors.ErrInvalidState
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	e, ok := room.presence[c.Identity.UserID]
	if room.destroyed || !ok || !room.isMember(c) {
		return errors.ErrInvalidState
	}
	e.status = status
	return nil
}

// SetTyping flips the typing flag of c's user. A repeated true only re-arms
// the expiry; the flag falls back to false exactly once.
func (p *Presence) SetTyping(eventID string, c *Connection, isTyping bool) error {
	room := p.registry.Lookup(eventID)
	if room == nil {
		return errors.ErrInvalidState
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	e, ok := room.presence[c.Identity.UserID]
	if room.destroyed || !ok || !room.isMember(c) {
		return errors.ErrInvalidState
	}

	switch {
	case isTyping && e.typing:
		p.armTyping(room, e)
		return nil
	case isTyping:
		e.typing = true
		p.armTyping(room, e)
	case !e.typing:
		return nil
	default:
		e.typing = false
		e.typingGen++
		if e.typingTimer != nil {
			e.typingTimer.Stop()
		}
	}
	return p.publishTyping(room, e)
}

func (p *Presence) publishTyping(room *Room, e *presenceEntry) error {
	env := envelope.New(envelope.TypingIndicator{EventID: room.EventID, IsTyping: e.typing}).From(e.identity)
	_, err := room.publish(env, excludeUser(e.identity.UserID))
	return err
}

// joined registers c under its user and reports whether it is the user's
// first connection in the room. Called with room.mu held.
func (p *Presence) joined(room *Room, c *Connection) bool {
	e, ok := room.presence[c.Identity.UserID]
	if ok {
		e.conns[c.ID] = c
		return false
	}
	e = &presenceEntry{
		identity: c.Identity,
		status:   domain.PresenceJoined,
		conns:    map[string]*Connection{c.ID: c},
	}
	room.presence[c.Identity.UserID] = e
	p.armIdle(room, e)
	p.armDead(room, e)
	return true
}

// left drops c and reports whether it was the user's last connection.
// Called with room.mu held.
func (p *Presence) left(room *Room, c *Connection) bool {
	e, ok := room.presence[c.Identity.UserID]
	if !ok {
		return false
	}
	delete(e.conns, c.ID)
	if len(e.conns) > 0 {
		return false
	}
	e.status = domain.PresenceLeft
	e.stop()
	delete(room.presence, c.Identity.UserID)
	return true
}

func (p *Presence) clear(room *Room) {
	for userID, e := range room.presence {
		e.stop()
		delete(room.presence, userID)
	}
}

func (p *Presence) eachRoom(c *Connection, fn func(*Room, *presenceEntry)) {
	for _, eventID := range c.Rooms() {
		room := p.registry.Lookup(eventID)
		if room == nil {
			continue
		}
		room.mu.Lock()
		if e, ok := room.presence[c.Identity.UserID]; ok && !room.destroyed {
			fn(room, e)
		}
		room.mu.Unlock()
	}
}

func (p *Presence) armIdle(room *Room, e *presenceEntry) {
	e.idleGen++
	gen := e.idleGen
	if e.idleTimer != nil {
		e.idleTimer.Stop()
	}
	e.idleTimer = time.AfterFunc(p.idle, func() {
		room.mu.Lock()
		defer room.mu.Unlock()
		if room.destroyed || room.presence[e.identity.UserID] != e || e.idleGen != gen {
			return
		}
		e.status = domain.PresenceInactive
		p.log.Debug("User inactive", "event_id", room.EventID, "user_id", e.identity.UserID)
	})
}

func (p *Presence) armDead(room *Room, e *presenceEntry) {
	e.deadGen++
	gen := e.deadGen
	if e.deadTimer != nil {
		e.deadTimer.Stop()
	}
	e.deadTimer = time.AfterFunc(p.dead, func() {
		room.mu.Lock()
		if room.destroyed || room.presence[e.identity.UserID] != e || e.deadGen != gen {
			room.mu.Unlock()
			return
		}
		conns := make([]*Connection, 0, len(e.conns))
		for _, c := range e.conns {
			conns = append(conns, c)
		}
		room.mu.Unlock()

		p.log.Info("Heartbeat missed, closing connections",
			"event_id", room.EventID, "user_id", e.identity.UserID, "connections", len(conns))
		p.onDead(conns)
	})
}

func (p *Presence) armTyping(room *Room, e *presenceEntry) {
	e.typingGen++
	gen := e.typingGen
	if e.typingTimer != nil {
		e.typingTimer.Stop()
	}
	e.typingTimer = time.AfterFunc(p.typing, func() {
		room.mu.Lock()
		defer room.mu.Unlock()
		if room.destroyed || room.presence[e.identity.UserID] != e || e.typingGen != gen || !e.typing {
			return
		}
		e.typing = false
		if err := p.publishTyping(room, e); err != nil {
			p.log.Error("Unable to publish typing expiry", "event_id", room.EventID, "error", err)
		}
	})
}
