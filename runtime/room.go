package runtime

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"collab-hub/domain"
	"collab-hub/domain/envelope"
	"collab-hub/errors"
	"collab-hub/observability"

	"github.com/samber/lo"
)

// Room is the membership of one event session. Its mutex is the single
// writer for membership, presence and the sequence counter: every broadcast
// is encoded and enqueued to all members before the next one is numbered.
type Room struct {
	EventID   string
	CreatedAt time.Time
	// Epoch is unique per incarnation of EventID and grows with each one.
	Epoch uint64

	mu           sync.Mutex
	members      []*Connection
	presence     map[string]*presenceEntry
	seq          uint64
	lastActivity time.Time
	destroyed    bool

	log     *slog.Logger
	monitor *observability.MonitoringManager
	clock   func() time.Time
	evict   func(c *Connection, reason error)
}

func (r *Room) Members() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func (r *Room) Sequence() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

func (r *Room) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

// Roster lists the identities present, one per user, in join order.
func (r *Room) Roster() []domain.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roster()
}

func (r *Room) roster() []domain.Identity {
	unique := lo.UniqBy(r.members, func(c *Connection) string { return c.Identity.UserID })
	return lo.Map(unique, func(c *Connection, _ int) domain.Identity { return c.Identity })
}

func (r *Room) isMember(c *Connection) bool {
	return slices.Contains(r.members, c)
}

func (r *Room) removeMember(c *Connection) bool {
	idx := slices.Index(r.members, c)
	if idx < 0 {
		return false
	}
	r.members = slices.Delete(r.members, idx, idx+1)
	return true
}

// publish numbers, stamps and encodes env once, then enqueues the frame to
// every open member accepted by include. Must be called with r.mu held.
func (r *Room) publish(env envelope.Envelope, include func(*Connection) bool) (envelope.Envelope, error) {
	now := r.clock()
	r.seq++
	env.Sequence = r.seq
	env.Epoch = r.Epoch
	env = env.Stamp(now)

	frame, err := envelope.Encode(env)
	if err != nil {
		r.seq--
		return env, err
	}
	r.lastActivity = now

	delivered := 0
	for _, member := range r.members {
		if include != nil && !include(member) {
			continue
		}
		if r.deliver(member, frame) {
			delivered++
		}
	}
	r.monitor.Broadcast(delivered)
	return env, nil
}

// unicast sends an unsequenced envelope to a single member.
func (r *Room) unicast(c *Connection, env envelope.Envelope) error {
	frame, err := envelope.Encode(env.Stamp(r.clock()))
	if err != nil {
		return err
	}
	r.deliver(c, frame)
	return nil
}

func (r *Room) deliver(c *Connection, frame []byte) bool {
	err := c.enqueue(frame)
	switch {
	case err == nil:
		return true
	case errors.Is(err, errors.ErrBackpressureExceeded):
		r.monitor.IncrBackpressureDrops()
		r.log.Warn("Outbound queue full, evicting connection",
			"event_id", r.EventID, "connection_id", c.ID, "user_id", c.Identity.UserID)
		go r.evict(c, err)
	}
	return false
}

func excludeConn(c *Connection) func(*Connection) bool {
	return func(member *Connection) bool { return member != c }
}

func excludeUser(userID string) func(*Connection) bool {
	return func(member *Connection) bool { return member.Identity.UserID != userID }
}
