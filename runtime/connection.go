package runtime

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"collab-hub/contract"
	"collab-hub/domain"
	"collab-hub/errors"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Connection is one authenticated client session. Rooms hold it by pointer
// but never keep it alive: Close removes it from every room it joined.
type Connection struct {
	ID       string
	Identity domain.Identity

	transport contract.Transport
	outbound  chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    domain.ConnectionState
	closing  bool
	rooms    map[string]struct{}
	lastSeen time.Time

	closeOnce sync.Once
	done      chan struct{}
	reason    error

	pumping atomic.Bool
	flushed chan struct{}
}

func newConnection(identity domain.Identity, transport contract.Transport, queueSize int, now time.Time) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		ID:        uuid.NewString(),
		Identity:  identity,
		transport: transport,
		outbound:  make(chan []byte, queueSize),
		ctx:       ctx,
		cancel:    cancel,
		state:     domain.Connecting,
		rooms:     make(map[string]struct{}),
		lastSeen:  now,
		done:      make(chan struct{}),
		flushed:   make(chan struct{}),
	}
}

func (c *Connection) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsOpen is false as soon as a close has been requested, even while
// membership cleanup is still running.
func (c *Connection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == domain.Open && !c.closing
}

func (c *Connection) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := lo.Keys(c.rooms)
	slices.Sort(rooms)
	return rooms
}

func (c *Connection) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// Done is closed once the connection reached Closed and left every room.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Reason returns why the connection was closed, nil while it is open.
func (c *Connection) Reason() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func (c *Connection) open() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = domain.Open
}

func (c *Connection) seen(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = at
}

// enqueue never blocks. A full queue marks the connection closing so no
// other room keeps feeding it while the eviction runs.
func (c *Connection) enqueue(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.Open || c.closing {
		return errors.ErrInvalidState
	}
	select {
	case c.outbound <- frame:
		return nil
	default:
		c.closing = true
		return errors.ErrBackpressureExceeded
	}
}

func (c *Connection) addRoom(eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.Open || c.closing {
		return errors.ErrInvalidState
	}
	c.rooms[eventID] = struct{}{}
	return nil
}

func (c *Connection) removeRoom(eventID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, eventID)
}

// beginClose stops any further join or enqueue and returns the rooms to leave.
func (c *Connection) beginClose(reason error) []string {
	c.mu.Lock()
	c.closing = true
	c.reason = reason
	rooms := lo.Keys(c.rooms)
	c.mu.Unlock()

	c.cancel()
	return rooms
}

func (c *Connection) finishClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = domain.Closed
	c.rooms = make(map[string]struct{})
}
