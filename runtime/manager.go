package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"collab-hub/contract"
	"collab-hub/errors"
	"collab-hub/observability"
)

const flushTimeout = time.Second

// FrameHandler processes one inbound frame. Returning ErrMalformedEnvelope
// counts against the connection's decode error budget.
type FrameHandler func(c *Connection, frame []byte) error

// Manager owns every open connection: admission through the Authenticator,
// the read and write pumps, heartbeats and the close path.
type Manager struct {
	log      *slog.Logger
	auth     contract.Authenticator
	registry *Registry
	presence *Presence
	monitor  *observability.MonitoringManager
	opts     Options
	clock    func() time.Time

	mu    sync.RWMutex
	conns map[string]*Connection
}

func NewManager(log *slog.Logger, auth contract.Authenticator, registry *Registry,
	presence *Presence, monitor *observability.MonitoringManager, opts Options) *Manager {
	return &Manager{
		log:      log,
		auth:     auth,
		registry: registry,
		presence: presence,
		monitor:  monitor,
		opts:     opts,
		clock:    time.Now,
		conns:    make(map[string]*Connection),
	}
}

// Accept resolves credential and registers an Open connection over transport.
// The transport is left untouched on failure.
func (m *Manager) Accept(ctx context.Context, transport contract.Transport, credential string) (*Connection, error) {
	if credential == "" {
		m.monitor.IncrAuthFailures()
		return nil, fmt.Errorf("%w: missing credential", errors.ErrAuthRequired)
	}
	identity, err := m.auth.Resolve(ctx, credential)
	if err != nil {
		m.monitor.IncrAuthFailures()
		m.log.Debug("Credential rejected", "remote", transport.RemoteAddr(), "error", err)
		return nil, fmt.Errorf("%w: %v", errors.ErrAuthRequired, err)
	}

	c := newConnection(identity, transport, m.opts.OutboundQueueSize, m.clock())
	m.mu.Lock()
	m.conns[c.ID] = c
	m.mu.Unlock()
	c.open()

	m.monitor.ConnectionOpened()
	m.log.Info("Connection opened", "connection_id", c.ID,
		"user_id", identity.UserID, "remote", transport.RemoteAddr())
	return c, nil
}

func (m *Manager) Get(id string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[id]
	return c, ok
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Heartbeat resets the idle and dead windows of every room the connection is in.
func (m *Manager) Heartbeat(id string) error {
	c, ok := m.Get(id)
	if !ok {
		return errors.ErrConnectionNotFound
	}
	if !c.IsOpen() {
		return errors.ErrInvalidState
	}
	c.seen(m.clock())
	m.presence.Refresh(c)
	return nil
}

// Close is idempotent. It returns once the connection is Closed and no room
// counts it anymore, whichever caller performed the cleanup.
func (m *Manager) Close(id string, reason error) {
	c, ok := m.Get(id)
	if !ok {
		return
	}
	m.close(c, reason)
}

func (m *Manager) close(c *Connection, reason error) {
	c.closeOnce.Do(func() {
		for _, eventID := range c.beginClose(reason) {
			if err := m.registry.Leave(eventID, c); err != nil && !errors.Is(err, errors.ErrRoomNotFound) {
				m.log.Warn("Leave on close failed", "connection_id", c.ID, "event_id", eventID, "error", err)
			}
		}
		c.finishClose()
		m.awaitFlush(c, reason)

		m.mu.Lock()
		delete(m.conns, c.ID)
		m.mu.Unlock()

		if err := c.transport.Close(reason); err != nil {
			m.log.Debug("Transport close", "connection_id", c.ID, "error", err)
		}
		m.monitor.ConnectionClosed()
		m.log.Info("Connection closed", "connection_id", c.ID,
			"user_id", c.Identity.UserID, "reason", reason)
		close(c.done)
	})
	<-c.done
}

// awaitFlush gives the writer a chance to send what was queued before the
// close, such as the error that caused it. Fatal reasons skip it.
func (m *Manager) awaitFlush(c *Connection, reason error) {
	if !c.pumping.Load() || errors.Fatal(reason) {
		return
	}
	select {
	case <-c.flushed:
	case <-time.After(flushTimeout):
		m.log.Debug("Writer did not flush in time", "connection_id", c.ID)
	}
}

// CloseAll closes every connection with reason and waits for the cleanup.
func (m *Manager) CloseAll(reason error) {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.close(c, reason)
		}()
	}
	wg.Wait()
}

// Serve pumps c until it closes. Reads run on the calling goroutine, writes
// and pings on a dedicated one; cancelling ctx closes the connection.
func (m *Manager) Serve(ctx context.Context, c *Connection, handle FrameHandler) {
	stop := context.AfterFunc(ctx, func() { m.close(c, errors.ErrServerShutdown) })
	defer stop()

	c.pumping.Store(true)
	go m.writePump(c)
	m.readPump(c, handle)
}

func (m *Manager) readPump(c *Connection, handle FrameHandler) {
	strikes := 0
	for {
		frame, err := c.transport.Read()
		if err != nil {
			if c.IsOpen() {
				m.log.Debug("Read ended", "connection_id", c.ID, "error", err)
			}
			m.close(c, fmt.Errorf("read: %w", err))
			return
		}
		if !c.IsOpen() {
			continue
		}

		c.seen(m.clock())
		m.presence.Activity(c)

		err = handle(c, frame)
		if !errors.Is(err, errors.ErrMalformedEnvelope) {
			strikes = 0
			continue
		}
		strikes++
		if m.opts.MaxDecodeErrors > 0 && strikes >= m.opts.MaxDecodeErrors {
			m.log.Warn("Too many malformed frames", "connection_id", c.ID, "strikes", strikes)
			m.close(c, err)
			return
		}
	}
}

func (m *Manager) writePump(c *Connection) {
	defer close(c.flushed)

	var ping <-chan time.Time
	if m.opts.PingInterval > 0 {
		ticker := time.NewTicker(m.opts.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-c.ctx.Done():
			m.flush(c)
			return
		case frame := <-c.outbound:
			if err := c.transport.Write(frame); err != nil {
				go m.close(c, fmt.Errorf("write: %w", err))
				return
			}
		case <-ping:
			if err := c.transport.Ping(); err != nil {
				go m.close(c, fmt.Errorf("ping: %w", err))
				return
			}
		}
	}
}

func (m *Manager) flush(c *Connection) {
	for {
		select {
		case frame := <-c.outbound:
			if err := c.transport.Write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

// evict is the room eviction hook. Rooms run it on a fresh goroutine since
// they hold their lock when a queue overflows.
func (m *Manager) evict(c *Connection, reason error) {
	m.close(c, reason)
}

func (m *Manager) closeStale(conns []*Connection) {
	for _, c := range conns {
		m.close(c, errors.ErrHeartbeatTimeout)
	}
}
