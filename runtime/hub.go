// Package runtime hosts the collaboration hub: connections, rooms, presence
// and routing. It serializes room state without knowing what the payloads mean.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"collab-hub/contract"
	"collab-hub/domain/envelope"
	"collab-hub/errors"
	"collab-hub/moderation"
	"collab-hub/observability"
	"collab-hub/runtime/workers"
)

type Options struct {
	OutboundQueueSize int
	RelayBufferSize   int
	SinkTimeout       time.Duration
	IdleTimeout       time.Duration
	DeadTimeout       time.Duration
	TypingTimeout     time.Duration
	PingInterval      time.Duration
	MaxDecodeErrors   int
	MetricInterval    time.Duration
}

func DefaultOptions() Options {
	return Options{
		OutboundQueueSize: 64,
		RelayBufferSize:   1024,
		SinkTimeout:       2 * time.Second,
		IdleTimeout:       60 * time.Second,
		DeadTimeout:       120 * time.Second,
		TypingTimeout:     3 * time.Second,
		PingInterval:      30 * time.Second,
		MaxDecodeErrors:   3,
		MetricInterval:    5 * time.Second,
	}
}

// Stats is the aggregate view served to monitoring.
type Stats struct {
	Rooms       int            `json:"rooms"`
	Connections int            `json:"connections"`
	Members     map[string]int `json:"members"`
}

// Hub wires the connection manager, registry, presence tracker and router
// around one process-scoped room registry.
type Hub struct {
	mu         sync.Mutex
	log        *slog.Logger
	opts       Options
	supervisor contract.ISupervisor
	monitor    *observability.MonitoringManager
	sinks      []contract.EnvelopeSink
	relay      chan envelope.Envelope

	presence *Presence
	registry *Registry
	manager  *Manager
	router   *Router
}

func NewHub(log *slog.Logger, supervisor contract.ISupervisor, auth contract.Authenticator,
	moderator *moderation.Moderator, monitor *observability.MonitoringManager, opts Options) *Hub {
	relay := make(chan envelope.Envelope, opts.RelayBufferSize)
	presence := NewPresence(log, opts.IdleTimeout, opts.DeadTimeout, opts.TypingTimeout)
	registry := NewRegistry(log, monitor, presence)
	manager := NewManager(log, auth, registry, presence, monitor, opts)
	registry.evict = manager.evict
	presence.onDead = manager.closeStale

	return &Hub{
		log:        log,
		opts:       opts,
		supervisor: supervisor,
		monitor:    monitor,
		relay:      relay,
		presence:   presence,
		registry:   registry,
		manager:    manager,
		router:     NewRouter(log, registry, presence, moderator, monitor, relay),
	}
}

// AddSinks registers consumers of accepted room envelopes. Call before Start.
func (h *Hub) AddSinks(sinks ...contract.EnvelopeSink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, sinks...)
}

// Start registers the background workers and blocks running them until ctx ends.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	relayWorker := workers.NewRelayWorker(h.log, h.relay, h.sinks, h.opts.SinkTimeout, h.monitor)
	statsWorker := workers.NewStatsWorker(h.log, h.monitor, h.opts.MetricInterval).
		Watch(workers.NamedChannel{Name: "relay", Channel: h.relay})
	h.supervisor.Add(relayWorker, statsWorker)
	sinks := len(h.sinks)
	h.mu.Unlock()

	h.log.Info("Starting hub and all supervised workers", "sinks", sinks)
	h.supervisor.Run(ctx)
	return nil
}

// Stop closes every connection, then stops the workers.
func (h *Hub) Stop() {
	h.log.Info("Requesting hub shutdown", "connections", h.manager.Len())
	h.manager.CloseAll(errors.ErrServerShutdown)
	h.supervisor.Stop()
}

func (h *Hub) Accept(ctx context.Context, transport contract.Transport, credential string) (*Connection, error) {
	return h.manager.Accept(ctx, transport, credential)
}

// Serve runs c's pumps until it closes.
func (h *Hub) Serve(ctx context.Context, c *Connection) {
	h.manager.Serve(ctx, c, h.router.HandleFrame)
}

func (h *Hub) Heartbeat(connectionID string) error {
	return h.manager.Heartbeat(connectionID)
}

func (h *Hub) Close(connectionID string, reason error) {
	h.manager.Close(connectionID, reason)
}

func (h *Hub) Registry() *Registry { return h.registry }
func (h *Hub) Presence() *Presence { return h.presence }
func (h *Hub) Router() *Router     { return h.router }
func (h *Hub) Manager() *Manager   { return h.manager }

func (h *Hub) Stats() Stats {
	members := h.registry.Snapshot()
	return Stats{
		Rooms:       len(members),
		Connections: h.manager.Len(),
		Members:     members,
	}
}
