package observability

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// ProcessStats is the last self sample taken by the stats worker.
type ProcessStats struct {
	Pid        int32   `json:"pid"`
	Status     string  `json:"status"`
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
	SampledAt  string  `json:"sampled_at,omitempty"`
}

// QueueStats is the fill level of one internal channel.
type QueueStats struct {
	Length   int `json:"length"`
	Capacity int `json:"capacity"`
}

// MonitoringStats aggregates hub counters for the /stats endpoint.
type MonitoringStats struct {
	Rooms             int64  `json:"rooms"`
	Connections       int64  `json:"connections"`
	RoomsCreated      uint64 `json:"rooms_created"`
	RoomsDestroyed    uint64 `json:"rooms_destroyed"`
	ConnectionsOpened uint64 `json:"connections_opened"`
	ConnectionsClosed uint64 `json:"connections_closed"`
	AuthFailures      uint64 `json:"auth_failures"`
	Broadcasts        uint64 `json:"broadcasts"`
	FramesQueued      uint64 `json:"frames_queued"`
	Rejected          uint64 `json:"rejected"`
	BackpressureDrops uint64 `json:"backpressure_drops"`
	RelayDropped      uint64 `json:"relay_dropped"`
	RelayFailures     uint64 `json:"relay_failures"`
	Censored          uint64 `json:"censored"`

	AllocMemMb uint64                `json:"alloc_mem_mb"`
	NumGC      uint32                `json:"num_gc"`
	Goroutines int                   `json:"goroutines"`
	Process    ProcessStats          `json:"process"`
	Queues     map[string]QueueStats `json:"queues,omitempty"`
}

// MonitoringManager holds the hub counters. All methods are safe for concurrent use.
type MonitoringManager struct {
	log *slog.Logger

	rooms       atomic.Int64
	connections atomic.Int64

	roomsCreated      atomic.Uint64
	roomsDestroyed    atomic.Uint64
	connectionsOpened atomic.Uint64
	connectionsClosed atomic.Uint64
	authFailures      atomic.Uint64
	broadcasts        atomic.Uint64
	framesQueued      atomic.Uint64
	rejected          atomic.Uint64
	backpressureDrops atomic.Uint64
	relayDropped      atomic.Uint64
	relayFailures     atomic.Uint64
	censored          atomic.Uint64

	mu      sync.RWMutex
	process ProcessStats
	queues  map[string]QueueStats
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{log: log}
}

func (mm *MonitoringManager) RoomCreated() {
	mm.rooms.Add(1)
	mm.roomsCreated.Add(1)
}

func (mm *MonitoringManager) RoomDestroyed() {
	mm.rooms.Add(-1)
	mm.roomsDestroyed.Add(1)
}

func (mm *MonitoringManager) ConnectionOpened() {
	mm.connections.Add(1)
	mm.connectionsOpened.Add(1)
}

func (mm *MonitoringManager) ConnectionClosed() {
	mm.connections.Add(-1)
	mm.connectionsClosed.Add(1)
}

func (mm *MonitoringManager) IncrAuthFailures()      { mm.authFailures.Add(1) }
func (mm *MonitoringManager) IncrRejected()          { mm.rejected.Add(1) }
func (mm *MonitoringManager) IncrBackpressureDrops() { mm.backpressureDrops.Add(1) }
func (mm *MonitoringManager) IncrRelayDropped()      { mm.relayDropped.Add(1) }
func (mm *MonitoringManager) IncrRelayFailures()     { mm.relayFailures.Add(1) }
func (mm *MonitoringManager) IncrCensored()          { mm.censored.Add(1) }

// Broadcast records one sequenced envelope delivered to n members.
func (mm *MonitoringManager) Broadcast(n int) {
	mm.broadcasts.Add(1)
	mm.framesQueued.Add(uint64(n))
}

func (mm *MonitoringManager) UpdateProcess(p ProcessStats) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	p.SampledAt = time.Now().UTC().Format(time.RFC3339)
	mm.process = p
}

func (mm *MonitoringManager) UpdateQueue(name string, length, capacity int) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.queues == nil {
		mm.queues = make(map[string]QueueStats)
	}
	mm.queues[name] = QueueStats{Length: length, Capacity: capacity}
}

func (mm *MonitoringManager) GetLatest() MonitoringStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.mu.RLock()
	process := mm.process
	queues := make(map[string]QueueStats, len(mm.queues))
	for name, q := range mm.queues {
		queues[name] = q
	}
	mm.mu.RUnlock()

	return MonitoringStats{
		Rooms:             mm.rooms.Load(),
		Connections:       mm.connections.Load(),
		RoomsCreated:      mm.roomsCreated.Load(),
		RoomsDestroyed:    mm.roomsDestroyed.Load(),
		ConnectionsOpened: mm.connectionsOpened.Load(),
		ConnectionsClosed: mm.connectionsClosed.Load(),
		AuthFailures:      mm.authFailures.Load(),
		Broadcasts:        mm.broadcasts.Load(),
		FramesQueued:      mm.framesQueued.Load(),
		Rejected:          mm.rejected.Load(),
		BackpressureDrops: mm.backpressureDrops.Load(),
		RelayDropped:      mm.relayDropped.Load(),
		RelayFailures:     mm.relayFailures.Load(),
		Censored:          mm.censored.Load(),
		AllocMemMb:        m.Alloc / 1024 / 1024,
		NumGC:             m.NumGC,
		Goroutines:        runtime.NumGoroutine(),
		Process:           process,
		Queues:            queues,
	}
}
