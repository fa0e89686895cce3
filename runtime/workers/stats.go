package workers

import (
	"context"
	"log/slog"
	"os"
	"reflect"
	"time"

	"collab-hub/observability"

	"github.com/shirou/gopsutil/process"
)

type NamedChannel struct {
	Name    string
	Channel any
}

// StatsWorker samples the hub process (CPU, RSS, status) and the fill level
// of internal channels into the monitoring counters. Reading len and cap of a
// channel never blocks its users.
type StatsWorker struct {
	log      *slog.Logger
	monitor  *observability.MonitoringManager
	interval time.Duration
	channels []NamedChannel
}

func NewStatsWorker(log *slog.Logger, monitor *observability.MonitoringManager, interval time.Duration) *StatsWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &StatsWorker{log: log, monitor: monitor, interval: interval}
}

func (w *StatsWorker) Watch(channels ...NamedChannel) *StatsWorker {
	w.channels = append(w.channels, channels...)
	return w
}

func (w *StatsWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	w.sample(p)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sample(p)
		}
	}
}

func (w *StatsWorker) sample(p *process.Process) {
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		w.monitor.UpdateQueue(nc.Name, v.Len(), v.Cap())
	}

	rss, cpu, status, err := selfStats(p)
	if err != nil {
		w.log.Error("Failed to collect self stats", "err", err)
		return
	}
	w.monitor.UpdateProcess(observability.ProcessStats{
		Pid:        p.Pid,
		Status:     status,
		CPUPercent: cpu,
		RSSBytes:   rss,
	})
	latest := w.monitor.GetLatest()
	w.log.Debug("Hub stats", "rooms", latest.Rooms, "connections", latest.Connections,
		"cpu", cpu, "rss", rss, "broadcasts", latest.Broadcasts)
}

// selfStats retrieves technical metrics (Memory, CPU, and OS Status) for the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
