package workers

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"collab-hub/observability"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestStatsWorker_SamplesProcessAndQueues(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	monitor := observability.NewMonitoringManager(log)

	// Given a half filled channel
	relay := make(chan int, 4)
	relay <- 1
	relay <- 2

	worker := NewStatsWorker(log, monitor, 10*time.Millisecond).
		Watch(NamedChannel{Name: "relay", Channel: relay}, NamedChannel{Name: "bogus", Channel: 42})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// When the worker runs a few ticks
	req.NoError(worker.Run(ctx))

	// Then the process and the channel were sampled
	latest := monitor.GetLatest()
	req.Equal(int32(os.Getpid()), latest.Process.Pid)
	req.NotEmpty(latest.Process.SampledAt)
	req.Equal(observability.QueueStats{Length: 2, Capacity: 4}, latest.Queues["relay"])
	req.NotContains(latest.Queues, "bogus")
}
