package workers

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"collab-hub/contract"
	"collab-hub/domain/envelope"
	"collab-hub/mocks"
	"collab-hub/observability"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func chat(seq uint64) envelope.Envelope {
	env := envelope.New(envelope.ChatMessage{EventID: "evt1", Content: "hi"})
	env.Sequence = seq
	return env
}

func TestRelayWorker_FanoutInOrder(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	monitor := observability.NewMonitoringManager(log)

	sink1 := mocks.NewMockEnvelopeSink(ctrl)
	sink2 := mocks.NewMockEnvelopeSink(ctrl)
	in := make(chan envelope.Envelope, 4)

	var seen []uint64
	done := make(chan struct{})
	// Given both sinks consume every envelope
	sink1.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, env envelope.Envelope) error {
			seen = append(seen, env.Sequence)
			return nil
		}).Times(2)
	sink2.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, env envelope.Envelope) error {
			if env.Sequence == 2 {
				close(done)
			}
			return nil
		}).Times(2)

	worker := NewRelayWorker(log, in, []contract.EnvelopeSink{sink1, sink2}, time.Second, monitor)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	// When two envelopes are relayed
	in <- chat(1)
	in <- chat(2)

	// Then every sink saw them in sequence order
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Relay did not reach the second sink in time")
	}
	req.Equal([]uint64{1, 2}, seen)
	req.Zero(monitor.GetLatest().RelayFailures)
}

func TestRelayWorker_SinkTimeout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	monitor := observability.NewMonitoringManager(log)

	slow := mocks.NewMockEnvelopeSink(ctrl)
	fast := mocks.NewMockEnvelopeSink(ctrl)

	// Given a sink waiting for its deadline
	slow.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ envelope.Envelope) error {
			<-ctx.Done()
			return ctx.Err()
		}).Times(1)
	// And a healthy one after it
	fast.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	worker := NewRelayWorker(log, nil, []contract.EnvelopeSink{slow, fast}, 20*time.Millisecond, monitor)

	// When fanning out
	start := time.Now()
	worker.Fanout(context.Background(), chat(1))

	// Then the slow sink is abandoned at the timeout and counted as a failure
	req.Less(time.Since(start), 500*time.Millisecond)
	req.Equal(uint64(1), monitor.GetLatest().RelayFailures)
}

func TestRelayWorker_SinkErrorDoesNotStopOthers(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	monitor := observability.NewMonitoringManager(log)

	failing := mocks.NewMockEnvelopeSink(ctrl)
	healthy := mocks.NewMockEnvelopeSink(ctrl)
	failing.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(errors.New("disk full")).Times(1)
	healthy.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	worker := NewRelayWorker(log, nil, []contract.EnvelopeSink{failing, healthy}, time.Second, monitor)
	worker.Fanout(context.Background(), chat(1))

	req.Equal(uint64(1), monitor.GetLatest().RelayFailures)
}

func TestRelayWorker_DrainsOnStop(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	monitor := observability.NewMonitoringManager(log)

	sink := mocks.NewMockEnvelopeSink(ctrl)
	// Given envelopes buffered before the worker ever ran
	in := make(chan envelope.Envelope, 3)
	in <- chat(1)
	in <- chat(2)
	in <- chat(3)
	sink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil).Times(3)

	// When the worker starts on an already cancelled context
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	worker := NewRelayWorker(log, in, []contract.EnvelopeSink{sink}, time.Second, monitor)
	err := worker.Run(ctx)

	// Then the buffer is flushed before returning
	req.NoError(err)
	req.Empty(in)
}
