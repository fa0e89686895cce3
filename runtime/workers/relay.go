package workers

import (
	"context"
	"log/slog"
	"time"

	"collab-hub/contract"
	"collab-hub/domain/envelope"
	"collab-hub/observability"
)

// RelayWorker hands accepted room envelopes to the datastore side.
//
// It is best effort: a sink that fails or exceeds the timeout loses that
// envelope and the worker moves on. Envelopes reach every sink in the order
// they were sequenced.
type RelayWorker struct {
	log         *slog.Logger
	in          <-chan envelope.Envelope
	sinks       []contract.EnvelopeSink
	sinkTimeout time.Duration
	monitor     *observability.MonitoringManager
}

func NewRelayWorker(log *slog.Logger, in <-chan envelope.Envelope, sinks []contract.EnvelopeSink,
	sinkTimeout time.Duration, monitor *observability.MonitoringManager) *RelayWorker {
	return &RelayWorker{
		log:         log,
		in:          in,
		sinks:       sinks,
		sinkTimeout: sinkTimeout,
		monitor:     monitor,
	}
}

func (w *RelayWorker) Run(ctx context.Context) error {
	for {
		select {
		case env := <-w.in:
			w.Fanout(ctx, env)
		case <-ctx.Done():
			w.drain()
			w.log.Debug("Context done, relay stopped")
			return nil
		}
	}
}

// drain flushes what is already buffered once the worker is asked to stop.
func (w *RelayWorker) drain() {
	for {
		select {
		case env := <-w.in:
			w.Fanout(context.Background(), env)
		default:
			return
		}
	}
}

// Fanout gives env to every sink, each bounded by the sink timeout.
func (w *RelayWorker) Fanout(ctx context.Context, env envelope.Envelope) {
	for _, sink := range w.sinks {
		w.consume(ctx, sink, env)
	}
}

func (w *RelayWorker) consume(parent context.Context, sink contract.EnvelopeSink, env envelope.Envelope) {
	ctx, cancel := context.WithTimeout(parent, w.sinkTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- sink.Consume(ctx, env) }()

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		w.monitor.IncrRelayFailures()
		w.log.Warn("Sink failed to consume envelope",
			"type", env.Type, "event_id", env.EventID(), "sequence", env.Sequence, "error", err)
	}
}
