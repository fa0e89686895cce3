package sink

import (
	"context"
	"fmt"
	"log/slog"

	"collab-hub/domain/envelope"
	"collab-hub/repositories"
)

// DiskSink persists sequenced room content to the envelope repository.
type DiskSink struct {
	repository repositories.IEnvelopeRepository
	log        *slog.Logger
}

func NewDiskSink(repository repositories.IEnvelopeRepository, log *slog.Logger) DiskSink {
	return DiskSink{repository: repository, log: log}
}

func (d DiskSink) Consume(ctx context.Context, env envelope.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if env.Type.Policy() != envelope.PolicyAll || env.EventID() == "" {
		d.log.Debug(fmt.Sprintf("Not persisted envelope : %s", env.Type))
		return nil
	}
	if err := d.repository.Store(env); err != nil {
		return fmt.Errorf("store %s #%d of %s: %w", env.Type, env.Sequence, env.EventID(), err)
	}
	return nil
}
