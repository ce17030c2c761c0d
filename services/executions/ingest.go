package executions

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"qaflow/pkg/bus"
)

const resultsDurable = "qaflow-results"

// Subscriber registers durable message handlers. *bus.Bus satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, subj, durable string, fn func(ctx context.Context, data []byte) error) (io.Closer, error)
}

// Ingestor stores executor result messages as they arrive on the bus.
type Ingestor struct {
	sub    Subscriber
	writer ResultWriter
	log    zerolog.Logger

	subMu  sync.Mutex
	closer io.Closer
}

// NewIngestor constructs an Ingestor for the provided dependencies.
func NewIngestor(sub Subscriber, writer ResultWriter, logger zerolog.Logger) (*Ingestor, error) {
	if sub == nil {
		return nil, errors.New("subscriber is required")
	}
	if writer == nil {
		return nil, errors.New("result writer is required")
	}
	return &Ingestor{sub: sub, writer: writer, log: logger}, nil
}

// Start subscribes to executor results and processes them until ctx is
// cancelled.
func (i *Ingestor) Start(ctx context.Context) error {
	closer, err := i.sub.Subscribe(ctx, bus.SubjectResults, resultsDurable, i.handle)
	if err != nil {
		return err
	}

	i.subMu.Lock()
	i.closer = closer
	i.subMu.Unlock()

	return nil
}

// Close stops the underlying subscription if it was created.
func (i *Ingestor) Close() error {
	if i == nil {
		return nil
	}

	i.subMu.Lock()
	defer i.subMu.Unlock()

	if i.closer == nil {
		return nil
	}
	err := i.closer.Close()
	i.closer = nil
	return err
}

// handle terminates malformed payloads and returns failed writes for
// redelivery.
func (i *Ingestor) handle(ctx context.Context, data []byte) error {
	msg, err := DecodeResult(data)
	if err != nil {
		i.log.Warn().Err(err).Msg("discarding malformed result message")
		return bus.Permanent(err)
	}

	rec, err := i.writer.SaveResult(ctx, msg)
	if err != nil {
		i.log.Error().Err(err).Str("session_id", msg.ChatID).Msg("store result")
		return err
	}

	i.log.Info().
		Str("session_id", msg.ChatID).
		Str("status", rec.ResultStatus).
		Int("artifacts", len(rec.Artifacts)).
		Msg("execution result stored")
	return nil
}
