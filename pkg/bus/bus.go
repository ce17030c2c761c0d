package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects carried on the executions stream.
const (
	StreamExecutions = "QAFLOW_EXECUTIONS"

	SubjectResults  = "qaflow.executions.results"
	SubjectPolling  = "qaflow.executions.polling"
	SubjectFinished = "qaflow.executions.finished"
)

const (
	streamMaxAge      = 7 * 24 * time.Hour
	duplicateWindow   = 2 * time.Minute
	defaultMaxDeliver = 5
	defaultAckWait    = 30 * time.Second
)

// ErrPermanent marks handler failures that redelivery cannot fix. Such
// messages are terminated instead of NAKed.
var ErrPermanent = errors.New("permanent failure")

// ErrDisconnected is returned by Ping while no server connection is up.
var ErrDisconnected = errors.New("nats disconnected")

// Permanent wraps err so the consumer terminates the message.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Identified is implemented by payloads that carry a deduplication id.
type Identified interface {
	MessageID() string
}

// Bus wraps a NATS JetStream connection for publishing and consuming events.
type Bus struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New creates a Bus connected to the provided NATS endpoint.
func New(url string, opts ...nats.Option) (*Bus, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &Bus{conn: nc, js: js}, nil
}

// EnsureStream creates the executions stream when it does not exist yet.
func (b *Bus) EnsureStream() error {
	if b == nil {
		return errors.New("nil bus")
	}

	_, err := b.js.StreamInfo(StreamExecutions)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, nats.ErrStreamNotFound):
		return err
	}

	_, err = b.js.AddStream(&nats.StreamConfig{
		Name:       StreamExecutions,
		Subjects:   []string{"qaflow.executions.>"},
		Storage:    nats.FileStorage,
		MaxAge:     streamMaxAge,
		Duplicates: duplicateWindow,
	})
	return err
}

// Close shuts down the underlying NATS connection.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// Connected reports whether the connection is currently usable.
func (b *Bus) Connected() bool {
	return b != nil && b.conn.IsConnected()
}

// Ping fails while the NATS connection is down or reconnecting.
func (b *Bus) Ping(context.Context) error {
	if !b.Connected() {
		return ErrDisconnected
	}
	return nil
}

// Publish encodes v as JSON and publishes it to the given subject. Payloads
// implementing Identified are deduplicated by the stream.
func (b *Bus) Publish(ctx context.Context, subj string, v any) error {
	if b == nil {
		return errors.New("nil bus")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_, err = b.js.Publish(subj, data, publishOptions(ctx, v)...)
	return err
}

func publishOptions(ctx context.Context, v any) []nats.PubOpt {
	opts := []nats.PubOpt{nats.Context(ctx)}
	if id, ok := v.(Identified); ok && id.MessageID() != "" {
		opts = append(opts, nats.MsgId(id.MessageID()))
	}
	return opts
}

// disposition decides how a handled message is settled.
func disposition(err error) string {
	switch {
	case err == nil:
		return "ack"
	case errors.Is(err, ErrPermanent):
		return "term"
	default:
		return "nak"
	}
}

type subscription struct {
	sub    *nats.Subscription
	mu     sync.Mutex
	closed bool
}

func (s *subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sub.Drain()
}

// Subscribe creates a durable consumer on the given subject and invokes fn for
// each message. Messages are acked when fn returns nil, terminated when the
// error wraps ErrPermanent and NAKed otherwise, up to five deliveries.
func (b *Bus) Subscribe(ctx context.Context, subj, durable string, fn func(ctx context.Context, data []byte) error) (io.Closer, error) {
	if b == nil {
		return nil, errors.New("nil bus")
	}
	if fn == nil {
		return nil, errors.New("nil handler")
	}

	handler := func(msg *nats.Msg) {
		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		switch disposition(fn(handlerCtx, msg.Data)) {
		case "term":
			_ = msg.Term()
		case "nak":
			_ = msg.Nak()
		default:
			_ = msg.Ack()
		}
	}

	sub, err := b.js.Subscribe(subj, handler,
		nats.Durable(durable),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.MaxDeliver(defaultMaxDeliver),
		nats.AckWait(defaultAckWait),
	)
	if err != nil {
		return nil, err
	}

	s := &subscription{sub: sub}

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	return s, nil
}
