package executions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"qaflow/pkg/bus"
	"qaflow/pkg/telemetry"
	"qaflow/pkg/timeline"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultTimeout  = 30 * time.Minute
)

// State is the position of one poller lifecycle.
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingStart State = "awaiting_start"
	StatePolling       State = "polling"
	StateCompleted     State = "completed"
	StateError         State = "error"
	StateTimeout       State = "timeout"
)

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError || s == StateTimeout
}

type signal int

const (
	sigBegin signal = iota
	sigTriggered
	sigNotReady
	sigReady
	sigQueryFailed
	sigDeadline
)

// ErrTransition is returned by step for a signal the state does not accept.
var ErrTransition = errors.New("invalid poller transition")

// step is the lifecycle transition table.
func step(s State, sig signal) (State, error) {
	switch {
	case s == StateIdle && sig == sigBegin:
		return StateAwaitingStart, nil
	case s == StateAwaitingStart && sig == sigTriggered:
		return StatePolling, nil
	case s == StateAwaitingStart && sig == sigDeadline:
		return StateTimeout, nil
	case s == StatePolling && sig == sigNotReady:
		return StatePolling, nil
	case s == StatePolling && sig == sigReady:
		return StateCompleted, nil
	case s == StatePolling && sig == sigQueryFailed:
		return StateError, nil
	case s == StatePolling && sig == sigDeadline:
		return StateTimeout, nil
	}
	return s, fmt.Errorf("%w: %s on signal %d", ErrTransition, s, sig)
}

// Event statuses sent to the consumer.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusTimeout   = "timeout"
)

// Event is one message on a session's result stream.
type Event struct {
	Status string  `json:"status"`
	Data   *Result `json:"data,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Terminal reports whether ev ends the stream.
func (ev Event) Terminal() bool {
	return ev.Status != StatusRunning
}

// Result is the payload of a completed event.
type Result struct {
	Timeline  timeline.Timeline `json:"timeline"`
	Artifacts []string          `json:"artifacts"`
	SignedURL string            `json:"signedUrl,omitempty"`
}

// Emitter delivers an event to the consumer. An error means the consumer is
// gone.
type Emitter func(Event) error

// PollerOptions configures a Poller. Store is required.
type PollerOptions struct {
	Store     Store
	Trigger   Trigger
	Extractor *timeline.Extractor
	Publisher Publisher
	Metrics   *telemetry.Metrics
	Interval  time.Duration
	Timeout   time.Duration
	Logger    zerolog.Logger
}

// Poller runs execution lifecycles. One Poller serves any number of
// concurrent Run calls.
type Poller struct {
	store     Store
	trigger   Trigger
	extractor *timeline.Extractor
	publisher Publisher
	metrics   *telemetry.Metrics
	interval  time.Duration
	timeout   time.Duration
	log       zerolog.Logger
}

// NewPoller applies defaults to opts.
func NewPoller(opts PollerOptions) (*Poller, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Trigger == nil {
		opts.Trigger = NopTrigger{}
	}
	if opts.Extractor == nil {
		opts.Extractor = timeline.New()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Poller{
		store:     opts.Store,
		trigger:   opts.Trigger,
		extractor: opts.Extractor,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		interval:  opts.Interval,
		timeout:   opts.Timeout,
		log:       opts.Logger,
	}, nil
}

type lifecycleEvent struct {
	SessionID string    `json:"session_id"`
	State     State     `json:"state"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// MessageID deduplicates retried publishes of the same transition.
func (ev lifecycleEvent) MessageID() string {
	return fmt.Sprintf("%s/%s/%d", ev.SessionID, ev.State, ev.At.UnixNano())
}

// Run drives one lifecycle for sessionID, sending events to emit until a
// terminal event has been sent. It returns the final state. The error is
// non-nil only when the lifecycle was abandoned: ctx was cancelled or emit
// failed. In that case no further store query or event happens.
func (p *Poller) Run(ctx context.Context, sessionID string, emit Emitter) (State, error) {
	if sessionID == "" {
		return StateIdle, errors.New("session id is required")
	}
	if emit == nil {
		return StateIdle, errors.New("emitter is required")
	}

	log := p.log.With().Str("session_id", sessionID).Logger()
	state := p.must(StateIdle, sigBegin)

	p.metrics.PollerStarted()
	defer p.metrics.PollerStopped()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(p.timeout)
	defer deadline.Stop()

	// The start request outlives the consumer; the trigger's client
	// timeout bounds it.
	go func() {
		if err := p.trigger.Start(context.WithoutCancel(ctx), sessionID); err != nil {
			log.Warn().Err(err).Msg("start execution")
		}
	}()
	state = p.must(state, sigTriggered)
	p.publish(ctx, lifecycleEvent{SessionID: sessionID, State: state})
	log.Debug().Dur("interval", p.interval).Dur("timeout", p.timeout).Msg("polling for results")

	finish := func(sig signal, ev Event) (State, error) {
		state = p.must(state, sig)
		p.metrics.Terminal(ev.Status)
		p.publish(ctx, lifecycleEvent{SessionID: sessionID, State: state, Error: ev.Error})
		if err := emit(ev); err != nil {
			return state, fmt.Errorf("emit %s event: %w", ev.Status, err)
		}
		log.Info().Str("state", string(state)).Msg("execution finished")
		return state, nil
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("consumer gone, polling stopped")
			return state, ctx.Err()

		case <-deadline.C:
			return finish(sigDeadline, Event{
				Status: StatusTimeout,
				Error:  fmt.Sprintf("test execution timed out after %s", p.timeout),
			})

		case <-ticker.C:
			if ctx.Err() != nil {
				return state, ctx.Err()
			}

			p.metrics.PollTick()
			rec, err := p.store.Record(ctx, sessionID)
			if ctx.Err() != nil {
				return state, ctx.Err()
			}
			if err != nil {
				log.Error().Err(err).Msg("query execution record")
				return finish(sigQueryFailed, Event{Status: StatusError, Error: err.Error()})
			}

			if !rec.Ready() {
				state = p.must(state, sigNotReady)
				if err := emit(Event{Status: StatusRunning}); err != nil {
					return state, fmt.Errorf("emit running event: %w", err)
				}
				continue
			}

			return finish(sigReady, Event{
				Status: StatusCompleted,
				Data: &Result{
					Timeline:  p.extractor.Extract(rec.Stdout),
					Artifacts: rec.Artifacts,
					SignedURL: rec.SignedURL,
				},
			})
		}
	}
}

// must applies a transition Run only ever requests from a valid state.
func (p *Poller) must(s State, sig signal) State {
	next, err := step(s, sig)
	if err != nil {
		panic(err)
	}
	return next
}

func (p *Poller) publish(ctx context.Context, ev lifecycleEvent) {
	if p.publisher == nil {
		return
	}
	ev.At = time.Now().UTC()
	subject := bus.SubjectPolling
	if ev.State.Terminal() {
		subject = bus.SubjectFinished
	}
	if err := p.publisher.Publish(ctx, subject, ev); err != nil {
		p.log.Warn().Err(err).Str("session_id", ev.SessionID).Str("subject", subject).Msg("publish lifecycle event")
	}
}
