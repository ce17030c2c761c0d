package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"qaflow/services/executions"
	"qaflow/services/reports"
)

const (
	defaultPresignTTL = 15 * time.Minute
	maxPresignTTL     = 7 * 24 * time.Hour
)

// StreamRunner drives one execution lifecycle per stream.
type StreamRunner interface {
	Run(ctx context.Context, sessionID string, emit executions.Emitter) (executions.State, error)
}

// ReportGenerator builds session reports.
type ReportGenerator interface {
	Generate(ctx context.Context, sessionID string) (*reports.Report, error)
}

// Presigner issues presigned object URLs.
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Pinger reports dependency health for /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds the collaborators the handlers use. Poller, Reports and
// Scripts are required; the rest switch routes on when present.
type Deps struct {
	Poller    StreamRunner
	Reports   ReportGenerator
	Scripts   ScriptRepository
	Results   executions.ResultWriter
	Presigner Presigner
	Ready     []Pinger
	Metrics   http.Handler
}

// Config controls runtime behaviour for the API handlers.
type Config struct {
	AllowedOrigins []string
	RateLimit      int
	PresignTTL     time.Duration
	Middleware     func(http.Handler) http.Handler
}

// API wires dependencies and configuration for HTTP handlers.
type API struct {
	deps      Deps
	config    Config
	validator *validator.Validate
	log       zerolog.Logger
}

// New initialises the API layer with defaults applied to cfg.
func New(deps Deps, cfg Config, logger zerolog.Logger) (*API, error) {
	if deps.Poller == nil {
		return nil, errors.New("poller is required")
	}
	if deps.Reports == nil {
		return nil, errors.New("report generator is required")
	}
	if deps.Scripts == nil {
		return nil, errors.New("script repository is required")
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = defaultPresignTTL
	}
	return &API{
		deps:      deps,
		config:    cfg,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		log:       logger,
	}, nil
}
