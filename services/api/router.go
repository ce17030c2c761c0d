package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// Routes constructs the chi router containing all API endpoints. The event
// stream sits outside the request timeout; everything else is bounded.
func (a *API) Routes() (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil api")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if a.config.Middleware != nil {
		r.Use(a.config.Middleware)
	}

	allowed := a.config.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Last-Event-ID"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))

	r.Get("/healthz", a.handleHealth)
	r.Get("/readyz", a.handleReady)
	if a.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.deps.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		if a.config.RateLimit > 0 {
			r.Use(httprate.LimitByIP(a.config.RateLimit, time.Minute))
		}

		r.Get("/executions/{sessionID}/events", a.handleStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(5 * time.Minute))

			r.Get("/reports", a.handleReport)
			r.Post("/executions/{sessionID}/results", a.handleResults)

			r.Post("/test-scripts", a.handleCreateScript)
			r.Get("/test-scripts", a.handleGetScript)
			r.Get("/test-scripts/{chatID}", a.handleGetScriptByPath)

			r.Get("/artifacts/presign", a.handlePresign)
		})
	})

	return r, nil
}
