package api

import (
	"net/http"
)

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	for _, p := range a.deps.Ready {
		if err := p.Ping(ctx); err != nil {
			a.log.Warn().Err(err).Msg("readiness check failed")
			respondError(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
