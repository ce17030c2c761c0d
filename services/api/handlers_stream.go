package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"qaflow/services/executions"
)

// handleStream opens an event stream and polls the session's results until
// a terminal event is sent or the client goes away.
func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, errors.New("session id is required"))
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	log := a.log.With().Str("session_id", sessionID).Logger()
	state, err := a.deps.Poller.Run(r.Context(), sessionID, func(ev executions.Event) error {
		return sse.write(ev)
	})
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Debug().Str("state", string(state)).Msg("stream closed by client")
	case err != nil:
		log.Warn().Err(err).Str("state", string(state)).Msg("stream ended")
	default:
		log.Info().Str("state", string(state)).Msg("stream finished")
	}
}
