package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"qaflow/services/executions"
)

// handleResults accepts an executor result over HTTP for deployments
// without the message bus. chat_id defaults to the path session.
func (a *API) handleResults(w http.ResponseWriter, r *http.Request) {
	if a.deps.Results == nil {
		respondError(w, http.StatusFailedDependency, errors.New("result writer not configured"))
		return
	}
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))

	var msg executions.ResultMessage
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&msg); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if msg.ChatID == "" {
		msg.ChatID = sessionID
	}
	if err := msg.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if msg.ChatID != sessionID {
		respondError(w, http.StatusBadRequest, errors.New("chat_id does not match session"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	rec, err := a.deps.Results.SaveResult(ctx, msg)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}
