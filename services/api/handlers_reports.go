package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"qaflow/pkg/archive"
	"qaflow/services/reports"
)

func (a *API) handleReport(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, errors.New("sessionId is required"))
		return
	}

	out, err := a.deps.Reports.Generate(r.Context(), sessionID)
	if err != nil {
		status := reportStatus(err)
		if status >= http.StatusInternalServerError {
			a.log.Error().Err(err).Str("session_id", sessionID).Msg("generate report")
		}
		respondError(w, status, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Document.Bytes)))
	if out.ObjectKey != "" {
		w.Header().Set("X-Report-Key", out.ObjectKey)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Document.Bytes)
}

func reportStatus(err error) int {
	switch {
	case errors.Is(err, reports.ErrNoResults):
		return http.StatusNotFound
	case errors.Is(err, archive.ErrExpired):
		return http.StatusGone
	case errors.Is(err, archive.ErrFetchFailed), errors.Is(err, archive.ErrExtractionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
