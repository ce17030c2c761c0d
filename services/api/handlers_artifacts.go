package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type presignRequest struct {
	Key    string `validate:"required,max=1024"`
	Method string `validate:"oneof=get put"`
}

// handlePresign issues a presigned GET or PUT URL for an artifact key.
func (a *API) handlePresign(w http.ResponseWriter, r *http.Request) {
	if a.deps.Presigner == nil {
		respondError(w, http.StatusFailedDependency, errors.New("s3 client not configured"))
		return
	}

	q := r.URL.Query()
	req := presignRequest{
		Key:    strings.TrimPrefix(strings.TrimSpace(q.Get("key")), "/"),
		Method: strings.ToLower(q.Get("method")),
	}
	if req.Method == "" {
		req.Method = "get"
	}
	if err := a.validator.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, validationError(err))
		return
	}

	ttl := a.config.PresignTTL
	if raw := q.Get("ttl"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 || parsed > maxPresignTTL {
			respondError(w, http.StatusBadRequest, fmt.Errorf("ttl must be a duration between 1s and %s", maxPresignTTL))
			return
		}
		ttl = parsed
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	var (
		url string
		err error
	)
	if req.Method == "put" {
		url, err = a.deps.Presigner.PresignPut(ctx, req.Key, ttl)
	} else {
		url, err = a.deps.Presigner.PresignGet(ctx, req.Key, ttl)
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Errorf("presign: %w", err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"url":        url,
		"expires_at": time.Now().UTC().Add(ttl),
	})
}
