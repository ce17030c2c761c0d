package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type createScriptRequest struct {
	ChatID  string `json:"chatId" validate:"required,max=200"`
	Content string `json:"content" validate:"required"`
}

func (a *API) handleCreateScript(w http.ResponseWriter, r *http.Request) {
	var req createScriptRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	req.ChatID = strings.TrimSpace(req.ChatID)
	if err := a.validator.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, validationError(err))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	encoded := base64.StdEncoding.EncodeToString([]byte(req.Content))
	model, err := a.deps.Scripts.Create(ctx, req.ChatID, encoded)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"id": model.ID})
}

func (a *API) handleGetScript(w http.ResponseWriter, r *http.Request) {
	chatID := strings.TrimSpace(r.URL.Query().Get("chatId"))
	if chatID == "" {
		respondError(w, http.StatusBadRequest, errors.New("chatId is required"))
		return
	}
	a.serveScript(w, r, chatID, false)
}

func (a *API) handleGetScriptByPath(w http.ResponseWriter, r *http.Request) {
	chatID := strings.TrimSpace(chi.URLParam(r, "chatID"))
	a.serveScript(w, r, chatID, r.URL.Query().Get("download") == "true")
}

func (a *API) serveScript(w http.ResponseWriter, r *http.Request, chatID string, download bool) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	model, err := a.deps.Scripts.Latest(ctx, chatID)
	if errors.Is(err, ErrScriptNotFound) {
		respondError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	if !download {
		respondJSON(w, http.StatusOK, scriptToAPI(model))
		return
	}

	text, err := decodeScript(model.Content)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Errorf("decode script: %w", err))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "test-script-"+chatID+".txt"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

// scriptEscapes expands the literal escape sequences generated scripts carry.
var scriptEscapes = strings.NewReplacer(`\n`, "\n", `\t`, "    ")

func decodeScript(content string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return "", err
	}
	return scriptEscapes.Replace(string(raw)), nil
}
