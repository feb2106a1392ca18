package handlers

import (
	"context"
	"net/http"

	"mirage-backend/internal/models"
)

type historyStore interface {
	List(ctx context.Context, userID, modelID string) ([]models.Message, error)
	Clear(ctx context.Context, userID, modelID string) error
	SetCurrent(ctx context.Context, userID, modelID string) error
	GetCurrent(ctx context.Context, userID string) (string, error)
	ClearCurrent(ctx context.Context, userID string) error
}

// HistoryHandler exposes the stored transcripts and the current-chat
// selection the frontend previously kept in local storage.
type HistoryHandler struct {
	history historyStore
}

func NewHistoryHandler(history historyStore) *HistoryHandler {
	return &HistoryHandler{history: history}
}

func requireParams(w http.ResponseWriter, r *http.Request, names ...string) (map[string]string, bool) {
	vals := make(map[string]string, len(names))
	fields := map[string]string{}
	for _, name := range names {
		v := r.URL.Query().Get(name)
		if v == "" {
			fields[name] = "required"
		}
		vals[name] = v
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Missing required fields", fields, r))
		return nil, false
	}
	return vals, true
}

func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	params, ok := requireParams(w, r, "userId", "modelId")
	if !ok {
		return
	}
	if !authorize(r, params["userId"]) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	msgs, err := h.history.List(r.Context(), params["userId"], params["modelId"])
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *HistoryHandler) Clear(w http.ResponseWriter, r *http.Request) {
	params, ok := requireParams(w, r, "userId", "modelId")
	if !ok {
		return
	}
	if !authorize(r, params["userId"]) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	if err := h.history.Clear(r.Context(), params["userId"], params["modelId"]); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *HistoryHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	params, ok := requireParams(w, r, "userId")
	if !ok {
		return
	}
	if !authorize(r, params["userId"]) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	current, err := h.history.GetCurrent(r.Context(), params["userId"])
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"current_chat": current})
}

func (h *HistoryHandler) SetCurrent(w http.ResponseWriter, r *http.Request) {
	params, ok := requireParams(w, r, "userId", "modelId")
	if !ok {
		return
	}
	if !authorize(r, params["userId"]) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	if err := h.history.SetCurrent(r.Context(), params["userId"], params["modelId"]); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *HistoryHandler) ClearCurrent(w http.ResponseWriter, r *http.Request) {
	params, ok := requireParams(w, r, "userId")
	if !ok {
		return
	}
	if !authorize(r, params["userId"]) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	if err := h.history.ClearCurrent(r.Context(), params["userId"]); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
