package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"mirage-backend/internal/middleware"
	"mirage-backend/internal/models"
)

type chatService interface {
	List(ctx context.Context, userID string) ([]models.Chat, error)
	Configure(ctx context.Context, req models.ConfigureChatRequest) error
	SendMessage(ctx context.Context, req models.SendMessageRequest) (string, error)
	Delete(ctx context.Context, userID, modelID string) error
	GetData(ctx context.Context, userID, modelID string) ([]byte, string, error)
}

type ChatHandler struct {
	chats chatService
}

func NewChatHandler(chats chatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

// authorize rejects a request whose userId does not match the
// authenticated subject. Requests with no token pass (auth optional).
func authorize(r *http.Request, userID string) bool {
	sub := middleware.GetUserID(r.Context())
	return sub == "" || sub == userID
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if !authorize(r, userID) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	chats, err := h.chats.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *ChatHandler) Configure(w http.ResponseWriter, r *http.Request) {
	var req models.ConfigureChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if !authorize(r, req.UserID) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	if err := h.chats.Configure(r.Context(), req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat configured successfully"})
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if !authorize(r, req.UserID) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	answer, err := h.chats.SendMessage(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.SendMessageResponse{Response: answer})
}

func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	modelID := r.URL.Query().Get("modelId")
	if !authorize(r, userID) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	if err := h.chats.Delete(r.Context(), userID, modelID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetData streams the indexed content back unchanged, upstream content
// type included.
func (h *ChatHandler) GetData(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	modelID := r.URL.Query().Get("modelId")
	if !authorize(r, userID) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	body, contentType, err := h.chats.GetData(r.Context(), userID, modelID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
