package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ukydev/vehicle-marketplace/internal/models"
)

// MessagingService manages buyer/seller conversations.
type MessagingService interface {
	Start(ctx context.Context, userID, vehicleID, body string) (*models.Conversation, error)
	Send(ctx context.Context, senderID, conversationID, body string) (*models.Message, error)
	List(ctx context.Context, userID string) ([]models.Conversation, error)
	History(ctx context.Context, userID, conversationID string, limit int) ([]models.Message, error)
	Unread(ctx context.Context, userID string) (int, error)
}

// ConversationHandler serves conversations and messages.
type ConversationHandler struct {
	messaging MessagingService
}

// NewConversationHandler creates a ConversationHandler.
func NewConversationHandler(messaging MessagingService) *ConversationHandler {
	return &ConversationHandler{messaging: messaging}
}

// List returns the caller's conversations.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	conversations, err := h.messaging.List(r.Context(), actor.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conversations)
}

// Start opens a conversation about a listing, with an optional first message.
func (h *ConversationHandler) Start(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var req struct {
		VehicleID string `json:"vehicle_id"`
		Message   string `json:"message"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conversation, err := h.messaging.Start(r.Context(), actor.ID, req.VehicleID, req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conversation)
}

// Unread returns the caller's unread message count.
func (h *ConversationHandler) Unread(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	n, err := h.messaging.Unread(r.Context(), actor.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}

// Messages returns the latest messages and marks them read.
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	messages, err := h.messaging.History(r.Context(), actor.ID, chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// Send posts a message to a conversation.
func (h *ConversationHandler) Send(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	message, err := h.messaging.Send(r.Context(), actor.ID, chi.URLParam(r, "id"), req.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, message)
}
