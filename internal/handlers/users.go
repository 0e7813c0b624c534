package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-marketplace/internal/db"
	"github.com/ukydev/vehicle-marketplace/internal/models"
)

// UserHandler serves account administration.
type UserHandler struct {
	users db.UserCollection
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users db.UserCollection) *UserHandler {
	return &UserHandler{users: users}
}

// List returns accounts, optionally of one role.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	role := models.Role(r.URL.Query().Get("role"))
	if role != "" && !models.IsValidRole(role) {
		http.Error(w, "Invalid role", http.StatusBadRequest)
		return
	}

	users, err := h.users.FindUsers(r.Context(), role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// SetActive activates or deactivates an account.
func (h *UserHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var req struct {
		IsActive *bool `json:"is_active"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.IsActive == nil {
		http.Error(w, "is_active is required", http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "id")
	if id == actor.ID && !*req.IsActive {
		http.Error(w, "Cannot deactivate your own account", http.StatusBadRequest)
		return
	}

	if err := h.users.SetUserActive(r.Context(), id, *req.IsActive); err != nil {
		writeError(w, r, err)
		return
	}

	log.WithFields(log.Fields{
		"user_id":   id,
		"is_active": *req.IsActive,
		"by":        actor.ID,
	}).Info("User activation changed")
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "is_active": *req.IsActive})
}
