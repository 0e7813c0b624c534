package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-marketplace/internal/commission"
	"github.com/ukydev/vehicle-marketplace/internal/db"
	"github.com/ukydev/vehicle-marketplace/internal/messaging"
	"github.com/ukydev/vehicle-marketplace/internal/middleware"
	"github.com/ukydev/vehicle-marketplace/internal/sales"
)

var errBadJSON = errors.New("Invalid JSON")

// Page is a paginated list response.
type Page struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

// decodeJSON reads the request body into v. An empty body is accepted when
// optional is set.
func decodeJSON(r *http.Request, v interface{}, optional bool) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return errors.New("Failed to read request body")
	}
	if len(body) == 0 && optional {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errBadJSON
	}
	return nil
}

// writeError maps service and storage errors to HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, sales.ErrInvalidState),
		errors.Is(err, db.ErrConflict),
		errors.Is(err, db.ErrDuplicate):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, sales.ErrValidation),
		errors.Is(err, messaging.ErrValidation),
		errors.Is(err, commission.ErrInvalidPrice),
		errors.Is(err, commission.ErrInvalidRule):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, sales.ErrForbidden),
		errors.Is(err, messaging.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		log.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("Request failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// currentActor returns the authenticated caller or writes 401.
func currentActor(w http.ResponseWriter, r *http.Request) (sales.Actor, bool) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return sales.Actor{}, false
	}
	return sales.Actor{ID: claims.UserID, Role: claims.Role}, true
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

func queryDecimal(r *http.Request, key string) (*decimal.Decimal, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	return &d, nil
}

// Health reports liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
