package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-marketplace/internal/commission"
	"github.com/ukydev/vehicle-marketplace/internal/db"
	"github.com/ukydev/vehicle-marketplace/internal/models"
	"github.com/ukydev/vehicle-marketplace/internal/sales"
)

// CommissionHandler serves commission rules, recorded commissions and quotes.
type CommissionHandler struct {
	rules       db.CommissionRuleCollection
	commissions db.CommissionCollection
	quoter      sales.Quoter
	now         func() time.Time
}

// NewCommissionHandler creates a CommissionHandler.
func NewCommissionHandler(rules db.CommissionRuleCollection, commissions db.CommissionCollection, quoter sales.Quoter) *CommissionHandler {
	return &CommissionHandler{
		rules:       rules,
		commissions: commissions,
		quoter:      quoter,
		now:         time.Now,
	}
}

// ruleRequest is the writable part of a rule. IsActive defaults to true.
type ruleRequest struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Type        models.CommissionType `json:"type"`
	Value       decimal.Decimal       `json:"value"`
	MinPrice    *decimal.Decimal      `json:"min_price"`
	MaxPrice    *decimal.Decimal      `json:"max_price"`
	Role        *models.Role          `json:"role"`
	IsActive    *bool                 `json:"is_active"`
	Priority    int                   `json:"priority"`
}

func (req ruleRequest) rule() models.CommissionRule {
	rule := models.CommissionRule{
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		Value:       req.Value,
		MinPrice:    req.MinPrice,
		MaxPrice:    req.MaxPrice,
		Role:        req.Role,
		IsActive:    true,
		Priority:    req.Priority,
	}
	if req.Role != nil && *req.Role == "" {
		rule.Role = nil
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	return rule
}

// Quote previews the commission for a price and an optional seller role.
func (h *CommissionHandler) Quote(w http.ResponseWriter, r *http.Request) {
	price, err := queryDecimal(r, "price")
	if err != nil || price == nil {
		http.Error(w, "price is required and must be a number", http.StatusBadRequest)
		return
	}

	var role *models.Role
	if raw := r.URL.Query().Get("role"); raw != "" {
		rr := models.Role(raw)
		if !models.IsValidRole(rr) {
			http.Error(w, "Invalid role", http.StatusBadRequest)
			return
		}
		role = &rr
	}

	breakdown, err := h.quoter.Resolve(r.Context(), *price, role)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Price decimal.Decimal `json:"price"`
		Net   decimal.Decimal `json:"net_amount"`
		commission.Breakdown
	}{Price: *price, Net: breakdown.Net(*price), Breakdown: breakdown})
}

// ListRules returns every rule in resolution order.
func (h *CommissionHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.FindRules(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// GetRule returns one rule.
func (h *CommissionHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.rules.FindRuleByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// CreateRule stores a new rule.
func (h *CommissionHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(r, &req, false); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rule := req.rule()
	if err := commission.ValidateRule(rule); err != nil {
		writeError(w, r, err)
		return
	}
	now := h.now()
	rule.ID = uuid.NewString()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := h.rules.InsertRule(r.Context(), rule); err != nil {
		writeError(w, r, err)
		return
	}

	log.WithFields(log.Fields{"rule_id": rule.ID, "name": rule.Name}).Info("Commission rule created")
	writeJSON(w, http.StatusCreated, rule)
}

// UpdateRule replaces a rule.
func (h *CommissionHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(r, &req, false); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rule := req.rule()
	if err := commission.ValidateRule(rule); err != nil {
		writeError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.rules.UpdateRule(r.Context(), id, rule); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := h.rules.FindRuleByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteRule removes a rule. Recorded commissions keep their rule id.
func (h *CommissionHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.rules.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCommissions returns recorded commissions, optionally filtered by paid.
func (h *CommissionHandler) ListCommissions(w http.ResponseWriter, r *http.Request) {
	var paid *bool
	if raw := r.URL.Query().Get("paid"); raw != "" {
		p, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "invalid paid", http.StatusBadRequest)
			return
		}
		paid = &p
	}

	commissions, err := h.commissions.FindCommissions(r.Context(), paid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, commissions)
}

// PayCommission marks a commission as paid out.
func (h *CommissionHandler) PayCommission(w http.ResponseWriter, r *http.Request) {
	c, err := h.commissions.MarkCommissionPaid(r.Context(), chi.URLParam(r, "id"), h.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
