package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-marketplace/internal/db"
	"github.com/ukydev/vehicle-marketplace/internal/models"
	"github.com/ukydev/vehicle-marketplace/internal/sales"
)

// Oldest model year accepted for a listing.
const minVehicleYear = 1900

// VehicleHandler serves listing search and management.
type VehicleHandler struct {
	vehicles db.VehicleCollection
	now      func() time.Time
}

// NewVehicleHandler creates a VehicleHandler.
func NewVehicleHandler(vehicles db.VehicleCollection) *VehicleHandler {
	return &VehicleHandler{vehicles: vehicles, now: time.Now}
}

// vehicleRequest is the editable part of a listing.
type vehicleRequest struct {
	Make         string                  `json:"make"`
	Model        string                  `json:"model"`
	Year         int                     `json:"year"`
	Mileage      int                     `json:"mileage"`
	FuelType     string                  `json:"fuel_type"`
	Transmission string                  `json:"transmission"`
	BodyType     string                  `json:"body_type"`
	Color        string                  `json:"color"`
	Description  string                  `json:"description"`
	Condition    models.VehicleCondition `json:"condition"`
	Price        decimal.Decimal         `json:"price"`
	Location     models.Location         `json:"location"`
}

func (req *vehicleRequest) validate(now time.Time) error {
	req.Make = strings.TrimSpace(req.Make)
	req.Model = strings.TrimSpace(req.Model)
	req.FuelType = strings.ToLower(strings.TrimSpace(req.FuelType))

	switch {
	case req.Make == "" || req.Model == "":
		return errors.New("make and model are required")
	case req.Year < minVehicleYear || req.Year > now.Year()+1:
		return errors.New("year is out of range")
	case req.Mileage < 0:
		return errors.New("mileage must not be negative")
	case !req.Price.IsPositive():
		return errors.New("price must be positive")
	}
	if req.Condition == "" {
		req.Condition = models.ConditionUsed
	}
	if !models.IsValidCondition(req.Condition) {
		return errors.New("invalid condition")
	}
	return nil
}

func (req *vehicleRequest) apply(v *models.Vehicle) {
	v.Make = req.Make
	v.Model = req.Model
	v.Year = req.Year
	v.Mileage = req.Mileage
	v.FuelType = req.FuelType
	v.Transmission = req.Transmission
	v.BodyType = req.BodyType
	v.Color = req.Color
	v.Description = req.Description
	v.Condition = req.Condition
	v.Price = req.Price
	v.Location = req.Location
}

// ParseVehicleFilter reads search criteria from the query string.
func ParseVehicleFilter(r *http.Request) (models.VehicleFilter, error) {
	q := r.URL.Query()
	filter := models.VehicleFilter{
		Make:      q.Get("make"),
		Model:     q.Get("model"),
		Condition: models.VehicleCondition(q.Get("condition")),
		FuelType:  q.Get("fuel_type"),
		City:      q.Get("city"),
		SellerID:  q.Get("seller_id"),
		Status:    models.VehicleStatus(q.Get("status")),
		Sort:      q.Get("sort"),
	}

	if filter.Condition != "" && !models.IsValidCondition(filter.Condition) {
		return filter, errors.New("invalid condition")
	}
	if filter.Status != "" && !models.IsValidVehicleStatus(filter.Status) {
		return filter, errors.New("invalid status")
	}

	var err error
	if filter.MinPrice, err = queryDecimal(r, "min_price"); err != nil {
		return filter, err
	}
	if filter.MaxPrice, err = queryDecimal(r, "max_price"); err != nil {
		return filter, err
	}
	if filter.MinYear, err = queryInt(r, "min_year"); err != nil {
		return filter, err
	}
	if filter.MaxYear, err = queryInt(r, "max_year"); err != nil {
		return filter, err
	}
	if filter.Page, err = queryInt(r, "page"); err != nil {
		return filter, err
	}
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		return filter, err
	}
	return filter, nil
}

// List searches listings.
func (h *VehicleHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseVehicleFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	vehicles, total, err := h.vehicles.FindVehicles(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, limit := db.NormalizePage(filter.Page, filter.Limit)
	writeJSON(w, http.StatusOK, Page{Items: vehicles, Total: total, Page: page, Limit: limit})
}

// Get returns one listing.
func (h *VehicleHandler) Get(w http.ResponseWriter, r *http.Request) {
	vehicle, err := h.vehicles.FindVehicleByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicle)
}

// Create lists a vehicle for the caller.
func (h *VehicleHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var req vehicleRequest
	if err := decodeJSON(r, &req, false); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	now := h.now()
	if err := req.validate(now); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	vehicle := models.Vehicle{
		ID:        uuid.NewString(),
		SellerID:  actor.ID,
		Status:    models.VehicleAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	req.apply(&vehicle)

	if err := h.vehicles.InsertVehicle(r.Context(), vehicle); err != nil {
		writeError(w, r, err)
		return
	}

	log.WithFields(log.Fields{
		"vehicle_id": vehicle.ID,
		"seller_id":  vehicle.SellerID,
	}).Info("Vehicle listed")
	writeJSON(w, http.StatusCreated, vehicle)
}

// Update edits the descriptive fields of a listing.
func (h *VehicleHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	vehicle, ok := h.ownedVehicle(w, r, actor)
	if !ok {
		return
	}

	var req vehicleRequest
	if err := decodeJSON(r, &req, false); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.validate(h.now()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.apply(vehicle)

	if err := h.vehicles.UpdateVehicle(r.Context(), vehicle.ID, *vehicle); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := h.vehicles.FindVehicleByID(r.Context(), vehicle.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// SetStatus lets the owner toggle a listing between available and inactive.
func (h *VehicleHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var req struct {
		Status models.VehicleStatus `json:"status"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !req.Status.SellerSettable() {
		http.Error(w, "status must be available or inactive", http.StatusBadRequest)
		return
	}

	vehicle, ok := h.ownedVehicle(w, r, actor)
	if !ok {
		return
	}

	from := []models.VehicleStatus{models.VehicleAvailable, models.VehicleInactive}
	if err := h.vehicles.SetVehicleStatus(r.Context(), vehicle.ID, from, req.Status); err != nil {
		writeError(w, r, err)
		return
	}

	vehicle.Status = req.Status
	writeJSON(w, http.StatusOK, vehicle)
}

// Delete removes a listing that is neither reserved nor sold.
func (h *VehicleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	vehicle, ok := h.ownedVehicle(w, r, actor)
	if !ok {
		return
	}

	if err := h.vehicles.DeleteVehicle(r.Context(), vehicle.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownedVehicle loads the listing in the URL and checks the caller may manage it.
func (h *VehicleHandler) ownedVehicle(w http.ResponseWriter, r *http.Request, actor sales.Actor) (*models.Vehicle, bool) {
	vehicle, err := h.vehicles.FindVehicleByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if vehicle.SellerID != actor.ID && !actor.IsAdmin() {
		http.Error(w, "Not the owner of this listing", http.StatusForbidden)
		return nil, false
	}
	return vehicle, true
}
