package cache

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-marketplace/internal/db"
	"github.com/ukydev/vehicle-marketplace/internal/models"
)

// DefaultTTL is used when no positive TTL is configured.
const DefaultTTL = 5 * time.Minute

// Vehicles decorates a VehicleCollection with a look-aside cache of single
// listings keyed by id. Every write evicts the listing. Cache failures are
// logged and fall through to the collection.
type Vehicles struct {
	db.VehicleCollection
	store Store
	ttl   time.Duration
}

// NewVehicles wraps next with store.
func NewVehicles(next db.VehicleCollection, store Store, ttl time.Duration) *Vehicles {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Vehicles{VehicleCollection: next, store: store, ttl: ttl}
}

func vehicleKey(id string) string {
	return "vehicle:" + id
}

// FindVehicleByID serves the listing from cache when present.
func (v *Vehicles) FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	key := vehicleKey(id)
	if raw, ok, err := v.store.Get(ctx, key); err != nil {
		log.WithError(err).WithField("key", key).Warn("Cache read failed")
	} else if ok {
		var vehicle models.Vehicle
		if err := json.Unmarshal(raw, &vehicle); err == nil {
			return &vehicle, nil
		}
		log.WithField("key", key).Warn("Discarding undecodable cache entry")
	}

	vehicle, err := v.VehicleCollection.FindVehicleByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(vehicle); err == nil {
		if err := v.store.Set(ctx, key, raw, v.ttl); err != nil {
			log.WithError(err).WithField("key", key).Warn("Cache write failed")
		}
	}
	return vehicle, nil
}

// InsertVehicle implements db.VehicleCollection.
func (v *Vehicles) InsertVehicle(ctx context.Context, vehicle models.Vehicle) error {
	err := v.VehicleCollection.InsertVehicle(ctx, vehicle)
	if vehicle.ID != "" {
		v.Evict(ctx, vehicle.ID)
	}
	return err
}

// UpdateVehicle implements db.VehicleCollection.
func (v *Vehicles) UpdateVehicle(ctx context.Context, id string, vehicle models.Vehicle) error {
	defer v.Evict(ctx, id)
	return v.VehicleCollection.UpdateVehicle(ctx, id, vehicle)
}

// SetVehicleStatus implements db.VehicleCollection.
func (v *Vehicles) SetVehicleStatus(ctx context.Context, id string, from []models.VehicleStatus, to models.VehicleStatus) error {
	defer v.Evict(ctx, id)
	return v.VehicleCollection.SetVehicleStatus(ctx, id, from, to)
}

// ReserveVehicle implements db.VehicleCollection.
func (v *Vehicles) ReserveVehicle(ctx context.Context, id, transactionID string) error {
	defer v.Evict(ctx, id)
	return v.VehicleCollection.ReserveVehicle(ctx, id, transactionID)
}

// ReleaseVehicle implements db.VehicleCollection.
func (v *Vehicles) ReleaseVehicle(ctx context.Context, id, transactionID string) error {
	defer v.Evict(ctx, id)
	return v.VehicleCollection.ReleaseVehicle(ctx, id, transactionID)
}

// MarkVehicleSold implements db.VehicleCollection.
func (v *Vehicles) MarkVehicleSold(ctx context.Context, id, transactionID string, soldAt time.Time) error {
	defer v.Evict(ctx, id)
	return v.VehicleCollection.MarkVehicleSold(ctx, id, transactionID, soldAt)
}

// DeleteVehicle implements db.VehicleCollection.
func (v *Vehicles) DeleteVehicle(ctx context.Context, id string) error {
	defer v.Evict(ctx, id)
	return v.VehicleCollection.DeleteVehicle(ctx, id)
}

// Evict drops a listing from the cache. Callers running writes inside a
// database transaction call it again after commit.
func (v *Vehicles) Evict(ctx context.Context, id string) {
	if err := v.store.Delete(ctx, vehicleKey(id)); err != nil {
		log.WithError(err).WithField("vehicle_id", id).Warn("Cache eviction failed")
	}
}
