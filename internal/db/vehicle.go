package db

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ukydev/vehicle-marketplace/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// VehicleCollection defines the interface for vehicle listing operations.
type VehicleCollection interface {
	InsertVehicle(ctx context.Context, vehicle models.Vehicle) error
	FindVehicles(ctx context.Context, filter models.VehicleFilter) ([]models.Vehicle, int64, error)
	FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error)
	UpdateVehicle(ctx context.Context, id string, vehicle models.Vehicle) error
	SetVehicleStatus(ctx context.Context, id string, from []models.VehicleStatus, to models.VehicleStatus) error
	ReserveVehicle(ctx context.Context, id, transactionID string) error
	ReleaseVehicle(ctx context.Context, id, transactionID string) error
	MarkVehicleSold(ctx context.Context, id, transactionID string, soldAt time.Time) error
	DeleteVehicle(ctx context.Context, id string) error
}

// MongoVehicleCollection implements VehicleCollection for MongoDB.
type MongoVehicleCollection struct {
	Collection *mongo.Collection
}

// InsertVehicle inserts a vehicle listing into the collection.
func (c *MongoVehicleCollection) InsertVehicle(ctx context.Context, vehicle models.Vehicle) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	if vehicle.ID == "" {
		vehicle.ID = uuid.NewString()
	}
	_, err := c.Collection.InsertOne(ctx, vehicle)
	return mapError(err, "vehicle")
}

// FindVehicles searches listings and returns one page plus the total match count.
func (c *MongoVehicleCollection) FindVehicles(ctx context.Context, filter models.VehicleFilter) ([]models.Vehicle, int64, error) {
	if c.Collection == nil {
		return nil, 0, fmt.Errorf("mongo collection is nil")
	}

	query := BuildVehicleQuery(filter)
	total, err := c.Collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	page, limit := NormalizePage(filter.Page, filter.Limit)
	findOptions := options.Find().
		SetSort(VehicleSort(filter.Sort)).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	cursor, err := c.Collection.Find(ctx, query, findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	vehicles := []models.Vehicle{}
	if err := cursor.All(ctx, &vehicles); err != nil {
		return nil, 0, err
	}
	return vehicles, total, nil
}

// FindVehicleByID finds a vehicle by its ID.
func (c *MongoVehicleCollection) FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}

	var vehicle models.Vehicle
	err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&vehicle)
	if err != nil {
		return nil, mapError(err, "vehicle")
	}

	return &vehicle, nil
}

// UpdateVehicle updates the descriptive fields of a listing. Status fields
// are left alone and sold listings are not editable.
func (c *MongoVehicleCollection) UpdateVehicle(ctx context.Context, id string, vehicle models.Vehicle) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}

	set := bson.M{
		"make":         vehicle.Make,
		"model":        vehicle.Model,
		"year":         vehicle.Year,
		"mileage":      vehicle.Mileage,
		"fuel_type":    vehicle.FuelType,
		"transmission": vehicle.Transmission,
		"body_type":    vehicle.BodyType,
		"color":        vehicle.Color,
		"description":  vehicle.Description,
		"condition":    vehicle.Condition,
		"price":        vehicle.Price,
		"location":     vehicle.Location,
		"updated_at":   time.Now(),
	}
	filter := bson.M{"_id": id, "status": bson.M{"$ne": models.VehicleSold}}
	return c.casUpdate(ctx, id, filter, bson.M{"$set": set})
}

// SetVehicleStatus moves a listing to status when it is currently in one of from.
func (c *MongoVehicleCollection) SetVehicleStatus(ctx context.Context, id string, from []models.VehicleStatus, to models.VehicleStatus) error {
	filter := bson.M{"_id": id, "status": bson.M{"$in": from}}
	update := bson.M{"$set": bson.M{"status": to, "updated_at": time.Now()}}
	return c.casUpdate(ctx, id, filter, update)
}

// ReserveVehicle moves an available listing to reserved for a transaction.
func (c *MongoVehicleCollection) ReserveVehicle(ctx context.Context, id, transactionID string) error {
	filter := bson.M{"_id": id, "status": models.VehicleAvailable}
	update := bson.M{"$set": bson.M{
		"status":      models.VehicleReserved,
		"reserved_by": transactionID,
		"updated_at":  time.Now(),
	}}
	return c.casUpdate(ctx, id, filter, update)
}

// ReleaseVehicle returns a listing reserved by transactionID to available.
func (c *MongoVehicleCollection) ReleaseVehicle(ctx context.Context, id, transactionID string) error {
	filter := bson.M{"_id": id, "status": models.VehicleReserved, "reserved_by": transactionID}
	update := bson.M{
		"$set":   bson.M{"status": models.VehicleAvailable, "updated_at": time.Now()},
		"$unset": bson.M{"reserved_by": ""},
	}
	return c.casUpdate(ctx, id, filter, update)
}

// MarkVehicleSold marks a listing reserved by transactionID as sold.
func (c *MongoVehicleCollection) MarkVehicleSold(ctx context.Context, id, transactionID string, soldAt time.Time) error {
	filter := bson.M{"_id": id, "status": models.VehicleReserved, "reserved_by": transactionID}
	update := bson.M{"$set": bson.M{
		"status":     models.VehicleSold,
		"sold_at":    soldAt,
		"updated_at": soldAt,
	}}
	return c.casUpdate(ctx, id, filter, update)
}

// DeleteVehicle deletes a listing that is neither reserved nor sold.
func (c *MongoVehicleCollection) DeleteVehicle(ctx context.Context, id string) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}

	filter := bson.M{"_id": id, "status": bson.M{"$in": []models.VehicleStatus{models.VehicleAvailable, models.VehicleInactive}}}
	result, err := c.Collection.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}

	if result.DeletedCount == 0 {
		return c.missOrConflict(ctx, id)
	}

	return nil
}

func (c *MongoVehicleCollection) casUpdate(ctx context.Context, id string, filter, update bson.M) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}

	result, err := c.Collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}

	if result.MatchedCount == 0 {
		return c.missOrConflict(ctx, id)
	}

	return nil
}

func (c *MongoVehicleCollection) missOrConflict(ctx context.Context, id string) error {
	n, err := c.Collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return mapError(mongo.ErrNoDocuments, "vehicle")
	}
	return fmt.Errorf("vehicle %s: %w", id, ErrConflict)
}

// BuildVehicleQuery turns search criteria into a MongoDB filter. An empty
// status searches available listings.
func BuildVehicleQuery(f models.VehicleFilter) bson.M {
	query := bson.M{}

	status := f.Status
	if status == "" {
		status = models.VehicleAvailable
	}
	query["status"] = status

	if f.Make != "" {
		query["make"] = prefixRegex(f.Make)
	}
	if f.Model != "" {
		query["model"] = prefixRegex(f.Model)
	}
	if f.City != "" {
		query["location.city"] = prefixRegex(f.City)
	}
	if f.Condition != "" {
		query["condition"] = f.Condition
	}
	if f.FuelType != "" {
		query["fuel_type"] = strings.ToLower(f.FuelType)
	}
	if f.SellerID != "" {
		query["seller_id"] = f.SellerID
	}

	price := bson.M{}
	if f.MinPrice != nil {
		price["$gte"] = *f.MinPrice
	}
	if f.MaxPrice != nil {
		price["$lte"] = *f.MaxPrice
	}
	if len(price) > 0 {
		query["price"] = price
	}

	year := bson.M{}
	if f.MinYear > 0 {
		year["$gte"] = f.MinYear
	}
	if f.MaxYear > 0 {
		year["$lte"] = f.MaxYear
	}
	if len(year) > 0 {
		query["year"] = year
	}

	return query
}

// VehicleSort maps a sort key such as "-price" to a sort document.
func VehicleSort(key string) bson.D {
	direction := 1
	field := key
	if strings.HasPrefix(key, "-") {
		direction = -1
		field = strings.TrimPrefix(key, "-")
	}

	switch field {
	case "price", "year", "mileage", "created_at":
		return bson.D{{Key: field, Value: direction}, {Key: "_id", Value: 1}}
	default:
		return bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}
	}
}

// NormalizePage applies defaults and bounds to pagination input.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

func prefixRegex(value string) primitive.Regex {
	return primitive.Regex{Pattern: "^" + regexp.QuoteMeta(value), Options: "i"}
}
