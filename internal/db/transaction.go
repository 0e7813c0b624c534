package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ukydev/vehicle-marketplace/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TransactionChange describes one lifecycle transition.
type TransactionChange struct {
	To                 models.TransactionStatus
	At                 time.Time
	PaymentReference   string
	CancellationReason string
	CommissionAmount   *decimal.Decimal
	NetAmount          *decimal.Decimal
}

// TransactionFilter selects transactions. UserID matches buyer or seller.
type TransactionFilter struct {
	UserID    string
	VehicleID string
	Status    models.TransactionStatus
	Page      int
	Limit     int
}

// TransactionCollection defines the interface for transaction operations.
type TransactionCollection interface {
	InsertTransaction(ctx context.Context, txn models.Transaction) error
	FindTransactionByID(ctx context.Context, id string) (*models.Transaction, error)
	FindTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, int64, error)
	FindStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Transaction, error)
	TransitionTransaction(ctx context.Context, id string, from []models.TransactionStatus, change TransactionChange) (*models.Transaction, error)
}

// MongoTransactionCollection implements TransactionCollection for MongoDB.
type MongoTransactionCollection struct {
	Collection *mongo.Collection
}

// InsertTransaction inserts a transaction.
func (c *MongoTransactionCollection) InsertTransaction(ctx context.Context, txn models.Transaction) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	_, err := c.Collection.InsertOne(ctx, txn)
	return mapError(err, "transaction")
}

// FindTransactionByID finds a transaction by its ID.
func (c *MongoTransactionCollection) FindTransactionByID(ctx context.Context, id string) (*models.Transaction, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}

	var txn models.Transaction
	if err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&txn); err != nil {
		return nil, mapError(err, "transaction")
	}
	return &txn, nil
}

// FindTransactions lists transactions newest first.
func (c *MongoTransactionCollection) FindTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, int64, error) {
	if c.Collection == nil {
		return nil, 0, fmt.Errorf("mongo collection is nil")
	}

	query := BuildTransactionQuery(filter)
	total, err := c.Collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	page, limit := NormalizePage(filter.Page, filter.Limit)
	findOptions := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	cursor, err := c.Collection.Find(ctx, query, findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	txns := []models.Transaction{}
	if err := cursor.All(ctx, &txns); err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// FindStalePending returns pending transactions created before createdBefore, oldest first.
func (c *MongoTransactionCollection) FindStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Transaction, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}

	query := bson.M{
		"status":     models.TransactionPending,
		"created_at": bson.M{"$lt": createdBefore},
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		findOptions.SetLimit(int64(limit))
	}

	cursor, err := c.Collection.Find(ctx, query, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	txns := []models.Transaction{}
	if err := cursor.All(ctx, &txns); err != nil {
		return nil, err
	}
	return txns, nil
}

// TransitionTransaction applies change when the transaction is in one of
// from and returns the updated document. ErrConflict means the status no
// longer matched.
func (c *MongoTransactionCollection) TransitionTransaction(ctx context.Context, id string, from []models.TransactionStatus, change TransactionChange) (*models.Transaction, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}

	filter := bson.M{"_id": id, "status": bson.M{"$in": from}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var txn models.Transaction
	err := c.Collection.FindOneAndUpdate(ctx, filter, TransitionUpdate(change), opts).Decode(&txn)
	if err == nil {
		return &txn, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	n, err := c.Collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, mapError(mongo.ErrNoDocuments, "transaction")
	}
	return nil, fmt.Errorf("transaction %s: %w", id, ErrConflict)
}

// BuildTransactionQuery turns a TransactionFilter into a MongoDB filter.
func BuildTransactionQuery(f TransactionFilter) bson.M {
	query := bson.M{}
	if f.UserID != "" {
		query["$or"] = bson.A{
			bson.M{"buyer_id": f.UserID},
			bson.M{"seller_id": f.UserID},
		}
	}
	if f.VehicleID != "" {
		query["vehicle_id"] = f.VehicleID
	}
	if f.Status != "" {
		query["status"] = f.Status
	}
	return query
}

// TransitionUpdate builds the update document for a lifecycle change.
func TransitionUpdate(change TransactionChange) bson.M {
	set := bson.M{
		"status":     change.To,
		"updated_at": change.At,
	}

	switch change.To {
	case models.TransactionProcessing:
		set["processed_at"] = change.At
	case models.TransactionCompleted:
		set["completed_at"] = change.At
		set["payment_reference"] = change.PaymentReference
	case models.TransactionCancelled:
		set["cancelled_at"] = change.At
		set["cancellation_reason"] = change.CancellationReason
	}

	if change.CommissionAmount != nil {
		set["commission_amount"] = *change.CommissionAmount
	}
	if change.NetAmount != nil {
		set["net_amount"] = *change.NetAmount
	}

	return bson.M{"$set": set}
}
