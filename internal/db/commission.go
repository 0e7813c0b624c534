package db

import (
	"context"
	"fmt"
	"time"

	"github.com/ukydev/vehicle-marketplace/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CommissionRuleCollection defines the interface for commission rule operations.
type CommissionRuleCollection interface {
	InsertRule(ctx context.Context, rule models.CommissionRule) error
	FindRuleByID(ctx context.Context, id string) (*models.CommissionRule, error)
	FindRules(ctx context.Context) ([]models.CommissionRule, error)
	FindActiveRules(ctx context.Context) ([]models.CommissionRule, error)
	UpdateRule(ctx context.Context, id string, rule models.CommissionRule) error
	DeleteRule(ctx context.Context, id string) error
}

// MongoCommissionRuleCollection implements CommissionRuleCollection for MongoDB.
type MongoCommissionRuleCollection struct {
	Collection *mongo.Collection
}

// ruleOrder ends on _id so rules stored in the same millisecond with the same
// priority always come back in one order.
var ruleOrder = bson.D{{Key: "priority", Value: -1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

// InsertRule inserts a commission rule.
func (c *MongoCommissionRuleCollection) InsertRule(ctx context.Context, rule models.CommissionRule) error {
	_, err := c.Collection.InsertOne(ctx, rule)
	return mapError(err, "commission rule")
}

// FindRuleByID finds a rule by its ID.
func (c *MongoCommissionRuleCollection) FindRuleByID(ctx context.Context, id string) (*models.CommissionRule, error) {
	var rule models.CommissionRule
	if err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&rule); err != nil {
		return nil, mapError(err, "commission rule")
	}
	return &rule, nil
}

// FindRules lists every rule in resolution order.
func (c *MongoCommissionRuleCollection) FindRules(ctx context.Context) ([]models.CommissionRule, error) {
	return c.find(ctx, bson.M{})
}

// FindActiveRules lists active rules by priority descending, then creation ascending.
func (c *MongoCommissionRuleCollection) FindActiveRules(ctx context.Context) ([]models.CommissionRule, error) {
	return c.find(ctx, bson.M{"is_active": true})
}

func (c *MongoCommissionRuleCollection) find(ctx context.Context, filter bson.M) ([]models.CommissionRule, error) {
	cursor, err := c.Collection.Find(ctx, filter, options.Find().SetSort(ruleOrder))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	rules := []models.CommissionRule{}
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// UpdateRule replaces a rule, keeping its ID and creation time.
func (c *MongoCommissionRuleCollection) UpdateRule(ctx context.Context, id string, rule models.CommissionRule) error {
	existing, err := c.FindRuleByID(ctx, id)
	if err != nil {
		return err
	}
	rule.ID = id
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()

	result, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": id}, rule)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mapError(mongo.ErrNoDocuments, "commission rule")
	}
	return nil
}

// DeleteRule deletes a rule.
func (c *MongoCommissionRuleCollection) DeleteRule(ctx context.Context, id string) error {
	result, err := c.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return mapError(mongo.ErrNoDocuments, "commission rule")
	}
	return nil
}

// CommissionCollection defines the interface for recorded commissions.
type CommissionCollection interface {
	InsertCommission(ctx context.Context, commission models.Commission) error
	FindCommissionByTransaction(ctx context.Context, transactionID string) (*models.Commission, error)
	FindCommissions(ctx context.Context, paid *bool) ([]models.Commission, error)
	MarkCommissionPaid(ctx context.Context, id string, paidAt time.Time) (*models.Commission, error)
}

// MongoCommissionCollection implements CommissionCollection for MongoDB.
type MongoCommissionCollection struct {
	Collection *mongo.Collection
}

// InsertCommission records a commission. One per transaction.
func (c *MongoCommissionCollection) InsertCommission(ctx context.Context, commission models.Commission) error {
	_, err := c.Collection.InsertOne(ctx, commission)
	return mapError(err, "commission")
}

// FindCommissionByTransaction finds the commission of a transaction.
func (c *MongoCommissionCollection) FindCommissionByTransaction(ctx context.Context, transactionID string) (*models.Commission, error) {
	var commission models.Commission
	if err := c.Collection.FindOne(ctx, bson.M{"transaction_id": transactionID}).Decode(&commission); err != nil {
		return nil, mapError(err, "commission")
	}
	return &commission, nil
}

// FindCommissions lists commissions newest first, optionally by paid flag.
func (c *MongoCommissionCollection) FindCommissions(ctx context.Context, paid *bool) ([]models.Commission, error) {
	filter := bson.M{}
	if paid != nil {
		filter["paid"] = *paid
	}

	cursor, err := c.Collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	commissions := []models.Commission{}
	if err := cursor.All(ctx, &commissions); err != nil {
		return nil, err
	}
	return commissions, nil
}

// MarkCommissionPaid flips the paid flag of an unpaid commission.
func (c *MongoCommissionCollection) MarkCommissionPaid(ctx context.Context, id string, paidAt time.Time) (*models.Commission, error) {
	filter := bson.M{"_id": id, "paid": false}
	update := bson.M{"$set": bson.M{"paid": true, "paid_at": paidAt}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var commission models.Commission
	err := c.Collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&commission)
	if err == nil {
		return &commission, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, err
	}

	n, err := c.Collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, mapError(mongo.ErrNoDocuments, "commission")
	}
	return nil, fmt.Errorf("commission %s already paid: %w", id, ErrConflict)
}
