package db

import (
	"context"
	"time"

	"github.com/ukydev/vehicle-marketplace/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConversationCollection defines the interface for conversation operations.
type ConversationCollection interface {
	InsertConversation(ctx context.Context, conversation models.Conversation) error
	FindConversationByID(ctx context.Context, id string) (*models.Conversation, error)
	FindConversation(ctx context.Context, vehicleID, buyerID string) (*models.Conversation, error)
	FindConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error)
	RecordMessage(ctx context.Context, id, preview string, at time.Time, recipientIsBuyer bool) error
	ResetUnread(ctx context.Context, id string, forBuyer bool) error
}

// MongoConversationCollection implements ConversationCollection for MongoDB.
type MongoConversationCollection struct {
	Collection *mongo.Collection
}

// InsertConversation inserts a conversation.
func (c *MongoConversationCollection) InsertConversation(ctx context.Context, conversation models.Conversation) error {
	_, err := c.Collection.InsertOne(ctx, conversation)
	return mapError(err, "conversation")
}

// FindConversationByID finds a conversation by its ID.
func (c *MongoConversationCollection) FindConversationByID(ctx context.Context, id string) (*models.Conversation, error) {
	var conversation models.Conversation
	if err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&conversation); err != nil {
		return nil, mapError(err, "conversation")
	}
	return &conversation, nil
}

// FindConversation finds the conversation of a buyer about a vehicle.
func (c *MongoConversationCollection) FindConversation(ctx context.Context, vehicleID, buyerID string) (*models.Conversation, error) {
	var conversation models.Conversation
	err := c.Collection.FindOne(ctx, bson.M{"vehicle_id": vehicleID, "buyer_id": buyerID}).Decode(&conversation)
	if err != nil {
		return nil, mapError(err, "conversation")
	}
	return &conversation, nil
}

// FindConversationsForUser lists the conversations a user takes part in, most recent first.
func (c *MongoConversationCollection) FindConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	filter := bson.M{"$or": bson.A{bson.M{"buyer_id": userID}, bson.M{"seller_id": userID}}}
	cursor, err := c.Collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	conversations := []models.Conversation{}
	if err := cursor.All(ctx, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

// RecordMessage stores the preview and bumps the recipient's unread counter.
func (c *MongoConversationCollection) RecordMessage(ctx context.Context, id, preview string, at time.Time, recipientIsBuyer bool) error {
	counter := "seller_unread"
	if recipientIsBuyer {
		counter = "buyer_unread"
	}
	update := bson.M{
		"$set": bson.M{"last_message": preview, "last_message_at": at, "updated_at": at},
		"$inc": bson.M{counter: 1},
	}
	result, err := c.Collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mapError(mongo.ErrNoDocuments, "conversation")
	}
	return nil
}

// ResetUnread clears one participant's unread counter.
func (c *MongoConversationCollection) ResetUnread(ctx context.Context, id string, forBuyer bool) error {
	counter := "seller_unread"
	if forBuyer {
		counter = "buyer_unread"
	}
	_, err := c.Collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{counter: 0}})
	return err
}

// MessageCollection defines the interface for message operations.
type MessageCollection interface {
	InsertMessage(ctx context.Context, message models.Message) error
	FindMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID string, at time.Time) error
}

// MongoMessageCollection implements MessageCollection for MongoDB.
type MongoMessageCollection struct {
	Collection *mongo.Collection
}

// InsertMessage inserts a message.
func (c *MongoMessageCollection) InsertMessage(ctx context.Context, message models.Message) error {
	_, err := c.Collection.InsertOne(ctx, message)
	return mapError(err, "message")
}

// FindMessages lists the latest messages of a conversation in chronological order.
func (c *MongoMessageCollection) FindMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	_, limit = NormalizePage(1, limit)
	findOptions := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := c.Collection.Find(ctx, bson.M{"conversation_id": conversationID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	messages := []models.Message{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkRead marks the messages sent to readerID as read.
func (c *MongoMessageCollection) MarkRead(ctx context.Context, conversationID, readerID string, at time.Time) error {
	filter := bson.M{
		"conversation_id": conversationID,
		"sender_id":       bson.M{"$ne": readerID},
		"read_at":         bson.M{"$exists": false},
	}
	_, err := c.Collection.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read_at": at}})
	return err
}
