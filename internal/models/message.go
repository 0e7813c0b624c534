package models

import "time"

// Conversation is the thread between a buyer and the seller of one listing.
type Conversation struct {
	ID            string    `bson:"_id" json:"id"`
	VehicleID     string    `bson:"vehicle_id" json:"vehicle_id"`
	BuyerID       string    `bson:"buyer_id" json:"buyer_id"`
	SellerID      string    `bson:"seller_id" json:"seller_id"`
	LastMessage   string    `bson:"last_message,omitempty" json:"last_message,omitempty"`
	LastMessageAt time.Time `bson:"last_message_at" json:"last_message_at"`
	BuyerUnread   int       `bson:"buyer_unread" json:"buyer_unread"`
	SellerUnread  int       `bson:"seller_unread" json:"seller_unread"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}

// UnreadFor returns the unread counter of a participant.
func (c *Conversation) UnreadFor(userID string) int {
	switch userID {
	case c.BuyerID:
		return c.BuyerUnread
	case c.SellerID:
		return c.SellerUnread
	}
	return 0
}

// Counterpart returns the other participant.
func (c *Conversation) Counterpart(userID string) string {
	if userID == c.BuyerID {
		return c.SellerID
	}
	return c.BuyerID
}

// IsParticipant reports whether the user takes part in the conversation.
func (c *Conversation) IsParticipant(userID string) bool {
	return userID != "" && (c.BuyerID == userID || c.SellerID == userID)
}

// Message is a single entry in a conversation.
type Message struct {
	ID             string     `bson:"_id" json:"id"`
	ConversationID string     `bson:"conversation_id" json:"conversation_id"`
	SenderID       string     `bson:"sender_id" json:"sender_id"`
	Body           string     `bson:"body" json:"body"`
	ReadAt         *time.Time `bson:"read_at,omitempty" json:"read_at,omitempty"`
	CreatedAt      time.Time  `bson:"created_at" json:"created_at"`
}
