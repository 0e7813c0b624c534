// Package messaging runs buyer/seller conversations about listings.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-marketplace/internal/db"
	"github.com/ukydev/vehicle-marketplace/internal/events"
	"github.com/ukydev/vehicle-marketplace/internal/models"
)

var (
	ErrValidation = errors.New("invalid message")
	ErrForbidden  = errors.New("not a participant")
)

const (
	MaxBodyLength  = 2000
	previewLength  = 100
	defaultHistory = 50
)

// VehicleLookup finds listings.
type VehicleLookup interface {
	FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error)
}

// Service manages conversations and messages.
type Service struct {
	conversations db.ConversationCollection
	messages      db.MessageCollection
	vehicles      VehicleLookup
	events        events.Publisher
	now           func() time.Time
}

// NewService builds a Service. A nil publisher discards events.
func NewService(conversations db.ConversationCollection, messages db.MessageCollection, vehicles VehicleLookup, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{
		conversations: conversations,
		messages:      messages,
		vehicles:      vehicles,
		events:        publisher,
		now:           time.Now,
	}
}

// Start opens or reuses the conversation between userID and the seller of
// vehicleID. A non-empty body is sent as the first message.
func (s *Service) Start(ctx context.Context, userID, vehicleID, body string) (*models.Conversation, error) {
	if vehicleID == "" {
		return nil, fmt.Errorf("%w: vehicle_id is required", ErrValidation)
	}
	vehicle, err := s.vehicles.FindVehicleByID(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if vehicle.SellerID == userID {
		return nil, fmt.Errorf("%w: cannot message yourself about your own listing", ErrValidation)
	}

	conversation, err := s.conversations.FindConversation(ctx, vehicleID, userID)
	if errors.Is(err, db.ErrNotFound) {
		conversation, err = s.create(ctx, vehicle, userID)
	}
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(body) != "" {
		if _, err := s.Send(ctx, userID, conversation.ID, body); err != nil {
			return nil, err
		}
		return s.conversations.FindConversationByID(ctx, conversation.ID)
	}
	return conversation, nil
}

func (s *Service) create(ctx context.Context, vehicle *models.Vehicle, buyerID string) (*models.Conversation, error) {
	now := s.now()
	conversation := models.Conversation{
		ID:            uuid.NewString(),
		VehicleID:     vehicle.ID,
		BuyerID:       buyerID,
		SellerID:      vehicle.SellerID,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := s.conversations.InsertConversation(ctx, conversation)
	if errors.Is(err, db.ErrDuplicate) {
		// Created concurrently.
		return s.conversations.FindConversation(ctx, vehicle.ID, buyerID)
	}
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// Send appends a message from senderID and notifies the other participant.
func (s *Service) Send(ctx context.Context, senderID, conversationID, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: body is required", ErrValidation)
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return nil, fmt.Errorf("%w: body exceeds %d characters", ErrValidation, MaxBodyLength)
	}

	conversation, err := s.participantConversation(ctx, senderID, conversationID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	message := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversation.ID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      now,
	}
	if err := s.messages.InsertMessage(ctx, message); err != nil {
		return nil, err
	}

	recipient := conversation.Counterpart(senderID)
	if err := s.conversations.RecordMessage(ctx, conversation.ID, preview(body), now, recipient == conversation.BuyerID); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"conversation_id": conversation.ID,
		"sender_id":       senderID,
	}).Debug("Message sent")
	s.events.Publish(ctx, events.MessageTopic(recipient), message)
	return &message, nil
}

// List returns the conversations of userID.
func (s *Service) List(ctx context.Context, userID string) ([]models.Conversation, error) {
	return s.conversations.FindConversationsForUser(ctx, userID)
}

// History returns the latest messages of a conversation and marks those sent
// to userID as read.
func (s *Service) History(ctx context.Context, userID, conversationID string, limit int) ([]models.Message, error) {
	conversation, err := s.participantConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistory
	}

	messages, err := s.messages.FindMessages(ctx, conversation.ID, limit)
	if err != nil {
		return nil, err
	}

	if conversation.UnreadFor(userID) > 0 {
		if err := s.messages.MarkRead(ctx, conversation.ID, userID, s.now()); err != nil {
			return nil, err
		}
		if err := s.conversations.ResetUnread(ctx, conversation.ID, userID == conversation.BuyerID); err != nil {
			return nil, err
		}
	}
	return messages, nil
}

// Unread sums the unread counters of userID across conversations.
func (s *Service) Unread(ctx context.Context, userID string) (int, error) {
	conversations, err := s.conversations.FindConversationsForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	total := 0
	for i := range conversations {
		total += conversations[i].UnreadFor(userID)
	}
	return total, nil
}

func (s *Service) participantConversation(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	conversation, err := s.conversations.FindConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.IsParticipant(userID) {
		return nil, ErrForbidden
	}
	return conversation, nil
}

func preview(body string) string {
	if utf8.RuneCountInString(body) <= previewLength {
		return body
	}
	runes := []rune(body)
	return string(runes[:previewLength]) + "…"
}
