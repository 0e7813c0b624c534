package models

import (
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the lifecycle state of a sale attempt.
type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "pending"
	TransactionProcessing TransactionStatus = "processing"
	TransactionCompleted  TransactionStatus = "completed"
	TransactionCancelled  TransactionStatus = "cancelled"
	TransactionRefunded   TransactionStatus = "refunded"
)

// IsTerminal reports whether no lifecycle operation leaves the status.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionCompleted || s == TransactionCancelled || s == TransactionRefunded
}

// IsValidTransactionStatus checks a status filter value.
func IsValidTransactionStatus(s TransactionStatus) bool {
	switch s {
	case TransactionPending, TransactionProcessing, TransactionCompleted, TransactionCancelled, TransactionRefunded:
		return true
	}
	return false
}

// Transaction is one buyer's attempt to purchase a listing.
type Transaction struct {
	ID                 string            `bson:"_id" json:"id"`
	TransactionNumber  string            `bson:"transaction_number" json:"transaction_number"`
	VehicleID          string            `bson:"vehicle_id" json:"vehicle_id"`
	BuyerID            string            `bson:"buyer_id" json:"buyer_id"`
	SellerID           string            `bson:"seller_id" json:"seller_id"`
	Price              decimal.Decimal   `bson:"price" json:"price"`
	CommissionAmount   decimal.Decimal   `bson:"commission_amount" json:"commission_amount"`
	NetAmount          decimal.Decimal   `bson:"net_amount" json:"net_amount"`
	Status             TransactionStatus `bson:"status" json:"status"`
	Notes              string            `bson:"notes,omitempty" json:"notes,omitempty"`
	PaymentReference   string            `bson:"payment_reference,omitempty" json:"payment_reference,omitempty"`
	CancellationReason string            `bson:"cancellation_reason,omitempty" json:"cancellation_reason,omitempty"`
	ProcessedAt        *time.Time        `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
	CompletedAt        *time.Time        `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	CancelledAt        *time.Time        `bson:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`
	CreatedAt          time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time         `bson:"updated_at" json:"updated_at"`
}

// CanBeProcessed reports whether process() is allowed.
func (t *Transaction) CanBeProcessed() bool {
	return t.Status == TransactionPending
}

// CanBeCompleted reports whether complete() is allowed.
func (t *Transaction) CanBeCompleted() bool {
	return t.Status == TransactionProcessing
}

// CanBeCancelled reports whether cancel() is allowed.
func (t *Transaction) CanBeCancelled() bool {
	return t.Status == TransactionPending || t.Status == TransactionProcessing
}

// IsParticipant reports whether the user is the buyer or the seller.
func (t *Transaction) IsParticipant(userID string) bool {
	return userID != "" && (t.BuyerID == userID || t.SellerID == userID)
}

const base36Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewTransactionNumber builds a TXN-YYYYMMDD-XXXXXX number.
// Uniqueness is not checked.
func NewTransactionNumber(now time.Time, rng *rand.Rand) string {
	var b strings.Builder
	b.WriteString("TXN-")
	b.WriteString(now.UTC().Format("20060102"))
	b.WriteByte('-')
	for i := 0; i < 6; i++ {
		b.WriteByte(base36Alphabet[rng.Intn(len(base36Alphabet))])
	}
	return b.String()
}
