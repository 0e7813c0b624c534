package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommissionType selects how a rule computes its fee.
type CommissionType string

const (
	CommissionPercentage CommissionType = "percentage"
	CommissionFixed      CommissionType = "fixed"
)

// CommissionRule describes the fee charged on sales matching its constraints.
type CommissionRule struct {
	ID          string           `bson:"_id" json:"id"`
	Name        string           `bson:"name" json:"name"`
	Description string           `bson:"description,omitempty" json:"description,omitempty"`
	Type        CommissionType   `bson:"type" json:"type"`
	Value       decimal.Decimal  `bson:"value" json:"value"`
	MinPrice    *decimal.Decimal `bson:"min_price,omitempty" json:"min_price,omitempty"`
	MaxPrice    *decimal.Decimal `bson:"max_price,omitempty" json:"max_price,omitempty"`
	Role        *Role            `bson:"role,omitempty" json:"role,omitempty"`
	IsActive    bool             `bson:"is_active" json:"is_active"`
	Priority    int              `bson:"priority" json:"priority"`
	CreatedAt   time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `bson:"updated_at" json:"updated_at"`
}

// Commission is the fee recorded for a completed transaction.
type Commission struct {
	ID            string          `bson:"_id" json:"id"`
	TransactionID string          `bson:"transaction_id" json:"transaction_id"`
	RuleID        *string         `bson:"rule_id,omitempty" json:"rule_id,omitempty"`
	Amount        decimal.Decimal `bson:"amount" json:"amount"`
	Percentage    decimal.Decimal `bson:"percentage" json:"percentage"`
	Paid          bool            `bson:"paid" json:"paid"`
	PaidAt        *time.Time      `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
	CreatedAt     time.Time       `bson:"created_at" json:"created_at"`
}
