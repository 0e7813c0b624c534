package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// VehicleStatus is the availability state of a listing.
type VehicleStatus string

const (
	VehicleAvailable VehicleStatus = "available"
	VehicleReserved  VehicleStatus = "reserved"
	VehicleSold      VehicleStatus = "sold"
	VehicleInactive  VehicleStatus = "inactive"
)

// VehicleCondition describes the wear of a listed vehicle.
type VehicleCondition string

const (
	ConditionNew       VehicleCondition = "new"
	ConditionUsed      VehicleCondition = "used"
	ConditionCertified VehicleCondition = "certified"
)

// Vehicle represents a vehicle listed for sale.
type Vehicle struct {
	ID           string           `bson:"_id" json:"id"`
	SellerID     string           `bson:"seller_id" json:"seller_id"`
	Make         string           `bson:"make" json:"make"`
	Model        string           `bson:"model" json:"model"`
	Year         int              `bson:"year" json:"year"`
	Mileage      int              `bson:"mileage" json:"mileage"` // in kilometers
	FuelType     string           `bson:"fuel_type" json:"fuel_type"`
	Transmission string           `bson:"transmission" json:"transmission"`
	BodyType     string           `bson:"body_type" json:"body_type"`
	Color        string           `bson:"color" json:"color"`
	Description  string           `bson:"description" json:"description"`
	Condition    VehicleCondition `bson:"condition" json:"condition"`
	Price        decimal.Decimal  `bson:"price" json:"price"`
	Location     Location         `bson:"location" json:"location"`
	Status       VehicleStatus    `bson:"status" json:"status"`
	ReservedBy   string           `bson:"reserved_by,omitempty" json:"reserved_by,omitempty"`
	SoldAt       *time.Time       `bson:"sold_at,omitempty" json:"sold_at,omitempty"`
	CreatedAt    time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `bson:"updated_at" json:"updated_at"`
}

// IsValidCondition checks a listing condition.
func IsValidCondition(c VehicleCondition) bool {
	switch c {
	case ConditionNew, ConditionUsed, ConditionCertified:
		return true
	}
	return false
}

// IsValidVehicleStatus checks a listing status.
func IsValidVehicleStatus(s VehicleStatus) bool {
	switch s {
	case VehicleAvailable, VehicleReserved, VehicleSold, VehicleInactive:
		return true
	}
	return false
}

// SellerSettable reports whether a seller may set the status directly.
// Reserved and sold are only reached through transactions.
func (s VehicleStatus) SellerSettable() bool {
	return s == VehicleAvailable || s == VehicleInactive
}

// VehicleFilter holds listing search criteria.
type VehicleFilter struct {
	Make      string
	Model     string
	Condition VehicleCondition
	FuelType  string
	City      string
	SellerID  string
	Status    VehicleStatus
	MinPrice  *decimal.Decimal
	MaxPrice  *decimal.Decimal
	MinYear   int
	MaxYear   int
	Sort      string
	Page      int
	Limit     int
}
