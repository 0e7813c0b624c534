package models

// Location is where a listed vehicle can be inspected.
type Location struct {
	City string  `bson:"city" json:"city"`
	Lat  float64 `bson:"lat,omitempty" json:"lat,omitempty"`
	Lon  float64 `bson:"lon,omitempty" json:"lon,omitempty"`
}
