package rates

import (
	"time"

	"ratefeed/pkg/models"
)

// RateDocument is the stored form of one RateSnapshot. The _id is the
// snapshot identity key, so storing the same snapshot again replaces the
// document instead of adding one.
type RateDocument struct {
	ID             string             `bson:"_id" json:"id"`
	Base           string             `bson:"base" json:"base"`
	ObservedAt     string             `bson:"observed_at" json:"observed_at"`
	FetchedAtEpoch int64              `bson:"fetched_at_epoch" json:"fetched_at_epoch"`
	Rates          map[string]float64 `bson:"rates" json:"rates"`
	StoredAt       time.Time          `bson:"stored_at" json:"stored_at"`
}

func NewRateDocument(snapshot *models.RateSnapshot) *RateDocument {
	return &RateDocument{
		ID:             snapshot.IdentityKey(),
		Base:           snapshot.Base,
		ObservedAt:     snapshot.Date,
		FetchedAtEpoch: snapshot.TimeLastUpdated,
		Rates:          snapshot.Rates,
		StoredAt:       time.Now().UTC(),
	}
}

// IndexInfo is the index metadata exposed by the store inspection endpoint.
type IndexInfo struct {
	Name   string                 `json:"name"`
	Keys   map[string]interface{} `json:"keys"`
	Unique bool                   `json:"unique,omitempty"`
}

// StoreStatus reports store reachability for the status endpoint.
type StoreStatus struct {
	Reachable  bool   `json:"reachable"`
	Database   string `json:"database"`
	Collection string `json:"collection"`
	Documents  int64  `json:"documents"`
	Breaker    string `json:"breaker,omitempty"`
}
