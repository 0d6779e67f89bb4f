package models

import (
	"encoding/json"
	"fmt"
)

// RateSnapshot is the wire model for one fetch of the upstream rates feed.
// Field names bind to the feed's JSON shape and must not change.
type RateSnapshot struct {
	Base            string             `json:"base"`
	Date            string             `json:"date"` // YYYY-MM-DD
	TimeLastUpdated int64              `json:"time_last_updated"`
	Rates           map[string]float64 `json:"rates"`
}

// IdentityKey derives the deterministic identity of a snapshot. Two fetches
// of the same upstream state produce the same key.
func (s *RateSnapshot) IdentityKey() string {
	return fmt.Sprintf("%s|%s|%d", s.Base, s.Date, s.TimeLastUpdated)
}

// PartitionKey groups snapshots of one base currency onto one partition.
func (s *RateSnapshot) PartitionKey() []byte {
	return []byte(s.Base)
}

func EncodeSnapshot(s *RateSnapshot) ([]byte, error) {
	if err := ValidateRateSnapshot(s); err != nil {
		return nil, err
	}

	return json.Marshal(s)
}

func DecodeSnapshot(data []byte) (*RateSnapshot, error) {
	var s RateSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode rate snapshot: %w", err)
	}

	if err := ValidateRateSnapshot(&s); err != nil {
		return nil, err
	}

	return &s, nil
}
