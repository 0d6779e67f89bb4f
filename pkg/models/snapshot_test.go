package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityKey(t *testing.T) {
	snapshot := NewRateSnapshotBuilder().
		WithBase("USD").
		WithDate("2025-06-26").
		WithTimeLastUpdated(1719360000).
		WithRate("EUR", 0.85).
		WithRate("GBP", 0.73).
		Build()

	assert.Equal(t, "USD|2025-06-26|1719360000", snapshot.IdentityKey())

	refetched := NewRateSnapshotBuilder().
		WithBase("USD").
		WithDate("2025-06-26").
		WithTimeLastUpdated(1719360000).
		WithRate("EUR", 0.85).
		Build()

	assert.Equal(t, snapshot.IdentityKey(), refetched.IdentityKey(),
		"same upstream state must derive the same identity")
}

func TestPartitionKey(t *testing.T) {
	snapshot := NewRateSnapshotBuilder().WithBase("EUR").WithRate("USD", 1.08).Build()
	assert.Equal(t, []byte("EUR"), snapshot.PartitionKey())
}

func TestDecodeSnapshot(t *testing.T) {
	payload := []byte(`{
		"base": "USD",
		"date": "2025-06-26",
		"time_last_updated": 1719360000,
		"rates": {"EUR": 0.85, "GBP": 0.73}
	}`)

	snapshot, err := DecodeSnapshot(payload)
	require.NoError(t, err)

	assert.Equal(t, "USD", snapshot.Base)
	assert.Equal(t, "2025-06-26", snapshot.Date)
	assert.Equal(t, int64(1719360000), snapshot.TimeLastUpdated)
	assert.InDelta(t, 0.85, snapshot.Rates["EUR"], 1e-9)
	assert.InDelta(t, 0.73, snapshot.Rates["GBP"], 1e-9)
}

func TestDecodeSnapshotRejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{
			name:    "not json",
			payload: `not-json-at-all`,
		},
		{
			name:    "wrong field types",
			payload: `{"base": 42, "date": "2025-06-26", "time_last_updated": 1719360000, "rates": {}}`,
		},
		{
			name:    "missing base",
			payload: `{"date": "2025-06-26", "time_last_updated": 1719360000, "rates": {"EUR": 0.85}}`,
		},
		{
			name:    "bad date format",
			payload: `{"base": "USD", "date": "26/06/2025", "time_last_updated": 1719360000, "rates": {"EUR": 0.85}}`,
		},
		{
			name:    "empty rates",
			payload: `{"base": "USD", "date": "2025-06-26", "time_last_updated": 1719360000, "rates": {}}`,
		},
		{
			name:    "zero epoch",
			payload: `{"base": "USD", "date": "2025-06-26", "time_last_updated": 0, "rates": {"EUR": 0.85}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSnapshot([]byte(tt.payload))
			assert.Error(t, err)
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := NewRateSnapshotBuilder().
		WithBase("USD").
		WithDate("2025-06-26").
		WithTimeLastUpdated(1719360000).
		WithRates(map[string]float64{"EUR": 0.85, "GBP": 0.73, "JPY": 160.21}).
		Build()

	encoded, err := EncodeSnapshot(original)
	require.NoError(t, err)

	decoded, err := DecodeSnapshot(encoded)
	require.NoError(t, err)

	assert.Equal(t, original, decoded)
	assert.Equal(t, original.IdentityKey(), decoded.IdentityKey())
}

func TestEncodeSnapshotRejectsInvalid(t *testing.T) {
	_, err := EncodeSnapshot(&RateSnapshot{Base: "", Date: "2025-06-26"})
	assert.Error(t, err)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "base", validationErr.Field)
}

func TestValidateRateSnapshot(t *testing.T) {
	tests := []struct {
		name      string
		snapshot  *RateSnapshot
		wantField string
	}{
		{
			name:      "nil snapshot",
			snapshot:  nil,
			wantField: "snapshot",
		},
		{
			name: "missing base",
			snapshot: &RateSnapshot{
				Date:            "2025-06-26",
				TimeLastUpdated: 1719360000,
				Rates:           map[string]float64{"EUR": 0.85},
			},
			wantField: "base",
		},
		{
			name: "negative epoch",
			snapshot: &RateSnapshot{
				Base:            "USD",
				Date:            "2025-06-26",
				TimeLastUpdated: -5,
				Rates:           map[string]float64{"EUR": 0.85},
			},
			wantField: "time_last_updated",
		},
		{
			name: "nil rates",
			snapshot: &RateSnapshot{
				Base:            "USD",
				Date:            "2025-06-26",
				TimeLastUpdated: 1719360000,
			},
			wantField: "rates",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRateSnapshot(tt.snapshot)
			require.Error(t, err)

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.wantField, validationErr.Field)
		})
	}

	valid := NewRateSnapshotBuilder().
		WithBase("USD").
		WithDate("2025-06-26").
		WithTimeLastUpdated(1719360000).
		WithRate("EUR", 0.85).
		Build()
	assert.NoError(t, ValidateRateSnapshot(valid))
}
