package models

import "time"

type RateSnapshotBuilder struct {
	snapshot *RateSnapshot
}

func NewRateSnapshotBuilder() *RateSnapshotBuilder {
	return &RateSnapshotBuilder{
		snapshot: &RateSnapshot{
			Rates: make(map[string]float64),
		},
	}
}

func (b *RateSnapshotBuilder) WithBase(base string) *RateSnapshotBuilder {
	b.snapshot.Base = base
	return b
}

func (b *RateSnapshotBuilder) WithDate(date string) *RateSnapshotBuilder {
	b.snapshot.Date = date
	return b
}

func (b *RateSnapshotBuilder) WithTimeLastUpdated(epoch int64) *RateSnapshotBuilder {
	b.snapshot.TimeLastUpdated = epoch
	return b
}

func (b *RateSnapshotBuilder) WithRate(currency string, rate float64) *RateSnapshotBuilder {
	b.snapshot.Rates[currency] = rate
	return b
}

func (b *RateSnapshotBuilder) WithRates(rates map[string]float64) *RateSnapshotBuilder {
	b.snapshot.Rates = rates
	return b
}

func (b *RateSnapshotBuilder) Build() *RateSnapshot {
	if b.snapshot.Date == "" {
		b.snapshot.Date = time.Now().UTC().Format("2006-01-02")
	}

	if b.snapshot.TimeLastUpdated == 0 {
		b.snapshot.TimeLastUpdated = time.Now().Unix()
	}

	return b.snapshot
}
