package model

import (
	"math"
	"testing"
	"time"
)

func TestNewMergedCountryDefaultsMissingIndicators(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	record := StaticCountryRecord{Code: "fr", Name: "France", Capital: "Paris"}

	merged := NewMergedCountry(record, IndicatorSnapshot{}, at)

	if merged.Population != 0 || merged.GDPNominal != 0 || merged.WorldGDPShare != 0 || merged.DebtToGDP != 0 {
		t.Fatalf("expected zero-defaulted indicators, got %+v", merged)
	}
	if merged.Code != "fr" || merged.Capital != "Paris" {
		t.Fatalf("static fields not carried over: %+v", merged.StaticCountryRecord)
	}
	if merged.Organizations == nil || merged.Languages == nil || merged.Revenue == nil || merged.Spending == nil {
		t.Fatalf("slices should never be nil")
	}
	if merged.LastUpdated.Location() != time.UTC {
		t.Fatalf("lastUpdated should be UTC, got %v", merged.LastUpdated.Location())
	}
}

func TestNewMergedCountryClampsInvalidValues(t *testing.T) {
	negative := -3.5
	nan := math.NaN()
	inf := math.Inf(1)
	population := int64(-1)

	merged := NewMergedCountry(StaticCountryRecord{Code: "xx", Name: "X"}, IndicatorSnapshot{
		Population:    &population,
		GDPNominal:    &negative,
		WorldGDPShare: &nan,
		DebtToGDP:     &inf,
	}, time.Now())

	if merged.Population != 0 || merged.GDPNominal != 0 || merged.WorldGDPShare != 0 || merged.DebtToGDP != 0 {
		t.Fatalf("invalid values should read as zero, got %+v", merged)
	}
}

func TestNewMergedCountryDoesNotAliasRecord(t *testing.T) {
	record := StaticCountryRecord{
		Code:    "us",
		Name:    "United States",
		Revenue: []BreakdownItem{{Name: "Total", Subtype: SubtypeTotal, Amount: 10}},
	}
	merged := NewMergedCountry(record, IndicatorSnapshot{}, time.Now())
	merged.Revenue[0].Amount = 99

	if record.Revenue[0].Amount != 10 {
		t.Fatalf("merged record must not share breakdown storage with the static record")
	}
}

func TestBreakdownTotal(t *testing.T) {
	tests := []struct {
		name  string
		items []BreakdownItem
		want  float64
	}{
		{name: "empty", items: nil, want: 0},
		{name: "no total", items: []BreakdownItem{{Name: "Defense", Subtype: "category", Amount: 4}}, want: 0},
		{name: "total last", items: []BreakdownItem{
			{Name: "Defense", Subtype: "category", Amount: 4},
			{Name: "Total", Subtype: "total", Amount: 12.5},
		}, want: 12.5},
		{name: "case insensitive", items: []BreakdownItem{{Name: "Total", Subtype: " TOTAL ", Amount: 7}}, want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BreakdownTotal(tt.items); got != tt.want {
				t.Fatalf("BreakdownTotal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSnapshotFresh(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var nilSnapshot *Snapshot
	if nilSnapshot.Fresh(now) {
		t.Fatalf("nil snapshot is never fresh")
	}
	snap := &Snapshot{ExpiresAt: now.Add(time.Minute)}
	if !snap.Fresh(now) {
		t.Fatalf("expected fresh before expiry")
	}
	if snap.Fresh(now.Add(time.Minute)) {
		t.Fatalf("expected stale at expiry")
	}
}
