package model

import (
	"math"
	"strings"
	"time"
)

// SubtypeTotal marks the aggregate entry of a revenue or spending breakdown.
const SubtypeTotal = "total"

// BreakdownItem is a single line of a revenue or spending breakdown.
type BreakdownItem struct {
	Name    string  `json:"name" yaml:"name"`
	Subtype string  `json:"subtype" yaml:"subtype"`
	Amount  float64 `json:"amount" yaml:"amount"`
}

// StaticCountryRecord holds the attributes of a country that never change at runtime.
type StaticCountryRecord struct {
	Code          string          `json:"code" yaml:"code"`
	Name          string          `json:"name" yaml:"name"`
	Capital       string          `json:"capital" yaml:"capital"`
	Currency      string          `json:"currency" yaml:"currency"`
	Organizations []string        `json:"organizations" yaml:"organizations"`
	Languages     []string        `json:"languages" yaml:"languages"`
	FlagURL       string          `json:"flagUrl" yaml:"flagUrl"`
	Continent     string          `json:"continent" yaml:"continent"`
	Timezone      string          `json:"timezone" yaml:"timezone"`
	Revenue       []BreakdownItem `json:"revenue" yaml:"revenue"`
	Spending      []BreakdownItem `json:"spending" yaml:"spending"`
}

// IndicatorSnapshot carries the time-varying indicators of one country for one fetch
// cycle. A nil field means the upstream had no usable value.
type IndicatorSnapshot struct {
	Population    *int64   `json:"population,omitempty"`
	GDPNominal    *float64 `json:"gdpNominal,omitempty"`
	WorldGDPShare *float64 `json:"worldGdpShare,omitempty"`
	DebtToGDP     *float64 `json:"debtToGdp,omitempty"`
}

// MergedCountry is the denormalised record served to clients. Every numeric field is
// always present; missing upstream data reads as zero.
type MergedCountry struct {
	StaticCountryRecord
	Population    int64     `json:"population"`
	GDPNominal    float64   `json:"gdpNominal"`
	WorldGDPShare float64   `json:"worldGdpShare"`
	DebtToGDP     float64   `json:"debtToGdp"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// NewMergedCountry is the only place indicator values are defaulted: absent, negative
// or non-finite values become zero and nil slices become empty ones.
func NewMergedCountry(record StaticCountryRecord, indicators IndicatorSnapshot, at time.Time) MergedCountry {
	merged := MergedCountry{
		StaticCountryRecord: cloneRecord(record),
		LastUpdated:         at.UTC(),
	}
	if indicators.Population != nil && *indicators.Population > 0 {
		merged.Population = *indicators.Population
	}
	merged.GDPNominal = nonNegative(indicators.GDPNominal)
	merged.WorldGDPShare = nonNegative(indicators.WorldGDPShare)
	merged.DebtToGDP = nonNegative(indicators.DebtToGDP)
	return merged
}

// BreakdownTotal returns the amount of the "total" entry, or zero if there is none.
func BreakdownTotal(items []BreakdownItem) float64 {
	for _, item := range items {
		if strings.EqualFold(strings.TrimSpace(item.Subtype), SubtypeTotal) {
			if math.IsNaN(item.Amount) || math.IsInf(item.Amount, 0) {
				return 0
			}
			return item.Amount
		}
	}
	return 0
}

// Snapshot is the full set of merged countries valid for one cache cycle.
type Snapshot struct {
	ID        string          `json:"id"`
	Countries []MergedCountry `json:"countries"`
	BuiltAt   time.Time       `json:"builtAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Degraded  int             `json:"degraded"`
}

// Fresh reports whether the snapshot may still be served at now.
func (s *Snapshot) Fresh(now time.Time) bool {
	return s != nil && now.Before(s.ExpiresAt)
}

func nonNegative(value *float64) float64 {
	if value == nil {
		return 0
	}
	v := *value
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func cloneRecord(record StaticCountryRecord) StaticCountryRecord {
	record.Organizations = cloneStrings(record.Organizations)
	record.Languages = cloneStrings(record.Languages)
	record.Revenue = cloneBreakdown(record.Revenue)
	record.Spending = cloneBreakdown(record.Spending)
	return record
}

func cloneStrings(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func cloneBreakdown(items []BreakdownItem) []BreakdownItem {
	out := make([]BreakdownItem, len(items))
	copy(out, items)
	return out
}
