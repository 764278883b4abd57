// Package reference holds the static per-country dataset the service is seeded with.
package reference

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"govstats/internal/model"
)

var (
	// ErrNotFound is returned when no record exists for a country code.
	ErrNotFound = errors.New("reference: country not found")
	// ErrInvalidDataset is returned when the seed data fails validation.
	ErrInvalidDataset = errors.New("reference: invalid dataset")
)

// Store is an immutable, ordered collection of static country records.
type Store struct {
	records []model.StaticCountryRecord
	index   map[string]int
}

// Load reads and validates a JSON or YAML dataset from path.
func Load(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("reference: dataset path is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}

	records, err := decodeDataset(path, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDataset, path, err)
	}
	return New(records...)
}

// New builds a store from records, keeping their order.
func New(records ...model.StaticCountryRecord) (*Store, error) {
	s := &Store{
		records: make([]model.StaticCountryRecord, 0, len(records)),
		index:   make(map[string]int, len(records)),
	}
	names := make(map[string]string, len(records))

	for i, record := range records {
		record.Code = strings.ToLower(strings.TrimSpace(record.Code))
		record.Name = strings.TrimSpace(record.Name)

		if err := validateRecord(record); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrInvalidDataset, i, err)
		}
		if _, ok := s.index[record.Code]; ok {
			return nil, fmt.Errorf("%w: duplicate code %q", ErrInvalidDataset, record.Code)
		}
		nameKey := strings.ToLower(record.Name)
		if other, ok := names[nameKey]; ok {
			return nil, fmt.Errorf("%w: duplicate name %q (codes %s, %s)", ErrInvalidDataset, record.Name, other, record.Code)
		}

		names[nameKey] = record.Code
		s.index[record.Code] = len(s.records)
		s.records = append(s.records, record)
	}
	return s, nil
}

func validateRecord(record model.StaticCountryRecord) error {
	if record.Code == "" {
		return errors.New("missing code")
	}
	if len(record.Code) != 2 || !isLetters(record.Code) {
		return fmt.Errorf("code %q must be two letters", record.Code)
	}
	if record.Name == "" {
		return fmt.Errorf("%s: missing name", record.Code)
	}
	if err := validateBreakdown(record.Revenue); err != nil {
		return fmt.Errorf("%s: revenue: %v", record.Code, err)
	}
	if err := validateBreakdown(record.Spending); err != nil {
		return fmt.Errorf("%s: spending: %v", record.Code, err)
	}
	return nil
}

func validateBreakdown(items []model.BreakdownItem) error {
	totals := 0
	for _, item := range items {
		if strings.EqualFold(strings.TrimSpace(item.Subtype), model.SubtypeTotal) {
			totals++
		}
	}
	if totals > 1 {
		return fmt.Errorf("%d entries with subtype %q", totals, model.SubtypeTotal)
	}
	return nil
}

func isLetters(value string) bool {
	for _, r := range value {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// Get returns the record for code. Lookup is case-insensitive.
func (s *Store) Get(code string) (model.StaticCountryRecord, error) {
	idx, ok := s.index[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return model.StaticCountryRecord{}, fmt.Errorf("%w: %q", ErrNotFound, code)
	}
	return s.records[idx], nil
}

// All returns every record in dataset order.
func (s *Store) All() []model.StaticCountryRecord {
	out := make([]model.StaticCountryRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Codes returns every country code in dataset order.
func (s *Store) Codes() []string {
	out := make([]string, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record.Code)
	}
	return out
}

// Len returns the number of records.
func (s *Store) Len() int { return len(s.records) }
