package reference

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"govstats/internal/model"
)

type rawDataset struct {
	Countries []rawCountry `json:"countries" yaml:"countries"`
}

type rawCountry struct {
	Code          string                `json:"code" yaml:"code"`
	Name          string                `json:"name" yaml:"name"`
	Capital       string                `json:"capital" yaml:"capital"`
	Currency      string                `json:"currency" yaml:"currency"`
	Organizations []string              `json:"organizations" yaml:"organizations"`
	Languages     []string              `json:"languages" yaml:"languages"`
	FlagURL       string                `json:"flagUrl" yaml:"flagUrl"`
	Continent     string                `json:"continent" yaml:"continent"`
	Timezone      string                `json:"timezone" yaml:"timezone"`
	Revenue       []model.BreakdownItem `json:"revenue" yaml:"revenue"`
	Spending      []model.BreakdownItem `json:"spending" yaml:"spending"`
}

func decodeDataset(path string, data []byte) ([]model.StaticCountryRecord, error) {
	var (
		raws []rawCountry
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raws, err = decodeYAML(data)
	case ".json", "":
		raws, err = decodeJSON(data)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	records := make([]model.StaticCountryRecord, 0, len(raws))
	for _, r := range raws {
		records = append(records, model.StaticCountryRecord{
			Code:          strings.ToLower(strings.TrimSpace(r.Code)),
			Name:          strings.TrimSpace(r.Name),
			Capital:       strings.TrimSpace(r.Capital),
			Currency:      strings.TrimSpace(r.Currency),
			Organizations: dedupeStrings(r.Organizations),
			Languages:     dedupeStrings(r.Languages),
			FlagURL:       strings.TrimSpace(r.FlagURL),
			Continent:     strings.TrimSpace(r.Continent),
			Timezone:      strings.TrimSpace(r.Timezone),
			Revenue:       r.Revenue,
			Spending:      r.Spending,
		})
	}
	return records, nil
}

// decodeJSON accepts either a bare array of countries or {"countries": [...]}.
func decodeJSON(data []byte) ([]rawCountry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("decode JSON: empty document")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.DisallowUnknownFields()

	if trimmed[0] == '[' {
		var raws []rawCountry
		if err := decoder.Decode(&raws); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
		return raws, nil
	}

	var dataset rawDataset
	if err := decoder.Decode(&dataset); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	return dataset.Countries, nil
}

func decodeYAML(data []byte) ([]rawCountry, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var dataset rawDataset
	if err := decoder.Decode(&dataset); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("decode YAML: empty document")
		}
		return nil, fmt.Errorf("decode YAML: %w", err)
	}
	return dataset.Countries, nil
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToUpper(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
