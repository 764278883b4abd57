package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"govstats/internal/model"
)

const defaultConcurrency = 16

var (
	// ErrAggregationFailed is returned when a rebuild fails and no snapshot exists yet.
	ErrAggregationFailed = errors.New("aggregate: aggregation failed")
	// ErrNoReferenceData is returned when there are no static records to merge.
	ErrNoReferenceData = errors.New("aggregate: no reference data")
)

// IndicatorSource fetches time-varying indicators for a single country.
type IndicatorSource interface {
	FetchCountryIndicators(ctx context.Context, code string) (model.IndicatorSnapshot, error)
	FetchWorldGDPShare(ctx context.Context, code string) *float64
}

// ReferenceData lists the static records in their canonical order.
type ReferenceData interface {
	All() []model.StaticCountryRecord
}

// MergeResult is the output of one merge cycle.
type MergeResult struct {
	Countries []model.MergedCountry
	// Degraded lists the codes whose indicator fetch failed entirely.
	Degraded []string
}

// Merger combines static records with live indicators.
type Merger struct {
	reference   ReferenceData
	source      IndicatorSource
	concurrency int
	clock       clockwork.Clock
	logger      *log.Logger
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithConcurrency bounds the number of countries fetched at once. n <= 0 means no bound.
func WithConcurrency(n int) MergerOption {
	return func(m *Merger) { m.concurrency = n }
}

// WithMergerClock sets the clock used for lastUpdated timestamps.
func WithMergerClock(clock clockwork.Clock) MergerOption {
	return func(m *Merger) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithMergerLogger overrides the logger.
func WithMergerLogger(logger *log.Logger) MergerOption {
	return func(m *Merger) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMerger constructs a Merger.
func NewMerger(reference ReferenceData, source IndicatorSource, opts ...MergerOption) (*Merger, error) {
	if reference == nil {
		return nil, errors.New("merger requires reference data")
	}
	if source == nil {
		return nil, errors.New("merger requires an indicator source")
	}
	m := &Merger{
		reference:   reference,
		source:      source,
		concurrency: defaultConcurrency,
		clock:       clockwork.NewRealClock(),
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Merge builds one merged record. It is pure apart from the timestamp passed in.
func Merge(record model.StaticCountryRecord, indicators model.IndicatorSnapshot, at time.Time) model.MergedCountry {
	return model.NewMergedCountry(record, indicators, at)
}

// MergeAll merges every record of the reference data.
func (m *Merger) MergeAll(ctx context.Context) (MergeResult, error) {
	return m.MergeRecords(ctx, m.reference.All())
}

type outcome struct {
	indicators model.IndicatorSnapshot
	err        error
}

// MergeRecords fetches indicators for all records concurrently and merges each one.
// Results are indexed by input position, so the output order matches records no
// matter which fetch finishes first. A country whose fetch failed is kept with
// zero-valued indicators, including one still in flight when ctx ends. Only a
// context that is already done before the first fetch fails the merge.
func (m *Merger) MergeRecords(ctx context.Context, records []model.StaticCountryRecord) (MergeResult, error) {
	if len(records) == 0 {
		return MergeResult{}, ErrNoReferenceData
	}
	if err := ctx.Err(); err != nil {
		return MergeResult{}, fmt.Errorf("merge cancelled: %w", err)
	}

	outcomes := make([]outcome, len(records))
	var sem chan struct{}
	if m.concurrency > 0 {
		sem = make(chan struct{}, m.concurrency)
	}

	var wg sync.WaitGroup
	for i := range records {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					outcomes[i] = outcome{err: ctx.Err()}
					return
				}
			}
			outcomes[i] = m.fetch(ctx, records[i].Code)
		}(i)
	}
	wg.Wait()

	at := m.clock.Now()
	result := MergeResult{Countries: make([]model.MergedCountry, len(records))}
	for i, record := range records {
		if outcomes[i].err != nil {
			m.logger.Printf("aggregate: %s degraded to zero values: %v", record.Code, outcomes[i].err)
			result.Degraded = append(result.Degraded, record.Code)
		}
		result.Countries[i] = Merge(record, outcomes[i].indicators, at)
	}
	return result, nil
}

// fetch never panics past the join: a panicking source is reported as a failure.
func (m *Merger) fetch(ctx context.Context, code string) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: fmt.Errorf("indicator fetch panicked: %v", r)}
		}
	}()

	var (
		share *float64
		wg    sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() { _ = recover() }()
		share = m.source.FetchWorldGDPShare(ctx, code)
	}()

	indicators, err := m.source.FetchCountryIndicators(ctx, code)
	wg.Wait()
	if err != nil {
		return outcome{err: err}
	}
	indicators.WorldGDPShare = share
	return outcome{indicators: indicators}
}
