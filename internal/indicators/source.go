// Package indicators turns World Bank series into per-country indicator snapshots.
package indicators

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"govstats/internal/model"
	"govstats/internal/worldbank"
)

const (
	defaultWindowYears = 2
	defaultLookupTTL   = 2 * time.Minute
	shareDecimals      = 3
)

// ErrUpstreamUnavailable is returned when no indicator of a country could be fetched.
var ErrUpstreamUnavailable = errors.New("indicators: upstream unavailable")

// Fetcher is the subset of the World Bank client the source depends on.
type Fetcher interface {
	Observations(ctx context.Context, country, indicator string, fromYear, toYear int) ([]worldbank.Observation, error)
}

// Source fetches indicators per country. Identical lookups issued within LookupTTL are
// served from memory, and concurrent identical lookups share one upstream call.
type Source struct {
	fetcher     Fetcher
	clock       clockwork.Clock
	windowYears int
	lookupTTL   time.Duration
	logger      *log.Logger

	group singleflight.Group
	mu    sync.Mutex
	memo  map[string]memoEntry
}

type memoEntry struct {
	value   *float64
	expires time.Time
}

// Option configures a Source.
type Option func(*Source)

// WithClock sets the clock used for date ranges and memo expiry.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Source) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithWindowYears sets how many past years are queried for each indicator.
func WithWindowYears(years int) Option {
	return func(s *Source) {
		if years > 0 {
			s.windowYears = years
		}
	}
}

// WithLookupTTL sets how long successful lookups are reused. Zero disables the memo.
func WithLookupTTL(ttl time.Duration) Option {
	return func(s *Source) {
		if ttl >= 0 {
			s.lookupTTL = ttl
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSource constructs a Source on top of fetcher.
func NewSource(fetcher Fetcher, opts ...Option) (*Source, error) {
	if fetcher == nil {
		return nil, errors.New("indicators: fetcher is required")
	}
	s := &Source{
		fetcher:     fetcher,
		clock:       clockwork.NewRealClock(),
		windowYears: defaultWindowYears,
		lookupTTL:   defaultLookupTTL,
		logger:      log.Default(),
		memo:        make(map[string]memoEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FetchCountryIndicators looks up population, nominal GDP and debt-to-GDP in parallel.
// A failed lookup only leaves its own indicator absent; ErrUpstreamUnavailable is
// returned only when all of them failed.
func (s *Source) FetchCountryIndicators(ctx context.Context, code string) (model.IndicatorSnapshot, error) {
	ids := []string{worldbank.IndicatorPopulation, worldbank.IndicatorGDPNominal, worldbank.IndicatorDebtToGDP}
	values := make([]*float64, len(ids))
	errs := make([]error, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			values[i], errs[i] = s.lookup(ctx, code, id)
		}(i, id)
	}
	wg.Wait()

	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			s.logger.Printf("indicators: %s %s unavailable: %v", code, ids[i], err)
		}
	}
	if failed == len(ids) {
		return model.IndicatorSnapshot{}, fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, code, errors.Join(errs...))
	}

	snapshot := model.IndicatorSnapshot{
		GDPNominal: values[1],
		DebtToGDP:  values[2],
	}
	if values[0] != nil {
		population := int64(math.Round(*values[0]))
		snapshot.Population = &population
	}
	return snapshot, nil
}

// FetchWorldGDPShare returns the country's share of world GDP in percent, rounded to
// three decimals, or nil when either operand is unavailable.
func (s *Source) FetchWorldGDPShare(ctx context.Context, code string) *float64 {
	var (
		countryGDP, worldGDP *float64
		countryErr, worldErr error
		wg                   sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		countryGDP, countryErr = s.lookup(ctx, code, worldbank.IndicatorGDPNominal)
	}()
	go func() {
		defer wg.Done()
		worldGDP, worldErr = s.lookup(ctx, worldbank.WorldCode, worldbank.IndicatorGDPNominal)
	}()
	wg.Wait()

	if countryErr != nil || worldErr != nil {
		s.logger.Printf("indicators: world gdp share for %s unavailable: %v", code, errors.Join(countryErr, worldErr))
		return nil
	}
	return WorldGDPShare(countryGDP, worldGDP)
}

// WorldGDPShare computes countryGDP / worldGDP * 100 rounded to three decimals.
func WorldGDPShare(countryGDP, worldGDP *float64) *float64 {
	if countryGDP == nil || worldGDP == nil || *worldGDP <= 0 || *countryGDP < 0 {
		return nil
	}
	share, _ := decimal.NewFromFloat(*countryGDP).
		Div(decimal.NewFromFloat(*worldGDP)).
		Mul(decimal.NewFromInt(100)).
		Round(shareDecimals).
		Float64()
	return &share
}

func (s *Source) lookup(ctx context.Context, code, indicator string) (*float64, error) {
	key := strings.ToUpper(strings.TrimSpace(code)) + "|" + indicator
	if value, ok := s.memoized(key); ok {
		return value, nil
	}

	result, err, _ := s.group.Do(key, func() (any, error) {
		toYear := s.clock.Now().Year() - 1
		fromYear := toYear - s.windowYears + 1

		observations, err := s.fetcher.Observations(ctx, code, indicator, fromYear, toYear)
		if err != nil {
			return nil, err
		}
		value := LatestValue(observations)
		s.remember(key, value)
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*float64), nil
}

func (s *Source) memoized(key string) (*float64, bool) {
	if s.lookupTTL <= 0 {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.memo[key]
	if !ok {
		return nil, false
	}
	if !s.clock.Now().Before(entry.expires) {
		delete(s.memo, key)
		return nil, false
	}
	return entry.value, true
}

func (s *Source) remember(key string, value *float64) {
	if s.lookupTTL <= 0 {
		return
	}
	s.mu.Lock()
	s.memo[key] = memoEntry{value: value, expires: s.clock.Now().Add(s.lookupTTL)}
	s.mu.Unlock()
}

// LatestValue returns the first non-null value scanning from the most recent year
// backwards, or nil when every year is null.
func LatestValue(observations []worldbank.Observation) *float64 {
	sorted := make([]worldbank.Observation, len(observations))
	copy(sorted, observations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Year() > sorted[j].Year()
	})

	for _, obs := range sorted {
		if obs.Value == nil || math.IsNaN(*obs.Value) || math.IsInf(*obs.Value, 0) {
			continue
		}
		value := *obs.Value
		return &value
	}
	return nil
}
