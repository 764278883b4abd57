// Package ranking sorts the merged country snapshot by a topic and pages the result.
package ranking

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"govstats/internal/model"
)

const (
	// DefaultPageSize applies when a query leaves PageSize at zero.
	DefaultPageSize = 20
	// MaxPageSize is the largest accepted page size.
	MaxPageSize = 250
)

var (
	ErrInvalidTopic     = errors.New("ranking: invalid topic")
	ErrInvalidPage      = errors.New("ranking: invalid page")
	ErrInvalidPageSize  = errors.New("ranking: invalid page size")
	ErrInvalidSortOrder = errors.New("ranking: invalid sort order")
	ErrCountryNotFound  = errors.New("ranking: country not found")
)

// SortOrder is the direction of a ranking.
type SortOrder string

const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

// ParseSortOrder accepts asc or desc in any case. An empty string means desc.
func ParseSortOrder(raw string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(SortDesc):
		return SortDesc, nil
	case string(SortAsc):
		return SortAsc, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSortOrder, raw)
	}
}

// SnapshotProvider returns the current merged snapshot.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (*model.Snapshot, error)
}

// Query selects one page of a ranking.
type Query struct {
	Topic     string
	Page      int
	PageSize  int
	SortOrder string
}

// RankedCountry is a merged country with its position in the ranking.
type RankedCountry struct {
	model.MergedCountry
	Rank int `json:"rank"`
}

// Pagination describes where a page sits in the full ranking.
type Pagination struct {
	CurrentPage     int  `json:"currentPage"`
	PageSize        int  `json:"pageSize"`
	TotalPages      int  `json:"totalPages"`
	TotalCountries  int  `json:"totalCountries"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

// Page is one page of ranked countries.
type Page struct {
	Countries   []RankedCountry `json:"countries"`
	Pagination  Pagination      `json:"pagination"`
	Topic       Topic           `json:"topic"`
	SortOrder   SortOrder       `json:"sortOrder"`
	SnapshotID  string          `json:"snapshotId"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// Engine answers ranking and lookup queries over the cached snapshot.
type Engine struct {
	snapshots       SnapshotProvider
	defaultPageSize int
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaultPageSize overrides DefaultPageSize. Values outside 1..MaxPageSize are ignored.
func WithDefaultPageSize(size int) Option {
	return func(e *Engine) {
		if size >= 1 && size <= MaxPageSize {
			e.defaultPageSize = size
		}
	}
}

// NewEngine constructs an Engine.
func NewEngine(snapshots SnapshotProvider, opts ...Option) (*Engine, error) {
	if snapshots == nil {
		return nil, errors.New("ranking: snapshot provider is required")
	}
	e := &Engine{snapshots: snapshots, defaultPageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type plan struct {
	topic    Topic
	order    SortOrder
	page     int
	pageSize int
}

func (e *Engine) validate(q Query) (plan, error) {
	topic, err := ParseTopic(q.Topic)
	if err != nil {
		return plan{}, err
	}
	order, err := ParseSortOrder(q.SortOrder)
	if err != nil {
		return plan{}, err
	}
	if q.Page < 1 {
		return plan{}, fmt.Errorf("%w: %d", ErrInvalidPage, q.Page)
	}
	size := q.PageSize
	if size == 0 {
		size = e.defaultPageSize
	}
	if size < 1 || size > MaxPageSize {
		return plan{}, fmt.Errorf("%w: %d (allowed 1..%d)", ErrInvalidPageSize, q.PageSize, MaxPageSize)
	}
	return plan{topic: topic, order: order, page: q.Page, pageSize: size}, nil
}

// GetPage validates q, then sorts the snapshot by the topic and returns the requested
// page. Input errors are reported before the snapshot is read, so a bad request never
// triggers a rebuild. Countries with equal values keep their snapshot order.
func (e *Engine) GetPage(ctx context.Context, q Query) (Page, error) {
	p, err := e.validate(q)
	if err != nil {
		return Page{}, err
	}

	snap, err := e.snapshots.Snapshot(ctx)
	if err != nil {
		return Page{}, err
	}

	sorted := Sort(snap.Countries, p.topic, p.order)
	total := len(sorted)
	totalPages := (total + p.pageSize - 1) / p.pageSize

	start := (p.page - 1) * p.pageSize
	end := min(start+p.pageSize, total)
	countries := make([]RankedCountry, 0, max(end-start, 0))
	for i := start; i < end; i++ {
		countries = append(countries, RankedCountry{MergedCountry: sorted[i], Rank: i + 1})
	}

	return Page{
		Countries: countries,
		Pagination: Pagination{
			CurrentPage:     p.page,
			PageSize:        p.pageSize,
			TotalPages:      totalPages,
			TotalCountries:  total,
			HasNextPage:     p.page < totalPages,
			HasPreviousPage: p.page > 1,
		},
		Topic:       p.topic,
		SortOrder:   p.order,
		SnapshotID:  snap.ID,
		LastUpdated: snap.BuiltAt,
	}, nil
}

// Sort returns a copy of countries ordered by the topic projection.
func Sort(countries []model.MergedCountry, topic Topic, order SortOrder) []model.MergedCountry {
	sorted := slices.Clone(countries)
	project := topic.projection()
	slices.SortStableFunc(sorted, func(a, b model.MergedCountry) int {
		if order == SortAsc {
			return cmp.Compare(project(a), project(b))
		}
		return cmp.Compare(project(b), project(a))
	})
	return sorted
}

// Countries returns the whole snapshot in store order.
func (e *Engine) Countries(ctx context.Context) (*model.Snapshot, error) {
	return e.snapshots.Snapshot(ctx)
}

// Country returns the merged record for code, matched case-insensitively.
func (e *Engine) Country(ctx context.Context, code string) (model.MergedCountry, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return model.MergedCountry{}, fmt.Errorf("%w: empty code", ErrCountryNotFound)
	}
	snap, err := e.snapshots.Snapshot(ctx)
	if err != nil {
		return model.MergedCountry{}, err
	}
	for _, c := range snap.Countries {
		if c.Code == code {
			return c, nil
		}
	}
	return model.MergedCountry{}, fmt.Errorf("%w: %s", ErrCountryNotFound, code)
}
