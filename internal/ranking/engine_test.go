package ranking

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govstats/internal/model"
)

type fakeSnapshots struct {
	snap  *model.Snapshot
	err   error
	calls atomic.Int32
}

func (f *fakeSnapshots) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

func country(code string, population int64, spending float64) model.MergedCountry {
	return model.NewMergedCountry(model.StaticCountryRecord{
		Code: code,
		Name: "Country " + code,
		Spending: []model.BreakdownItem{
			{Name: "Health", Subtype: "health", Amount: spending / 4},
			{Name: "Total", Subtype: model.SubtypeTotal, Amount: spending},
		},
	}, model.IndicatorSnapshot{Population: &population}, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
}

func newTestEngine(t *testing.T, countries ...model.MergedCountry) (*Engine, *fakeSnapshots) {
	t.Helper()
	provider := &fakeSnapshots{snap: &model.Snapshot{
		ID:        "snap-1",
		Countries: countries,
		BuiltAt:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}}
	engine, err := NewEngine(provider)
	require.NoError(t, err)
	return engine, provider
}

func codes(page Page) []string {
	out := make([]string, 0, len(page.Countries))
	for _, c := range page.Countries {
		out = append(out, c.Code)
	}
	return out
}

func TestGetPagePopulationDescending(t *testing.T) {
	engine, _ := newTestEngine(t, country("fr", 68_000_000, 10), country("us", 331_000_000, 20))

	page, err := engine.GetPage(context.Background(), Query{Topic: "population", Page: 1, PageSize: 10, SortOrder: "desc"})
	require.NoError(t, err)
	require.Len(t, page.Countries, 2)
	assert.Equal(t, "us", page.Countries[0].Code)
	assert.Equal(t, 1, page.Countries[0].Rank)
	assert.Equal(t, "fr", page.Countries[1].Code)
	assert.Equal(t, 2, page.Countries[1].Rank)
	assert.Equal(t, TopicPopulation, page.Topic)
	assert.Equal(t, SortDesc, page.SortOrder)
	assert.Equal(t, "snap-1", page.SnapshotID)
}

func TestGetPageSecondPageAscending(t *testing.T) {
	countries := make([]model.MergedCountry, 0, 45)
	for i := 45; i >= 1; i-- {
		countries = append(countries, country(fmt.Sprintf("c%02d", i), 1, float64(i)))
	}
	engine, _ := newTestEngine(t, countries...)

	page, err := engine.GetPage(context.Background(), Query{Topic: "spending", Page: 2, PageSize: 20, SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, page.Countries, 20)
	for i, c := range page.Countries {
		assert.Equal(t, 21+i, c.Rank)
		assert.Equal(t, fmt.Sprintf("c%02d", 21+i), c.Code)
	}
	assert.Equal(t, Pagination{
		CurrentPage:     2,
		PageSize:        20,
		TotalPages:      3,
		TotalCountries:  45,
		HasNextPage:     true,
		HasPreviousPage: true,
	}, page.Pagination)
}

func TestGetPageRanksAreContiguous(t *testing.T) {
	countries := []model.MergedCountry{
		country("aa", 5, 1), country("bb", 5, 2), country("cc", 0, 3),
		country("dd", 9, 3), country("ee", 1, 0),
	}
	engine, _ := newTestEngine(t, countries...)

	for _, info := range Topics() {
		for _, order := range []string{"asc", "desc"} {
			page, err := engine.GetPage(context.Background(), Query{Topic: string(info.Topic), Page: 1, PageSize: MaxPageSize, SortOrder: order})
			require.NoError(t, err)
			require.Len(t, page.Countries, len(countries))
			seen := make(map[string]bool)
			for i, c := range page.Countries {
				assert.Equal(t, i+1, c.Rank)
				assert.False(t, seen[c.Code])
				seen[c.Code] = true
			}
		}
	}
}

func TestGetPageTiesKeepSnapshotOrder(t *testing.T) {
	countries := []model.MergedCountry{
		country("zz", 10, 0), country("aa", 10, 0), country("mm", 20, 0), country("bb", 10, 0),
	}
	engine, _ := newTestEngine(t, countries...)
	ctx := context.Background()

	desc, err := engine.GetPage(ctx, Query{Topic: "population", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"mm", "zz", "aa", "bb"}, codes(desc))

	asc, err := engine.GetPage(ctx, Query{Topic: "population", Page: 1, PageSize: 10, SortOrder: "asc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"zz", "aa", "bb", "mm"}, codes(asc))

	for i := 0; i < 5; i++ {
		again, err := engine.GetPage(ctx, Query{Topic: "population", Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, codes(desc), codes(again))
	}
}

func TestGetPageBeyondLastPage(t *testing.T) {
	engine, _ := newTestEngine(t, country("us", 1, 1), country("fr", 2, 2))

	page, err := engine.GetPage(context.Background(), Query{Topic: "revenue", Page: 5, PageSize: 1})
	require.NoError(t, err)
	assert.Empty(t, page.Countries)
	assert.NotNil(t, page.Countries)
	assert.Equal(t, 2, page.Pagination.TotalPages)
	assert.False(t, page.Pagination.HasNextPage)
	assert.True(t, page.Pagination.HasPreviousPage)
}

func TestGetPageDefaults(t *testing.T) {
	engine, _ := newTestEngine(t, country("us", 1, 1))

	page, err := engine.GetPage(context.Background(), Query{Topic: "POPULATION", Page: 1})
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, page.Pagination.PageSize)
	assert.Equal(t, SortDesc, page.SortOrder)
}

func TestGetPageAliases(t *testing.T) {
	engine, _ := newTestEngine(t, country("us", 1, 1))

	page, err := engine.GetPage(context.Background(), Query{Topic: "spending-total", Page: 1})
	require.NoError(t, err)
	assert.Equal(t, TopicSpending, page.Topic)

	page, err = engine.GetPage(context.Background(), Query{Topic: "revenue-total", Page: 1})
	require.NoError(t, err)
	assert.Equal(t, TopicRevenue, page.Topic)
}

func TestGetPageRejectsInvalidInputWithoutReadingSnapshot(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  error
	}{
		{name: "unknown topic", query: Query{Topic: "invalid-topic", Page: 1}, want: ErrInvalidTopic},
		{name: "empty topic", query: Query{Page: 1}, want: ErrInvalidTopic},
		{name: "page zero", query: Query{Topic: "population", Page: 0}, want: ErrInvalidPage},
		{name: "negative page", query: Query{Topic: "population", Page: -3}, want: ErrInvalidPage},
		{name: "negative page size", query: Query{Topic: "population", Page: 1, PageSize: -1}, want: ErrInvalidPageSize},
		{name: "page size too large", query: Query{Topic: "population", Page: 1, PageSize: MaxPageSize + 1}, want: ErrInvalidPageSize},
		{name: "unknown sort order", query: Query{Topic: "population", Page: 1, SortOrder: "sideways"}, want: ErrInvalidSortOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, provider := newTestEngine(t, country("us", 1, 1))
			_, err := engine.GetPage(context.Background(), tt.query)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, provider.calls.Load())
		})
	}
}

func TestGetPagePropagatesSnapshotError(t *testing.T) {
	boom := errors.New("aggregation failed")
	engine, err := NewEngine(&fakeSnapshots{err: boom})
	require.NoError(t, err)

	_, err = engine.GetPage(context.Background(), Query{Topic: "population", Page: 1})
	assert.ErrorIs(t, err, boom)
}

func TestCountry(t *testing.T) {
	engine, _ := newTestEngine(t, country("us", 1, 1), country("fr", 2, 2))

	fr, err := engine.Country(context.Background(), "FR")
	require.NoError(t, err)
	assert.Equal(t, int64(2), fr.Population)

	_, err = engine.Country(context.Background(), "xx")
	assert.ErrorIs(t, err, ErrCountryNotFound)
}

func TestCountries(t *testing.T) {
	engine, _ := newTestEngine(t, country("us", 1, 1), country("fr", 2, 2))

	snap, err := engine.Countries(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Countries, 2)
	assert.Equal(t, "us", snap.Countries[0].Code)
}

func TestSortDoesNotMutateInput(t *testing.T) {
	in := []model.MergedCountry{country("aa", 1, 0), country("bb", 2, 0)}
	out := Sort(in, TopicPopulation, SortDesc)
	assert.Equal(t, "bb", out[0].Code)
	assert.Equal(t, "aa", in[0].Code)
}

func TestParseTopic(t *testing.T) {
	for _, raw := range []string{"population", "gdp-nominal", "world-gdp-share", "spending", "revenue", "debt-to-gdp", " Spending-Total "} {
		_, err := ParseTopic(raw)
		assert.NoError(t, err, raw)
	}
	_, err := ParseTopic("gdp")
	assert.ErrorIs(t, err, ErrInvalidTopic)
}

func TestTopicValueUsesBreakdownTotal(t *testing.T) {
	c := country("us", 7, 400)
	assert.Equal(t, 400.0, TopicSpending.Value(c))
	assert.Equal(t, 0.0, TopicRevenue.Value(c))
	assert.Equal(t, 7.0, TopicPopulation.Value(c))
}
