package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govstats/internal/model"
	"govstats/internal/store"
)

// These tests need a live server; set GOVSTATS_TEST_REDIS_ADDR to run them.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("GOVSTATS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GOVSTATS_TEST_REDIS_ADDR not set")
	}
	s, err := New(context.Background(), Options{
		Addr:      addr,
		DB:        15,
		KeyPrefix: "govstats-test-" + uuid.NewString(),
		Retention: time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.client.Del(context.Background(), s.latestKey, s.builtKey).Err()
		_ = s.Close()
	})
	return s
}

func TestLoadLatestEmpty(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LoadLatest(context.Background())
	assert.ErrorIs(t, err, store.ErrNoSnapshot)
}

func TestSaveAndLoadLatest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	built := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	snap := &model.Snapshot{
		ID: "newer",
		Countries: []model.MergedCountry{
			model.NewMergedCountry(model.StaticCountryRecord{Code: "fr", Name: "France"}, model.IndicatorSnapshot{}, built),
		},
		BuiltAt:   built,
		ExpiresAt: built.Add(5 * time.Minute),
	}
	require.NoError(t, s.SaveSnapshot(ctx, snap))

	older := &model.Snapshot{ID: "older", BuiltAt: built.Add(-time.Hour)}
	require.NoError(t, s.SaveSnapshot(ctx, older))

	got, err := s.LoadLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "newer", got.ID)
	require.Len(t, got.Countries, 1)
	assert.Equal(t, "France", got.Countries[0].Name)
	assert.True(t, got.ExpiresAt.Equal(snap.ExpiresAt))
}

func TestNewRequiresAddr(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.Error(t, err)
}
