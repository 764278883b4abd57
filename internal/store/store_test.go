package store

import (
	"context"
	"errors"
	"testing"

	"govstats/internal/model"
)

func TestNopStore(t *testing.T) {
	var s Store = &NopStore{}

	if err := s.SaveSnapshot(context.Background(), &model.Snapshot{ID: "x"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.LoadLatest(context.Background()); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
