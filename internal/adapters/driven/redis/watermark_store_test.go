package redis

import (
	"context"
	"testing"
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
)

func TestWatermarkStore_RoundTrip(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewWatermarkStore(client, "")
	ctx := context.Background()

	empty, err := store.Load(ctx, "drive")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !empty.LastCreatedAt.IsZero() || len(empty.Seen) != 0 {
		t.Errorf("expected empty state, got %+v", empty)
	}

	at := time.Date(2025, 9, 21, 10, 0, 0, 0, time.UTC)
	state := domain.NewWatermarkState()
	state.LastCreatedAt = at
	state.Seen["f1"] = at.Add(time.Minute)

	if err := store.Save(ctx, "drive", state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mr.Exists("receiptflow:watermark:drive") {
		t.Error("expected watermark key")
	}

	loaded, err := store.Load(ctx, "drive")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !loaded.LastCreatedAt.Equal(at) {
		t.Errorf("expected %v, got %v", at, loaded.LastCreatedAt)
	}
	if !loaded.Seen["f1"].Equal(at.Add(time.Minute)) {
		t.Errorf("unexpected seen entry %v", loaded.Seen["f1"])
	}
}

func TestWatermarkStore_CorruptDocument(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewWatermarkStore(client, "")
	mr.Set("receiptflow:watermark:drive", "{not json")

	if _, err := store.Load(context.Background(), "drive"); err == nil {
		t.Error("expected error for corrupt document")
	}
}
