package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
)

var trackerNow = time.Date(2025, 9, 21, 12, 0, 0, 0, time.UTC)

func item(id string, created time.Time) domain.DiscoveredItem {
	return domain.DiscoveredItem{ID: id, Name: id + ".jpg", MimeType: "image/jpeg", CreatedAt: created, FolderID: "folder-1"}
}

func TestTrackerConfig_WithDefaults(t *testing.T) {
	cfg := TrackerConfig{}.WithDefaults()
	if cfg.Lookback != DefaultLookback {
		t.Errorf("expected lookback %v, got %v", DefaultLookback, cfg.Lookback)
	}
	if cfg.SeenTTL != MinSeenTTL {
		t.Errorf("expected seen TTL floor %v, got %v", MinSeenTTL, cfg.SeenTTL)
	}
	if cfg.SeenMax != DefaultSeenMax {
		t.Errorf("expected seen max %d, got %d", DefaultSeenMax, cfg.SeenMax)
	}

	cfg = TrackerConfig{Lookback: 20 * time.Minute}.WithDefaults()
	if cfg.SeenTTL != 2*time.Hour {
		t.Errorf("expected 6x lookback, got %v", cfg.SeenTTL)
	}
}

func TestComputeSince(t *testing.T) {
	lookback := 5 * time.Minute
	overlap := trackerNow.Add(-lookback)

	tests := []struct {
		name  string
		state *domain.WatermarkState
		want  time.Time
	}{
		{"nil state", nil, overlap},
		{"empty state", domain.NewWatermarkState(), overlap},
		{"stale watermark", &domain.WatermarkState{LastCreatedAt: trackerNow.Add(-time.Hour)}, overlap},
		{"fresh watermark", &domain.WatermarkState{LastCreatedAt: trackerNow.Add(-time.Minute)}, trackerNow.Add(-time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeSince(tt.state, lookback, trackerNow); !got.Equal(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFilterNew(t *testing.T) {
	state := domain.NewWatermarkState()
	state.Seen["a"] = trackerNow.Add(-time.Minute)

	candidates := []domain.DiscoveredItem{
		item("a", trackerNow.Add(-2*time.Minute)),
		item("b", trackerNow.Add(-time.Minute)),
		item("b", trackerNow.Add(-time.Minute)),
		item("c", trackerNow.Add(-3*time.Hour)),
	}

	fresh, next := FilterNew(state, candidates, trackerNow)

	if len(fresh) != 2 || fresh[0].ID != "b" || fresh[1].ID != "c" {
		t.Fatalf("expected [b c], got %+v", fresh)
	}
	if !next.Seen["b"].Equal(trackerNow) || !next.Seen["c"].Equal(trackerNow) {
		t.Error("expected survivors to be marked at now, not at their creation time")
	}
	if _, leaked := state.Seen["b"]; leaked {
		t.Error("input state must not be modified")
	}
}

func TestFilterNew_NeverReturnsSeenItems(t *testing.T) {
	state := domain.NewWatermarkState()
	for i := 0; i < 50; i++ {
		state.Seen[fmt.Sprintf("f%d", i)] = trackerNow.Add(-time.Duration(i) * time.Second)
	}

	var candidates []domain.DiscoveredItem
	for i := 0; i < 100; i++ {
		candidates = append(candidates, item(fmt.Sprintf("f%d", i), trackerNow))
	}

	fresh, _ := FilterNew(state, candidates, trackerNow)
	for _, it := range fresh {
		if _, seen := state.Seen[it.ID]; seen {
			t.Fatalf("item %s was already seen", it.ID)
		}
	}
	if len(fresh) != 50 {
		t.Errorf("expected 50 new items, got %d", len(fresh))
	}
}

func TestPrune_TTL(t *testing.T) {
	state := domain.NewWatermarkState()
	state.Seen["old"] = trackerNow.Add(-time.Hour)
	state.Seen["recent"] = trackerNow.Add(-10 * time.Minute)

	pruned := Prune(state, 30*time.Minute, 100, trackerNow)

	if _, ok := pruned.Seen["old"]; ok {
		t.Error("expected entry past TTL to be pruned")
	}
	if _, ok := pruned.Seen["recent"]; !ok {
		t.Error("expected entry inside TTL to survive")
	}
}

func TestPrune_CapEvictsOldestMarks(t *testing.T) {
	state := domain.NewWatermarkState()
	state.Seen["m1"] = trackerNow.Add(-4 * time.Minute)
	state.Seen["m2"] = trackerNow.Add(-3 * time.Minute)
	state.Seen["m3"] = trackerNow.Add(-2 * time.Minute)
	state.Seen["m4"] = trackerNow.Add(-1 * time.Minute)

	pruned := Prune(state, time.Hour, 2, trackerNow)

	if len(pruned.Seen) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(pruned.Seen))
	}
	for _, id := range []string{"m3", "m4"} {
		if _, ok := pruned.Seen[id]; !ok {
			t.Errorf("expected newest mark %s to survive", id)
		}
	}
}

func TestPrune_Idempotent(t *testing.T) {
	state := domain.NewWatermarkState()
	for i := 0; i < 20; i++ {
		state.Seen[fmt.Sprintf("f%02d", i)] = trackerNow.Add(-time.Duration(i*5) * time.Minute)
	}

	once := Prune(state, 45*time.Minute, 5, trackerNow)
	twice := Prune(once, 45*time.Minute, 5, trackerNow)

	if len(once.Seen) != len(twice.Seen) {
		t.Fatalf("expected same size, got %d then %d", len(once.Seen), len(twice.Seen))
	}
	for id, at := range once.Seen {
		if !twice.Seen[id].Equal(at) {
			t.Errorf("entry %s changed on second prune", id)
		}
	}
}

func TestAdvance_NeverMovesBackward(t *testing.T) {
	state := &domain.WatermarkState{LastCreatedAt: trackerNow, Seen: map[string]time.Time{}}

	older := Advance(state, trackerNow.Add(-time.Hour))
	if !older.LastCreatedAt.Equal(trackerNow) {
		t.Errorf("watermark moved backward to %v", older.LastCreatedAt)
	}

	newer := Advance(state, trackerNow.Add(time.Minute))
	if !newer.LastCreatedAt.Equal(trackerNow.Add(time.Minute)) {
		t.Errorf("expected watermark to advance, got %v", newer.LastCreatedAt)
	}

	zero := Advance(state, time.Time{})
	if !zero.LastCreatedAt.Equal(trackerNow) {
		t.Errorf("zero time moved watermark to %v", zero.LastCreatedAt)
	}
}

func TestNewestCreatedAt(t *testing.T) {
	items := []domain.DiscoveredItem{
		item("a", trackerNow.Add(-time.Hour)),
		item("b", trackerNow),
		item("c", trackerNow.Add(-time.Minute)),
	}
	if got := NewestCreatedAt(items); !got.Equal(trackerNow) {
		t.Errorf("expected %v, got %v", trackerNow, got)
	}
	if got := NewestCreatedAt(nil); !got.IsZero() {
		t.Errorf("expected zero time, got %v", got)
	}
}
