package services

import (
	"sort"
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
)

const (
	// DefaultLookback is the overlap every poll re-scans behind the watermark
	DefaultLookback = 5 * time.Minute
	// MinSeenTTL is the floor for how long announced ids are remembered
	MinSeenTTL = 30 * time.Minute
	// DefaultSeenMax caps the seen-set size
	DefaultSeenMax = 5000
)

// TrackerConfig tunes the watermark and seen-set bookkeeping.
type TrackerConfig struct {
	Lookback time.Duration
	SeenTTL  time.Duration
	SeenMax  int
}

// WithDefaults fills unset fields. SeenTTL defaults to six lookback windows
// but never less than MinSeenTTL.
func (c TrackerConfig) WithDefaults() TrackerConfig {
	if c.Lookback <= 0 {
		c.Lookback = DefaultLookback
	}
	if c.SeenTTL <= 0 {
		c.SeenTTL = DefaultSeenTTL(c.Lookback)
	}
	if c.SeenMax <= 0 {
		c.SeenMax = DefaultSeenMax
	}
	return c
}

// DefaultSeenTTL returns max(6*lookback, MinSeenTTL).
func DefaultSeenTTL(lookback time.Duration) time.Duration {
	ttl := 6 * lookback
	if ttl < MinSeenTTL {
		return MinSeenTTL
	}
	return ttl
}

// ComputeSince returns the later of the stored watermark and now-lookback.
// Every poll therefore re-scans at least one lookback window.
func ComputeSince(state *domain.WatermarkState, lookback time.Duration, now time.Time) time.Time {
	overlap := now.Add(-lookback)
	if state == nil || state.LastCreatedAt.IsZero() || state.LastCreatedAt.Before(overlap) {
		return overlap
	}
	return state.LastCreatedAt
}

// FilterNew drops candidates already in the seen-set and marks survivors as
// seen at now. The input state is not modified.
func FilterNew(state *domain.WatermarkState, candidates []domain.DiscoveredItem, now time.Time) ([]domain.DiscoveredItem, *domain.WatermarkState) {
	next := state.Clone()
	fresh := make([]domain.DiscoveredItem, 0, len(candidates))
	for _, item := range candidates {
		if _, seen := next.Seen[item.ID]; seen {
			continue
		}
		next.Seen[item.ID] = now
		fresh = append(fresh, item)
	}
	return fresh, next
}

// Prune drops seen entries marked before now-ttl, then evicts the oldest
// marks until at most max remain. Pruning a pruned state changes nothing.
func Prune(state *domain.WatermarkState, ttl time.Duration, max int, now time.Time) *domain.WatermarkState {
	next := state.Clone()
	cutoff := now.Add(-ttl)
	for id, markedAt := range next.Seen {
		if markedAt.Before(cutoff) {
			delete(next.Seen, id)
		}
	}

	if max <= 0 || len(next.Seen) <= max {
		return next
	}

	type entry struct {
		id string
		at time.Time
	}
	entries := make([]entry, 0, len(next.Seen))
	for id, at := range next.Seen {
		entries = append(entries, entry{id, at})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].at.Equal(entries[j].at) {
			return entries[i].id < entries[j].id
		}
		return entries[i].at.Before(entries[j].at)
	})
	for _, e := range entries[:len(entries)-max] {
		delete(next.Seen, e.id)
	}
	return next
}

// Advance moves the watermark to newest if newest is later. It never moves
// the watermark backward.
func Advance(state *domain.WatermarkState, newest time.Time) *domain.WatermarkState {
	next := state.Clone()
	if newest.After(next.LastCreatedAt) {
		next.LastCreatedAt = newest.UTC()
	}
	return next
}

// NewestCreatedAt returns the latest creation time in items.
func NewestCreatedAt(items []domain.DiscoveredItem) time.Time {
	var newest time.Time
	for _, item := range items {
		if item.CreatedAt.After(newest) {
			newest = item.CreatedAt
		}
	}
	return newest
}
