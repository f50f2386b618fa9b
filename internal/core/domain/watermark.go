package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// WatermarkState is the persisted discovery cursor of one watched source.
type WatermarkState struct {
	// LastCreatedAt is the newest creation time observed; zero when unset
	LastCreatedAt time.Time

	// Seen maps item ID to the time the item was announced
	Seen map[string]time.Time
}

// NewWatermarkState returns an empty state.
func NewWatermarkState() *WatermarkState {
	return &WatermarkState{Seen: make(map[string]time.Time)}
}

// Clone returns a deep copy so callers can treat state as a value.
func (s *WatermarkState) Clone() *WatermarkState {
	if s == nil {
		return NewWatermarkState()
	}
	out := &WatermarkState{Seen: make(map[string]time.Time, len(s.Seen))}
	out.LastCreatedAt = s.LastCreatedAt
	for id, at := range s.Seen {
		out.Seen[id] = at
	}
	return out
}

type watermarkJSON struct {
	LastCreatedAt string            `json:"lastCreatedAt,omitempty"`
	Seen          map[string]string `json:"seen"`
}

// FormatTimestamp renders t the way watermark files store it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// MarshalJSON encodes {lastCreatedAt, seen:{id: mark}} with second precision.
func (s WatermarkState) MarshalJSON() ([]byte, error) {
	out := watermarkJSON{Seen: make(map[string]string, len(s.Seen))}
	if !s.LastCreatedAt.IsZero() {
		out.LastCreatedAt = FormatTimestamp(s.LastCreatedAt)
	}
	for id, at := range s.Seen {
		out.Seen[id] = FormatTimestamp(at)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a stored state. Unparseable seen entries are dropped
// rather than failing the whole load.
func (s *WatermarkState) UnmarshalJSON(data []byte) error {
	var in watermarkJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode watermark state: %w", err)
	}
	s.LastCreatedAt = time.Time{}
	if in.LastCreatedAt != "" {
		t, err := time.Parse(time.RFC3339, in.LastCreatedAt)
		if err != nil {
			return fmt.Errorf("decode watermark lastCreatedAt %q: %w", in.LastCreatedAt, err)
		}
		s.LastCreatedAt = t.UTC()
	}
	s.Seen = make(map[string]time.Time, len(in.Seen))
	for id, raw := range in.Seen {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			continue
		}
		s.Seen[id] = t.UTC()
	}
	return nil
}
