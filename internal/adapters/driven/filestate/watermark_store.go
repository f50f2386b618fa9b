// Package filestate persists watermark state as JSON files on local disk.
package filestate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gofrs/flock"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

var _ driven.WatermarkStore = (*WatermarkStore)(nil)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// WatermarkStore keeps <dir>/<source>.json per source. Writes take an
// advisory file lock and replace the file atomically, so a reader never
// sees a torn document.
type WatermarkStore struct {
	dir string
}

// NewWatermarkStore creates the state directory if needed.
func NewWatermarkStore(dir string) (*WatermarkStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory %s: %w", dir, err)
	}
	return &WatermarkStore{dir: dir}, nil
}

func (s *WatermarkStore) path(sourceID string) string {
	name := unsafeName.ReplaceAllString(sourceID, "_")
	if name == "" {
		name = "default"
	}
	return filepath.Join(s.dir, name+".json")
}

// Load reads the state file. A missing file yields an empty state.
func (s *WatermarkStore) Load(ctx context.Context, sourceID string) (*domain.WatermarkState, error) {
	raw, err := os.ReadFile(s.path(sourceID))
	if errors.Is(err, os.ErrNotExist) {
		return domain.NewWatermarkState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read watermark %s: %w", sourceID, err)
	}
	state := domain.NewWatermarkState()
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, fmt.Errorf("watermark %s: %w", sourceID, err)
	}
	return state, nil
}

// Save writes the state under the source's lock file.
func (s *WatermarkStore) Save(ctx context.Context, sourceID string, state *domain.WatermarkState) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode watermark %s: %w", sourceID, err)
	}

	target := s.path(sourceID)
	lock := flock.New(target + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock watermark %s: %w", sourceID, err)
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(s.dir, filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write watermark %s: %w", sourceID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close watermark %s: %w", sourceID, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("replace watermark %s: %w", sourceID, err)
	}
	return nil
}
