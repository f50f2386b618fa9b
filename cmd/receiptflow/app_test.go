package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/receiptflow/internal/adapters/driven/localfolder"
	"github.com/custodia-labs/receiptflow/internal/adapters/driven/memory"
	"github.com/custodia-labs/receiptflow/internal/config"
	"github.com/custodia-labs/receiptflow/internal/core/domain"
)

func memoryConfig(root string) *config.Config {
	return &config.Config{
		State:  config.StateConfig{Backend: config.BackendMemory, WatermarkBackend: config.BackendMemory},
		Worker: config.WorkerConfig{Queue: config.BackendMemory, Concurrency: 1},
		Poller: config.PollerConfig{Source: config.SourceLocal, LocalRoot: root, SourceID: "inbox"},
		Scheduler: config.SchedulerConfig{
			Sources: []config.SourceScheduleConfig{{ID: "inbox", FolderID: "inbox"}},
		},
		Normalizer: config.NormalizerConfig{Timezone: "UTC", DefaultCurrency: "MYR", Epsilon: 0.05},
		OCR:        config.OCRConfig{Provider: "none", MaxChars: 12000},
		Auth:       config.AuthConfig{JWTSecret: config.DevelopmentJWTSecret},
		Ledger:     config.LedgerConfig{Backend: config.BackendMemory},
	}
}

func TestNewApp_MemoryBackends(t *testing.T) {
	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := newApp(context.Background(), memoryConfig(root), logger, appOptions{Folder: true})
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &memory.Queue{}, a.queue)
	assert.IsType(t, &memory.ClaimStore{}, a.claims)
	assert.IsType(t, &memory.LedgerStore{}, a.ledger)
	assert.IsType(t, &localfolder.Folder{}, a.folder)
	assert.Nil(t, a.lock, "no shared backend, no scheduler lock")
	assert.Equal(t, "none", a.runtime.Model())
	assert.NotNil(t, a.newServer())
}

func TestNewApp_BadLocalRoot(t *testing.T) {
	cfg := memoryConfig(filepath.Join(t.TempDir(), "missing"))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := newApp(context.Background(), cfg, logger, appOptions{Folder: true})
	assert.Error(t, err)
}

// Without a chat model every receipt ends in review, but each stage still
// hands off to the next.
func TestApp_PipelineWithoutModel(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "inbox"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "inbox", "receipt.txt"), []byte("KEDAI ABC\nTOTAL 12.50\n"), 0o644))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(context.Background(), memoryConfig(root), logger, appOptions{Folder: true, Models: true})
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	res, err := a.poller.Poll(ctx, "inbox", "inbox")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Published)

	w := a.newWorker(false)
	var seen []domain.TaskType
	for {
		task, err := a.queue.Dequeue(ctx)
		require.NoError(t, err)
		if task == nil {
			break
		}
		seen = append(seen, task.Type)
		require.NoError(t, w.Handle(ctx, task), "task %s", task.Type)
		require.NoError(t, a.queue.Ack(ctx, task.ID))
	}

	assert.Equal(t, []domain.TaskType{
		domain.TaskTypeReceiptNew,
		domain.TaskTypeReceiptText,
		domain.TaskTypeReceiptParsed,
		domain.TaskTypeReceiptReview,
	}, seen)
}
