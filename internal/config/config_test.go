package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME at an empty directory and blanks every environment
// variable Load reads, so the host environment cannot leak into a test.
func isolate(t *testing.T) {
	t.Helper()
	homedir.DisableCache = true
	t.Setenv("HOME", t.TempDir())
	for key, names := range legacyEnv {
		t.Setenv(strings.ToUpper(strings.ReplaceAll(key, ".", "_")), "")
		for _, name := range names {
			t.Setenv(name, "")
		}
	}
	for _, name := range []string{
		"DATABASE_URL", "REDIS_URL", "STATE_BACKEND", "LEDGER_BACKEND",
		"WORKER_QUEUE", "POLLER_SOURCE", "POLLER_LOCAL_ROOT", "POLLER_FOLDER_ID",
		"AUTH_JWT_SECRET", "INGRESS_API_KEY_HASHES", "LOG_FORMAT",
	} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "receiptflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.State.Backend)
	assert.Equal(t, BackendMemory, cfg.State.WatermarkBackend)
	assert.Equal(t, BackendMemory, cfg.Ledger.Backend)
	assert.Equal(t, BackendMemory, cfg.Worker.Queue)
	assert.Equal(t, 2, cfg.Worker.Concurrency)
	assert.Equal(t, 5*time.Minute, cfg.Worker.ClaimAfter)
	assert.Equal(t, 5*time.Minute, cfg.Poller.Lookback)
	assert.Equal(t, 5000, cfg.Poller.SeenMax)
	assert.Equal(t, "MYR", cfg.Normalizer.DefaultCurrency)
	assert.Equal(t, 0.05, cfg.Normalizer.Epsilon)
	assert.Equal(t, "deepseek", cfg.LLM.Provider)
	assert.Equal(t, 1000, cfg.LLM.MaxTokens)
	assert.Equal(t, 2, cfg.OCR.PageLimit)
	assert.Empty(t, cfg.Scheduler.Sources)
	assert.Equal(t, "Asia/Kuala_Lumpur", cfg.Location().String())
}

func TestLoad_File(t *testing.T) {
	isolate(t)

	path := writeConfig(t, `
server:
  port: 9090
  allowed_origins: ["https://ops.example.com"]
state:
  backend: sqlite
  watermark_backend: file
  watermark_dir: /var/lib/receiptflow
ledger:
  backend: sqlite
scheduler:
  sources:
    - id: inbox
      folder_id: abc123
      interval: 2m
    - folder_id: def456
poller:
  interval: 10m
normalizer:
  day_first: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://ops.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, BackendSQLite, cfg.State.Backend)
	assert.Equal(t, BackendFile, cfg.State.WatermarkBackend)
	assert.Equal(t, "/var/lib/receiptflow", cfg.State.WatermarkDir)
	assert.True(t, cfg.Normalizer.DayFirst)

	require.Len(t, cfg.Scheduler.Sources, 2)
	assert.Equal(t, SourceScheduleConfig{ID: "inbox", FolderID: "abc123", Interval: 2 * time.Minute}, cfg.Scheduler.Sources[0])
	assert.Equal(t, SourceScheduleConfig{ID: "def456", FolderID: "def456", Interval: 10 * time.Minute}, cfg.Scheduler.Sources[1])
}

func TestLoad_Environment(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "7000")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("TARGET_FOLDER_ID", "drive-folder")
	t.Setenv("DEEPSEEK_API_KEY", "sk-test")
	t.Setenv("INGRESS_API_KEY_HASHES", "$2a$10$one,$2a$10$two")
	t.Setenv("POLLER_LOOKBACK", "15m")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, []string{"$2a$10$one", "$2a$10$two"}, cfg.Ingress.APIKeyHashes)
	assert.Equal(t, 15*time.Minute, cfg.Poller.Lookback)

	require.Len(t, cfg.Scheduler.Sources, 1)
	assert.Equal(t, "default", cfg.Scheduler.Sources[0].ID)
	assert.Equal(t, "drive-folder", cfg.Scheduler.Sources[0].FolderID)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Sources[0].Interval)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("SERVER_PORT", "9191")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestLoad_HomeFile(t *testing.T) {
	isolate(t)
	home := os.Getenv("HOME")
	require.NoError(t, os.WriteFile(filepath.Join(home, ".receiptflow.yaml"), []byte("log:\n  format: text\n"), 0o600))

	l, err := NewLoader("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".receiptflow.yaml"), l.ConfigFile())

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown state backend",
			mutate:  func(c *Config) { c.State.Backend = "etcd" },
			wantErr: `state.backend: "etcd"`,
		},
		{
			name:    "redis ledger not supported",
			mutate:  func(c *Config) { c.Ledger.Backend = BackendRedis },
			wantErr: "ledger.backend",
		},
		{
			name: "postgres needs url",
			mutate: func(c *Config) {
				c.Worker.Queue = BackendPostgres
				c.Auth.JWTSecret = "s3cret"
			},
			wantErr: "database.url is required",
		},
		{
			name: "redis needs url",
			mutate: func(c *Config) {
				c.State.Backend = BackendRedis
				c.State.WatermarkBackend = BackendRedis
				c.Auth.JWTSecret = "s3cret"
			},
			wantErr: "redis.url is required",
		},
		{
			name: "shared deployment needs secret",
			mutate: func(c *Config) {
				c.State.Backend = BackendRedis
				c.State.WatermarkBackend = BackendRedis
				c.Redis.URL = "redis://localhost:6379"
			},
			wantErr: "auth.jwt_secret",
		},
		{
			name: "local source needs root",
			mutate: func(c *Config) {
				c.Poller.Source = SourceLocal
			},
			wantErr: "poller.local_root",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Normalizer.Timezone = "Mars/Olympus" },
			wantErr: "normalizer.timezone",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
		{
			name: "schedule without folder",
			mutate: func(c *Config) {
				c.Scheduler.Sources = []SourceScheduleConfig{{ID: "x"}}
			},
			wantErr: "scheduler.sources[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			cfg, err := Load("")
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Uses(t *testing.T) {
	c := &Config{
		State:  StateConfig{Backend: BackendRedis, WatermarkBackend: BackendFile},
		Ledger: LedgerConfig{Backend: BackendSQLite},
		Worker: WorkerConfig{Queue: BackendMemory},
	}
	assert.True(t, c.Uses(BackendRedis))
	assert.True(t, c.Uses(BackendFile))
	assert.True(t, c.Uses(BackendPostgres, BackendSQLite))
	assert.False(t, c.Uses(BackendPostgres))
}
