// Package config loads receiptflow settings from an optional YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/fsnotify/fsnotify"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Backend names
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"

	SourceDrive = "drive"
	SourceLocal = "local"
)

// Config holds application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	SQLite     SQLiteConfig     `mapstructure:"sqlite"`
	State      StateConfig      `mapstructure:"state"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Poller     PollerConfig     `mapstructure:"poller"`
	Normalizer NormalizerConfig `mapstructure:"normalizer"`
	LLM        LLMConfig        `mapstructure:"llm"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	Ingress    IngressConfig    `mapstructure:"ingress"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds Postgres settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	// Migrate applies embedded migrations on startup
	Migrate bool `mapstructure:"migrate"`
}

// RedisConfig holds Redis settings.
type RedisConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

// SQLiteConfig holds the single-node database file location.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// StateConfig selects where dedupe claims and poller watermarks live.
type StateConfig struct {
	// Backend is memory, sqlite, postgres or redis
	Backend string `mapstructure:"backend"`
	// WatermarkBackend overrides Backend for watermarks; "file" keeps one
	// JSON document per source under WatermarkDir
	WatermarkBackend string `mapstructure:"watermark_backend"`
	WatermarkDir     string `mapstructure:"watermark_dir"`
}

// WorkerConfig holds task worker settings.
type WorkerConfig struct {
	// Queue is memory, redis or postgres
	Queue          string `mapstructure:"queue"`
	Concurrency    int    `mapstructure:"concurrency"`
	DequeueTimeout int    `mapstructure:"dequeue_timeout"`
	// ClaimAfter is how long a task may stay in processing before another
	// worker takes it over (redis and postgres queues)
	ClaimAfter time.Duration `mapstructure:"claim_after"`
}

// SchedulerConfig holds periodic poll settings.
type SchedulerConfig struct {
	Enabled      bool                   `mapstructure:"enabled"`
	LockRequired bool                   `mapstructure:"lock_required"`
	PollInterval time.Duration          `mapstructure:"poll_interval"`
	LockTTL      time.Duration          `mapstructure:"lock_ttl"`
	Sources      []SourceScheduleConfig `mapstructure:"sources"`
}

// SourceScheduleConfig is one watched folder.
type SourceScheduleConfig struct {
	ID       string        `mapstructure:"id"`
	FolderID string        `mapstructure:"folder_id"`
	Interval time.Duration `mapstructure:"interval"`
}

// PollerConfig holds folder polling settings.
type PollerConfig struct {
	// Source is drive or local
	Source       string        `mapstructure:"source"`
	LocalRoot    string        `mapstructure:"local_root"`
	DriveBaseURL string        `mapstructure:"drive_base_url"`
	SourceID     string        `mapstructure:"source_id"`
	FolderID     string        `mapstructure:"folder_id"`
	Interval     time.Duration `mapstructure:"interval"`
	Lookback     time.Duration `mapstructure:"lookback"`
	SeenTTL      time.Duration `mapstructure:"seen_ttl"`
	SeenMax      int           `mapstructure:"seen_max"`
}

// NormalizerConfig holds receipt normalization settings.
type NormalizerConfig struct {
	Timezone        string  `mapstructure:"timezone"`
	DefaultCurrency string  `mapstructure:"default_currency"`
	Epsilon         float64 `mapstructure:"epsilon"`
	DayFirst        bool    `mapstructure:"day_first"`
}

// LLMConfig holds chat model settings.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RetryMax    int           `mapstructure:"retry_max"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
}

// OCRConfig holds text extraction settings.
type OCRConfig struct {
	// Provider is vision or none; none leaves only plain-text files readable
	Provider  string        `mapstructure:"provider"`
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	PageLimit int           `mapstructure:"page_limit"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RetryMax  int           `mapstructure:"retry_max"`
	// MaxChars caps cleaned text handed to the model; 0 disables the cap
	MaxChars int `mapstructure:"max_chars"`
}

// IngressConfig holds HTTP ingress settings.
type IngressConfig struct {
	// APIKeyHashes are bcrypt hashes of accepted X-API-Key values
	APIKeyHashes []string `mapstructure:"api_key_hashes"`
}

// AuthConfig holds operator token settings.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// LedgerConfig selects where ledger rows and aggregates live.
type LedgerConfig struct {
	// Backend is memory, sqlite or postgres
	Backend            string `mapstructure:"backend"`
	SourceLinkTemplate string `mapstructure:"source_link_template"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DevelopmentJWTSecret is the fallback secret; Validate rejects it outside
// memory-only setups.
const DevelopmentJWTSecret = "development-secret-change-in-production"

// legacyEnv maps config keys to the additional environment variable names
// they also answer to.
var legacyEnv = map[string][]string{
	"server.port":                 {"PORT"},
	"database.max_open_conns":     {"DB_MAX_OPEN_CONNS"},
	"database.max_idle_conns":     {"DB_MAX_IDLE_CONNS"},
	"auth.jwt_secret":             {"JWT_SECRET"},
	"llm.api_key":                 {"DEEPSEEK_API_KEY"},
	"llm.model":                   {"MODEL"},
	"llm.max_tokens":              {"MAX_TOKENS"},
	"llm.temperature":             {"TEMPERATURE"},
	"poller.folder_id":            {"TARGET_FOLDER_ID"},
	"poller.lookback":             {"LOOKBACK"},
	"poller.seen_max":             {"SEEN_MAX"},
	"normalizer.timezone":         {"TIMEZONE"},
	"normalizer.default_currency": {"CURRENCY_DEFAULT"},
	"normalizer.epsilon":          {"TOTALS_EPSILON"},
	"ocr.page_limit":              {"VISION_PAGES_LIMIT"},
	"log.level":                   {"LOG_LEVEL"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.conn_max_idle_time", time.Minute)
	v.SetDefault("database.migrate", true)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.prefix", "receiptflow:")

	v.SetDefault("sqlite.path", filepath.Join(".receiptflow", "receiptflow.db"))

	v.SetDefault("state.backend", BackendMemory)
	v.SetDefault("state.watermark_backend", "")
	v.SetDefault("state.watermark_dir", filepath.Join(".receiptflow", "state"))

	v.SetDefault("worker.queue", BackendMemory)
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.dequeue_timeout", 5)
	v.SetDefault("worker.claim_after", 5*time.Minute)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.lock_required", true)
	v.SetDefault("scheduler.poll_interval", 30*time.Second)
	v.SetDefault("scheduler.lock_ttl", time.Minute)

	v.SetDefault("poller.source", SourceDrive)
	v.SetDefault("poller.local_root", "")
	v.SetDefault("poller.drive_base_url", "")
	v.SetDefault("poller.source_id", "default")
	v.SetDefault("poller.folder_id", "")
	v.SetDefault("poller.interval", 5*time.Minute)
	v.SetDefault("poller.lookback", 5*time.Minute)
	v.SetDefault("poller.seen_ttl", time.Duration(0))
	v.SetDefault("poller.seen_max", 5000)

	v.SetDefault("normalizer.timezone", "Asia/Kuala_Lumpur")
	v.SetDefault("normalizer.default_currency", "MYR")
	v.SetDefault("normalizer.epsilon", 0.05)
	v.SetDefault("normalizer.day_first", false)

	v.SetDefault("llm.provider", "deepseek")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.retry_max", 2)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 1000)

	v.SetDefault("ocr.provider", "vision")
	v.SetDefault("ocr.api_key", "")
	v.SetDefault("ocr.base_url", "")
	v.SetDefault("ocr.page_limit", 2)
	v.SetDefault("ocr.timeout", 90*time.Second)
	v.SetDefault("ocr.retry_max", 2)
	v.SetDefault("ocr.max_chars", 12000)

	v.SetDefault("ingress.api_key_hashes", []string{})

	v.SetDefault("auth.jwt_secret", DevelopmentJWTSecret)
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("ledger.backend", BackendMemory)
	v.SetDefault("ledger.source_link_template", "https://drive.google.com/file/d/{fileId}/view")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Loader reads configuration and can watch the config file for changes.
type Loader struct {
	v *viper.Viper
}

// NewLoader prepares a loader. path may be empty, in which case
// $HOME/.receiptflow.yaml is used when it exists.
func NewLoader(path string) (*Loader, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}
		v.AddConfigPath(home)
		v.SetConfigName(".receiptflow")
		v.SetConfigType("yaml")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, names := range legacyEnv {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, envKey}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return &Loader{v: v}, nil
}

// ConfigFile returns the file in use, or "" when running on defaults and
// environment only.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Load decodes and validates the current settings.
func (l *Loader) Load() (*Config, error) {
	var c Config
	if err := l.v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.applyDerived()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// OnChange calls fn with the reloaded configuration whenever the config
// file changes. Invalid edits are reported through onErr and otherwise
// ignored.
func (l *Loader) OnChange(fn func(*Config), onErr func(error)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(fsnotify.Event) {
		c, err := l.Load()
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		fn(c)
	})
	l.v.WatchConfig()
}

// Load is a shortcut for NewLoader(path) followed by Load.
func Load(path string) (*Config, error) {
	l, err := NewLoader(path)
	if err != nil {
		return nil, err
	}
	return l.Load()
}

// applyDerived fills values that depend on other settings.
func (c *Config) applyDerived() {
	c.State.Backend = strings.ToLower(c.State.Backend)
	c.Ledger.Backend = strings.ToLower(c.Ledger.Backend)
	c.Worker.Queue = strings.ToLower(c.Worker.Queue)
	if c.State.WatermarkBackend == "" {
		c.State.WatermarkBackend = c.State.Backend
	}
	if len(c.Scheduler.Sources) == 0 && c.Poller.FolderID != "" {
		c.Scheduler.Sources = []SourceScheduleConfig{{
			ID:       c.Poller.SourceID,
			FolderID: c.Poller.FolderID,
		}}
	}
	for i := range c.Scheduler.Sources {
		if c.Scheduler.Sources[i].Interval <= 0 {
			c.Scheduler.Sources[i].Interval = c.Poller.Interval
		}
		if c.Scheduler.Sources[i].ID == "" {
			c.Scheduler.Sources[i].ID = c.Scheduler.Sources[i].FolderID
		}
	}
	c.Ingress.APIKeyHashes = slices.DeleteFunc(c.Ingress.APIKeyHashes, func(s string) bool {
		return strings.TrimSpace(s) == ""
	})
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	check := func(field, value string, allowed ...string) {
		if !slices.Contains(allowed, value) {
			errs = append(errs, fmt.Errorf("%s: %q is not one of %s", field, value, strings.Join(allowed, ", ")))
		}
	}
	check("state.backend", c.State.Backend, BackendMemory, BackendSQLite, BackendPostgres, BackendRedis)
	check("state.watermark_backend", c.State.WatermarkBackend, BackendMemory, BackendFile, BackendSQLite, BackendPostgres, BackendRedis)
	check("ledger.backend", c.Ledger.Backend, BackendMemory, BackendSQLite, BackendPostgres)
	check("worker.queue", c.Worker.Queue, BackendMemory, BackendRedis, BackendPostgres)
	check("poller.source", c.Poller.Source, SourceDrive, SourceLocal)
	check("log.format", c.Log.Format, "json", "text")

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}
	if c.Poller.Source == SourceLocal && c.Poller.LocalRoot == "" {
		errs = append(errs, errors.New("poller.local_root is required for the local source"))
	}
	if c.Uses(BackendPostgres) && c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required for the postgres backend"))
	}
	if c.Uses(BackendRedis) && c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url is required for the redis backend"))
	}
	if c.Auth.JWTSecret == DevelopmentJWTSecret && c.Uses(BackendPostgres, BackendRedis) {
		errs = append(errs, errors.New("auth.jwt_secret must be set for shared deployments"))
	}
	if _, err := time.LoadLocation(c.Normalizer.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("normalizer.timezone: %w", err))
	}
	for i, s := range c.Scheduler.Sources {
		if s.FolderID == "" {
			errs = append(errs, fmt.Errorf("scheduler.sources[%d]: folder_id is required", i))
		}
	}

	return errors.Join(errs...)
}

// Uses reports whether any backend setting names one of backends.
func (c *Config) Uses(backends ...string) bool {
	for _, b := range []string{c.State.Backend, c.State.WatermarkBackend, c.Ledger.Backend, c.Worker.Queue} {
		if slices.Contains(backends, b) {
			return true
		}
	}
	return false
}

// Location returns the normalizer timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Normalizer.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
