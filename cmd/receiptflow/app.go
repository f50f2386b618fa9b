package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/receiptflow/internal/adapters/driven/ai"
	"github.com/custodia-labs/receiptflow/internal/adapters/driven/auth"
	"github.com/custodia-labs/receiptflow/internal/adapters/driven/drive"
	"github.com/custodia-labs/receiptflow/internal/adapters/driven/filestate"
	"github.com/custodia-labs/receiptflow/internal/adapters/driven/localfolder"
	"github.com/custodia-labs/receiptflow/internal/adapters/driven/memory"
	"github.com/custodia-labs/receiptflow/internal/adapters/driven/postgres"
	postgresqueue "github.com/custodia-labs/receiptflow/internal/adapters/driven/queue/postgres"
	redisqueue "github.com/custodia-labs/receiptflow/internal/adapters/driven/queue/redis"
	redisadapter "github.com/custodia-labs/receiptflow/internal/adapters/driven/redis"
	"github.com/custodia-labs/receiptflow/internal/adapters/driven/sqlite"
	httpadapter "github.com/custodia-labs/receiptflow/internal/adapters/driving/http"
	"github.com/custodia-labs/receiptflow/internal/config"
	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driving"
	"github.com/custodia-labs/receiptflow/internal/core/services"
	"github.com/custodia-labs/receiptflow/internal/extractors"
	"github.com/custodia-labs/receiptflow/internal/postprocessors"
	"github.com/custodia-labs/receiptflow/internal/runtime"
	"github.com/custodia-labs/receiptflow/internal/worker"
)

// appOptions selects the optional collaborators a command needs.
type appOptions struct {
	// Folder builds the SourceFolder; only pipeline commands read files
	Folder bool
	// Models builds the chat model and OCR clients
	Models bool
}

// app holds every adapter and service of one process.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	pg          *postgres.DB
	redisClient *redis.Client
	sqliteDB    *sqlite.DB
	closers     []func() error

	queue      driven.TaskQueue
	lock       driven.DistributedLock
	claims     driven.ClaimStore
	watermarks driven.WatermarkStore
	ledger     driven.LedgerStore
	aggregates driven.AggregateStore
	folder     driven.SourceFolder
	runtime    *runtime.Services

	auth       driving.AuthService
	scheduler  *services.Scheduler
	poller     *services.PollService
	extraction *services.ExtractionService
	parser     *services.ParserService
	validator  *services.ValidatorService
	ledgerSvc  *services.LedgerService
	aggregator *services.AggregatorService
	ingress    *services.IngressService
	sources    driving.SourceService
}

// newApp connects the configured backends and wires the services.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if err := a.connect(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.buildStores(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if opts.Folder {
		if err := a.buildFolder(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	runtimeConfig := domain.NewRuntimeConfig(cfg.State.Backend, cfg.Worker.Queue)
	a.runtime = runtime.NewServices(runtimeConfig)

	var ocr driven.TextExtractor
	if opts.Models {
		a.loadChatModel(ctx, cfg.LLM)
		ocr = a.buildOCR()
	}

	a.auth = services.NewAuthService(auth.NewAdapter(cfg.Auth.JWTSecret), cfg.Ingress.APIKeyHashes)
	if len(cfg.Ingress.APIKeyHashes) == 0 {
		logger.Warn("no ingress key hashes configured, POST /api/v1/ingress rejects every request")
	}

	normalizer := services.NewNormalizer(services.NormalizerConfig{
		Location:        cfg.Location(),
		DefaultCurrency: cfg.Normalizer.DefaultCurrency,
		Epsilon:         cfg.Normalizer.Epsilon,
		DayFirst:        cfg.Normalizer.DayFirst,
	})
	router := services.NewRouter(services.RouterConfig{
		Normalizer:         normalizer,
		Lock:               services.NewDedupLock(a.claims, logger),
		SourceLinkTemplate: cfg.Ledger.SourceLinkTemplate,
		Logger:             logger,
	})

	a.aggregator = services.NewAggregatorService(services.AggregatorServiceConfig{
		Ledger:     a.ledger,
		Aggregates: a.aggregates,
		Logger:     logger,
	})
	a.ledgerSvc = services.NewLedgerService(services.LedgerServiceConfig{
		Ledger:     a.ledger,
		Aggregator: a.aggregator,
		Logger:     logger,
	})
	a.poller = services.NewPollService(services.PollServiceConfig{
		Folder:     a.folder,
		Watermarks: a.watermarks,
		TaskQueue:  a.queue,
		Tracker: services.TrackerConfig{
			Lookback: cfg.Poller.Lookback,
			SeenTTL:  cfg.Poller.SeenTTL,
			SeenMax:  cfg.Poller.SeenMax,
		},
		Logger: logger,
	})
	a.extraction = services.NewExtractionService(services.ExtractionServiceConfig{
		Folder:     a.folder,
		Extractors: extractors.DefaultRegistry(ocr),
		TaskQueue:  a.queue,
		Cleaner:    postprocessors.DefaultPipeline(cfg.OCR.MaxChars),
		Logger:     logger,
	})
	a.parser = services.NewParserService(services.ParserServiceConfig{
		Model:       a.runtime,
		TaskQueue:   a.queue,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Logger:      logger,
	})
	a.validator = services.NewValidatorService(router, a.queue, logger)
	a.ingress = services.NewIngressService(a.queue, logger)

	schedules := make([]*domain.ScheduledPoll, 0, len(cfg.Scheduler.Sources))
	for _, s := range cfg.Scheduler.Sources {
		schedules = append(schedules, domain.NewScheduledPoll(s.ID, s.FolderID, s.Interval))
	}
	a.scheduler = services.NewScheduler(services.SchedulerConfig{
		TaskQueue:    a.queue,
		Lock:         a.lock,
		Logger:       logger,
		Schedules:    schedules,
		PollInterval: cfg.Scheduler.PollInterval,
		LockTTL:      cfg.Scheduler.LockTTL,
		LockRequired: cfg.Scheduler.LockRequired,
	})
	a.sources = services.NewSourceService(a.scheduler, a.poller)

	log.Printf("Runtime config: state=%s watermarks=%s ledger=%s queue=%s llm=%t",
		cfg.State.Backend, cfg.State.WatermarkBackend, cfg.Ledger.Backend,
		runtimeConfig.QueueBackend, runtimeConfig.LLMAvailable())
	return a, nil
}

// connect opens only the databases some backend setting refers to.
func (a *app) connect(ctx context.Context) error {
	cfg := a.cfg

	if cfg.Uses(config.BackendPostgres) {
		if cfg.Database.Migrate {
			log.Println("Applying PostgreSQL migrations...")
			if err := postgres.Migrate(cfg.Database.URL); err != nil {
				return err
			}
		}
		log.Println("Connecting to PostgreSQL...")
		db, err := postgres.Connect(ctx, postgres.Config{
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.pg = db
		a.closers = append(a.closers, db.Close)
		log.Println("PostgreSQL connected")
	}

	if cfg.Uses(config.BackendRedis) {
		log.Println("Connecting to Redis...")
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		a.redisClient = client
		log.Println("Redis connected")
	}

	if cfg.Uses(config.BackendSQLite) {
		db, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return err
		}
		a.sqliteDB = db
		a.closers = append(a.closers, db.Close)
		log.Printf("SQLite database at %s", db.Path())
	}
	return nil
}

func (a *app) buildStores(ctx context.Context) error {
	cfg := a.cfg
	prefix := cfg.Redis.Prefix

	switch cfg.Worker.Queue {
	case config.BackendRedis:
		q, err := redisqueue.NewQueue(ctx, a.redisClient, fmt.Sprintf("worker-%d", os.Getpid()),
			redisqueue.WithPrefix(strings.TrimSuffix(prefix, ":")),
			redisqueue.WithClaimAfter(cfg.Worker.ClaimAfter))
		if err != nil {
			return fmt.Errorf("create task queue: %w", err)
		}
		a.queue = q
	case config.BackendPostgres:
		a.queue = postgresqueue.NewQueue(a.pg.DB).WithStaleAfter(cfg.Worker.ClaimAfter)
	default:
		a.queue = memory.NewQueue()
	}
	a.closers = append(a.closers, a.queue.Close)

	switch cfg.State.Backend {
	case config.BackendRedis:
		a.claims = redisadapter.NewClaimStore(a.redisClient, prefix)
	case config.BackendPostgres:
		a.claims = postgres.NewClaimStore(a.pg)
	case config.BackendSQLite:
		a.claims = sqlite.NewClaimStore(a.sqliteDB)
	default:
		a.claims = memory.NewClaimStore()
	}

	switch cfg.State.WatermarkBackend {
	case config.BackendRedis:
		a.watermarks = redisadapter.NewWatermarkStore(a.redisClient, prefix)
	case config.BackendPostgres:
		a.watermarks = postgres.NewWatermarkStore(a.pg)
	case config.BackendSQLite:
		a.watermarks = sqlite.NewWatermarkStore(a.sqliteDB)
	case config.BackendFile:
		store, err := filestate.NewWatermarkStore(cfg.State.WatermarkDir)
		if err != nil {
			return err
		}
		a.watermarks = store
	default:
		a.watermarks = memory.NewWatermarkStore()
	}

	switch cfg.Ledger.Backend {
	case config.BackendPostgres:
		a.ledger = postgres.NewLedgerStore(a.pg)
		a.aggregates = postgres.NewAggregateStore(a.pg)
	case config.BackendSQLite:
		a.ledger = sqlite.NewLedgerStore(a.sqliteDB)
		a.aggregates = sqlite.NewAggregateStore(a.sqliteDB)
	default:
		a.ledger = memory.NewLedgerStore()
		a.aggregates = memory.NewAggregateStore()
	}

	// Scheduler lock: Redis if available, otherwise PostgreSQL advisory locks
	switch {
	case a.redisClient != nil:
		a.lock = redisadapter.NewLock(a.redisClient, prefix)
	case a.pg != nil:
		a.lock = postgres.NewAdvisoryLock(a.pg)
	}

	if cfg.Worker.Queue == config.BackendMemory && cfg.Ledger.Backend != config.BackendMemory {
		log.Println("Warning: memory task queue loses pending work on restart")
	}
	return nil
}

func (a *app) buildFolder(ctx context.Context) error {
	switch a.cfg.Poller.Source {
	case config.SourceLocal:
		f, err := localfolder.New(a.cfg.Poller.LocalRoot)
		if err != nil {
			return err
		}
		a.folder = f
		log.Printf("Watching local folders under %s", a.cfg.Poller.LocalRoot)
	default:
		f, err := drive.NewWithDefaultCredentials(ctx, drive.Config{
			BaseURL: a.cfg.Poller.DriveBaseURL,
			Logger:  a.logger,
		})
		if err != nil {
			return err
		}
		a.folder = f
		log.Println("Watching Google Drive folders")
	}
	return nil
}

func chatConfig(c config.LLMConfig, logger *slog.Logger) ai.ChatConfig {
	return ai.ChatConfig{
		Provider: c.Provider,
		APIKey:   c.APIKey,
		Model:    c.Model,
		BaseURL:  c.BaseURL,
		Timeout:  c.Timeout,
		RetryMax: c.RetryMax,
		Logger:   logger,
	}
}

// loadChatModel installs the configured chat model. A missing or broken
// model is not fatal: the parser publishes null extractions, which route to
// review, until a config reload fixes it.
func (a *app) loadChatModel(ctx context.Context, c config.LLMConfig) {
	model, err := ai.NewChatModel(chatConfig(c, a.logger))
	if err != nil {
		a.logger.Warn("chat model not configured", "provider", c.Provider, "error", err)
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.runtime.ValidateAndSetChatModel(pingCtx, model); err != nil {
		a.logger.Warn("chat model unreachable, using it anyway", "model", model.Model(), "error", err)
		a.runtime.SetChatModel(model)
	}
}

func (a *app) buildOCR() driven.TextExtractor {
	if a.cfg.OCR.Provider != "vision" {
		return nil
	}
	ocr, err := extractors.NewVisionOCR(extractors.VisionConfig{
		APIKey:    a.cfg.OCR.APIKey,
		BaseURL:   a.cfg.OCR.BaseURL,
		PageLimit: a.cfg.OCR.PageLimit,
		Timeout:   a.cfg.OCR.Timeout,
		RetryMax:  a.cfg.OCR.RetryMax,
		Logger:    a.logger,
	})
	if err != nil {
		a.logger.Warn("OCR disabled, images and PDFs will extract as empty text", "error", err)
		return nil
	}
	return ocr
}

// watchConfig swaps the chat model when the config file changes.
func (a *app) watchConfig(ctx context.Context, l *config.Loader) {
	if l == nil {
		return
	}
	l.OnChange(func(c *config.Config) {
		a.logger.Info("config file changed, reloading chat model")
		a.loadChatModel(ctx, c.LLM)
	}, func(err error) {
		a.logger.Warn("ignoring invalid config change", "error", err)
	})
}

// newWorker builds a worker running every pipeline stage.
func (a *app) newWorker(withScheduler bool) *worker.Worker {
	cfg := worker.WorkerConfig{
		TaskQueue:      a.queue,
		Logger:         a.logger,
		Extractor:      a.extraction,
		Parser:         a.parser,
		Validator:      a.validator,
		Ledger:         a.ledgerSvc,
		Aggregator:     a.aggregator,
		Concurrency:    a.cfg.Worker.Concurrency,
		DequeueTimeout: a.cfg.Worker.DequeueTimeout,
	}
	if a.folder != nil {
		cfg.Poller = a.poller
	}
	if withScheduler {
		cfg.Scheduler = a.scheduler
	}
	return worker.NewWorker(cfg)
}

// newServer builds the HTTP server with readiness checks for every backend
// in use.
func (a *app) newServer() *httpadapter.Server {
	checks := map[string]httpadapter.Pinger{
		"queue":  a.queue,
		"claims": a.claims,
	}
	if a.pg != nil {
		checks["postgres"] = a.pg
	}
	if a.redisClient != nil {
		checks["redis"] = redisPinger{a.redisClient}
	}
	if a.sqliteDB != nil {
		checks["sqlite"] = a.sqliteDB
	}

	return httpadapter.NewServer(httpadapter.Config{
		Host:           a.cfg.Server.Host,
		Port:           a.cfg.Server.Port,
		Version:        version,
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		Logger:         a.logger,
	}, httpadapter.Services{
		Auth:       a.auth,
		Ingress:    a.ingress,
		Sources:    a.sources,
		Ledger:     a.ledgerSvc,
		Aggregates: a.aggregator,
	}, checks)
}

// Close releases connections in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.runtime != nil {
		_ = a.runtime.Close()
	}
	return errors.Join(errs...)
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
