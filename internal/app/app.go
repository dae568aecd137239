// Package app wires configuration to concrete providers and hands the
// assembled subsystem to the HTTP server. Every optional backend degrades to
// a NoOp provider so a partial deployment still boots.
package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pagekeep/pagekeep/internal/api"
	"github.com/pagekeep/pagekeep/internal/cache"
	"github.com/pagekeep/pagekeep/internal/clock/system"
	"github.com/pagekeep/pagekeep/internal/config"
	"github.com/pagekeep/pagekeep/internal/database"
	"github.com/pagekeep/pagekeep/internal/dispatcher"
	"github.com/pagekeep/pagekeep/internal/events"
	"github.com/pagekeep/pagekeep/internal/extractor"
	hashsha256 "github.com/pagekeep/pagekeep/internal/hash/sha256"
	uuidgen "github.com/pagekeep/pagekeep/internal/id/uuid"
	"github.com/pagekeep/pagekeep/internal/logging"
	"github.com/pagekeep/pagekeep/internal/queue"
	"github.com/pagekeep/pagekeep/internal/snapshot"
	"github.com/pagekeep/pagekeep/internal/storage"
	"github.com/pagekeep/pagekeep/internal/telemetry"
	"github.com/pagekeep/pagekeep/internal/worker"
)

// App holds the assembled service.
type App struct {
	Config  config.Config
	Logger  *zap.Logger
	Server  *api.Server
	Metrics *telemetry.Metrics

	Worker     *worker.Worker
	Dispatcher *dispatcher.Dispatcher

	cache  cache.Provider
	pool   *pgxpool.Pool
	queue  queue.Provider
	events events.Publisher
}

// New assembles the service from configuration. Backends that are not
// configured fall back to NoOp providers with a single startup warning;
// backends that are configured but unreachable fail the boot.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &App{Config: cfg, Logger: logger}

	if cfg.Cache.Addr != "" {
		redis, err := cache.NewRedis(ctx, cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB)
		if err != nil {
			return nil, fmt.Errorf("connect cache: %w", err)
		}
		a.cache = redis
	} else {
		logger.Warn("no cache configured, politeness and quota gates are open")
		a.cache = cache.NoOp{}
	}

	var store snapshot.RecordStore
	if cfg.DB.DSN != "" {
		pg, pool, err := database.Connect(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.pool = pool
		store = pg
	} else {
		logger.Warn("no database configured, using in-memory record store")
		store = database.NewMemory()
	}

	var blobs snapshot.BlobStore
	switch {
	case cfg.Storage.GCSBucket != "":
		gcs, err := storage.NewGCS(ctx, cfg.Storage.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("connect storage: %w", err)
		}
		blobs = gcs
	case cfg.Snapshots.LocalMode:
		blobs = storage.NewMemory()
	default:
		logger.Warn("no blob storage configured, snapshot content is discarded")
		blobs = storage.NoOp{}
	}

	a.events = events.NoOp{}
	if cfg.Events.ProjectID != "" && cfg.Events.TopicID != "" {
		publisher, err := events.NewPubSub(ctx, cfg.Events.ProjectID, cfg.Events.TopicID)
		if err != nil {
			return nil, fmt.Errorf("connect event topic: %w", err)
		}
		a.events = publisher
	}

	retryDelays, err := cfg.RetryDelays()
	if err != nil {
		return nil, err
	}

	clk := system.New()
	gate := snapshot.NewPolitenessGate(a.cache, cfg.Politeness.Window, cfg.Politeness.EntryTTL, clk, logger)
	quota := snapshot.NewQuotaGate(a.cache, cfg.Quota.Limit, cfg.Quota.Window)

	extract := extractor.New(extractor.Config{
		BaseURL:   cfg.Extractor.BaseURL,
		Timeout:   cfg.Extractor.Timeout,
		RPS:       cfg.Extractor.RPS,
		UserAgent: cfg.Extractor.UserAgent,
	})

	// The local queue's handler is a method on App so it can reach the
	// worker, which is built after the queue. Deliveries only start once
	// something publishes, well after New returns.
	switch {
	case cfg.Broker.PublishURL != "":
		a.queue = queue.NewBroker(queue.BrokerConfig{
			PublishURL: cfg.Broker.PublishURL,
			WorkerURL:  cfg.Broker.WorkerURL,
			Token:      cfg.Broker.Token,
		})
	case cfg.Snapshots.LocalMode:
		a.queue = queue.NewMemory(a.deliverLocal)
	default:
		logger.Warn("no broker configured, snapshot jobs are skipped")
		a.queue = queue.NoOp{}
	}

	a.Dispatcher = dispatcher.New(a.queue, dispatcher.Config{
		Enabled:       cfg.Snapshots.Enabled,
		MaxAttempts:   cfg.Snapshots.MaxAttempts,
		RetryDelays:   retryDelays,
		InitialJitter: cfg.Snapshots.InitialJitter,
	}, logger)

	a.Worker = worker.New(store, blobs, extract, gate, a.Dispatcher,
		hashsha256.New(), clk, a.events, worker.Config{
			MaxAttempts:   cfg.Snapshots.MaxAttempts,
			ContentType:   cfg.Snapshots.ContentType,
			StoragePrefix: cfg.Snapshots.StoragePrefix,
		}, logger)

	auth := worker.NewAuthenticator(worker.AuthConfig{
		SigningKeyCurrent: cfg.Auth.SigningKeyCurrent,
		SigningKeyNext:    cfg.Auth.SigningKeyNext,
		WorkerSecret:      cfg.Auth.WorkerSecret,
	})

	a.Metrics = telemetry.New()
	a.Server = api.NewServer(api.Config{
		SnapshotsEnabled: cfg.Snapshots.Enabled,
		WorkerTimeout:    cfg.Snapshots.WorkerTimeout,
		MaxDeliveryBody:  cfg.Snapshots.MaxDeliveryBody,
	}, store, a.Worker, auth, a.Dispatcher, quota, uuidgen.NewUUIDGenerator(), clk, a.Metrics, logger)

	return a, nil
}

// deliverLocal feeds a locally queued job straight into the worker.
func (a *App) deliverLocal(ctx context.Context, body []byte) {
	var job snapshot.Job
	if err := json.Unmarshal(body, &job); err != nil {
		a.Logger.Error("local delivery payload invalid", zap.Error(err))
		return
	}
	outcome := a.Worker.Process(ctx, job)
	a.Metrics.Deliveries.WithLabelValues(outcome.Status).Inc()
}

// Close releases every backend connection.
func (a *App) Close() {
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			a.Logger.Warn("closing queue", zap.Error(err))
		}
	}
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.Logger.Warn("closing event publisher", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.Logger.Warn("closing cache", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}
