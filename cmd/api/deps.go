package main

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"horizon/internal/app"
	"horizon/internal/domain/aggregation"
	"horizon/internal/domain/user"
	"horizon/internal/infrastructure/cache"
	"horizon/internal/infrastructure/crypto"
	"horizon/internal/infrastructure/postgres"
	httphandlers "horizon/internal/interfaces/http"
	"horizon/internal/shared/auth"
	"horizon/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB    *postgres.DB
	Redis redis.UniversalClient

	// Handlers
	DashboardHandler *httphandlers.DashboardHandler
	UserHandler      *httphandlers.UserHandler
	HealthHandler    *httphandlers.HealthHandler

	// Auth
	JWT *auth.JWT

	// Scheduler collaborators
	Aggregation *aggregation.CachedService
	Links       *postgres.LinkRepository
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	db, err := postgres.New(ctx, cfg.Database.ConnectionString(), postgres.PoolConfig{})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("connected to database")

	deps := &Dependencies{DB: db}
	ok := false
	defer func() {
		if !ok {
			deps.Close()
		}
	}()

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		return nil, err
	}
	deps.Links = postgres.NewLinkRepository(db, encryptor)

	svc, err := app.NewAggregationService(cfg, deps.Links, logger)
	if err != nil {
		return nil, err
	}

	checks := map[string]httphandlers.HealthCheck{
		"database": db.PingContext,
	}

	var store aggregation.ViewStore = aggregation.NoStore{}
	switch cfg.Cache.Backend {
	case config.CacheMemory:
		store = cache.NewMemoryStore(cfg.Cache.Size, cfg.Cache.TTL)
	case config.CacheRedis:
		deps.Redis = cache.NewRedisClient(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword)
		redisStore := cache.NewRedisStore(deps.Redis, cfg.Cache.TTL)
		checks["cache"] = redisStore.Ping
		store = redisStore
	}
	logger.Info("aggregate cache configured", zap.String("backend", cfg.Cache.Backend))

	deps.Aggregation = aggregation.NewCachedService(svc, user.ContextProvider{}, store, logger.Named("cache"))
	deps.JWT = auth.NewJWT(cfg.JWT.Secret, cfg.JWT.TTL)
	deps.DashboardHandler = httphandlers.NewDashboardHandler(deps.Aggregation, cfg.Aggregation.DefaultMaxAge, logger.Named("dashboard"))
	deps.UserHandler = httphandlers.NewUserHandler(user.ContextProvider{})
	deps.HealthHandler = httphandlers.NewHealthHandler(checks, logger)

	ok = true
	return deps, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.Redis != nil {
		d.Redis.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
