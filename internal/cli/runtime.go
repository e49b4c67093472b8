package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quizstreak-service/internal/app"
	"quizstreak-service/internal/config"
	"quizstreak-service/internal/infra/memory"
	mongostore "quizstreak-service/internal/infra/mongo"
	pginfra "quizstreak-service/internal/infra/postgres"
	redisinfra "quizstreak-service/internal/infra/redis"
	"quizstreak-service/internal/logger"
)

// runtime holds the wired dependencies shared by every subcommand.
type runtime struct {
	cfg      config.Config
	log      *logger.Logger
	store    app.Store
	redis    *redis.Client
	quizzes  app.QuizRepository
	badges   *memory.CachedBadgeCatalog
	hub      *app.LeaderboardHub
	relay    *redisinfra.LeaderboardRelay
	handlers *app.GamificationService
	service  *app.QuizService

	closers []func(context.Context) error
}

func loadConfig(path string) (config.Config, *logger.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return cfg, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

// newRuntime connects the configured backends. Mongo, Redis and Postgres are
// each optional; without them the in-memory twins and demo data are used.
func newRuntime(ctx context.Context, cfg config.Config, log *logger.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, log: log, hub: app.NewLeaderboardHub()}
	if err := rt.connect(ctx); err != nil {
		rt.close()
		return nil, err
	}

	publishers := app.Publishers{rt.hub}
	if rt.redis != nil {
		rt.relay = redisinfra.NewLeaderboardRelay(rt.redis, snapshotTTL(cfg), log)
		publishers = append(publishers, rt.relay)
	}
	rt.handlers = app.NewGamificationService(rt.store, rt.badges, log,
		app.WithSessionTimeout(config.Duration(cfg.Gamification.SessionTimeout, 30*time.Minute)),
		app.WithLeaderboardPublisher(publishers),
	)
	rt.service = app.NewQuizService(rt.store, rt.quizzes, rt.handlers, cfg.Gamification.FreezeCost)
	return rt, nil
}

func (rt *runtime) connect(ctx context.Context) error {
	cfg := rt.cfg

	var badgeSource memory.BadgeLoader
	if cfg.Mongo.URI != "" {
		store, err := mongostore.Connect(ctx, cfg.Mongo.URI, mongoDatabase(cfg))
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, store.Close)
		if err := store.EnsureIndexes(ctx); err != nil {
			return err
		}
		rt.store = store
		badgeSource = store
		rt.log.Info("using mongo state store", "database", mongoDatabase(cfg))
	} else {
		store := memory.NewStore()
		seedDemoUsers(store)
		rt.store = store
		rt.log.Warn("mongo not configured, using in-memory state store with demo data")
	}

	if cfg.Redis.Addr != "" {
		rt.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func(context.Context) error { return rt.redis.Close() })
		if err := rt.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(demoQuizzes())
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		rt.closers = append(rt.closers, func(context.Context) error { pool.Close(); return nil })
		loader = pginfra.NewQuizLoader(pool)

		db := openBun(cfg.Postgres.URL)
		rt.closers = append(rt.closers, func(context.Context) error { return db.Close() })
		badgeSource = pginfra.NewBadgeCatalog(db)
	}
	if badgeSource == nil {
		badgeSource = memory.NewStaticBadgeCatalog(memory.DefaultBadges()...)
	}
	rt.badges = memory.NewCachedBadgeCatalog(badgeSource, config.Duration(cfg.Badges.TTL, 5*time.Minute))

	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	if rt.redis != nil {
		rt.quizzes = redisinfra.NewQuizRepository(rt.redis, loader, quizTTL, rt.log)
	} else {
		rt.quizzes = memory.NewQuizRepository(loader, quizTTL)
	}
	return nil
}

func (rt *runtime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			rt.log.Warn("close failed", "error", err)
		}
	}
	rt.log.Sync()
}

func (rt *runtime) retryWindow() time.Duration {
	return config.Duration(rt.cfg.Retry.MaxElapsed, 30*time.Second)
}

// requireSharedStore rejects configs without mongo.uri for commands whose
// writes must reach the server's store; the in-memory store is per process.
func requireSharedStore(cfg config.Config, command string) error {
	if cfg.Mongo.URI == "" {
		return fmt.Errorf("%s needs mongo.uri: the in-memory store is not shared with the server", command)
	}
	return nil
}

// snapshotTTL is how long shared leaderboard snapshots live in Redis.
func snapshotTTL(cfg config.Config) time.Duration {
	return config.Duration(cfg.Leaderboard.SnapshotTTL, 2*time.Hour)
}

func openBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func mongoDatabase(cfg config.Config) string {
	if cfg.Mongo.Database != "" {
		return cfg.Mongo.Database
	}
	return "quizstreak"
}
