package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"

	"quizstreak-service/internal/config"
	"quizstreak-service/internal/infra/memory"
	mongostore "quizstreak-service/internal/infra/mongo"
	pginfra "quizstreak-service/internal/infra/postgres"
	pgmigrations "quizstreak-service/internal/infra/postgres/migrations"
	"quizstreak-service/internal/logger"
)

// NewMigrateCmd applies database migrations and seeds the badge catalog.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run Postgres migrations and seed the default badge catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()
			if cfg.Postgres.URL == "" && cfg.Mongo.URI == "" {
				return fmt.Errorf("neither postgres url nor mongo uri configured")
			}
			if cfg.Postgres.URL != "" {
				if err := runMigrationsWithConfig(cmd.Context(), cfg, log); err != nil {
					return err
				}
			}
			return seedBadges(cmd.Context(), cfg, log)
		},
	}
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	db := openBun(cfg.Postgres.URL)
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if group.IsZero() {
		log.Info("no new migrations")
		return nil
	}
	log.Info("migrations applied", "group", group.String())
	return nil
}

// seedBadges upserts the default catalog into every configured catalog store.
func seedBadges(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	badges := memory.DefaultBadges()
	if cfg.Postgres.URL != "" {
		db := openBun(cfg.Postgres.URL)
		defer db.Close()
		if err := pginfra.NewBadgeCatalog(db).UpsertBadges(ctx, badges); err != nil {
			return fmt.Errorf("seed postgres badges: %w", err)
		}
		log.Info("badge catalog seeded", "backend", "postgres", "count", len(badges))
	}
	if cfg.Mongo.URI != "" {
		store, err := mongostore.Connect(ctx, cfg.Mongo.URI, mongoDatabase(cfg))
		if err != nil {
			return err
		}
		defer store.Close(context.Background())
		if err := store.EnsureIndexes(ctx); err != nil {
			return err
		}
		if err := store.UpsertBadges(ctx, badges); err != nil {
			return fmt.Errorf("seed mongo badges: %w", err)
		}
		log.Info("badge catalog seeded", "backend", "mongo", "count", len(badges))
	}
	return nil
}
