package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed sql/0002_create_badges.sql
var createBadgesSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createBadgesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS badges`)
			return err
		},
	)
}
