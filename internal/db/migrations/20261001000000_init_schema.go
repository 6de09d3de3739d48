package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 20261001000000_init_schema.up.sql
var initSchemaUp string

//go:embed 20261001000000_init_schema.down.sql
var initSchemaDown string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, initSchemaUp)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, initSchemaDown)
			return err
		},
	)
}
