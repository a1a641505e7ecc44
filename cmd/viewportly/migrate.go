package main

import (
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/viewportly/migrations"
	"github.com/dmitrymomot/viewportly/pkg/pg"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var cfg appConfig
		if err := loadConfig(cmd, &cfg); err != nil {
			return err
		}
		log := newLogger(cfg)
		ctx := cmd.Context()

		pool, err := pg.Connect(ctx, cfg.PG)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := pg.Migrate(ctx, pool, migrations.FS, cfg.PG, log); err != nil {
			return err
		}
		log.InfoContext(ctx, "migrations applied")
		return nil
	},
}
