package main

import (
	"context"
	"fmt"
	"io"

	"github.com/nerrad567/felshare-bridge/internal/infrastructure/config"
	"github.com/nerrad567/felshare-bridge/internal/infrastructure/database"
	"github.com/nerrad567/felshare-bridge/migrations"
)

// migrateCommand applies pending schema migrations, or with -down rolls
// back the latest one, then prints the applied versions.
func migrateCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("migrate", stderr)
	down := fs.Bool("down", false, "roll back the most recently applied migration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadUnvalidated(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Best effort close on command exit

	if *down {
		err = db.MigrateDown(ctx, migrations.FS)
	} else {
		err = db.Migrate(ctx, migrations.FS)
	}
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	applied, err := db.AppliedMigrations(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(stdout, "no migrations applied")
		return nil
	}
	for _, r := range applied {
		fmt.Fprintln(stdout, r.Version)
	}
	return nil
}
