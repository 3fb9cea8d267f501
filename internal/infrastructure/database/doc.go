// Package database provides SQLite connectivity for the Felshare bridge.
//
// The bridge keeps very little on disk: the learned device sync payload
// and the per-installation MQTT client disambiguator. This package opens
// the file with WAL mode and a busy timeout, and applies embedded schema
// migrations.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql.
package database
