// Package database provides the SQLite store used by camerad.
//
// The store is small: it holds the debug-override parameters and the
// schema_migrations bookkeeping table. Migrations are plain .sql files
// passed in as an fs.FS; the migrations package embeds the production set.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
