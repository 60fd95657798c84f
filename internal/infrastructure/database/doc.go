// Package database provides SQLite connectivity for the sensor collector.
//
// This package manages:
//   - Opening the database file (directory creation, pragmas, 0600 permissions)
//   - A single-connection pool matching SQLite's single-writer model
//   - Schema migrations from an fs.FS of *.up.sql files
//   - Classification of SQLite constraint failures (ErrConstraint)
//
// All queries use parameterised statements.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: "sensor-data.db", BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, schemaFS); err != nil {
//	    return err
//	}
package database
