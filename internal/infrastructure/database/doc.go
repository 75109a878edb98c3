// Package database manages the SQLite connection and schema migrations
// for LabGate Core.
//
// SQLite stores the slow-moving relational data: user accounts, lab
// geofence definitions, and the audit trail. Live pairing sessions are
// held in memory by the relay package and are never persisted here.
//
// # Usage
//
//	db, err := database.Open(ctx, database.Config{Path: "./data/labgate.db", WALMode: true, BusyTimeout: 5})
//	if err != nil { ... }
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil { ... }
//
// Migrations are embedded into the binary by the top-level migrations
// package; see MigrationsFS.
package database
