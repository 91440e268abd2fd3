// Package database provides SQLite connectivity for the relay hub's
// optional command audit log.
//
// This package manages:
//   - Database file and directory creation with restrictive permissions
//   - WAL mode and busy timeout configuration
//   - Schema bootstrap (the hub owns a single table, so there is no
//     migration framework; Bootstrap is idempotent)
//   - Connection health checks
//
// The hub never reads audit data back into runtime state. Routing works
// identically with the database disabled.
package database
