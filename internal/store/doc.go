// Package store provides the embedded relational persistence layer for the
// safety records service.
//
// The store owns a single in-memory SQLite database (the engine handle) and
// a Durability strategy that holds the full serialized image of that
// database. Every mutating statement is followed by a full snapshot:
//
//   - Execute runs the statement in a transaction, commits, serializes the
//     whole database and hands the image to Durability.Persist before
//     returning. A failed persist restores the last durable image.
//   - QueryAll / QueryOne only accept read statements and return rows as
//     column-name to value maps.
//
// # Schema
//
// Tables, constraints, indexes and lifecycle triggers are declared as goose
// migrations under migrations/ and applied on every Open. Migration 1 uses
// CREATE ... IF NOT EXISTS throughout so images written before migrations
// were tracked still open cleanly.
//
// # Cost model
//
// Persisting is O(database size) on every write. This is intended for
// low write volume, single-process deployments; the Durability interface
// is the seam for replacing it with an incremental strategy.
//
// # Database Configuration
//
//   - foreign_keys=ON: Enforce referential integrity (CASCADE / SET NULL)
//   - one pooled connection that never expires: it IS the in-memory database
package store
