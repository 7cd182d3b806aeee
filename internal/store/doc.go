// Package store provides SQLite-backed durable storage for the warehouse.
//
// The store owns four kinds of tables:
//   - Target tables: one per entity, created lazily from the entity
//     descriptor, keyed by a surrogate dwh_id with a UNIQUE natural key
//   - dwh_watermark: last successful run start per process
//   - dwh_run_log: append-only audit of successful loads
//   - process_leases: advisory single-flight claims
//
// # Transactions
//
// An entity load runs inside one Tx. The watermark read, extraction,
// lookups, writes, run log entry and watermark advance either all commit
// or all roll back. The pool holds a single connection, so a load must not
// touch the Store directly while its Tx is open.
//
// # Source Database
//
// WithSource attaches the operational database as schema "src" on every
// connection. Extraction reads src tables and writes main tables in the
// same transaction.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce parent references
//
// All times are stored as TEXT in ir.TimeLayout (UTC, microseconds) and
// compared through julianday().
package store
