// Package postgres persists accounts in PostgreSQL for the brewauth engine.
//
// The package implements brewauth.AccountStore on database/sql with the pgx
// driver. Each account is a single row; secondary emails, password history,
// and backup-code hashes are stored as JSONB columns so the engine reads and
// writes whole records without join traffic.
//
// # Architecture boundaries
//
// This package knows nothing about tokens, hashing, or login flows. It maps
// the exported account type to the accounts table and back, translating
// sql.ErrNoRows into brewauth.ErrAccountNotFound at the boundary.
//
// # What this package must NOT do
//
//   - no password hashing or comparison
//   - no token creation or parsing
//   - no lockout or policy decisions
package postgres
