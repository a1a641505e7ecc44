// Package pg bootstraps PostgreSQL access on top of pgx/v5.
//
// Connect opens a *pgxpool.Pool from Config (parsed from PG_* environment
// variables) and retries until the server answers a ping. Migrate applies
// goose migrations from an fs.FS, usually an embedded directory. WithTx wraps a
// function in a transaction and Healthcheck returns a readiness probe.
//
// Error helpers classify driver errors: IsNotFoundError, IsDuplicateKeyError,
// IsSerializationError and IsConnectionError.
package pg
