// Package postgres provides a PostgreSQL-backed store for jobs and
// provider health using pgx/v5.
//
// Claim and cancel are implemented as conditional UPDATEs so a single
// database round trip settles races between workers. Schema migrations
// are embedded and tracked in a renderq_migrations table; call Migrate
// once at startup.
package postgres
