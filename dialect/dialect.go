// Package dialect provides database dialect abstraction for the driver
// layer. It defines the low-level interfaces a storage driver built on
// database/sql implements, and the dialect name constants used to select
// dialect-specific SQL generation in dialect/sql.
package dialect

import "context"

// Dialect name constants, matching the database/sql driver names the
// engine blank-imports (github.com/go-sql-driver/mysql, github.com/lib/pq,
// modernc.org/sqlite).
const (
	MySQL    = "mysql"
	Postgres = "postgres"
	SQLite   = "sqlite"
)

// ExecQuerier wraps the two database/sql primitives a dialect driver needs.
type ExecQuerier interface {
	Exec(ctx context.Context, query string, args, v any) error
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface every dialect-aware connection implements.
type Driver interface {
	ExecQuerier
	Tx(ctx context.Context) (Tx, error)
	Close() error
	Dialect() string
}

// Tx extends Driver with transaction control. A Tx is itself a Driver so
// statements can be issued identically whether or not they run inside one.
type Tx interface {
	Driver
	Commit() error
	Rollback() error
}
