// Package sql provides the SQL connection plumbing (Driver, Conn, Tx) and a
// small parameterised query builder (Selector, Predicate) used by
// driver/sqldriver to render the engine's filter AST into dialect-specific
// SQL.
//
// # Connections
//
//	drv, err := sql.Open(dialect.Postgres, dsn)
//	tx, err := drv.Tx(ctx)
//
// # Building a statement
//
//	sel := sql.NewSelector(dialect.Postgres, "accounts").
//	    Select("id", "name").
//	    Where(sql.And(
//	        sql.EQ("status", "active"),
//	        sql.In("tenant_id", "t1"),
//	    )).
//	    OrderBy("created_at", "desc").
//	    Limit(10)
//	query, args := sel.Query()
//
// Predicate constructors (EQ, NEQ, GT, GTE, LT, LTE, In, NotIn, Contains,
// NotContains, HasPrefix, HasSuffix, IsNull, NotNull, And, Or, Not) mirror
// the operator vocabulary of the engine's filter AST one-for-one, so the
// filter compiler in driver/sqldriver is a direct structural translation.
package sql
