package sql

import (
	"fmt"
	"strings"
)

// Inserter builds a parameterised INSERT statement.
type Inserter struct {
	dialect    string
	table      string
	columns    []string
	values     []any
	returning  []string
}

// Insert returns an Inserter targeting table for the given dialect.
func Insert(dialect, table string) *Inserter {
	return &Inserter{dialect: dialect, table: table}
}

// Columns sets the column list, in the order Values supplies them.
func (i *Inserter) Columns(cols ...string) *Inserter {
	i.columns = cols
	return i
}

// Values appends one row of values, positionally matching Columns.
func (i *Inserter) Values(vals ...any) *Inserter {
	i.values = vals
	return i
}

// Returning requests the given columns back (Postgres/SQLite RETURNING);
// ignored by dialects that do not support it (the caller issues a
// follow-up SELECT in that case).
func (i *Inserter) Returning(cols ...string) *Inserter {
	i.returning = cols
	return i
}

// Query renders the statement and its positional argument list.
func (i *Inserter) Query() (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (", quoteIdent(i.dialect, i.table))
	cols := make([]string, len(i.columns))
	for idx, c := range i.columns {
		cols[idx] = quoteIdent(i.dialect, c)
	}
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES (")
	marks := make([]string, len(i.values))
	for idx := range i.values {
		marks[idx] = placeholder(i.dialect, idx+1)
	}
	b.WriteString(strings.Join(marks, ", "))
	b.WriteString(")")
	if len(i.returning) > 0 && (i.dialect == "postgres" || i.dialect == "sqlite") {
		cols := make([]string, len(i.returning))
		for idx, c := range i.returning {
			cols[idx] = quoteIdent(i.dialect, c)
		}
		fmt.Fprintf(&b, " RETURNING %s", strings.Join(cols, ", "))
	}
	return b.String(), i.values
}

// Updater builds a parameterised UPDATE statement.
type Updater struct {
	dialect string
	table   string
	cols    []string
	vals    []any
	wherep  *Predicate
}

// Update returns an Updater targeting table for the given dialect.
func Update(dialect, table string) *Updater {
	return &Updater{dialect: dialect, table: table}
}

// Set assigns column = v; calls accumulate in the order given, matching the
// rendered SET clause order.
func (u *Updater) Set(column string, v any) *Updater {
	u.cols = append(u.cols, column)
	u.vals = append(u.vals, v)
	return u
}

// Where AND-combines pred into the statement's WHERE clause.
func (u *Updater) Where(pred *Predicate) *Updater {
	if pred == nil {
		return u
	}
	if u.wherep == nil {
		u.wherep = pred
		return u
	}
	u.wherep = And(u.wherep, pred)
	return u
}

// Query renders the statement and its positional argument list.
func (u *Updater) Query() (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s SET ", quoteIdent(u.dialect, u.table))
	args := make([]any, 0, len(u.vals))
	sets := make([]string, len(u.cols))
	paramIndex := 0
	for idx, c := range u.cols {
		paramIndex++
		sets[idx] = fmt.Sprintf("%s = %s", quoteIdent(u.dialect, c), placeholder(u.dialect, paramIndex))
		args = append(args, u.vals[idx])
	}
	b.WriteString(strings.Join(sets, ", "))
	if u.wherep != nil {
		clause, a := u.wherep.format(u.dialect, &paramIndex)
		fmt.Fprintf(&b, " WHERE %s", clause)
		args = append(args, a...)
	}
	return b.String(), args
}

// Deleter builds a parameterised DELETE statement.
type Deleter struct {
	dialect string
	table   string
	wherep  *Predicate
}

// Delete returns a Deleter targeting table for the given dialect.
func Delete(dialect, table string) *Deleter {
	return &Deleter{dialect: dialect, table: table}
}

// Where AND-combines pred into the statement's WHERE clause.
func (d *Deleter) Where(pred *Predicate) *Deleter {
	if pred == nil {
		return d
	}
	if d.wherep == nil {
		d.wherep = pred
		return d
	}
	d.wherep = And(d.wherep, pred)
	return d
}

// Query renders the statement and its positional argument list.
func (d *Deleter) Query() (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "DELETE FROM %s", quoteIdent(d.dialect, d.table))
	var args []any
	if d.wherep != nil {
		paramIndex := 0
		clause, a := d.wherep.format(d.dialect, &paramIndex)
		fmt.Fprintf(&b, " WHERE %s", clause)
		args = a
	}
	return b.String(), args
}
