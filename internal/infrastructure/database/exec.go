package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mhkashizadeh/sqlitedb/internal/infrastructure/logging"
)

// Result describes the effect of a mutating statement.
type Result struct {
	// LastInsertID is the rowid of the most recent successful INSERT on the
	// connection.
	LastInsertID int64

	// RowsAffected is the number of rows changed by the statement.
	RowsAffected int64
}

// ExecuteChange runs a statement that produces no rows (DDL, INSERT,
// UPDATE, DELETE).
//
// The statement is prepared, bound to args positionally, stepped once and
// finalized. The connection is opened before and closed after, on every
// path.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - query: SQL statement with optional ? placeholders
//   - args: Values bound to the placeholders
//
// Returns:
//   - Result: Last insert rowid and affected row count
//   - error: *Error with During "Opening Database", "SQL Prepare" or "SQL Step"
func (db *DB) ExecuteChange(ctx context.Context, query string, args ...any) (Result, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	op := db.begin(OpChange, query)
	res, err := db.executeChange(ctx, op.log, query, args)
	db.finish(op, err, 0, res.RowsAffected)
	return res, err
}

func (db *DB) executeChange(ctx context.Context, log *logging.Logger, query string, args []any) (Result, error) {
	c, err := db.acquire(ctx, log)
	if err != nil {
		return Result{}, err
	}
	var failure *Error
	defer func() { db.release(c, failure, log) }()

	stmt, err := c.sc.PrepareContext(ctx, query)
	if err != nil {
		failure = newError(duringPrepare, err)
		return Result{}, failure
	}
	defer finalize(stmt, log)

	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		failure = newError(duringStep, err)
		return Result{}, failure
	}

	var out Result
	out.LastInsertID, _ = res.LastInsertId() //nolint:errcheck // Always supported by SQLite drivers
	out.RowsAffected, _ = res.RowsAffected() //nolint:errcheck // Always supported by SQLite drivers
	return out, nil
}

// ExecuteQuery runs a row-producing statement and returns every row.
//
// Rows are fully materialised before the statement is finalized and the
// connection closed. On a failure the rows collected before it are
// returned together with the error; an open failure yields an empty slice
// and the open error.
//
// Columns are decoded by their declared type, or by the runtime type of
// the value when no type is declared. A column that cannot be decoded is
// NULL in the row, its fault is kept on the row (Row.Fault) and a warning
// is logged; the query continues.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - query: SQL statement with optional ? placeholders
//   - args: Values bound to the placeholders
//
// Returns:
//   - []Row: Rows in engine order, never nil
//   - error: *Error with During "Opening Database", "SQL Prepare" or "SQL Step"
func (db *DB) ExecuteQuery(ctx context.Context, query string, args ...any) ([]Row, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	op := db.begin(OpQuery, query)
	rows, err := db.executeQuery(ctx, op.log, query, args)
	db.finish(op, err, len(rows), 0)
	return rows, err
}

func (db *DB) executeQuery(ctx context.Context, log *logging.Logger, query string, args []any) ([]Row, error) {
	result := make([]Row, 0)

	c, err := db.acquire(ctx, log)
	if err != nil {
		return result, err
	}
	var failure *Error
	defer func() { db.release(c, failure, log) }()

	stmt, err := c.sc.PrepareContext(ctx, query)
	if err != nil {
		failure = newError(duringPrepare, err)
		return result, failure
	}
	defer finalize(stmt, log)

	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		failure = newError(duringStep, err)
		return result, failure
	}

	cur, err := newCursor(rows)
	if err != nil {
		closeRows(rows, log)
		failure = newError(duringStep, err)
		return result, failure
	}

	// Both drivers rewrite BOOLEAN and DATE column values before Scan.
	// When the result has such a column, read it again through a
	// projection that hides the declared types.
	if cur.needsStoredValues() {
		stored, perr := c.sc.PrepareContext(ctx, storedValueQuery(query, cur.names))
		if perr != nil {
			log.Debug("stored value projection unavailable, using driver values", "error", perr)
		} else {
			defer finalize(stored, log)
			closeRows(rows, log)
			if rows, err = stored.QueryContext(ctx, args...); err != nil {
				failure = newError(duringStep, err)
				return result, failure
			}
		}
	}
	defer closeRows(rows, log)

	for rows.Next() {
		if err := cur.scan(rows); err != nil {
			failure = newError(duringStep, err)
			return result, failure
		}
		result = append(result, db.decodeRow(cur, log))
	}
	if err := rows.Err(); err != nil {
		failure = newError(duringStep, err)
		return result, failure
	}

	return result, nil
}

// decodeRow builds a Row from the cursor's current values.
func (db *DB) decodeRow(cur *cursor, log *logging.Logger) Row {
	n := cur.columnCount()
	b := newRowBuilder(n)
	for i := 0; i < n; i++ {
		resolved := cur.resolveType(i)
		col, fault := decode(cur, i, resolved, db.cfg.Location)
		if fault != nil {
			log.Warn("column decode fault",
				"column", cur.columnName(i),
				"index", i,
				"type", resolved,
				"error", fault,
			)
		}
		b.add(cur.columnName(i), col, fault)
	}
	return b.build()
}

func closeRows(rows *sql.Rows, log *logging.Logger) {
	if err := rows.Close(); err != nil {
		log.Warn("error closing result rows", "error", err)
	}
}

// storedValuesCTE names the common table expression storedValueQuery wraps
// a query in.
const storedValuesCTE = "sqlitedb_stored_values"

// storedValueQuery wraps a row-producing query so every
// column comes back as an expression. Expressions carry no declared type,
// so drivers return the stored value unchanged; unary plus leaves the
// value and its storage class as they are. Column names are kept.
//
// Only statements that can stand as a CTE body (SELECT, VALUES, WITH)
// prepare successfully.
func storedValueQuery(query string, names []string) string {
	var b strings.Builder
	b.WriteString("WITH ")
	b.WriteString(storedValuesCTE)
	b.WriteByte('(')
	for i := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "c%d", i)
	}
	b.WriteString(") AS (\n")
	b.WriteString(strings.TrimRight(strings.TrimSpace(query), "; \t\r\n"))
	b.WriteString("\n) SELECT ")
	for i, name := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "+c%d AS %s", i, quoteIdentifier(name))
	}
	b.WriteString(" FROM ")
	b.WriteString(storedValuesCTE)
	return b.String()
}

// quoteIdentifier double-quotes an SQL identifier.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
