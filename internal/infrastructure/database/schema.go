package database

import (
	"context"
	"strings"
)

// CreateTable creates a table if it does not already exist.
//
// Each column is a raw SQL column definition such as
// "id INTEGER PRIMARY KEY" or "name TEXT NOT NULL". Neither the table name
// nor the definitions are validated or escaped: pass trusted input only.
// The statement runs through the engine's direct-execute path rather than
// a prepared statement.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - name: Table name
//   - columns: Column definitions, at least one
//
// Returns:
//   - error: *Error with CodeNoColumns for an empty column list, or the
//     engine failure with During "Create Table"
func (db *DB) CreateTable(ctx context.Context, name string, columns []string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	query := createTableSQL(name, columns)
	op := db.begin(OpCreateTable, query)
	err := db.createTable(ctx, op, query, len(columns))
	db.finish(op, err, 0, 0)
	return err
}

func (db *DB) createTable(ctx context.Context, op *operation, query string, ncols int) error {
	if ncols == 0 {
		failure := codedError(duringCreate, CodeNoColumns)
		logFailure(op.log, failure)
		return failure
	}

	c, err := db.acquire(ctx, op.log)
	if err != nil {
		return err
	}
	var failure *Error
	defer func() { db.release(c, failure, op.log) }()

	if _, err := c.sc.ExecContext(ctx, query); err != nil {
		failure = newError(duringCreate, err)
		return failure
	}
	return nil
}

// createTableSQL builds CREATE TABLE IF NOT EXISTS name (c1, c2, ...).
func createTableSQL(name string, columns []string) string {
	return "CREATE TABLE IF NOT EXISTS " + name + " (" + strings.Join(columns, ", ") + ")"
}

// DropTable drops a table. Like CreateTable, the name is not escaped.
//
// Returns:
//   - error: *Error from ExecuteChange, e.g. CodeError for an unknown table
func (db *DB) DropTable(ctx context.Context, name string) error {
	_, err := db.ExecuteChange(ctx, "DROP TABLE "+name)
	return err
}

// TableNames lists the user tables in the schema catalog, sorted by name.
//
// Returns:
//   - []string: Table names
//   - error: *Error with CodeSchemaNames if the catalog cannot be read
func (db *DB) TableNames(ctx context.Context) ([]string, error) {
	return db.schemaNames(ctx, OpTableNames, duringTableNames,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
}

// IndexNames lists index names in the schema catalog, sorted by name.
// If table is non-empty only that table's indexes are listed.
//
// Returns:
//   - []string: Index names
//   - error: *Error with CodeSchemaNames if the catalog cannot be read
func (db *DB) IndexNames(ctx context.Context, table string) ([]string, error) {
	if table == "" {
		return db.schemaNames(ctx, OpIndexNames, duringIndexNames,
			"SELECT name FROM sqlite_master WHERE type = 'index' ORDER BY name")
	}
	return db.schemaNames(ctx, OpIndexNames, duringIndexNames,
		"SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = ? ORDER BY name", table)
}

// schemaNames runs a catalog query returning a single name column.
func (db *DB) schemaNames(ctx context.Context, opName, during, query string, args ...any) ([]string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	op := db.begin(opName, query)
	rows, err := db.executeQuery(ctx, op.log, query, args)
	if err != nil {
		err = &Error{
			During: during,
			Code:   CodeSchemaNames,
			Detail: err.Error(),
			Err:    err,
		}
		db.finish(op, err, 0, 0)
		return nil, err
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		col, _ := row.Get("name")
		if name, ok := col.AsString(); ok {
			names = append(names, name)
		}
	}
	db.finish(op, nil, len(names), 0)
	return names, nil
}
