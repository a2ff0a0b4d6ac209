package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mattn/go-sqlite3"
)

// countingDriverName is a mattn/go-sqlite3 wrapper that counts native
// handles, used to check every prepared statement is finalized and every
// connection closed.
const countingDriverName = "sqlite3_counting"

var counting = &countingDriver{base: &sqlite3.SQLiteDriver{}}

func init() {
	sql.Register(countingDriverName, counting)
}

type countingDriver struct {
	base driver.Driver

	opened    atomic.Int64
	closed    atomic.Int64
	prepared  atomic.Int64
	finalized atomic.Int64

	mu    sync.Mutex
	stmts []*countingStmt
}

func (d *countingDriver) Open(name string) (driver.Conn, error) {
	c, err := d.base.Open(name)
	if err != nil {
		return nil, err
	}
	d.opened.Add(1)
	return &countingConn{conn: c, d: d}, nil
}

func (d *countingDriver) reset() {
	d.opened.Store(0)
	d.closed.Store(0)
	d.prepared.Store(0)
	d.finalized.Store(0)

	d.mu.Lock()
	d.stmts = nil
	d.mu.Unlock()
}

// unbalanced returns the queries of statements not closed exactly once.
func (d *countingDriver) unbalanced() map[string]int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]int64)
	for _, s := range d.stmts {
		if n := s.closes.Load(); n != 1 {
			out[s.query] = n
		}
	}
	return out
}

// countingConn exposes only driver.Conn, so database/sql routes every
// statement, direct execution included, through Prepare.
type countingConn struct {
	conn driver.Conn
	d    *countingDriver
}

func (c *countingConn) Prepare(query string) (driver.Stmt, error) {
	st, err := c.conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	c.d.prepared.Add(1)
	cs := &countingStmt{stmt: st, d: c.d, query: query}
	c.d.mu.Lock()
	c.d.stmts = append(c.d.stmts, cs)
	c.d.mu.Unlock()
	return cs, nil
}

func (c *countingConn) Close() error {
	c.d.closed.Add(1)
	return c.conn.Close()
}

func (c *countingConn) Begin() (driver.Tx, error) {
	return c.conn.Begin() //nolint:staticcheck // Required by driver.Conn
}

type countingStmt struct {
	stmt  driver.Stmt
	d     *countingDriver
	query string

	closes atomic.Int64
}

func (s *countingStmt) Close() error {
	s.closes.Add(1)
	s.d.finalized.Add(1)
	return s.stmt.Close()
}

func (s *countingStmt) NumInput() int { return s.stmt.NumInput() }

func (s *countingStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.stmt.Exec(args) //nolint:staticcheck // Required by driver.Stmt
}

func (s *countingStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.stmt.Query(args) //nolint:staticcheck // Required by driver.Stmt
}

func (s *countingStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.stmt.(driver.StmtExecContext).ExecContext(ctx, args)
}

func (s *countingStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.stmt.(driver.StmtQueryContext).QueryContext(ctx, args)
}

// TestCreateThenSelectEmpty verifies a new table yields an empty, non-nil result.
func TestCreateThenSelectEmpty(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecuteChange(ctx, "CREATE TABLE t (id INTEGER)"); err != nil {
		t.Fatalf("ExecuteChange() error = %v", err)
	}

	rows, err := db.ExecuteQuery(ctx, "SELECT * FROM t")
	if err != nil {
		t.Fatalf("ExecuteQuery() error = %v", err)
	}
	if rows == nil {
		t.Fatal("ExecuteQuery() returned nil slice")
	}
	if len(rows) != 0 {
		t.Errorf("expected 0 rows, got %d", len(rows))
	}
}

// TestInsertThenSelect verifies a row written by one operation is read by the next.
func TestInsertThenSelect(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecuteChange(ctx, "CREATE TABLE t (id INTEGER)"); err != nil {
		t.Fatalf("CREATE error = %v", err)
	}
	res, err := db.ExecuteChange(ctx, "INSERT INTO t VALUES (1)")
	if err != nil {
		t.Fatalf("INSERT error = %v", err)
	}
	if res.RowsAffected != 1 {
		t.Errorf("RowsAffected = %d, want 1", res.RowsAffected)
	}
	if res.LastInsertID != 1 {
		t.Errorf("LastInsertID = %d, want 1", res.LastInsertID)
	}

	rows, err := db.ExecuteQuery(ctx, "SELECT id FROM t")
	if err != nil {
		t.Fatalf("ExecuteQuery() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	col, ok := rows[0].Get("id")
	if !ok {
		t.Fatal("column id missing")
	}
	if v, ok := col.AsInteger(); !ok || v != 1 {
		t.Errorf("id = %v (%s), want Integer 1", col.Value(), col.Kind())
	}
}

// TestFailedChangeLeavesStateUnchanged verifies a step failure has no effect.
func TestFailedChangeLeavesStateUnchanged(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecuteChange(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT NOT NULL)"); err != nil {
		t.Fatalf("CREATE error = %v", err)
	}
	if _, err := db.ExecuteChange(ctx, "INSERT INTO t VALUES (1, 'a')"); err != nil {
		t.Fatalf("INSERT error = %v", err)
	}

	tests := []struct {
		name   string
		query  string
		during string
		code   Code
	}{
		{"duplicate key", "INSERT INTO t VALUES (1, 'b')", "SQL Step", CodeConstraint},
		{"not null", "INSERT INTO t VALUES (2, NULL)", "SQL Step", CodeConstraint},
		{"syntax", "INSERT INTO t VALUS (3, 'c')", "SQL Prepare", CodeError},
		{"unknown table", "UPDATE nosuch SET x = 1", "SQL Prepare", CodeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.ExecuteChange(ctx, tt.query)
			var dbErr *Error
			if !errors.As(err, &dbErr) {
				t.Fatalf("ExecuteChange() error = %v, want *Error", err)
			}
			if dbErr.Code != tt.code {
				t.Errorf("Code = %v, want %v", dbErr.Code, tt.code)
			}
			if dbErr.During != tt.during {
				t.Errorf("During = %q, want %q", dbErr.During, tt.during)
			}
			if dbErr.Detail == "" {
				t.Error("Detail is empty, want engine message")
			}

			rows, err := db.ExecuteQuery(ctx, "SELECT id, name FROM t")
			if err != nil {
				t.Fatalf("ExecuteQuery() error = %v", err)
			}
			if len(rows) != 1 {
				t.Errorf("expected table unchanged with 1 row, got %d", len(rows))
			}
		})
	}
}

// TestQueryOpenFailure verifies an open failure is surfaced by queries.
func TestQueryOpenFailure(t *testing.T) {
	db := openTestDBConfig(t, Config{Path: filepath.Join(t.TempDir(), "missing", "test.db")})

	rows, err := db.ExecuteQuery(context.Background(), "SELECT 1")
	if CodeOf(err) != CodeCantOpen {
		t.Errorf("CodeOf(err) = %v, want %v", CodeOf(err), CodeCantOpen)
	}
	var dbErr *Error
	if errors.As(err, &dbErr) && dbErr.During != "Opening Database" {
		t.Errorf("During = %q, want %q", dbErr.During, "Opening Database")
	}
	if rows == nil || len(rows) != 0 {
		t.Errorf("rows = %v, want empty non-nil slice", rows)
	}
}

// TestBindCount verifies placeholder count mismatches are coded.
func TestBindCount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecuteChange(ctx, "CREATE TABLE t (a INTEGER, b INTEGER)"); err != nil {
		t.Fatalf("CREATE error = %v", err)
	}

	tests := []struct {
		name string
		args []any
		code Code
	}{
		{"too few", []any{1}, CodeBindTooFew},
		{"too many", []any{1, 2, 3}, CodeBindTooMany},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.ExecuteChange(ctx, "INSERT INTO t VALUES (?, ?)", tt.args...)
			if CodeOf(err) != tt.code {
				t.Errorf("CodeOf(err) = %v, want %v", CodeOf(err), tt.code)
			}
		})
	}

	if _, err := db.ExecuteChange(ctx, "INSERT INTO t VALUES (?, ?)", 1, 2); err != nil {
		t.Errorf("ExecuteChange() with matching args error = %v", err)
	}
}

// TestQueryPartialRows verifies rows read before a step failure are returned.
func TestQueryPartialRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecuteChange(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY, v INTEGER)"); err != nil {
		t.Fatalf("CREATE error = %v", err)
	}
	for i, v := range []int64{1, 2, math.MinInt64} {
		if _, err := db.ExecuteChange(ctx, "INSERT INTO t VALUES (?, ?)", i+1, v); err != nil {
			t.Fatalf("INSERT error = %v", err)
		}
	}

	// abs() of the minimum integer overflows on the third row.
	rows, err := db.ExecuteQuery(ctx, "SELECT abs(v) AS a FROM t ORDER BY id")
	var dbErr *Error
	if !errors.As(err, &dbErr) {
		t.Fatalf("ExecuteQuery() error = %v, want *Error", err)
	}
	if dbErr.During != "SQL Step" || dbErr.Code != CodeError {
		t.Errorf("error = %v, want SQL Step with code %d", dbErr, CodeError)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows before failure, got %d", len(rows))
	}
	for i, row := range rows {
		col, _ := row.Get("a")
		if v, ok := col.AsInteger(); !ok || v != int64(i+1) {
			t.Errorf("row %d a = %v, want %d", i, col.Value(), i+1)
		}
	}
}

// TestQueryDecodeFaultContinues verifies a decode fault does not end the query.
func TestQueryDecodeFaultContinues(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecuteChange(ctx, "CREATE TABLE w (id INTEGER, v WIDGET)"); err != nil {
		t.Fatalf("CREATE error = %v", err)
	}
	if _, err := db.ExecuteChange(ctx, "INSERT INTO w VALUES (1, 'x'), (2, 'y')"); err != nil {
		t.Fatalf("INSERT error = %v", err)
	}

	rows, err := db.ExecuteQuery(ctx, "SELECT id, v FROM w ORDER BY id")
	if err != nil {
		t.Fatalf("ExecuteQuery() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for _, row := range rows {
		v, _ := row.Get("v")
		if !v.IsNull() {
			t.Errorf("v = %v, want NULL", v.Value())
		}
		if !errors.Is(row.Fault("v"), ErrUnknownType) {
			t.Errorf("Fault(v) = %v, want ErrUnknownType", row.Fault("v"))
		}
		if row.Fault("id") != nil {
			t.Errorf("Fault(id) = %v, want nil", row.Fault("id"))
		}
	}
}

// TestNativeHandlesReleased verifies every statement is finalized and every
// connection closed on success and failure paths alike.
func TestNativeHandlesReleased(t *testing.T) {
	counting.reset()
	db := openTestDBConfig(t, Config{Driver: countingDriverName})
	ctx := context.Background()

	err := db.CreateTable(ctx, "t", []string{"id INTEGER PRIMARY KEY", "v INTEGER", "w WIDGET", "f BOOLEAN"})
	if err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}
	if _, err := db.ExecuteChange(ctx, "INSERT INTO t VALUES (1, 1, 'x', 1), (2, ?, 'y', 0)", int64(math.MinInt64)); err != nil {
		t.Fatalf("INSERT error = %v", err)
	}

	// Success, prepare failure, step failure, bind failure and decode
	// fault. BOOLEAN columns are read twice, once for the declared types
	// and once for the stored values.
	_, _ = db.ExecuteQuery(ctx, "SELECT id FROM t")                         //nolint:errcheck // Counted below
	_, _ = db.ExecuteQuery(ctx, "SELEC id FROM t")                          //nolint:errcheck // Counted below
	_, _ = db.ExecuteQuery(ctx, "SELECT abs(v) FROM t ORDER BY id")         //nolint:errcheck // Counted below
	_, _ = db.ExecuteChange(ctx, "INSERT INTO t VALUES (1, 1, 'z', 1)")     //nolint:errcheck // Counted below
	_, _ = db.ExecuteChange(ctx, "INSERT INTO t VALUES (?, ?, ?, ?)", 3)    //nolint:errcheck // Counted below
	_, _ = db.ExecuteQuery(ctx, "SELECT w FROM t")                          //nolint:errcheck // Counted below
	_, _ = db.ExecuteQuery(ctx, "SELECT id, f FROM t ORDER BY id")          //nolint:errcheck // Counted below
	_, _ = db.ExecuteQuery(ctx, "SELECT f, abs(v) FROM t ORDER BY id DESC") //nolint:errcheck // Counted below
	_, _ = db.TableNames(ctx)                                               //nolint:errcheck // Counted below
	_ = db.CreateTable(ctx, "bad", []string{"id INTEGER,"})                 //nolint:errcheck // Counted below

	if got, want := counting.opened.Load(), int64(12); got != want {
		t.Errorf("connections opened = %d, want %d (one per operation)", got, want)
	}
	if opened, closed := counting.opened.Load(), counting.closed.Load(); opened != closed {
		t.Errorf("connections opened = %d, closed = %d", opened, closed)
	}
	if prepared, finalized := counting.prepared.Load(), counting.finalized.Load(); prepared != finalized {
		t.Errorf("statements prepared = %d, finalized = %d", prepared, finalized)
	}
	if counting.prepared.Load() == 0 {
		t.Error("no statements were prepared")
	}
	for query, closes := range counting.unbalanced() {
		t.Errorf("statement %q closed %d times, want 1", query, closes)
	}
}

// TestNativeHandlesCustomConnection verifies the custom connection is opened
// once and closed by CloseConnection.
func TestNativeHandlesCustomConnection(t *testing.T) {
	counting.reset()
	db := openTestDBConfig(t, Config{Driver: countingDriverName})
	ctx := context.Background()

	if err := db.OpenConnection(ctx); err != nil {
		t.Fatalf("OpenConnection() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := db.ExecuteQuery(ctx, "SELECT 1"); err != nil {
			t.Fatalf("ExecuteQuery() error = %v", err)
		}
	}
	if got := counting.opened.Load(); got != 1 {
		t.Errorf("connections opened = %d, want 1", got)
	}
	if got := counting.closed.Load(); got != 0 {
		t.Errorf("connections closed = %d before CloseConnection, want 0", got)
	}

	if err := db.CloseConnection(); err != nil {
		t.Fatalf("CloseConnection() error = %v", err)
	}
	if got := counting.closed.Load(); got != 1 {
		t.Errorf("connections closed = %d, want 1", got)
	}
	for query, closes := range counting.unbalanced() {
		t.Errorf("statement %q closed %d times, want 1", query, closes)
	}
}

// TestContextCanceled verifies a canceled context is reported as an interrupt.
func TestContextCanceled(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := db.ExecuteQuery(ctx, "SELECT 1")
	if CodeOf(err) != CodeInterrupt {
		t.Errorf("CodeOf(err) = %v, want %v", CodeOf(err), CodeInterrupt)
	}
}
