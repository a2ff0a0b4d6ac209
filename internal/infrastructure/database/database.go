package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mhkashizadeh/sqlitedb/internal/infrastructure/logging"
)

// DB is a handle to one SQLite database file.
//
// By default every operation opens its own connection immediately before
// running and closes it immediately after, so no connection is held between
// operations. OpenConnection switches to a single long-lived connection
// until CloseConnection.
//
// Thread Safety:
//   - Operations on one DB are serialised by an internal mutex, so at most
//     one connection is open at a time.
//   - Separate DB values on the same file are not coordinated.
type DB struct {
	cfg      Config
	dsn      string
	logger   *logging.Logger
	observer Observer

	mu     sync.Mutex
	custom *conn
}

// Config contains database configuration options.
// These map to the database section of config.yaml.
type Config struct {
	// Path is the filesystem path to the SQLite database file, or ":memory:".
	Path string

	// Driver is the database/sql driver name: DriverCGO (default) or DriverPureGo.
	// Names of drivers wrapping mattn/go-sqlite3 are accepted too.
	Driver string

	// WALMode enables Write-Ahead Logging.
	WALMode bool

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int

	// Persistent holds one connection open from Open until Close instead of
	// opening one per operation. Implied for ":memory:".
	Persistent bool

	// Location is the time zone DATE/DATETIME text is interpreted in.
	// Defaults to UTC.
	Location *time.Location
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger used for engine diagnostics and decode warnings.
func WithLogger(logger *logging.Logger) Option {
	return func(db *DB) {
		if logger != nil {
			db.logger = logger
		}
	}
}

// WithObserver sets the observer notified after every operation.
func WithObserver(observer Observer) Option {
	return func(db *DB) {
		db.observer = observer
	}
}

// conn is one open native connection: a pool capped at a single
// connection and that connection, pinned.
type conn struct {
	pool *sql.DB
	sc   *sql.Conn
}

// Open creates a DB for the configured file.
//
// In the default per-operation mode no connection is opened here; the
// first failure to open the file surfaces from the first operation. With
// Persistent (or a ":memory:" path) the connection is opened immediately.
//
// Parameters:
//   - ctx: Context for the initial connection in persistent mode
//   - cfg: Database configuration
//   - opts: Optional logger and observer
//
// Returns:
//   - *DB: Database handle
//   - error: If the configuration is invalid or the persistent connection fails
func Open(ctx context.Context, cfg Config, opts ...Option) (*DB, error) {
	if cfg.Path == "" {
		return nil, ErrPathRequired
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverCGO
	}
	if !driverRegistered(cfg.Driver) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Path == MemoryPath {
		cfg.Persistent = true
	}

	db := &DB{
		cfg:    cfg,
		dsn:    buildDSN(cfg),
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(db)
	}

	if cfg.Persistent {
		if err := db.OpenConnection(ctx); err != nil {
			return nil, err
		}
	}

	return db, nil
}

// Close releases the long-lived connection, if one is open.
//
// Returns:
//   - error: nil (close failures are logged)
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.custom != nil {
		db.custom.close(db.logger)
		db.custom = nil
	}
	return nil
}

// Path returns the filesystem path to the database file.
func (db *DB) Path() string {
	return db.cfg.Path
}

// Driver returns the database/sql driver name in use.
func (db *DB) Driver() string {
	return db.cfg.Driver
}

// OpenConnection opens a connection that is reused by every operation
// until CloseConnection.
//
// Returns:
//   - error: *Error with CodeConnOpen if one is already open, or the open failure
func (db *DB) OpenConnection(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.custom != nil {
		return codedError(duringConnection, CodeConnOpen)
	}

	c, err := db.open(ctx, db.logger)
	if err != nil {
		return err
	}
	db.custom = c
	return nil
}

// CloseConnection closes the connection opened by OpenConnection and
// returns to per-operation connections.
//
// Returns:
//   - error: *Error with CodeConnNotOpen if no such connection is open
func (db *DB) CloseConnection() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.custom == nil {
		return codedError(duringConnection, CodeConnNotOpen)
	}
	db.custom.close(db.logger)
	db.custom = nil
	return nil
}

// HasConnection reports whether a long-lived connection is open.
func (db *DB) HasConnection() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.custom != nil
}

// HealthCheck verifies the database file can be opened and queried.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (db *DB) HealthCheck(ctx context.Context) error {
	if _, err := db.ExecuteQuery(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// acquire returns the connection for one operation: the long-lived one if
// open, otherwise a fresh one. Callers must pair it with release.
func (db *DB) acquire(ctx context.Context, log *logging.Logger) (*conn, error) {
	if db.custom != nil {
		return db.custom, nil
	}
	return db.open(ctx, log)
}

// release ends an operation. It logs failure, if any, and closes c
// unless it is the long-lived connection.
func (db *DB) release(c *conn, failure *Error, log *logging.Logger) {
	if failure != nil {
		logFailure(log, failure)
	}
	if c == nil || c == db.custom {
		return
	}
	c.close(log)
}

// open opens the native connection. sql.Open is lazy, so the file is
// actually opened when the connection is pinned.
func (db *DB) open(ctx context.Context, log *logging.Logger) (*conn, error) {
	pool, err := sql.Open(db.cfg.Driver, db.dsn)
	if err != nil {
		e := newError(duringOpen, err)
		logFailure(log, e)
		return nil, e
	}
	pool.SetMaxOpenConns(1)
	pool.SetMaxIdleConns(1)

	sc, err := pool.Conn(ctx)
	if err != nil {
		pool.Close() //nolint:errcheck // Best effort cleanup on error path
		e := newError(duringOpen, err)
		logFailure(log, e)
		return nil, e
	}

	return &conn{pool: pool, sc: sc}, nil
}

func (c *conn) close(log *logging.Logger) {
	if err := c.sc.Close(); err != nil {
		log.Warn("error closing database connection", "error", err)
	}
	if err := c.pool.Close(); err != nil {
		log.Warn("error closing database", "error", err)
	}
}

// finalize closes a prepared statement. A nil statement (failed prepare)
// is a no-op.
func finalize(stmt *sql.Stmt, log *logging.Logger) {
	if stmt == nil {
		return
	}
	if err := stmt.Close(); err != nil {
		log.Warn("error finalizing statement", "error", err)
	}
}

// logFailure writes the diagnostic for a failed operation.
func logFailure(log *logging.Logger, e *Error) {
	log.Error("database error",
		"during", e.During,
		"code", int(e.Code),
		"message", e.Code.Message(),
		"detail", e.Detail,
	)
}

// operation tracks one public call for logging and observation.
type operation struct {
	id    string
	name  string
	sql   string
	start time.Time
	log   *logging.Logger
}

func (db *DB) begin(name, query string) *operation {
	id := uuid.NewString()
	return &operation{
		id:    id,
		name:  name,
		sql:   query,
		start: time.Now(),
		log:   db.logger.With("operation", name, "op_id", id),
	}
}

// finish reports the outcome of op to the observer.
func (db *DB) finish(op *operation, err error, rows int, affected int64) {
	if db.observer == nil {
		return
	}
	db.observer.ObserveStatement(StatementEvent{
		ID:           op.id,
		Operation:    op.name,
		SQL:          op.sql,
		Code:         CodeOf(err),
		Rows:         rows,
		RowsAffected: affected,
		Duration:     time.Since(op.start),
	})
}
