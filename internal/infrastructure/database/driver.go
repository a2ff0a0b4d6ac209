package database

import (
	"database/sql"
	"fmt"
	"slices"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, registered as "sqlite"
)

// Supported engine drivers.
const (
	// DriverCGO is mattn/go-sqlite3, the default.
	DriverCGO = "sqlite3"

	// DriverPureGo is modernc.org/sqlite, usable without cgo.
	DriverPureGo = "sqlite"
)

// msPerSecond converts seconds to milliseconds.
const msPerSecond = 1000

// MemoryPath is the path that selects an in-memory database.
const MemoryPath = ":memory:"

// driverRegistered reports whether name is a registered database/sql driver.
func driverRegistered(name string) bool {
	return slices.Contains(sql.Drivers(), name)
}

// buildDSN builds the connection string for cfg.
//
// The two drivers spell connection pragmas differently:
// mattn/go-sqlite3 takes "_busy_timeout=5000", modernc.org/sqlite takes
// "_pragma=busy_timeout(5000)". Any other driver name is assumed to wrap
// mattn/go-sqlite3.
func buildDSN(cfg Config) string {
	timeout := cfg.BusyTimeout * msPerSecond

	if cfg.Driver == DriverPureGo {
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", cfg.Path, timeout)
		if cfg.WALMode {
			dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
		}
		return dsn
	}

	// See: https://github.com/mattn/go-sqlite3#connection-string
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", cfg.Path, timeout)
	if cfg.WALMode {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}
	return dsn
}
