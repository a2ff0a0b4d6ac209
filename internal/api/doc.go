// Package api implements the HTTP statement console for a sqlitedb store.
//
// This package provides:
//   - Schema endpoints: list tables and indexes, create and drop tables
//   - Statement endpoints: run a query, run a change
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support for production deployments
//
// # Error Responses
//
// Every failure is a JSON body {status, code, message}. Engine failures
// add engine_code (19 for a constraint violation, 1 for a syntax error)
// and during, the phase that failed. They are 400s when the statement is
// at fault, 503 for busy, locked or interrupted statements, and 500 for
// storage failures such as an unopenable file, I/O error or full disk.
//
// # Security
//
// The console executes arbitrary SQL against the configured file. Bind it
// to loopback (the default) or put it behind an authenticating proxy.
// Table names are restricted to plain identifiers because they cannot be
// bound as parameters.
package api
