// Package database is a thin access layer over a single SQLite file.
//
// This package manages:
//   - Connection lifecycle: one connection opened before and closed after
//     every operation, or an explicit long-lived connection
//   - Statement execution: prepare, bind, step and finalize on every path
//   - Result decoding: each column becomes a typed Column chosen by its
//     declared type, or the runtime type of the value when none is declared
//   - Status codes: engine result codes and package codes with fixed
//     human-readable messages
//
// Failures are reported as *Error values carrying a Code, the failing
// operation and the engine's own message. Every failure is also logged.
//
// Security Considerations:
//   - Bind values through the ? placeholders of ExecuteChange and
//     ExecuteQuery; statement text is passed to the engine verbatim
//   - CreateTable and DropTable do not escape names or column definitions
//   - Seeded database files are created with permissions 0600
//
// Performance Characteristics:
//   - Opening a connection per operation costs a file open each call;
//     use OpenConnection for bursts of statements
//   - Query results are fully materialised in memory
//   - Prepared statements are never cached
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: "app.db"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.CreateTable(ctx, "users", []string{"id INTEGER PRIMARY KEY", "name TEXT"}); err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := db.ExecuteChange(ctx, "INSERT INTO users (name) VALUES (?)", "alice"); err != nil {
//	    log.Fatal(err)
//	}
//
//	rows, err := db.ExecuteQuery(ctx, "SELECT id, name FROM users")
//	for _, row := range rows {
//	    name, _ := row.Get("name")
//	    s, _ := name.AsString()
//	    fmt.Println(s)
//	}
package database
