package database

import "strconv"

// Code is a status code reported by the engine or by this package.
//
// Codes are grouped in bands:
//   - -1 and 0: non-error states
//   - 1 to 28: native engine diagnostics
//   - 100 to 101: native step progress
//   - 201 to 203: parameter binding
//   - 301 to 306: connection state conflicts
//   - 401 to 402: schema introspection
//   - 501 to 502: transaction nesting
//
// Not every code is raised by this package; the reserved ones keep the
// vocabulary stable for statement and transaction features layered on top.
type Code int

// Non-error states.
const (
	CodeNone Code = -1
	CodeOK   Code = 0
)

// Native engine diagnostics.
const (
	CodeError         Code = 1
	CodeInternal      Code = 2
	CodePerm          Code = 3
	CodeAbort         Code = 4
	CodeBusy          Code = 5
	CodeLocked        Code = 6
	CodeNoMem         Code = 7
	CodeReadOnly      Code = 8
	CodeInterrupt     Code = 9
	CodeIOErr         Code = 10
	CodeCorrupt       Code = 11
	CodeNotFound      Code = 12
	CodeFull          Code = 13
	CodeCantOpen      Code = 14
	CodeProtocol      Code = 15
	CodeEmpty         Code = 16
	CodeSchema        Code = 17
	CodeTooBig        Code = 18
	CodeConstraint    Code = 19
	CodeMismatch      Code = 20
	CodeMisuse        Code = 21
	CodeNoLFS         Code = 22
	CodeAuth          Code = 23
	CodeFormat        Code = 24
	CodeRange         Code = 25
	CodeNotADB        Code = 26
	CodeNotice        Code = 27
	CodeWarning       Code = 28
	CodeRow           Code = 100
	CodeDone          Code = 101
	CodeBindTooFew    Code = 201
	CodeBindTooMany   Code = 202
	CodeBindIdent     Code = 203
	CodeConnOpen      Code = 301
	CodeConnOpenInTx  Code = 302
	CodeConnOpenInSP  Code = 303
	CodeConnNotOpen   Code = 304
	CodeConnCloseInTx Code = 305
	CodeConnCloseInSP Code = 306
	CodeNoColumns     Code = 401

	// CodeSchemaNames reports a failed sqlite_master lookup. Its message
	// names index names, but TableNames uses it too; Error.During says
	// which lookup failed.
	CodeSchemaNames Code = 402

	CodeTxInSavepoint Code = 501
	CodeTxNested      Code = 502
)

const unknownMessage = "Unknown error"

var messages = map[Code]string{
	CodeNone:          "No error",
	CodeOK:            "Successful result",
	CodeError:         "SQL error or missing database",
	CodeInternal:      "Internal logic error in SQLite",
	CodePerm:          "Access permission denied",
	CodeAbort:         "Callback routine requested an abort",
	CodeBusy:          "The database file is locked",
	CodeLocked:        "A table in the database is locked",
	CodeNoMem:         "A malloc() failed",
	CodeReadOnly:      "Attempt to write a readonly database",
	CodeInterrupt:     "Operation terminated by sqlite3_interrupt()",
	CodeIOErr:         "Some kind of disk I/O error occurred",
	CodeCorrupt:       "The database disk image is malformed",
	CodeNotFound:      "Unknown opcode in sqlite3_file_control()",
	CodeFull:          "Insertion failed because database is full",
	CodeCantOpen:      "Unable to open the database file",
	CodeProtocol:      "Database lock protocol error",
	CodeEmpty:         "Database is empty",
	CodeSchema:        "The database schema changed",
	CodeTooBig:        "String or BLOB exceeds size limit",
	CodeConstraint:    "Abort due to constraint violation",
	CodeMismatch:      "Data type mismatch",
	CodeMisuse:        "Library used incorrectly",
	CodeNoLFS:         "Uses OS features not supported on host",
	CodeAuth:          "Authorization denied",
	CodeFormat:        "Auxiliary database format error",
	CodeRange:         "2nd parameter to sqlite3_bind out of range",
	CodeNotADB:        "File opened that is not a database file",
	CodeNotice:        "Notifications from sqlite3_log()",
	CodeWarning:       "Warnings from sqlite3_log()",
	CodeRow:           "sqlite3_step() has another row ready",
	CodeDone:          "sqlite3_step() has finished executing",
	CodeBindTooFew:    "Not enough objects to bind provided",
	CodeBindTooMany:   "Too many objects to bind provided",
	CodeBindIdent:     "Object to bind as identifier must be a String",
	CodeConnOpen:      "A custom connection is already open",
	CodeConnOpenInTx:  "Cannot open a custom connection inside a transaction",
	CodeConnOpenInSP:  "Cannot open a custom connection inside a savepoint",
	CodeConnNotOpen:   "A custom connection is not currently open",
	CodeConnCloseInTx: "Cannot close a custom connection inside a transaction",
	CodeConnCloseInSP: "Cannot close a custom connection inside a savepoint",
	CodeNoColumns:     "At least one column name must be provided",
	CodeSchemaNames:   "Error extracting index names from sqlite_master",
	CodeTxInSavepoint: "Cannot begin a transaction within a savepoint",
	CodeTxNested:      "Cannot begin a transaction within another transaction",
}

// MessageFor returns the diagnostic text for a status code.
// It never fails: unrecognised codes yield "Unknown error".
func MessageFor(code int) string {
	return Code(code).Message()
}

// Message returns the diagnostic text for c.
func (c Code) Message() string {
	if msg, ok := messages[c]; ok {
		return msg
	}
	return unknownMessage
}

// String renders the code with its message, e.g. "19 - Abort due to constraint violation".
func (c Code) String() string {
	return strconv.Itoa(int(c)) + " - " + c.Message()
}

// IsError reports whether c describes a failure rather than a progress state.
func (c Code) IsError() bool {
	switch c {
	case CodeNone, CodeOK, CodeRow, CodeDone:
		return false
	}
	return true
}
