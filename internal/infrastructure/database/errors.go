package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// Sentinel errors for the database package.
//
// Engine failures are reported as *Error values carrying a Code; the
// sentinels below cover configuration problems and column decode faults.
var (
	// ErrPathRequired is returned by Open when no database path is configured.
	ErrPathRequired = errors.New("database: path is required")

	// ErrUnknownDriver is returned by Open when the driver is not registered.
	ErrUnknownDriver = errors.New("database: unknown driver")

	// ErrTextMissing is recorded when a text-affinity column has no text.
	ErrTextMissing = errors.New("database: column text is missing")

	// ErrMalformedDate is recorded when a DATE/DATETIME column holds empty
	// or unparseable text.
	ErrMalformedDate = errors.New("database: malformed date")

	// ErrUnknownType is recorded when a column's type name is not recognised.
	ErrUnknownType = errors.New("database: unrecognised column type")
)

// Operation names recorded in Error.During.
const (
	duringOpen       = "Opening Database"
	duringPrepare    = "SQL Prepare"
	duringStep       = "SQL Step"
	duringCreate     = "Create Table"
	duringTableNames = "Table Names"
	duringIndexNames = "Index Names"
	duringConnection = "Custom Connection"
)

// Error is a coded failure raised while opening the database, preparing or
// stepping a statement, or managing the connection.
type Error struct {
	// During names the operation that failed, e.g. "SQL Prepare".
	During string

	// Code is the engine or package status code.
	Code Code

	// Detail is the engine's own error text, if any.
	Detail string

	// Err is the underlying driver error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("database: %s: %s", e.During, e.Code)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap returns the underlying driver error.
func (e *Error) Unwrap() error {
	return e.Err
}

// newError builds an *Error for a failed operation, classifying the driver
// error into a Code.
func newError(during string, err error) *Error {
	return &Error{
		During: during,
		Code:   engineCode(err),
		Detail: err.Error(),
		Err:    err,
	}
}

// codedError builds an *Error raised by this package rather than the engine.
func codedError(during string, code Code) *Error {
	return &Error{During: during, Code: code}
}

// CodeOf returns the status code carried by err.
//
// A nil error yields CodeOK. Errors that carry no engine code yield CodeError.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return dbErr.Code
	}
	return engineCode(err)
}

// engineCode extracts the primary result code from a driver error.
//
// Both supported drivers are recognised: mattn/go-sqlite3 reports a
// sqlite3.Error value, modernc.org/sqlite an error with a Code() method
// that may carry an extended code.
func engineCode(err error) Code {
	var mattnErr sqlite3.Error
	if errors.As(err, &mattnErr) {
		return Code(mattnErr.Code)
	}

	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		return Code(coder.Code() & 0xff)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeInterrupt
	}

	// database/sql checks the bind count before the driver sees the values.
	var want, got int
	if _, scanErr := fmt.Sscanf(err.Error(), "sql: expected %d arguments, got %d", &want, &got); scanErr == nil {
		if got < want {
			return CodeBindTooFew
		}
		return CodeBindTooMany
	}

	return CodeError
}
