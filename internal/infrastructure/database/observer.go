package database

import "time"

// Operation names reported in StatementEvent.Operation.
const (
	OpChange      = "change"
	OpQuery       = "query"
	OpCreateTable = "create_table"
	OpTableNames  = "table_names"
	OpIndexNames  = "index_names"
)

// StatementEvent describes one completed operation.
type StatementEvent struct {
	// ID correlates the event with the operation's log records.
	ID string

	// Operation is one of the Op* constants.
	Operation string

	// SQL is the statement text as passed by the caller.
	SQL string

	// Code is CodeOK on success, otherwise the failure code.
	Code Code

	// Rows is the number of rows returned by a query.
	Rows int

	// RowsAffected is the number of rows changed by a mutating statement.
	RowsAffected int64

	// Duration covers the whole operation, connection open and close included.
	Duration time.Duration
}

// Observer receives an event after every operation.
//
// ObserveStatement is called synchronously on the caller's goroutine with
// the DB lock held, so it must not block or call back into the DB.
type Observer interface {
	ObserveStatement(ev StatementEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev StatementEvent)

// ObserveStatement calls f(ev).
func (f ObserverFunc) ObserveStatement(ev StatementEvent) { f(ev) }

// Observers fans an event out to several observers in order.
type Observers []Observer

// ObserveStatement forwards ev to every non-nil observer.
func (o Observers) ObserveStatement(ev StatementEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveStatement(ev)
		}
	}
}
