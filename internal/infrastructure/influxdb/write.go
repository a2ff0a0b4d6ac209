package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/mhkashizadeh/sqlitedb/internal/infrastructure/database"
)

// StatementMeasurement is the measurement statement events are written to.
const StatementMeasurement = "sqlitedb_statements"

// WriteStatement records one completed database operation.
//
// The write is non-blocking; the point is batched and sent asynchronously.
// Statement text and bound values are never written.
//
// Tags:
//   - operation: change, query, create_table, table_names, index_names
//   - status: "ok" or "error"
//   - code: the numeric status code
//
// Fields: duration_ms, rows, rows_affected.
func (c *Client) WriteStatement(ev database.StatementEvent) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(statementPoint(ev, time.Now()))
}

// ObserveStatement implements database.Observer.
func (c *Client) ObserveStatement(ev database.StatementEvent) {
	c.WriteStatement(ev)
}

// statementPoint builds the point for ev at ts.
func statementPoint(ev database.StatementEvent, ts time.Time) *write.Point {
	status := "ok"
	if ev.Code.IsError() {
		status = "error"
	}

	return write.NewPoint(
		StatementMeasurement,
		map[string]string{
			"operation": ev.Operation,
			"status":    status,
			"code":      strconv.Itoa(int(ev.Code)),
		},
		map[string]interface{}{
			"duration_ms":   float64(ev.Duration) / float64(time.Millisecond),
			"rows":          int64(ev.Rows),
			"rows_affected": ev.RowsAffected,
		},
		ts,
	)
}
