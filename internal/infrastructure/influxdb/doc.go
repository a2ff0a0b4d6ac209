// Package influxdb writes statement telemetry to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched point writing and health monitoring.
//
// # Purpose
//
// Every database operation produces a point in the sqlitedb_statements
// measurement, tagged by operation and status code, with its duration and
// row counts. Client implements database.Observer so it can be passed to
// database.WithObserver directly.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	db, err := database.Open(ctx, dbCfg, database.WithObserver(client))
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write failures are delivered asynchronously to the SetOnError callback.
// Connection and health check errors are returned directly.
package influxdb
