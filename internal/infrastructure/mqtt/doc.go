// Package mqtt publishes database change notifications over MQTT.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - A retained online/offline status with Last Will and Testament
//   - Asynchronous change notifications via Notifier
//
// # Topics
//
//	<prefix>/change/<operation>   one message per successful change or create_table
//	<prefix>/system/status        retained {"status":"online"|"offline",...}
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	notifier := mqtt.NewNotifier(client, client.Topics(), logger, 0)
//	defer notifier.Close()
//
//	db, err := database.Open(ctx, dbCfg, database.WithObserver(notifier))
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) outside local development
//   - Payloads carry the operation ID, name, row count and timing only;
//     statement text and bound values are never published
package mqtt
