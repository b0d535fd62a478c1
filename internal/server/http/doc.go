// Package httpserver provides the connector's read-only admin API: health,
// connection status, tracked queues with job counts, and the local journal.
//
// Example:
//
//	s := httpserver.New(httpserver.Deps{Health: rt, Status: sup, Queues: reg}, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
