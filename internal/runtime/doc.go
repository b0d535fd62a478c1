// Package runtime owns the connector's process-wide resources: the Redis
// client shared by discovery, queues and command handlers, and the optional
// Pebble-backed journal.
//
// Example:
//
//	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//	_ = rt.CheckHealth(ctx)
package runtime
