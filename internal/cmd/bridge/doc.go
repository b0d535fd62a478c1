// Package bridgerun assembles the connector: Redis runtime, queue discovery,
// registry with event relay, command dispatcher, connection supervisor and
// the optional admin servers. The CLI calls Run.
//
// Example:
//
//	cfg := config.Default()
//	config.FromEnv(&cfg)
//	_ = bridgerun.Run(ctx, bridgerun.Options{Config: cfg, Version: "1.0.0"})
package bridgerun
