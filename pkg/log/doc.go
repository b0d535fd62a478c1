// Package log provides the connector's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Records flow through log/slog via a
// bridge handler into a Formatter (text or JSON) and one or more Outputs.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("registry"), log.Str("prefix", "bull"))
//	l.Info("queue cached", log.Str("key", "bull:emails"))
//
// # Configuration
//
// ApplyConfig builds a logger from a declarative Config. Keys listed in
// Config.Redact (for example "api_key") are replaced with "[REDACTED]".
//
// # Interop
//
// Libraries that log through the standard library (Pebble, net/http) can be
// pointed at a Logger with RedirectStdLog or ToStdLogger.
package log
