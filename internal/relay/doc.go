// Package relay turns Bull global job events into queue-metric telemetry.
// Metrics are best effort: while the transport is disconnected they are
// dropped.
package relay
