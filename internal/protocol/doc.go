// Package protocol defines the connector's wire contract with the QueueKit
// control plane: event names, payload shapes and the error taxonomy that
// command handlers surface in responses.
package protocol
