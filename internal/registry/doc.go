// Package registry owns the live set of Bull queue handles and reconciles it
// against each keyspace scan, announcing additions and removals to the
// control plane.
package registry
