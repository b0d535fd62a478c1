// Package supervisor drives the control-plane connection: it identifies the
// connector after every connect, waits for the acknowledgement, then runs
// queue reconciliation immediately and on a fixed interval until the
// connection drops.
package supervisor
