// Package socketio is a minimal Socket.IO v4 client: Engine.IO over a single
// WebSocket, the default namespace, events with and without acknowledgement,
// and reconnection with exponential backoff.
package socketio
