// Package bull implements the queue-engine capability the connector needs on
// top of Bull's Redis data layout: pause/resume, clean, empty, job listing and
// counts, job lookup with state, retry/promote/discard/remove, and global
// lifecycle events delivered over Redis pub/sub.
//
// Keys follow Bull: "<prefix>:<name>:<type>" for queue structures
// (wait, paused, active, delayed, completed, failed, priority, meta-paused, id)
// and "<prefix>:<name>:<jobId>" for job hashes.
//
// A Queue is safe for concurrent use. After Close every method fails with
// ErrQueueClosed and all listeners are released.
package bull
