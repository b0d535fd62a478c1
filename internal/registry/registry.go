package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/queuekit/queuekit-connector-bull/internal/bull"
	"github.com/queuekit/queuekit-connector-bull/internal/journal"
	"github.com/queuekit/queuekit-connector-bull/internal/keyspace"
	"github.com/queuekit/queuekit-connector-bull/internal/protocol"
	"github.com/queuekit/queuekit-connector-bull/pkg/log"
)

// Handle is a live queue owned by the registry. Callers borrow it per
// operation and must not retain it across reconciliation cycles.
type Handle struct {
	Identity keyspace.Identity
	Queue    *bull.Queue
}

// Ref returns the wire description of the handle's queue.
func (h *Handle) Ref() protocol.QueueRef {
	return RefOf(h.Identity)
}

// RefOf returns the wire description of a queue identity.
func RefOf(id keyspace.Identity) protocol.QueueRef {
	return protocol.QueueRef{Name: id.Name, Prefix: id.Prefix, Key: id.Key()}
}

// Emitter sends an event to the control plane.
type Emitter interface {
	Emit(event string, payload any) error
}

// AttachFunc wires listeners onto a freshly constructed handle.
type AttachFunc func(ctx context.Context, h *Handle) error

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l log.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithAttach sets the hook run on every new handle before it is announced.
func WithAttach(fn AttachFunc) Option {
	return func(r *Registry) { r.attach = fn }
}

// WithRecorder journals every added and removed queue.
func WithRecorder(rec journal.Recorder) Option {
	return func(r *Registry) { r.rec = rec }
}

// WithQueueFactory overrides how engine handles are constructed.
func WithQueueFactory(fn func(id keyspace.Identity) *bull.Queue) Option {
	return func(r *Registry) { r.newQueue = fn }
}

// Registry owns the set of known queues and their handles.
type Registry struct {
	emit     Emitter
	attach   AttachFunc
	rec      journal.Recorder
	logger   log.Logger
	newQueue func(id keyspace.Identity) *bull.Queue

	cycle   sync.Mutex // serializes Reconcile
	mu      sync.RWMutex
	handles map[string]*Handle
}

// New returns an empty registry whose handles share rdb.
func New(rdb redis.UniversalClient, emit Emitter, opts ...Option) *Registry {
	r := &Registry{
		emit:    emit,
		rec:     journal.Nop{},
		logger:  log.NewNopLogger(),
		handles: make(map[string]*Handle),
	}
	r.newQueue = func(id keyspace.Identity) *bull.Queue {
		return bull.NewQueue(rdb, id.Prefix, id.Name)
	}
	for _, o := range opts {
		o(r)
	}
	r.logger = r.logger.WithComponent("registry")
	return r
}

// Reconcile makes the cached key set equal to current. Removals are fully
// processed before any addition. Unchanged keys keep their handles.
func (r *Registry) Reconcile(ctx context.Context, current []keyspace.Identity) (added, removed []keyspace.Identity, err error) {
	r.cycle.Lock()
	defer r.cycle.Unlock()

	want := make(map[string]keyspace.Identity, len(current))
	for _, id := range current {
		want[id.Key()] = id
	}

	r.mu.RLock()
	var gone []*Handle
	for key, h := range r.handles {
		if _, ok := want[key]; !ok {
			gone = append(gone, h)
		}
	}
	var fresh []keyspace.Identity
	for key, id := range want {
		if _, ok := r.handles[key]; !ok {
			fresh = append(fresh, id)
		}
	}
	r.mu.RUnlock()

	sortHandles(gone)
	for _, h := range gone {
		r.mu.Lock()
		delete(r.handles, h.Identity.Key())
		r.mu.Unlock()

		r.logger.Info("Removing orphaned queue from cache", log.Str("queue", h.Identity.Key()))
		if cerr := h.Queue.Close(); cerr != nil {
			r.logger.Warn("close queue handle", log.Str("queue", h.Identity.Key()), log.Err(cerr))
		}
		r.notify(protocol.EventRemoveQueue, h.Identity)
		r.record(ctx, journal.KindQueueRemoved, h.Identity)
		removed = append(removed, h.Identity)
	}

	keyspace.Sort(fresh)
	for _, id := range fresh {
		if err := ctx.Err(); err != nil {
			return added, removed, err
		}
		h := &Handle{Identity: id, Queue: r.newQueue(id)}
		if r.attach != nil {
			if aerr := r.attach(ctx, h); aerr != nil {
				// Leave it out of the cache; the next cycle retries.
				_ = h.Queue.Close()
				err = fmt.Errorf("attach %s: %w", id.Key(), aerr)
				r.logger.Warn("attach queue listeners", log.Str("queue", id.Key()), log.Err(aerr))
				continue
			}
		}
		r.logger.Info("Caching new queue", log.Str("queue", id.Key()))
		r.notify(protocol.EventUpsertQueue, id)

		r.mu.Lock()
		r.handles[id.Key()] = h
		r.mu.Unlock()
		r.record(ctx, journal.KindQueueAdded, id)
		added = append(added, id)
	}
	return added, removed, err
}

func (r *Registry) notify(event string, id keyspace.Identity) {
	if r.emit == nil {
		return
	}
	if err := r.emit.Emit(event, protocol.QueueMessage{Queue: RefOf(id)}); err != nil {
		r.logger.Debug("notification dropped", log.Str("event", event), log.Str("queue", id.Key()), log.Err(err))
	}
}

func (r *Registry) record(ctx context.Context, kind journal.Kind, id keyspace.Identity) {
	if err := r.rec.Record(ctx, journal.Entry{Kind: kind, Queue: id.Key()}); err != nil {
		r.logger.Warn("journal write failed", log.Err(err))
	}
}

// Get returns the handle for id or a *protocol.NotFoundError.
func (r *Registry) Get(id keyspace.Identity) (*Handle, error) {
	r.mu.RLock()
	h, ok := r.handles[id.Key()]
	r.mu.RUnlock()
	if !ok {
		return nil, &protocol.NotFoundError{Kind: "queue", ID: id.Key()}
	}
	return h, nil
}

// Len returns the number of cached queues.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Snapshot returns the cached identities sorted by key.
func (r *Registry) Snapshot() []keyspace.Identity {
	r.mu.RLock()
	ids := make([]keyspace.Identity, 0, len(r.handles))
	for _, h := range r.handles {
		ids = append(ids, h.Identity)
	}
	r.mu.RUnlock()
	keyspace.Sort(ids)
	return ids
}

// Close tears down every handle without sending notifications.
func (r *Registry) Close() error {
	r.cycle.Lock()
	defer r.cycle.Unlock()
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]*Handle)
	r.mu.Unlock()
	for key, h := range handles {
		if err := h.Queue.Close(); err != nil {
			r.logger.Warn("close queue handle", log.Str("queue", key), log.Err(err))
		}
	}
	return nil
}

func sortHandles(hs []*Handle) {
	ids := make([]keyspace.Identity, len(hs))
	byKey := make(map[string]*Handle, len(hs))
	for i, h := range hs {
		ids[i] = h.Identity
		byKey[h.Identity.Key()] = h
	}
	keyspace.Sort(ids)
	for i, id := range ids {
		hs[i] = byKey[id.Key()]
	}
}
