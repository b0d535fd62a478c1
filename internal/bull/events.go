package bull

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Event is a global queue event Bull publishes over pub/sub.
type Event string

// Global events the connector relays.
const (
	EventWaiting   Event = "waiting"
	EventActive    Event = "active"
	EventCompleted Event = "completed"
	EventFailed    Event = "failed"
)

// Listener receives the id of the job an event refers to.
type Listener func(jobID string)

// On registers fn for ev. The first registration opens the queue's
// subscription; later ones add the event's channel pattern to it.
// Listeners run on the subscription goroutine and must not block.
func (q *Queue) On(ctx context.Context, ev Event, fn Listener) error {
	if err := q.check(); err != nil {
		return err
	}
	pattern := escapeGlob(q.keys.channel(ev)) + "*"

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed.Load() {
		return ErrQueueClosed
	}
	_, subscribed := q.listeners[ev]
	q.listeners[ev] = append(q.listeners[ev], fn)
	if subscribed {
		return nil
	}

	if q.pubsub == nil {
		ps := q.rdb.PSubscribe(ctx, pattern)
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			delete(q.listeners, ev)
			return wrapRedisErr("subscribe", err)
		}
		q.pubsub = ps
		q.wg.Add(1)
		go q.dispatch(ps)
		return nil
	}
	if err := q.pubsub.PSubscribe(ctx, pattern); err != nil {
		delete(q.listeners, ev)
		return wrapRedisErr("subscribe", err)
	}
	return nil
}

func (q *Queue) dispatch(ps *redis.PubSub) {
	defer q.wg.Done()
	for msg := range ps.Channel() {
		ev, ok := q.eventOf(msg.Channel)
		if !ok {
			continue
		}
		id := parseEventJobID(msg.Payload)
		q.mu.RLock()
		fns := append([]Listener(nil), q.listeners[ev]...)
		q.mu.RUnlock()
		for _, fn := range fns {
			fn(id)
		}
	}
}

// eventOf maps "<prefix>:<name>:<event>[@token]" to its event.
func (q *Queue) eventOf(channel string) (Event, bool) {
	rest, ok := strings.CutPrefix(channel, q.keys.base)
	if !ok {
		return "", false
	}
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		rest = rest[:i]
	}
	switch ev := Event(rest); ev {
	case EventWaiting, EventActive, EventCompleted, EventFailed:
		return ev, true
	}
	return "", false
}

// parseEventJobID extracts the job id from an event payload. Completed and
// failed events carry {"jobId":...}; waiting and active carry the bare id.
func parseEventJobID(payload string) string {
	if strings.HasPrefix(payload, "{") {
		var body struct {
			JobID json.RawMessage `json:"jobId"`
		}
		if err := json.Unmarshal([]byte(payload), &body); err == nil && len(body.JobID) > 0 {
			var s string
			if json.Unmarshal(body.JobID, &s) == nil {
				return s
			}
			return string(body.JobID)
		}
	}
	return payload
}

// String implements fmt.Stringer.
func (e Event) String() string { return string(e) }
