package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/queuekit/queuekit-connector-bull/internal/bull"
	"github.com/queuekit/queuekit-connector-bull/internal/keyspace"
	"github.com/queuekit/queuekit-connector-bull/internal/protocol"
	"github.com/queuekit/queuekit-connector-bull/internal/registry"
)

type fakeTransport struct {
	connected atomic.Bool
	mu        sync.Mutex
	metrics   []protocol.QueueMetric
	got       chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{got: make(chan struct{}, 16)}
}

func (f *fakeTransport) Connected() bool { return f.connected.Load() }

func (f *fakeTransport) Emit(event string, payload any) error {
	if event != protocol.EventQueueMetric {
		return nil
	}
	f.mu.Lock()
	f.metrics = append(f.metrics, payload.(protocol.QueueMetric))
	f.mu.Unlock()
	f.got <- struct{}{}
	return nil
}

func setup(t *testing.T) (*redis.Client, *registry.Handle) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	id := keyspace.Identity{Prefix: "bull", Name: "emails"}
	h := &registry.Handle{Identity: id, Queue: bull.NewQueue(rdb, id.Prefix, id.Name)}
	t.Cleanup(func() { h.Queue.Close() })
	return rdb, h
}

func waitPatterns(t *testing.T, rdb *redis.Client, n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return rdb.PubSubNumPat(context.Background()).Val() >= n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestForwardsMetricsWhileConnected(t *testing.T) {
	rdb, h := setup(t)
	tr := newFakeTransport()
	tr.connected.Store(true)
	r := New("key-1", tr, nil)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	r.now = func() time.Time { return fixed }

	ctx := context.Background()
	require.NoError(t, r.Attach(ctx, h))
	waitPatterns(t, rdb, 4)

	rdb.Publish(ctx, "bull:emails:active", "17")
	select {
	case <-tr.got:
	case <-time.After(2 * time.Second):
		t.Fatal("no metric forwarded")
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.Len(t, tr.metrics, 1)
	m := tr.metrics[0]
	require.Equal(t, protocol.MetricJobProcessing, m.Type)
	require.Equal(t, "17", m.Data.JobID)
	require.Equal(t, "key-1", m.APIKey)
	require.Equal(t, "emails", m.QueueName)
	require.Equal(t, "bull", m.QueuePrefix)
	require.Equal(t, time.UTC, m.Timestamp.Location())
	require.True(t, m.Timestamp.Equal(fixed))
}

func TestEventTypeMapping(t *testing.T) {
	rdb, h := setup(t)
	tr := newFakeTransport()
	tr.connected.Store(true)
	r := New("k", tr, nil)
	ctx := context.Background()
	require.NoError(t, r.Attach(ctx, h))
	waitPatterns(t, rdb, 4)

	rdb.Publish(ctx, "bull:emails:waiting", "1")
	rdb.Publish(ctx, "bull:emails:completed", `{"jobId":"2","val":"ok"}`)
	rdb.Publish(ctx, "bull:emails:failed@tok", `{"jobId":"3","val":"boom"}`)
	for i := 0; i < 3; i++ {
		select {
		case <-tr.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d metrics, want 3", i)
		}
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	types := map[string]protocol.MetricType{}
	for _, m := range tr.metrics {
		types[m.Data.JobID] = m.Type
	}
	require.Equal(t, map[string]protocol.MetricType{
		"1": protocol.MetricJobQueued,
		"2": protocol.MetricJobCompleted,
		"3": protocol.MetricJobFailed,
	}, types)
}

func TestDropsWhileDisconnected(t *testing.T) {
	rdb, h := setup(t)
	tr := newFakeTransport()
	r := New("k", tr, nil)
	ctx := context.Background()
	require.NoError(t, r.Attach(ctx, h))
	waitPatterns(t, rdb, 4)

	rdb.Publish(ctx, "bull:emails:waiting", "1")
	select {
	case <-tr.got:
		t.Fatal("metric forwarded while disconnected")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestGateHoldsMetricsUntilReady(t *testing.T) {
	rdb, h := setup(t)
	tr := newFakeTransport()
	tr.connected.Store(true)
	var identified atomic.Bool
	r := New("k", tr, nil, WithGate(identified.Load))
	ctx := context.Background()
	require.NoError(t, r.Attach(ctx, h))
	waitPatterns(t, rdb, 4)

	rdb.Publish(ctx, "bull:emails:waiting", "1")
	select {
	case <-tr.got:
		t.Fatal("metric forwarded before the handshake was acknowledged")
	case <-time.After(150 * time.Millisecond):
	}

	identified.Store(true)
	rdb.Publish(ctx, "bull:emails:waiting", "2")
	select {
	case <-tr.got:
	case <-time.After(2 * time.Second):
		t.Fatal("no metric forwarded once ready")
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.Len(t, tr.metrics, 1)
	require.Equal(t, "2", tr.metrics[0].Data.JobID)
}

func TestAttachOnClosedHandleFails(t *testing.T) {
	_, h := setup(t)
	require.NoError(t, h.Queue.Close())
	r := New("k", newFakeTransport(), nil)
	require.ErrorIs(t, r.Attach(context.Background(), h), bull.ErrQueueClosed)
}
