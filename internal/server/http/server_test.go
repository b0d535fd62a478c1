package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/queuekit/queuekit-connector-bull/internal/journal"
	"github.com/queuekit/queuekit-connector-bull/internal/keyspace"
	"github.com/queuekit/queuekit-connector-bull/internal/registry"
	"github.com/queuekit/queuekit-connector-bull/internal/server/http/controllers"
	"github.com/queuekit/queuekit-connector-bull/internal/supervisor"
	logpkg "github.com/queuekit/queuekit-connector-bull/pkg/log"
)

type healthFunc func(context.Context) error

func (f healthFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

type staticStatus supervisor.Status

func (s staticStatus) Status() supervisor.Status { return supervisor.Status(s) }

type memJournal []journal.Entry

func (m memJournal) List(_ context.Context, opts journal.ListOptions) ([]journal.Entry, error) {
	var out []journal.Entry
	for _, e := range m {
		if opts.Kind != "" && e.Kind != opts.Kind {
			continue
		}
		out = append(out, e)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func newTestServer(t *testing.T, deps Deps) (*Server, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	reg := registry.New(rdb, nil)
	t.Cleanup(func() { _ = reg.Close() })
	_, _, err := reg.Reconcile(context.Background(), []keyspace.Identity{
		{Prefix: "bull", Name: "emails"},
		{Prefix: "bull", Name: "reports"},
	})
	require.NoError(t, err)
	if deps.Health == nil {
		deps.Health = healthFunc(func(context.Context) error { return nil })
	}
	if deps.Status == nil {
		deps.Status = staticStatus{State: "connected", Identified: true}
	}
	deps.Queues = reg
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text"})
	return New(deps, logger), mr
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t, Deps{})
	w := get(t, s, "/v1/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHealthHandlerUnavailable(t *testing.T) {
	s, _ := newTestServer(t, Deps{Health: healthFunc(func(context.Context) error { return errors.New("down") })})
	w := get(t, s, "/v1/healthz")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusHandler(t *testing.T) {
	s, _ := newTestServer(t, Deps{Info: controllers.Info{InstanceID: "abc", ConnectorName: "c1", Version: "1.0.0"}})
	w := get(t, s, "/v1/status")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		InstanceID string            `json:"instanceId"`
		Connection supervisor.Status `json:"connection"`
		Queues     int               `json:"queues"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "abc", body.InstanceID)
	require.Equal(t, "connected", body.Connection.State)
	require.Equal(t, 2, body.Queues)
}

func TestQueuesHandler(t *testing.T) {
	s, _ := newTestServer(t, Deps{})
	w := get(t, s, "/v1/queues")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"queues":[
		{"name":"emails","prefix":"bull","key":"bull:emails"},
		{"name":"reports","prefix":"bull","key":"bull:reports"}
	]}`, w.Body.String())
}

func TestQueueDetailHandler(t *testing.T) {
	s, mr := newTestServer(t, Deps{})
	mr.Lpush("bull:emails:wait", "1")
	mr.Lpush("bull:emails:wait", "2")
	mr.Set("bull:emails:meta-paused", "1")

	w := get(t, s, "/v1/queues/bull/emails")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Key    string         `json:"key"`
		Paused bool           `json:"paused"`
		Counts map[string]int `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "bull:emails", body.Key)
	require.True(t, body.Paused)
	require.Equal(t, 2, body.Counts["waiting"])

	w = get(t, s, "/v1/queues/bull/missing")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestJournalHandler(t *testing.T) {
	s, _ := newTestServer(t, Deps{})
	require.Equal(t, http.StatusNotFound, get(t, s, "/v1/journal").Code)

	s, _ = newTestServer(t, Deps{Journal: memJournal{
		{ID: "3", Kind: journal.KindCommand, Detail: "pauseQueue"},
		{ID: "2", Kind: journal.KindQueueAdded, Queue: "bull:emails"},
		{ID: "1", Kind: journal.KindQueueAdded, Queue: "bull:reports"},
	}})
	w := get(t, s, "/v1/journal?kind=queue.added&limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Entries []journal.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	require.Equal(t, "bull:emails", body.Entries[0].Queue)
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, Deps{})
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/v1/queues", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
