package controllers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/queuekit/queuekit-connector-bull/internal/bull"
	"github.com/queuekit/queuekit-connector-bull/internal/keyspace"
	"github.com/queuekit/queuekit-connector-bull/internal/protocol"
	"github.com/queuekit/queuekit-connector-bull/internal/registry"
)

// QueueSource is the read side of the queue registry.
type QueueSource interface {
	Snapshot() []keyspace.Identity
	Get(id keyspace.Identity) (*registry.Handle, error)
}

// QueuesController lists tracked queues and their job counts.
type QueuesController struct {
	queues QueueSource
}

// NewQueuesController creates a new queues controller.
func NewQueuesController(queues QueueSource) *QueuesController {
	return &QueuesController{queues: queues}
}

// RegisterRoutes registers the /v1/queues routes.
func (c *QueuesController) RegisterRoutes(r chi.Router) {
	r.Get("/v1/queues", c.handleList)
	r.Get("/v1/queues/{prefix}/{name}", c.handleGet)
}

func (c *QueuesController) handleList(w http.ResponseWriter, r *http.Request) {
	ids := c.queues.Snapshot()
	out := make([]protocol.QueueRef, 0, len(ids))
	for _, id := range ids {
		out = append(out, registry.RefOf(id))
	}
	writeJSON(w, map[string]any{"queues": out})
}

type queueDetail struct {
	protocol.QueueRef
	Paused bool           `json:"paused"`
	Counts bull.JobCounts `json:"counts"`
}

// handleGet returns counts and pause state for one tracked queue.
func (c *QueuesController) handleGet(w http.ResponseWriter, r *http.Request) {
	prefix, err1 := url.PathUnescape(chi.URLParam(r, "prefix"))
	name, err2 := url.PathUnescape(chi.URLParam(r, "name"))
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "Invalid queue path")
		return
	}
	h, err := c.queues.Get(keyspace.Identity{Prefix: prefix, Name: name})
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	counts, err := h.Queue.GetJobCounts(r.Context())
	if err == nil {
		var paused bool
		paused, err = h.Queue.IsPaused(r.Context())
		if err == nil {
			writeJSON(w, queueDetail{QueueRef: h.Ref(), Paused: paused, Counts: counts})
			return
		}
	}
	if errors.Is(err, bull.ErrQueueClosed) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusBadGateway, "Failed to read queue")
}
