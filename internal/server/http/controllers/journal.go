package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/queuekit/queuekit-connector-bull/internal/journal"
)

// JournalSource lists journal entries newest first.
type JournalSource interface {
	List(ctx context.Context, opts journal.ListOptions) ([]journal.Entry, error)
}

// JournalController exposes the local journal. A nil source answers 404.
type JournalController struct {
	src JournalSource
}

// NewJournalController creates a new journal controller.
func NewJournalController(src JournalSource) *JournalController {
	return &JournalController{src: src}
}

// RegisterRoutes registers /v1/journal.
func (c *JournalController) RegisterRoutes(r chi.Router) {
	r.Get("/v1/journal", c.handleList)
}

// handleList accepts ?limit=N&kind=K.
func (c *JournalController) handleList(w http.ResponseWriter, r *http.Request) {
	if c.src == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	q := r.URL.Query()
	entries, err := c.src.List(r.Context(), journal.ListOptions{
		Limit: parseLimit(q.Get("limit")),
		Kind:  journal.Kind(q.Get("kind")),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read journal")
		return
	}
	writeJSON(w, map[string]any{"entries": entries})
}
