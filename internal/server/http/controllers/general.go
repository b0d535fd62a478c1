package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/queuekit/queuekit-connector-bull/internal/supervisor"
)

// HealthChecker reports nil when the connector's dependencies are reachable.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// StatusSource exposes the connection supervisor's state.
type StatusSource interface {
	Status() supervisor.Status
}

// Info is static process information reported by /v1/status.
type Info struct {
	InstanceID    string `json:"instanceId"`
	ConnectorName string `json:"connectorName"`
	Version       string `json:"version"`
	Backend       string `json:"backend"`
}

// GeneralController serves health and status.
type GeneralController struct {
	health HealthChecker
	status StatusSource
	queues QueueSource
	info   Info
}

// NewGeneralController creates a new general controller.
func NewGeneralController(health HealthChecker, status StatusSource, queues QueueSource, info Info) *GeneralController {
	return &GeneralController{health: health, status: status, queues: queues, info: info}
}

// RegisterRoutes registers /v1/healthz and /v1/status.
func (c *GeneralController) RegisterRoutes(r chi.Router) {
	r.Get("/v1/healthz", c.handleHealth)
	r.Get("/v1/status", c.handleStatus)
}

// handleHealth returns 200 {"status":"ok"} when healthy, 503 otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.health.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Info
	Connection supervisor.Status `json:"connection"`
	Queues     int               `json:"queues"`
}

func (c *GeneralController) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, statusResponse{
		Info:       c.info,
		Connection: c.status.Status(),
		Queues:     len(c.queues.Snapshot()),
	})
}
