package protocol

import (
	"encoding/json"
	"time"
)

// Event names exchanged over the transport.
const (
	EventInitialize  = "initialize-connector-connection"
	EventUpsertQueue = "upsert-queue"
	EventRemoveQueue = "remove-queue"
	EventQueueMetric = "queue-metric"
	EventRequest     = "request"
	EventResponse    = "response"
)

// ConnectorType identifies this connector to the control plane.
const ConnectorType = "bull"

// Identify is the one-time handshake payload sent after each connect.
type Identify struct {
	APIKey           string `json:"apiKey"`
	ConnectorType    string `json:"connectorType"`
	ConnectorName    string `json:"connectorName"`
	ConnectorVersion string `json:"connectorVersion"`
}

// QueueRef describes a queue in upsert/remove notifications and in
// queue-returning command results.
type QueueRef struct {
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
	Key    string `json:"key"`
}

// QueueMessage wraps a QueueRef for upsert-queue and remove-queue.
type QueueMessage struct {
	Queue QueueRef `json:"queue"`
}

// MetricType is the telemetry classification of an engine event.
type MetricType string

const (
	MetricJobQueued     MetricType = "job_queued"
	MetricJobProcessing MetricType = "job_processing"
	MetricJobCompleted  MetricType = "job_completed"
	MetricJobFailed     MetricType = "job_failed"
)

// QueueMetric is one telemetry event for a job lifecycle transition.
type QueueMetric struct {
	Timestamp   time.Time  `json:"timestamp"`
	APIKey      string     `json:"apiKey"`
	QueueName   string     `json:"queueName"`
	QueuePrefix string     `json:"queuePrefix"`
	Type        MetricType `json:"type"`
	Data        MetricData `json:"data"`
}

// MetricData carries the job reference of a QueueMetric.
type MetricData struct {
	JobID string `json:"jobId"`
}

// Request is an inbound command from the control plane.
type Request struct {
	ID   string          `json:"id"`
	Path string          `json:"path"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response answers exactly one Request. The original request is echoed so
// the caller can correlate by Request.ID.
type Response struct {
	Request Request     `json:"request"`
	Result  interface{} `json:"result"`
}

// ErrorResult is the Result of a Response whose handler failed.
type ErrorResult struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody names the error class and message.
type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
