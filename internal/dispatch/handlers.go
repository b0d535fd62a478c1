package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/queuekit/queuekit-connector-bull/internal/bull"
	"github.com/queuekit/queuekit-connector-bull/internal/keyspace"
	"github.com/queuekit/queuekit-connector-bull/internal/protocol"
	"github.com/queuekit/queuekit-connector-bull/internal/registry"
)

const (
	defaultStart = 0
	defaultEnd   = 100
)

// jobID accepts a JSON string or number.
type jobID string

func (j *jobID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*j = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*j = jobID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*j = jobID(n.String())
	return nil
}

// payload is the union of request data fields.
type payload struct {
	QueueName   string `json:"queueName"`
	QueuePrefix string `json:"queuePrefix"`
	JobID       jobID  `json:"jobId"`
	Start       int64  `json:"start"`
	End         int64  `json:"end"`
	Status      string `json:"status"`
	Duration    int64  `json:"duration"`
	Limit       int    `json:"limit"`
}

func parsePayload(data json.RawMessage) (*payload, error) {
	p := &payload{}
	if len(bytes.TrimSpace(data)) > 0 && !bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		if err := json.Unmarshal(data, p); err != nil {
			return nil, &protocol.ValidationError{Field: "data", Reason: err.Error()}
		}
	}
	if p.Start == 0 {
		p.Start = defaultStart
	}
	if p.End == 0 {
		p.End = defaultEnd
	}
	return p, nil
}

func (p *payload) identity() keyspace.Identity {
	return keyspace.Identity{Prefix: p.QueuePrefix, Name: p.QueueName}
}

func (p *payload) requireQueue() error {
	if p.QueueName == "" {
		return &protocol.ValidationError{Field: "queueName", Reason: "is required"}
	}
	if p.QueuePrefix == "" {
		return &protocol.ValidationError{Field: "queuePrefix", Reason: "is required"}
	}
	return nil
}

func (p *payload) requireJob() error {
	if err := p.requireQueue(); err != nil {
		return err
	}
	if p.JobID == "" {
		return &protocol.ValidationError{Field: "jobId", Reason: "is required"}
	}
	return nil
}

func (d *Dispatcher) lookup(p *payload) (*registry.Handle, error) {
	if err := p.requireQueue(); err != nil {
		return nil, err
	}
	return d.reg.Get(p.identity())
}

type queueSummary struct {
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
}

func (d *Dispatcher) getQueues(context.Context, *payload) (any, error) {
	ids := d.reg.Snapshot()
	out := make([]queueSummary, len(ids))
	for i, id := range ids {
		out[i] = queueSummary{Name: id.Name, Prefix: id.Prefix}
	}
	return out, nil
}

// getIsQueuePaused reads the meta-paused flag directly, so it answers for
// queues the registry has not cached yet.
func (d *Dispatcher) getIsQueuePaused(ctx context.Context, p *payload) (any, error) {
	if err := p.requireQueue(); err != nil {
		return nil, err
	}
	return bull.IsPaused(ctx, d.rdb, p.QueuePrefix, p.QueueName)
}

func (d *Dispatcher) getQueueJobCounts(ctx context.Context, p *payload) (any, error) {
	h, err := d.lookup(p)
	if err != nil {
		return nil, err
	}
	return h.Queue.GetJobCounts(ctx)
}

type jobLister func(q *bull.Queue, ctx context.Context, start, end int64) ([]*bull.Job, error)

func (d *Dispatcher) listJobs(list jobLister) handler {
	return func(ctx context.Context, p *payload) (any, error) {
		h, err := d.lookup(p)
		if err != nil {
			return nil, err
		}
		return list(h.Queue, ctx, p.Start, p.End)
	}
}

func pauseQueue(ctx context.Context, q *bull.Queue, _ *payload) error  { return q.Pause(ctx) }
func resumeQueue(ctx context.Context, q *bull.Queue, _ *payload) error { return q.Resume(ctx) }

func emptyQueue(ctx context.Context, q *bull.Queue, _ *payload) error {
	_, err := q.Empty(ctx)
	return err
}

// queueAction runs fn and answers with the queue description.
func (d *Dispatcher) queueAction(fn func(context.Context, *bull.Queue, *payload) error) handler {
	return func(ctx context.Context, p *payload) (any, error) {
		h, err := d.lookup(p)
		if err != nil {
			return nil, err
		}
		if err := fn(ctx, h.Queue, p); err != nil {
			return nil, err
		}
		return h.Ref(), nil
	}
}

var cleanStatuses = map[string]bool{
	"completed": true, "wait": true, "active": true, "delayed": true, "failed": true, "paused": true,
}

func (d *Dispatcher) cleanQueue(ctx context.Context, p *payload) (any, error) {
	if p.Status != "" && !cleanStatuses[p.Status] {
		return nil, &protocol.ValidationError{Field: "status", Reason: "must be one of completed, wait, active, delayed, failed, paused"}
	}
	if p.Duration < 0 {
		return nil, &protocol.ValidationError{Field: "duration", Reason: "must not be negative"}
	}
	if p.Limit < 0 {
		return nil, &protocol.ValidationError{Field: "limit", Reason: "must not be negative"}
	}
	return d.queueAction(func(ctx context.Context, q *bull.Queue, p *payload) error {
		_, err := q.Clean(ctx, time.Duration(p.Duration)*time.Millisecond, p.Status, p.Limit)
		return err
	})(ctx, p)
}

func discardJob(ctx context.Context, j *bull.Job) error { return j.Discard(ctx) }
func promoteJob(ctx context.Context, j *bull.Job) error { return j.Promote(ctx) }
func retryJob(ctx context.Context, j *bull.Job) error   { return j.Retry(ctx) }

// jobView is a job with its resolved state.
type jobView struct {
	*bull.Job
	State string `json:"state"`
}

// jobAction runs fn on the job, then re-reads it and resolves its state. A
// nil fn only reads.
func (d *Dispatcher) jobAction(fn func(context.Context, *bull.Job) error) handler {
	return func(ctx context.Context, p *payload) (any, error) {
		if err := p.requireJob(); err != nil {
			return nil, err
		}
		h, err := d.lookup(p)
		if err != nil {
			return nil, err
		}
		id := string(p.JobID)
		job, err := h.Queue.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if fn != nil {
			if err := fn(ctx, job); err != nil {
				return nil, err
			}
			if job, err = h.Queue.GetJob(ctx, id); err != nil {
				return nil, err
			}
		}
		state, err := job.GetState(ctx)
		if err != nil {
			return nil, err
		}
		return jobView{Job: job, State: state}, nil
	}
}

func (d *Dispatcher) removeJob(ctx context.Context, p *payload) (any, error) {
	if err := p.requireJob(); err != nil {
		return nil, err
	}
	h, err := d.lookup(p)
	if err != nil {
		return nil, err
	}
	job, err := h.Queue.GetJob(ctx, string(p.JobID))
	if err != nil {
		return nil, err
	}
	return nil, job.Remove(ctx)
}
