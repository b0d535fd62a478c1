package bull

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Job is a Bull job as stored in its hash. Fields Bull stores as JSON are
// decoded; a malformed value is kept verbatim as a JSON string.
type Job struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Data         json.RawMessage `json:"data"`
	Opts         json.RawMessage `json:"opts"`
	Progress     json.RawMessage `json:"progress"`
	Delay        int64           `json:"delay"`
	Timestamp    int64           `json:"timestamp"`
	AttemptsMade int64           `json:"attemptsMade"`
	FailedReason string          `json:"failedReason,omitempty"`
	Stacktrace   []string        `json:"stacktrace"`
	ReturnValue  json.RawMessage `json:"returnvalue"`
	FinishedOn   *int64          `json:"finishedOn,omitempty"`
	ProcessedOn  *int64          `json:"processedOn,omitempty"`

	queue *Queue
}

func newJob(q *Queue, id string, h map[string]string) *Job {
	j := &Job{
		ID:           id,
		Name:         h["name"],
		Data:         rawJSON(h["data"], "{}"),
		Opts:         rawJSON(h["opts"], "{}"),
		Progress:     rawJSON(h["progress"], "0"),
		Delay:        parseInt(h["delay"]),
		Timestamp:    parseInt(h["timestamp"]),
		AttemptsMade: parseInt(h["attemptsMade"]),
		FailedReason: h["failedReason"],
		ReturnValue:  rawJSON(h["returnvalue"], "null"),
		FinishedOn:   optInt(h["finishedOn"]),
		ProcessedOn:  optInt(h["processedOn"]),
		queue:        q,
	}
	if j.Name == "" {
		j.Name = "__default__"
	}
	j.Stacktrace = []string{}
	if s := h["stacktrace"]; s != "" {
		if err := json.Unmarshal([]byte(s), &j.Stacktrace); err != nil {
			j.Stacktrace = []string{s}
		}
	}
	return j
}

func rawJSON(s, def string) json.RawMessage {
	if s == "" {
		return json.RawMessage(def)
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func optInt(s string) *int64 {
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// GetState resolves the job's current state: completed, failed, delayed,
// active, waiting, paused or stuck.
func (j *Job) GetState(ctx context.Context) (string, error) {
	q := j.queue
	if err := q.check(); err != nil {
		return "", err
	}
	k := q.keys
	state, err := stateScript.Run(ctx, q.rdb,
		[]string{k.completed, k.failed, k.delayed, k.active, k.wait, k.paused}, j.ID).Text()
	if err != nil {
		return "", wrapRedisErr("get job state", err)
	}
	return state, nil
}

// Retry moves a failed job back to waiting.
func (j *Job) Retry(ctx context.Context) error {
	q := j.queue
	if err := q.check(); err != nil {
		return err
	}
	k := q.keys
	jk := k.job(j.ID)
	n, err := reprocessScript.Run(ctx, q.rdb,
		[]string{jk, jk + ":lock", k.failed, k.wait, k.paused, k.metaPaused, k.channel(EventWaiting)}, j.ID).Int64()
	if err != nil {
		return wrapRedisErr("retry job", err)
	}
	return j.scriptResult(n, "failed")
}

// Promote moves a delayed job to waiting.
func (j *Job) Promote(ctx context.Context) error {
	q := j.queue
	if err := q.check(); err != nil {
		return err
	}
	k := q.keys
	n, err := promoteScript.Run(ctx, q.rdb,
		[]string{k.job(j.ID), k.delayed, k.wait, k.paused, k.metaPaused, k.channel(EventWaiting)}, j.ID).Int64()
	if err != nil {
		return wrapRedisErr("promote job", err)
	}
	return j.scriptResult(n, "delayed")
}

// Remove deletes the job from its queue. Locked jobs cannot be removed.
func (j *Job) Remove(ctx context.Context) error {
	q := j.queue
	if err := q.check(); err != nil {
		return err
	}
	k := q.keys
	jk := k.job(j.ID)
	n, err := removeScript.Run(ctx, q.rdb,
		[]string{jk, jk + ":lock", k.active, k.wait, k.paused, k.delayed, k.priority, k.completed, k.failed, k.base + "removed"},
		j.ID).Int64()
	if err != nil {
		return wrapRedisErr("remove job", err)
	}
	return j.scriptResult(n, "")
}

func (j *Job) scriptResult(n int64, want string) error {
	switch n {
	case 1:
		return nil
	case 0:
		return ErrJobNotFound
	case -1:
		return ErrJobLocked
	default:
		return &StateError{JobID: j.ID, Want: want}
	}
}

// Discard marks the job so it is not retried again: its attempts option is
// lowered to the attempts already made.
func (j *Job) Discard(ctx context.Context) error {
	q := j.queue
	if err := q.check(); err != nil {
		return err
	}
	jk := q.keys.job(j.ID)
	var updated []byte
	txf := func(tx *redis.Tx) error {
		h, err := tx.HMGet(ctx, jk, "opts", "attemptsMade").Result()
		if err != nil {
			return err
		}
		if h[0] == nil && h[1] == nil {
			if n, err := tx.Exists(ctx, jk).Result(); err != nil {
				return err
			} else if n == 0 {
				return ErrJobNotFound
			}
		}
		opts := map[string]any{}
		if s, ok := h[0].(string); ok && s != "" {
			if err := json.Unmarshal([]byte(s), &opts); err != nil {
				opts = map[string]any{}
			}
		}
		made := int64(0)
		if s, ok := h[1].(string); ok {
			made = parseInt(s)
		}
		opts["attempts"] = made
		b, err := json.Marshal(opts)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, jk, "opts", string(b))
			return nil
		})
		if err == nil {
			updated = b
		}
		return err
	}
	for range 3 {
		err := q.rdb.Watch(ctx, txf, jk)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrJobNotFound) {
			return err
		}
		if err == nil {
			j.Opts = updated
			return nil
		}
		return wrapRedisErr("discard job", err)
	}
	return wrapRedisErr("discard job", redis.TxFailedErr)
}
