package bull

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestJobGetState(t *testing.T) {
	q, _, rdb := setupQueue(t, "bull", "emails")
	ctx := context.Background()
	rdb.ZAdd(ctx, q.keys.completed, redis.Z{Score: 1, Member: "1"})
	rdb.ZAdd(ctx, q.keys.failed, redis.Z{Score: 1, Member: "2"})
	rdb.ZAdd(ctx, q.keys.delayed, redis.Z{Score: 1, Member: "3"})
	rdb.LPush(ctx, q.keys.active, "4")
	rdb.LPush(ctx, q.keys.wait, "5")
	rdb.LPush(ctx, q.keys.paused, "6")

	want := map[string]string{
		"1": "completed", "2": "failed", "3": "delayed",
		"4": "active", "5": "waiting", "6": "paused", "7": "stuck",
	}
	for id, state := range want {
		addJob(t, rdb, q, id, 1)
		j, err := q.GetJob(ctx, id)
		if err != nil {
			t.Fatalf("GetJob(%s) error = %v", id, err)
		}
		got, err := j.GetState(ctx)
		if err != nil {
			t.Fatalf("GetState(%s) error = %v", id, err)
		}
		if got != state {
			t.Errorf("GetState(%s) = %s, want %s", id, got, state)
		}
	}
}

func TestJobRetry(t *testing.T) {
	q, mr, rdb := setupQueue(t, "bull", "emails")
	ctx := context.Background()
	addJob(t, rdb, q, "1", 1)
	rdb.HSet(ctx, q.keys.job("1"), "failedReason", "boom", "finishedOn", "5")
	rdb.ZAdd(ctx, q.keys.failed, redis.Z{Score: 1, Member: "1"})

	j, _ := q.GetJob(ctx, "1")
	if err := j.Retry(ctx); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if ids, _ := mr.List(q.keys.wait); len(ids) != 1 || ids[0] != "1" {
		t.Fatalf("wait = %v", ids)
	}
	if mr.HGet(q.keys.job("1"), "failedReason") != "" {
		t.Fatal("failedReason should be cleared")
	}

	var se *StateError
	if err := j.Retry(ctx); !errors.As(err, &se) {
		t.Fatalf("second Retry() error = %v, want StateError", err)
	}
}

func TestJobRetryWhilePaused(t *testing.T) {
	q, mr, rdb := setupQueue(t, "bull", "emails")
	ctx := context.Background()
	addJob(t, rdb, q, "1", 1)
	rdb.ZAdd(ctx, q.keys.failed, redis.Z{Score: 1, Member: "1"})
	rdb.Set(ctx, q.keys.metaPaused, "1", 0)

	j, _ := q.GetJob(ctx, "1")
	if err := j.Retry(ctx); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if ids, _ := mr.List(q.keys.paused); len(ids) != 1 {
		t.Fatalf("paused = %v, want the retried job", ids)
	}
}

func TestJobRetryLocked(t *testing.T) {
	q, _, rdb := setupQueue(t, "bull", "emails")
	ctx := context.Background()
	addJob(t, rdb, q, "1", 1)
	rdb.ZAdd(ctx, q.keys.failed, redis.Z{Score: 1, Member: "1"})
	rdb.Set(ctx, q.keys.job("1")+":lock", "worker", 0)

	j, _ := q.GetJob(ctx, "1")
	if err := j.Retry(ctx); !errors.Is(err, ErrJobLocked) {
		t.Fatalf("Retry() error = %v, want ErrJobLocked", err)
	}
}

func TestJobPromote(t *testing.T) {
	q, mr, rdb := setupQueue(t, "bull", "emails")
	ctx := context.Background()
	addJob(t, rdb, q, "1", 1)
	rdb.HSet(ctx, q.keys.job("1"), "delay", "60000")
	rdb.ZAdd(ctx, q.keys.delayed, redis.Z{Score: 99, Member: "1"})

	j, _ := q.GetJob(ctx, "1")
	if err := j.Promote(ctx); err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	if ids, _ := mr.List(q.keys.wait); len(ids) != 1 {
		t.Fatalf("wait = %v", ids)
	}
	if mr.HGet(q.keys.job("1"), "delay") != "0" {
		t.Fatal("delay should be reset")
	}
	var se *StateError
	if err := j.Promote(ctx); !errors.As(err, &se) || se.Want != "delayed" {
		t.Fatalf("second Promote() error = %v", err)
	}
}

func TestJobRemove(t *testing.T) {
	q, mr, rdb := setupQueue(t, "bull", "emails")
	ctx := context.Background()
	addJob(t, rdb, q, "1", 1)
	rdb.LPush(ctx, q.keys.wait, "1")

	j, _ := q.GetJob(ctx, "1")
	if err := j.Remove(ctx); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if mr.Exists(q.keys.job("1")) || mr.Exists(q.keys.wait) {
		t.Fatal("job still present after Remove")
	}
	if err := j.Remove(ctx); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("second Remove() error = %v", err)
	}
}

func TestJobDiscard(t *testing.T) {
	q, mr, rdb := setupQueue(t, "bull", "emails")
	ctx := context.Background()
	addJob(t, rdb, q, "1", 1)
	rdb.HSet(ctx, q.keys.job("1"), "attemptsMade", "2", "opts", `{"attempts":5,"backoff":1000}`)

	j, _ := q.GetJob(ctx, "1")
	if err := j.Discard(ctx); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	var opts map[string]any
	if err := json.Unmarshal([]byte(mr.HGet(q.keys.job("1"), "opts")), &opts); err != nil {
		t.Fatalf("opts: %v", err)
	}
	if opts["attempts"] != float64(2) || opts["backoff"] != float64(1000) {
		t.Fatalf("opts = %v", opts)
	}

	rdb.Del(ctx, q.keys.job("1"))
	if err := j.Discard(ctx); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("Discard(missing) error = %v", err)
	}
}
