package bull

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupQueue(t *testing.T, prefix, name string) (*Queue, *miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
	})

	q := NewQueue(rdb, prefix, name)
	t.Cleanup(func() {
		q.Close()
	})
	return q, mr, rdb
}

// addJob writes a job hash the way Bull's addJob script does.
func addJob(t *testing.T, rdb *redis.Client, q *Queue, id string, ts int64) {
	t.Helper()
	ctx := context.Background()
	err := rdb.HSet(ctx, q.keys.job(id),
		"name", "__default__",
		"data", `{"n":`+id+`}`,
		"opts", `{"attempts":3}`,
		"timestamp", strconv.FormatInt(ts, 10),
		"delay", "0",
		"attemptsMade", "0",
	).Err()
	if err != nil {
		t.Fatalf("hset: %v", err)
	}
}

func TestQueueIdentity(t *testing.T) {
	q, _, _ := setupQueue(t, "bull", "emails")
	if q.Name() != "emails" || q.Prefix() != "bull" || q.Key() != "bull:emails" {
		t.Fatalf("identity = %s %s %s", q.Name(), q.Prefix(), q.Key())
	}
}

func TestPauseResume(t *testing.T) {
	q, mr, rdb := setupQueue(t, "bull", "emails")
	ctx := context.Background()
	rdb.LPush(ctx, q.keys.wait, "1", "2")

	paused, err := q.IsPaused(ctx)
	if err != nil || paused {
		t.Fatalf("IsPaused() = %v, %v; want false", paused, err)
	}
	if err := q.Pause(ctx); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if v, _ := mr.Get("bull:emails:meta-paused"); v != "1" {
		t.Fatalf("meta-paused = %q, want 1", v)
	}
	if mr.Exists(q.keys.wait) {
		t.Fatal("wait list should have moved to paused")
	}
	if ok, _ := IsPaused(ctx, rdb, "bull", "emails"); !ok {
		t.Fatal("IsPaused() = false after Pause")
	}

	if err := q.Resume(ctx); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if mr.Exists("bull:emails:meta-paused") {
		t.Fatal("meta-paused should be removed")
	}
	n, _ := rdb.LLen(ctx, q.keys.wait).Result()
	if n != 2 {
		t.Fatalf("wait len = %d, want 2", n)
	}
}

func TestGetJobCounts(t *testing.T) {
	q, _, rdb := setupQueue(t, "bull", "emails")
	ctx := context.Background()
	rdb.LPush(ctx, q.keys.wait, "1", "2")
	rdb.LPush(ctx, q.keys.active, "3")
	rdb.ZAdd(ctx, q.keys.completed, redis.Z{Score: 1, Member: "4"}, redis.Z{Score: 2, Member: "5"}, redis.Z{Score: 3, Member: "6"})
	rdb.ZAdd(ctx, q.keys.failed, redis.Z{Score: 1, Member: "7"})
	rdb.ZAdd(ctx, q.keys.delayed, redis.Z{Score: 1, Member: "8"})

	got, err := q.GetJobCounts(ctx)
	if err != nil {
		t.Fatalf("GetJobCounts() error = %v", err)
	}
	want := JobCounts{Waiting: 2, Active: 1, Completed: 3, Failed: 1, Delayed: 1}
	if got != want {
		t.Fatalf("GetJobCounts() = %+v, want %+v", got, want)
	}
}

func TestGetWaitingOrderAndRange(t *testing.T) {
	q, _, rdb := setupQueue(t, "bull", "emails")
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		id := strconv.Itoa(i)
		addJob(t, rdb, q, id, int64(i))
		rdb.LPush(ctx, q.keys.wait, id)
	}

	jobs, err := q.GetWaiting(ctx, 0, 100)
	if err != nil {
		t.Fatalf("GetWaiting() error = %v", err)
	}
	if len(jobs) != 5 {
		t.Fatalf("len = %d, want 5", len(jobs))
	}
	for i, j := range jobs {
		if j.ID != strconv.Itoa(i+1) {
			t.Fatalf("jobs[%d].ID = %s, want %d", i, j.ID, i+1)
		}
	}

	jobs, err = q.GetWaiting(ctx, 1, 2)
	if err != nil {
		t.Fatalf("GetWaiting() error = %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "2" || jobs[1].ID != "3" {
		t.Fatalf("range [1,2] = %v", jobIDs(jobs))
	}
}

func TestGetCompletedNewestFirst(t *testing.T) {
	q, _, rdb := setupQueue(t, "bull", "emails")
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		id := strconv.Itoa(i)
		addJob(t, rdb, q, id, int64(i))
		rdb.ZAdd(ctx, q.keys.completed, redis.Z{Score: float64(i), Member: id})
	}
	jobs, err := q.GetCompleted(ctx, 0, 100)
	if err != nil {
		t.Fatalf("GetCompleted() error = %v", err)
	}
	if got := jobIDs(jobs); len(got) != 3 || got[0] != "3" || got[2] != "1" {
		t.Fatalf("GetCompleted() ids = %v", got)
	}
}

func TestGetJobsSkipsMissingHashes(t *testing.T) {
	q, _, rdb := setupQueue(t, "bull", "emails")
	ctx := context.Background()
	addJob(t, rdb, q, "1", 1)
	rdb.LPush(ctx, q.keys.active, "1", "ghost")
	jobs, err := q.GetActive(ctx, 0, 100)
	if err != nil {
		t.Fatalf("GetActive() error = %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "1" {
		t.Fatalf("GetActive() = %v", jobIDs(jobs))
	}
}

func TestGetJob(t *testing.T) {
	q, _, rdb := setupQueue(t, "bull", "emails")
	ctx := context.Background()
	addJob(t, rdb, q, "7", 1000)
	rdb.HSet(ctx, q.keys.job("7"), "stacktrace", `["boom"]`, "returnvalue", "not json", "finishedOn", "2000")

	j, err := q.GetJob(ctx, "7")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if j.Timestamp != 1000 || string(j.Data) != `{"n":7}` {
		t.Fatalf("job = %+v", j)
	}
	if len(j.Stacktrace) != 1 || j.Stacktrace[0] != "boom" {
		t.Fatalf("stacktrace = %v", j.Stacktrace)
	}
	if string(j.ReturnValue) != `"not json"` {
		t.Fatalf("returnvalue = %s", j.ReturnValue)
	}
	if j.FinishedOn == nil || *j.FinishedOn != 2000 || j.ProcessedOn != nil {
		t.Fatalf("finishedOn/processedOn = %v/%v", j.FinishedOn, j.ProcessedOn)
	}

	if _, err := q.GetJob(ctx, "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("GetJob(missing) error = %v, want ErrJobNotFound", err)
	}
}

func TestClean(t *testing.T) {
	q, mr, rdb := setupQueue(t, "bull", "emails")
	ctx := context.Background()
	old := time.Now().Add(-time.Hour).UnixMilli()
	fresh := time.Now().UnixMilli()
	for id, ts := range map[string]int64{"1": old, "2": old, "3": fresh} {
		addJob(t, rdb, q, id, ts)
		rdb.HSet(ctx, q.keys.job(id), "finishedOn", ts)
		rdb.ZAdd(ctx, q.keys.completed, redis.Z{Score: float64(ts), Member: id})
	}

	removed, err := q.Clean(ctx, time.Minute, "", 0)
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("Clean() removed = %v, want 2 ids", removed)
	}
	if mr.Exists(q.keys.job("1")) || !mr.Exists(q.keys.job("3")) {
		t.Fatal("clean removed the wrong jobs")
	}

	if _, err := q.Clean(ctx, 0, "bogus", 0); err == nil {
		t.Fatal("Clean(bogus) should fail")
	}
}

func TestCleanLimit(t *testing.T) {
	q, _, rdb := setupQueue(t, "bull", "emails")
	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		id := strconv.Itoa(i)
		addJob(t, rdb, q, id, 1)
		rdb.ZAdd(ctx, q.keys.failed, redis.Z{Score: float64(i), Member: id})
	}
	removed, err := q.Clean(ctx, 0, "failed", 3)
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if len(removed) != 3 {
		t.Fatalf("Clean() removed %d, want 3", len(removed))
	}
}

func TestEmpty(t *testing.T) {
	q, mr, rdb := setupQueue(t, "bull", "emails")
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3", "4"} {
		addJob(t, rdb, q, id, 1)
	}
	rdb.LPush(ctx, q.keys.wait, "1")
	rdb.LPush(ctx, q.keys.paused, "2")
	rdb.ZAdd(ctx, q.keys.delayed, redis.Z{Score: 1, Member: "3"})
	rdb.LPush(ctx, q.keys.active, "4")
	rdb.Set(ctx, q.keys.metaPaused, "1", 0)

	n, err := q.Empty(ctx)
	if err != nil {
		t.Fatalf("Empty() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("Empty() = %d, want 3", n)
	}
	if !mr.Exists(q.keys.job("4")) || mr.Exists(q.keys.job("1")) {
		t.Fatal("Empty() must keep active jobs only")
	}
	if ok, _ := q.IsPaused(ctx); !ok {
		t.Fatal("Empty() must not unpause the queue")
	}
}

func TestClosedQueue(t *testing.T) {
	q, _, _ := setupQueue(t, "bull", "emails")
	ctx := context.Background()
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := q.GetJobCounts(ctx); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("GetJobCounts() after close = %v", err)
	}
	if err := q.On(ctx, EventWaiting, func(string) {}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("On() after close = %v", err)
	}
}

func TestRedisErrorWrapped(t *testing.T) {
	q, mr, _ := setupQueue(t, "bull", "emails")
	mr.SetError("LOADING")
	_, err := q.GetJob(context.Background(), "1")
	var re *RedisError
	if !errors.As(err, &re) || re.Op != "get job" {
		t.Fatalf("error = %v, want *RedisError", err)
	}
}

func jobIDs(jobs []*Job) []string {
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids
}
