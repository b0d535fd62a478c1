package bull

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Clean statuses accepted by Queue.Clean.
var cleanStatuses = map[string]struct{}{
	"completed": {}, "wait": {}, "active": {}, "delayed": {}, "failed": {}, "paused": {},
}

// Queue is a handle on one Bull queue.
type Queue struct {
	rdb    redis.UniversalClient
	prefix string
	name   string
	keys   keys
	closed atomic.Bool

	mu        sync.RWMutex
	listeners map[Event][]Listener
	pubsub    *redis.PubSub
	wg        sync.WaitGroup
}

// NewQueue binds a handle to (prefix, name) on a shared Redis client. It does
// not touch Redis until a method is called.
func NewQueue(rdb redis.UniversalClient, prefix, name string) *Queue {
	return &Queue{
		rdb:       rdb,
		prefix:    prefix,
		name:      name,
		keys:      newKeys(prefix, name),
		listeners: make(map[Event][]Listener),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Prefix returns the queue key prefix.
func (q *Queue) Prefix() string { return q.prefix }

// Key returns "<prefix>:<name>".
func (q *Queue) Key() string { return q.prefix + ":" + q.name }

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool { return q.closed.Load() }

func (q *Queue) check() error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	return nil
}

// Close releases the event subscription and every listener. It is safe to
// call more than once; only the first call does work.
func (q *Queue) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	q.mu.Lock()
	ps := q.pubsub
	q.pubsub = nil
	q.listeners = make(map[Event][]Listener)
	q.mu.Unlock()

	var err error
	if ps != nil {
		err = ps.Close()
		q.wg.Wait()
	}
	return wrapRedisErr("close subscription", err)
}

// IsPaused reports whether the queue's meta-paused key holds "1".
func (q *Queue) IsPaused(ctx context.Context) (bool, error) {
	if err := q.check(); err != nil {
		return false, err
	}
	return IsPaused(ctx, q.rdb, q.prefix, q.name)
}

// IsPaused reads the meta-paused flag of any queue without a handle.
func IsPaused(ctx context.Context, rdb redis.Cmdable, prefix, name string) (bool, error) {
	v, err := rdb.Get(ctx, MetaPausedKey(prefix, name)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, wrapRedisErr("check paused", err)
	}
	return v == "1", nil
}

// Pause pauses the queue globally: waiting jobs move to the paused list and
// workers stop picking up jobs.
func (q *Queue) Pause(ctx context.Context) error {
	if err := q.check(); err != nil {
		return err
	}
	k := q.keys
	err := pauseScript.Run(ctx, q.rdb, []string{k.wait, k.paused, k.metaPaused, k.paused}, "paused").Err()
	return wrapRedisErr("pause queue", err)
}

// Resume undoes Pause.
func (q *Queue) Resume(ctx context.Context) error {
	if err := q.check(); err != nil {
		return err
	}
	k := q.keys
	err := pauseScript.Run(ctx, q.rdb, []string{k.paused, k.wait, k.metaPaused, k.resumed}, "resumed").Err()
	return wrapRedisErr("resume queue", err)
}

// Clean removes jobs of status older than grace, up to limit (0 means no
// limit). It returns the removed job ids.
func (q *Queue) Clean(ctx context.Context, grace time.Duration, status string, limit int) ([]string, error) {
	if err := q.check(); err != nil {
		return nil, err
	}
	if status == "" {
		status = "completed"
	}
	if _, ok := cleanStatuses[status]; !ok {
		return nil, fmt.Errorf("bull: cannot clean unknown queue type %q", status)
	}
	if grace < 0 {
		return nil, fmt.Errorf("bull: grace period must not be negative")
	}
	setKey := q.keys.base + status
	maxTs := time.Now().Add(-grace).UnixMilli()
	ids, err := cleanScript.Run(ctx, q.rdb, []string{setKey}, q.keys.base, maxTs, limit, status).StringSlice()
	if err != nil {
		return nil, wrapRedisErr("clean queue", err)
	}
	return ids, nil
}

// Empty deletes all waiting, paused and delayed jobs. Active, completed and
// failed jobs are kept. It returns the number of jobs removed.
func (q *Queue) Empty(ctx context.Context) (int64, error) {
	if err := q.check(); err != nil {
		return 0, err
	}
	k := q.keys
	n, err := emptyScript.Run(ctx, q.rdb, []string{k.wait, k.paused, k.delayed, k.priority}, k.base).Int64()
	if err != nil {
		return 0, wrapRedisErr("empty queue", err)
	}
	return n, nil
}

// JobCounts is the number of jobs per state.
type JobCounts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
	Paused    int64 `json:"paused"`
}

// GetJobCounts returns the per-state job counts.
func (q *Queue) GetJobCounts(ctx context.Context) (JobCounts, error) {
	if err := q.check(); err != nil {
		return JobCounts{}, err
	}
	k := q.keys
	pipe := q.rdb.Pipeline()
	waiting := pipe.LLen(ctx, k.wait)
	active := pipe.LLen(ctx, k.active)
	completed := pipe.ZCard(ctx, k.completed)
	failed := pipe.ZCard(ctx, k.failed)
	delayed := pipe.ZCard(ctx, k.delayed)
	paused := pipe.LLen(ctx, k.paused)
	if _, err := pipe.Exec(ctx); err != nil {
		return JobCounts{}, wrapRedisErr("get job counts", err)
	}
	return JobCounts{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Delayed:   delayed.Val(),
		Paused:    paused.Val(),
	}, nil
}

// GetWaiting lists waiting jobs (including those parked by a pause), oldest
// first.
func (q *Queue) GetWaiting(ctx context.Context, start, end int64) ([]*Job, error) {
	return q.getJobs(ctx, "get waiting", start, end, true, q.keys.wait, q.keys.paused)
}

// GetActive lists active jobs, oldest first.
func (q *Queue) GetActive(ctx context.Context, start, end int64) ([]*Job, error) {
	return q.getJobs(ctx, "get active", start, end, true, q.keys.active)
}

// GetDelayed lists delayed jobs by due time.
func (q *Queue) GetDelayed(ctx context.Context, start, end int64) ([]*Job, error) {
	return q.getJobs(ctx, "get delayed", start, end, true, q.keys.delayed)
}

// GetCompleted lists completed jobs, most recent first.
func (q *Queue) GetCompleted(ctx context.Context, start, end int64) ([]*Job, error) {
	return q.getJobs(ctx, "get completed", start, end, false, q.keys.completed)
}

// GetFailed lists failed jobs, most recent first.
func (q *Queue) GetFailed(ctx context.Context, start, end int64) ([]*Job, error) {
	return q.getJobs(ctx, "get failed", start, end, false, q.keys.failed)
}

func (q *Queue) isList(key string) bool {
	return key == q.keys.wait || key == q.keys.paused || key == q.keys.active
}

// getJobs reads ids from each key in range [start, end] and loads their
// hashes. Lists are stored newest-first, so ascending order reads from the
// tail and reverses.
func (q *Queue) getJobs(ctx context.Context, op string, start, end int64, asc bool, setKeys ...string) ([]*Job, error) {
	if err := q.check(); err != nil {
		return nil, err
	}
	var ids []string
	for _, key := range setKeys {
		var (
			part []string
			err  error
		)
		switch {
		case q.isList(key) && asc:
			part, err = q.rdb.LRange(ctx, key, -(end + 1), -(start + 1)).Result()
			reverse(part)
		case q.isList(key):
			part, err = q.rdb.LRange(ctx, key, start, end).Result()
		case asc:
			part, err = q.rdb.ZRange(ctx, key, start, end).Result()
		default:
			part, err = q.rdb.ZRevRange(ctx, key, start, end).Result()
		}
		if err != nil {
			return nil, wrapRedisErr(op, err)
		}
		ids = append(ids, part...)
	}
	return q.loadJobs(ctx, op, ids)
}

func (q *Queue) loadJobs(ctx context.Context, op string, ids []string) ([]*Job, error) {
	if len(ids) == 0 {
		return []*Job{}, nil
	}
	pipe := q.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, q.keys.job(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, wrapRedisErr(op, err)
	}
	jobs := make([]*Job, 0, len(ids))
	for i, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 {
			continue // removed between range and load
		}
		jobs = append(jobs, newJob(q, ids[i], h))
	}
	return jobs, nil
}

// GetJob loads one job by id.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	if err := q.check(); err != nil {
		return nil, err
	}
	h, err := q.rdb.HGetAll(ctx, q.keys.job(id)).Result()
	if err != nil {
		return nil, wrapRedisErr("get job", err)
	}
	if len(h) == 0 {
		return nil, ErrJobNotFound
	}
	return newJob(q, id, h), nil
}

// NextJobID returns the current value of the id counter, or 0 if unset.
func (q *Queue) NextJobID(ctx context.Context) (int64, error) {
	if err := q.check(); err != nil {
		return 0, err
	}
	v, err := q.rdb.Get(ctx, q.keys.base+"id").Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapRedisErr("get id counter", err)
	}
	return strconv.ParseInt(v, 10, 64)
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
