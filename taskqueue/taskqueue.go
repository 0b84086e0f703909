// Package taskqueue provides the Redis-backed work queue and per-workflow
// lock that let TaskRunner's worker pool honor "one in-flight execution per
// workflow_id" across processes. Grounded on store/redis/redis.go's use of
// go-redis for keyed storage, repurposed here as a queue/lock rather than a
// checkpoint store — checkpoints already live in Postgres/SQLite.
package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned by Lock when another worker already holds the
// per-workflow lock, and by Extend when there is no lock to refresh.
var ErrLockHeld = errors.New("taskqueue: workflow lock already held")

// Job is one unit of work enqueued for a worker: run or resume a workflow.
type Job struct {
	WorkflowID string    `json:"workflow_id"`
	ProjectID  string    `json:"project_id"`
	TaskID     string    `json:"task_id"`
	Resume     bool      `json:"resume"`
	Approved   bool      `json:"approved"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Options configures a Queue's Redis connection and key namespacing.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // key prefix, default "ghostline:taskqueue:"
	LockTTL  time.Duration // lock expiration, default 5 minutes
}

// Queue is a Redis-backed FIFO job queue plus a per-workflow_id mutual
// exclusion lock, grounded on store/redis/redis.go's RedisCheckpointStore.
type Queue struct {
	client  *redis.Client
	prefix  string
	lockTTL time.Duration
}

// New constructs a Queue against the given Redis connection options.
func New(opts Options) *Queue {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "ghostline:taskqueue:"
	}
	lockTTL := opts.LockTTL
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}

	return &Queue{client: client, prefix: prefix, lockTTL: lockTTL}
}

// NewWithClient wraps an already-constructed redis.Client, for callers that
// share one connection across multiple Ghostline components.
func NewWithClient(client *redis.Client, prefix string, lockTTL time.Duration) *Queue {
	if prefix == "" {
		prefix = "ghostline:taskqueue:"
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &Queue{client: client, prefix: prefix, lockTTL: lockTTL}
}

func (q *Queue) listKey() string {
	return q.prefix + "jobs"
}

func (q *Queue) lockKey(workflowID string) string {
	return fmt.Sprintf("%slock:%s", q.prefix, workflowID)
}

// Enqueue pushes a job onto the tail of the shared work list.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("taskqueue: marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, q.listKey(), data).Err(); err != nil {
		return fmt.Errorf("taskqueue: enqueue: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job, FIFO. It returns
// (nil, nil) on timeout with nothing available.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, q.listKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("taskqueue: dequeue: %w", err)
	}
	// BLPop returns [key, value].
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("taskqueue: unmarshal job: %w", err)
	}
	return &job, nil
}

// Lock acquires the distributed per-workflow lock using SET NX with the
// configured TTL, enforcing spec §5's "only one in-flight execution per
// workflow_id" across worker processes. holder is an opaque identifier
// (e.g. a worker's hostname+pid) recorded for diagnostics.
func (q *Queue) Lock(ctx context.Context, workflowID, holder string) error {
	ok, err := q.client.SetNX(ctx, q.lockKey(workflowID), holder, q.lockTTL).Result()
	if err != nil {
		return fmt.Errorf("taskqueue: acquire lock: %w", err)
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// Unlock releases the per-workflow lock. It is a no-op if the lock has
// already expired or was never held.
func (q *Queue) Unlock(ctx context.Context, workflowID string) error {
	if err := q.client.Del(ctx, q.lockKey(workflowID)).Err(); err != nil {
		return fmt.Errorf("taskqueue: release lock: %w", err)
	}
	return nil
}

// Extend refreshes the lock's TTL, for long-running workflow executions
// that outlive the default lock window.
func (q *Queue) Extend(ctx context.Context, workflowID string) error {
	ok, err := q.client.Expire(ctx, q.lockKey(workflowID), q.lockTTL).Result()
	if err != nil {
		return fmt.Errorf("taskqueue: extend lock: %w", err)
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// IsLocked reports whether a workflow currently has an in-flight execution
// lock held by any worker.
func (q *Queue) IsLocked(ctx context.Context, workflowID string) (bool, error) {
	n, err := q.client.Exists(ctx, q.lockKey(workflowID)).Result()
	if err != nil {
		return false, fmt.Errorf("taskqueue: check lock: %w", err)
	}
	return n > 0, nil
}

// Depth reports the number of jobs currently waiting in the queue.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.listKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("taskqueue: depth: %w", err)
	}
	return n, nil
}

// Close releases the underlying Redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}
