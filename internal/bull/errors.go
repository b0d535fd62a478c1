package bull

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrJobNotFound is returned when a job id has no hash.
	ErrJobNotFound = errors.New("bull: job not found")

	// ErrQueueClosed is returned by every method of a closed Queue.
	ErrQueueClosed = errors.New("bull: queue closed")

	// ErrJobLocked is returned when a worker holds the job lock.
	ErrJobLocked = errors.New("bull: job is locked")
)

// StateError is returned when a job is not in the state an action requires.
type StateError struct {
	JobID string
	Want  string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("bull: job %s is not in the %s state", e.JobID, e.Want)
}

// RedisError wraps Redis errors with operation context.
type RedisError struct {
	Op  string
	Err error
}

func (e *RedisError) Error() string {
	return fmt.Sprintf("bull: %s: %v", e.Op, e.Err)
}

func (e *RedisError) Unwrap() error {
	return e.Err
}

func wrapRedisErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RedisError{Op: op, Err: err}
}
