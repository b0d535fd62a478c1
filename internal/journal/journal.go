package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	pebblestore "github.com/queuekit/queuekit-connector-bull/internal/storage/pebble"
)

// Kind classifies a journal entry.
type Kind string

const (
	KindQueueAdded   Kind = "queue.added"
	KindQueueRemoved Kind = "queue.removed"
	KindCommand      Kind = "command"
	KindConnection   Kind = "connection"
)

// Entry is one journal record.
type Entry struct {
	ID     string    `json:"id"`
	Time   time.Time `json:"time"`
	Kind   Kind      `json:"kind"`
	Queue  string    `json:"queue,omitempty"`
	Detail string    `json:"detail,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Recorder accepts journal entries. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Nop discards every entry.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

var entryPrefix = []byte("j/")

// Journal stores entries in Pebble under time-ordered UUIDv7 keys.
type Journal struct {
	db     *pebblestore.DB
	retain int
}

// Options configures a Journal.
type Options struct {
	// Retain bounds the number of entries kept by Trim. Zero keeps all.
	Retain int
}

// New returns a Journal backed by db.
func New(db *pebblestore.DB, opts Options) *Journal {
	return &Journal{db: db, retain: opts.Retain}
}

func entryKey(id uuid.UUID) []byte {
	k := make([]byte, 0, len(entryPrefix)+16)
	k = append(k, entryPrefix...)
	return append(k, id[:]...)
}

// Record appends e, assigning ID and Time when unset.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("journal: new id: %w", err)
	}
	if e.ID == "" {
		e.ID = id.String()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal: encode: %w", err)
	}
	if err := j.db.Set(entryKey(id), val); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	return nil
}

// ListOptions filters List.
type ListOptions struct {
	Limit int
	Kind  Kind
}

// List returns entries newest first.
func (j *Journal) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	out := make([]Entry, 0, opts.Limit)
	err := j.db.ScanPrefix(entryPrefix, true, func(_, v []byte) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		var e Entry
		if err := json.Unmarshal(v, &e); err != nil {
			return false, fmt.Errorf("journal: decode: %w", err)
		}
		if opts.Kind != "" && e.Kind != opts.Kind {
			return true, nil
		}
		out = append(out, e)
		return len(out) < opts.Limit, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Trim deletes the oldest entries beyond the retention bound and returns the
// number removed.
func (j *Journal) Trim(ctx context.Context) (int, error) {
	if j.retain <= 0 {
		return 0, nil
	}
	seen := 0
	var cut []byte
	err := j.db.ScanPrefix(entryPrefix, true, func(k, _ []byte) (bool, error) {
		seen++
		if seen == j.retain+1 {
			cut = bytes.Clone(k)
		}
		return true, nil
	})
	if err != nil || cut == nil {
		return 0, err
	}
	removed := seen - j.retain
	end := append(bytes.Clone(cut), 0)
	if err := j.db.DeleteRange(entryPrefix, end); err != nil {
		return 0, fmt.Errorf("journal: trim: %w", err)
	}
	return removed, nil
}
