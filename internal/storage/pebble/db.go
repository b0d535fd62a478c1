package pebblestore

import (
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/queuekit/queuekit-connector-bull/pkg/log"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = pebble.ErrNotFound

// SyncPolicy defines when committed writes are synced to the WAL.
type SyncPolicy int

const (
	// SyncInterval groups WAL syncs within Options.SyncInterval.
	SyncInterval SyncPolicy = iota
	// SyncAlways syncs every write.
	SyncAlways
	// SyncNever leaves syncing to Pebble.
	SyncNever
)

// ParseSyncPolicy maps "always", "interval" and "never" to a SyncPolicy.
func ParseSyncPolicy(s string) (SyncPolicy, error) {
	switch s {
	case "", "interval":
		return SyncInterval, nil
	case "always":
		return SyncAlways, nil
	case "never":
		return SyncNever, nil
	}
	return SyncInterval, fmt.Errorf("pebble: unknown sync policy %q", s)
}

// Options configures the store.
type Options struct {
	Dir          string
	Sync         SyncPolicy
	SyncInterval time.Duration
	// Logger receives Pebble's internal log output. Optional.
	Logger log.Logger
}

// DB wraps a Pebble database with a sync policy and prefix helpers.
type DB struct {
	inner     *pebble.DB
	writeSync bool
}

// Open creates or opens the database in opts.Dir.
func Open(opts Options) (*DB, error) {
	if opts.Dir == "" {
		return nil, errors.New("pebble: Options.Dir is required")
	}
	po := &pebble.Options{}
	if opts.Sync == SyncInterval {
		iv := opts.SyncInterval
		if iv <= 0 {
			iv = 5 * time.Millisecond
		}
		po.WALMinSyncInterval = func() time.Duration { return iv }
	}
	if opts.Logger != nil {
		po.Logger = pebbleLogger{opts.Logger.WithComponent("pebble")}
	}
	inner, err := pebble.Open(opts.Dir, po)
	if err != nil {
		return nil, fmt.Errorf("pebble: open %s: %w", opts.Dir, err)
	}
	return &DB{inner: inner, writeSync: opts.Sync == SyncAlways}, nil
}

func (db *DB) writeOpts() *pebble.WriteOptions {
	if db.writeSync {
		return pebble.Sync
	}
	return pebble.NoSync
}

// Close closes the database. It is safe on a nil DB.
func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

// Set writes key.
func (db *DB) Set(key, value []byte) error {
	return db.inner.Set(key, value, db.writeOpts())
}

// Delete removes key.
func (db *DB) Delete(key []byte) error {
	return db.inner.Delete(key, db.writeOpts())
}

// DeleteRange removes every key in [start, end).
func (db *DB) DeleteRange(start, end []byte) error {
	return db.inner.DeleteRange(start, end, db.writeOpts())
}

// Get returns a copy of the value of key, or ErrNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

// ScanPrefix calls fn for every key with prefix, in key order or in reverse.
// Iteration stops when fn returns false or an error.
func (db *DB) ScanPrefix(prefix []byte, reverse bool, fn func(k, v []byte) (bool, error)) error {
	it, err := db.inner.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return err
	}
	defer it.Close()

	valid := it.First
	step := it.Next
	if reverse {
		valid, step = it.Last, it.Prev
	}
	for ok := valid(); ok; ok = step() {
		cont, err := fn(it.Key(), it.Value())
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return it.Error()
}

// Ping verifies the database can serve reads.
func (db *DB) Ping() error {
	if db == nil || db.inner == nil {
		return errors.New("pebble: db not open")
	}
	it, err := db.inner.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

type pebbleLogger struct{ l log.Logger }

func (p pebbleLogger) Infof(format string, args ...interface{}) {
	p.l.Debug(fmt.Sprintf(format, args...))
}

func (p pebbleLogger) Errorf(format string, args ...interface{}) {
	p.l.Error(fmt.Sprintf(format, args...))
}

func (p pebbleLogger) Fatalf(format string, args ...interface{}) {
	p.l.Error(fmt.Sprintf(format, args...))
	panic(fmt.Sprintf(format, args...))
}
