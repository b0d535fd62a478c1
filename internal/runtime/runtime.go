package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	cfgpkg "github.com/queuekit/queuekit-connector-bull/internal/config"
	"github.com/queuekit/queuekit-connector-bull/internal/journal"
	pebblestore "github.com/queuekit/queuekit-connector-bull/internal/storage/pebble"
	"github.com/queuekit/queuekit-connector-bull/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger log.Logger
	// Redis overrides the client built from Config. The Runtime does not
	// close an injected client.
	Redis redis.UniversalClient
}

// Runtime owns the process-wide resources: the Redis client and, when a
// data directory is configured, the local journal.
type Runtime struct {
	config    cfgpkg.Config
	rdb       redis.UniversalClient
	ownsRedis bool
	db        *pebblestore.DB
	journal   *journal.Journal
}

// Open builds the Redis client and opens the journal if enabled.
func Open(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	rt := &Runtime{config: opts.Config, rdb: opts.Redis}
	if rt.rdb == nil {
		ro, err := opts.Config.RedisOptions()
		if err != nil {
			return nil, err
		}
		rt.rdb = redis.NewUniversalClient(ro)
		rt.ownsRedis = true
	}
	if opts.Config.JournalEnabled() {
		sync, err := pebblestore.ParseSyncPolicy(opts.Config.Sync)
		if err != nil {
			rt.Close()
			return nil, err
		}
		db, err := pebblestore.Open(pebblestore.Options{Dir: opts.Config.DataDir, Sync: sync, Logger: logger})
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.db = db
		rt.journal = journal.New(db, journal.Options{Retain: opts.Config.JournalRetain})
	}
	return rt, nil
}

// Close releases the journal and the Redis client if the Runtime built it.
func (r *Runtime) Close() error {
	var errs []error
	if r.db != nil {
		errs = append(errs, r.db.Close())
		r.db = nil
	}
	if r.ownsRedis && r.rdb != nil {
		errs = append(errs, r.rdb.Close())
		r.rdb = nil
	}
	return errors.Join(errs...)
}

// CheckHealth pings Redis and, if open, the journal store.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.rdb == nil {
		return errors.New("redis client closed")
	}
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if r.db != nil {
		if err := r.db.Ping(); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
	}
	return nil
}

// Redis returns the shared client.
func (r *Runtime) Redis() redis.UniversalClient { return r.rdb }

// Journal returns the journal, or nil when disabled.
func (r *Runtime) Journal() *journal.Journal { return r.journal }

// Recorder returns the journal as a Recorder, or a no-op when disabled.
func (r *Runtime) Recorder() journal.Recorder {
	if r.journal == nil {
		return journal.Nop{}
	}
	return r.journal
}

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
