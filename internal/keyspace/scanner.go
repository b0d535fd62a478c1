package keyspace

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultPattern matches the id counter key of every Bull queue.
const DefaultPattern = "*:*" + idSuffix

// Options configures a Scanner.
type Options struct {
	// Pattern overrides DefaultPattern.
	Pattern string
	// Count is the SCAN COUNT hint (default 1000).
	Count int64
	// Filter is an optional CEL expression, see NewFilter.
	Filter string
}

// Scanner enumerates queue identities from Redis.
type Scanner struct {
	rdb     redis.UniversalClient
	pattern string
	count   int64
	filter  Filter
}

// NewScanner builds a Scanner. It fails only if the filter does not compile.
func NewScanner(rdb redis.UniversalClient, opts Options) (*Scanner, error) {
	if opts.Pattern == "" {
		opts.Pattern = DefaultPattern
	}
	if opts.Count <= 0 {
		opts.Count = 1000
	}
	f, err := NewFilter(opts.Filter)
	if err != nil {
		return nil, err
	}
	return &Scanner{rdb: rdb, pattern: opts.Pattern, count: opts.Count, filter: f}, nil
}

// Scan returns the de-duplicated identities currently present, sorted by key.
// On a cluster client every master is scanned.
func (s *Scanner) Scan(ctx context.Context) ([]Identity, error) {
	seen := make(map[string]Identity)
	var mu sync.Mutex
	collect := func(ctx context.Context, c redis.Cmdable) error {
		// The id counter is a string; job hashes whose id ends in ":id" are not.
		iter := c.ScanType(ctx, 0, s.pattern, s.count, "string").Iterator()
		for iter.Next(ctx) {
			id, ok := ParseIDKey(iter.Val())
			if !ok || !s.filter.Match(id) {
				continue
			}
			mu.Lock()
			seen[id.Key()] = id
			mu.Unlock()
		}
		return iter.Err()
	}

	var err error
	if cc, ok := s.rdb.(*redis.ClusterClient); ok {
		err = cc.ForEachMaster(ctx, func(ctx context.Context, c *redis.Client) error {
			return collect(ctx, c)
		})
	} else {
		err = collect(ctx, s.rdb)
	}
	if err != nil {
		return nil, fmt.Errorf("scan keyspace %q: %w", s.pattern, err)
	}

	ids := make([]Identity, 0, len(seen))
	for _, id := range seen {
		ids = append(ids, id)
	}
	Sort(ids)
	return ids, nil
}
