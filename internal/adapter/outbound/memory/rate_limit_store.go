// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Sentinel-Gate/admission/internal/domain/ratelimit"
)

// DefaultShardCount is the number of lock stripes used by NewRateLimitStore.
const DefaultShardCount = 64

// rateLimitShard is one lock stripe of the store.
type rateLimitShard struct {
	mu      sync.Mutex
	entries map[string]*ratelimit.Entry
}

// MemoryRateLimitStore implements ratelimit.Store with a lock-striped map.
// Keys are assigned to shards by xxhash, so two requests for the same key
// always serialize on the same mutex while unrelated keys rarely contend.
// State is per process and lost on restart.
type MemoryRateLimitStore struct {
	shards []*rateLimitShard
	mask   uint64
}

// NewRateLimitStore creates a store with DefaultShardCount shards.
func NewRateLimitStore() *MemoryRateLimitStore {
	return NewRateLimitStoreWithShards(DefaultShardCount)
}

// NewRateLimitStoreWithShards creates a store with at least n shards.
// n is rounded up to the next power of two; values below 1 become 1.
func NewRateLimitStoreWithShards(n int) *MemoryRateLimitStore {
	count := 1
	for count < n {
		count <<= 1
	}

	shards := make([]*rateLimitShard, count)
	for i := range shards {
		shards[i] = &rateLimitShard{entries: make(map[string]*ratelimit.Entry)}
	}
	return &MemoryRateLimitStore{
		shards: shards,
		mask:   uint64(count - 1),
	}
}

func (s *MemoryRateLimitStore) shardFor(key string) *rateLimitShard {
	return s.shards[xxhash.Sum64String(key)&s.mask]
}

// Hit records one request for key. Lookup, rollover and increment happen in
// one critical section, so concurrent callers can neither both reset an
// expired window nor both read a stale count.
func (s *MemoryRateLimitStore) Hit(key string, window time.Duration, now time.Time) ratelimit.Entry {
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.entries[key]
	if !ok || entry.ExpiredAt(now) {
		entry = &ratelimit.Entry{Count: 1, ResetAt: now.Add(window)}
		shard.entries[key] = entry
		return *entry
	}

	entry.Count++
	return *entry
}

// Sweep removes entries whose window ended before now.
// Shards are locked one at a time so requests on other shards keep flowing.
func (s *MemoryRateLimitStore) Sweep(now time.Time) int {
	removed := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		for key, entry := range shard.entries {
			if entry.ResetAt.Before(now) {
				delete(shard.entries, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// Peek returns a copy of the entry for key, if any.
func (s *MemoryRateLimitStore) Peek(key string) (ratelimit.Entry, bool) {
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.entries[key]
	if !ok {
		return ratelimit.Entry{}, false
	}
	return *entry, true
}

// Len returns the current number of tracked keys.
// Useful for testing and monitoring memory usage.
func (s *MemoryRateLimitStore) Len() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		total += len(shard.entries)
		shard.mu.Unlock()
	}
	return total
}

// ShardCount returns the number of lock stripes.
func (s *MemoryRateLimitStore) ShardCount() int {
	return len(s.shards)
}

// Compile-time interface verification.
var _ ratelimit.Store = (*MemoryRateLimitStore)(nil)
