package core

import (
	"VaultLedger/internal/observability"
	"container/list"
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// IdempotencyChecker implements two-tier deduplication of request keys
type IdempotencyChecker struct {
	// Tier 1: In-memory LRU
	lru *IdempotencyLRU

	// Tier 2: the event log (injected via interface)
	dbChecker DBIdempotencyChecker

	metrics *observability.Metrics
	log     zerolog.Logger
}

// DBIdempotencyChecker is the interface for the durable dedup lookup
type DBIdempotencyChecker interface {
	HasIdempotencyKey(ctx context.Context, key string) (bool, error)
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker, metrics *observability.Metrics, log zerolog.Logger) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:       NewIdempotencyLRU(capacity),
		dbChecker: dbChecker,
		metrics:   metrics,
		log:       log,
	}
}

// IsDuplicate checks if a request key has already been committed (two-tier lookup)
func (ic *IdempotencyChecker) IsDuplicate(ctx context.Context, op, key string) bool {
	// Tier 1: LRU check (hot path)
	if ic.lru.Contains(key) {
		ic.recordDuplicate(op, "lru")
		return true
	}

	// Tier 2: store check (cold path)
	if ic.dbChecker != nil {
		isDup, err := ic.dbChecker.HasIdempotencyKey(ctx, key)
		if err != nil {
			// Assume not duplicate; the unique key on the event log still
			// rejects a real replay at commit.
			ic.log.Warn().Err(err).Str("key", key).Msg("idempotency tier-2 lookup failed")
			if ic.metrics != nil {
				ic.metrics.DedupTier2Errors.Inc()
			}
			return false
		}

		if isDup {
			ic.recordDuplicate(op, "store")
			ic.MarkProcessed(key)
			return true
		}
	}

	return false
}

// MarkProcessed adds key to LRU after a successful commit
func (ic *IdempotencyChecker) MarkProcessed(key string) {
	ic.recordLRU(ic.lru.Add(key))
}

// Warm loads recently committed keys so restarts avoid cold lookups.
func (ic *IdempotencyChecker) Warm(keys []string) {
	ic.recordLRU(ic.lru.WarmFromKeys(keys))
}

func (ic *IdempotencyChecker) recordLRU(evicted int) {
	if ic.metrics == nil {
		return
	}
	ic.metrics.DedupLRUSize.Set(float64(ic.lru.Size()))
	if evicted > 0 {
		ic.metrics.DedupLRUEvictions.Add(float64(evicted))
	}
}

func (ic *IdempotencyChecker) recordDuplicate(op, tier string) {
	if ic.metrics != nil {
		ic.metrics.IdempotencyDuplicates.WithLabelValues(op, tier).Inc()
	}
}

// --- LRU Implementation ---

// IdempotencyLRU is a mutex-guarded LRU cache for idempotency keys.
type IdempotencyLRU struct {
	mu       sync.Mutex
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List
}

func NewIdempotencyLRU(capacity int) *IdempotencyLRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &IdempotencyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Contains checks if key exists (promotes to front)
func (lru *IdempotencyLRU) Contains(key string) bool {
	lru.mu.Lock()
	defer lru.mu.Unlock()
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
		return true
	}
	return false
}

// Add inserts a key (or promotes if exists) and returns how many keys
// were evicted to make room.
func (lru *IdempotencyLRU) Add(key string) int {
	lru.mu.Lock()
	defer lru.mu.Unlock()
	return lru.add(key)
}

func (lru *IdempotencyLRU) add(key string) int {
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return 0
	}

	elem := lru.lruList.PushFront(key)
	lru.cache[key] = elem

	evicted := 0
	for lru.lruList.Len() > lru.capacity {
		oldest := lru.lruList.Back()
		lru.lruList.Remove(oldest)
		delete(lru.cache, oldest.Value.(string))
		evicted++
	}
	return evicted
}

// WarmFromKeys loads a batch of keys into the LRU, oldest first, and
// returns the number of evictions.
func (lru *IdempotencyLRU) WarmFromKeys(keys []string) int {
	lru.mu.Lock()
	defer lru.mu.Unlock()
	evicted := 0
	for _, key := range keys {
		evicted += lru.add(key)
	}
	return evicted
}

// Size returns current number of entries
func (lru *IdempotencyLRU) Size() int {
	lru.mu.Lock()
	defer lru.mu.Unlock()
	return lru.lruList.Len()
}
