package ratelimit

import (
	"context"
	"sync"
	"time"
)

// InMemoryEventStore is a thread-safe in-memory implementation of
// AtomicEventStore.
//
// It keeps one timestamp list per event key and honors the per-event TTL the
// engine passes in, so counts match what a shared external store would
// report. Memory management mirrors the external-store behavior:
//   - Expired events vanish from counts immediately and are pruned lazily
//   - A maximum key limit with LRU eviction prevents unbounded growth
//   - Cleanup drops fully expired keys
//
// The store is process-local: it gives exact enforcement inside one process
// (check and record run under a single lock) but cannot coordinate across
// processes. Use RedisEventStore when several processes share limits.
type InMemoryEventStore struct {
	mu      sync.RWMutex
	events  map[string]*eventList
	maxKeys int
	clock   Clock

	// LRU tracking
	lru *lruList
}

// eventList holds the recorded events of a single key.
type eventList struct {
	timestamps []time.Time
	expiresAt  []time.Time
}

// lruList maintains a doubly-linked list of keys ordered by last access time.
type lruList struct {
	head *lruNode
	tail *lruNode
	keys map[string]*lruNode
}

// lruNode is one entry of the LRU list.
type lruNode struct {
	key  string
	prev *lruNode
	next *lruNode
}

// InMemoryStoreConfig holds configuration for InMemoryEventStore.
type InMemoryStoreConfig struct {
	// MaxKeys is the maximum number of keys to hold in memory. When the
	// limit is reached the least recently used keys are evicted.
	// Default: 10000
	MaxKeys int

	// Clock provides time operations for expiry checks and testing.
	// Default: SystemClock
	Clock Clock
}

// NewInMemoryEventStore creates an in-memory event store.
func NewInMemoryEventStore(config InMemoryStoreConfig) *InMemoryEventStore {
	if config.MaxKeys <= 0 {
		config.MaxKeys = 10000
	}
	if config.Clock == nil {
		config.Clock = &SystemClock{}
	}

	return &InMemoryEventStore{
		events:  make(map[string]*eventList),
		maxKeys: config.MaxKeys,
		clock:   config.Clock,
		lru:     newLRUList(),
	}
}

// newLRUList creates an empty LRU list.
func newLRUList() *lruList {
	return &lruList{
		keys: make(map[string]*lruNode),
	}
}

// RecordEvent stores one event for the given key with the given TTL.
//
// If the store is at capacity and the key is new, the least recently used
// keys are evicted first. This method is thread-safe.
func (s *InMemoryEventStore) RecordEvent(ctx context.Context, key string, ts time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record(key, ts, ttl)
	return nil
}

// record appends one event. Caller must hold the write lock.
func (s *InMemoryEventStore) record(key string, ts time.Time, ttl time.Duration) {
	list, exists := s.events[key]
	if !exists {
		if len(s.events) >= s.maxKeys {
			s.evictLRU()
		}
		list = &eventList{
			timestamps: make([]time.Time, 0, 16),
			expiresAt:  make([]time.Time, 0, 16),
		}
		s.events[key] = list
	}

	list.timestamps = append(list.timestamps, ts)
	list.expiresAt = append(list.expiresAt, ts.Add(ttl))

	s.lru.touch(key)
}

// CountEvents returns the number of live events with a timestamp strictly
// after since, plus the earliest such timestamp.
//
// Expired events never count; they are pruned from the head of the list as a
// side effect. This method is thread-safe.
func (s *InMemoryEventStore) CountEvents(ctx context.Context, key string, since time.Time) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count, oldest := s.countLocked(key, since)
	return count, oldest, nil
}

// countLocked counts qualifying events for key. Caller must hold the write
// lock (pruning mutates the list).
func (s *InMemoryEventStore) countLocked(key string, since time.Time) (int, time.Time) {
	list, exists := s.events[key]
	if !exists {
		return 0, time.Time{}
	}

	s.pruneExpired(key, list)

	count := 0
	var oldest time.Time
	for _, ts := range list.timestamps {
		if !ts.After(since) {
			continue
		}
		if count == 0 || ts.Before(oldest) {
			oldest = ts
		}
		count++
	}

	if count == 0 {
		return 0, time.Time{}
	}
	return count, oldest
}

// pruneExpired drops events whose TTL has passed. Caller must hold the write
// lock.
func (s *InMemoryEventStore) pruneExpired(key string, list *eventList) {
	now := s.clock.Now()

	live := 0
	for i := range list.timestamps {
		if list.expiresAt[i].After(now) {
			list.timestamps[live] = list.timestamps[i]
			list.expiresAt[live] = list.expiresAt[i]
			live++
		}
	}
	list.timestamps = list.timestamps[:live]
	list.expiresAt = list.expiresAt[:live]

	if live == 0 {
		delete(s.events, key)
		s.lru.remove(key)
	}
}

// RecordIfUnderLimit atomically checks every window and records the event
// only when all of them are under their limit.
//
// Check and write happen within one lock acquisition, so concurrent callers
// cannot over-admit through this store. The returned usages report the state
// before the event was recorded.
func (s *InMemoryEventStore) RecordIfUnderLimit(ctx context.Context, key string, ts time.Time, checks []WindowCheck, ttl time.Duration) (bool, []WindowUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	usages := make([]WindowUsage, len(checks))
	allowed := true
	for i, check := range checks {
		count, oldest := s.countLocked(key, ts.Add(-check.Window))
		usages[i] = WindowUsage{Count: count, Oldest: oldest}
		if count >= check.Limit {
			allowed = false
		}
	}

	if allowed {
		s.record(key, ts, ttl)
	}
	return allowed, usages, nil
}

// Cleanup removes fully expired keys from the store.
//
// Call it periodically (e.g. from a scheduled job) to bound memory between
// accesses; counts are already exact without it.
func (s *InMemoryEventStore) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, list := range s.events {
		s.pruneExpired(key, list)
	}
	return nil
}

// KeyCount returns the number of keys currently held.
func (s *InMemoryEventStore) KeyCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.events), nil
}

// evictLRU evicts the least recently used keys when the key cap is reached.
// Evicts 10% at a time to avoid thrashing. Caller must hold the write lock.
func (s *InMemoryEventStore) evictLRU() {
	evictCount := s.maxKeys / 10
	if evictCount < 1 {
		evictCount = 1
	}

	evicted := 0
	for evicted < evictCount && s.lru.tail != nil {
		key := s.lru.tail.key
		delete(s.events, key)
		s.lru.remove(key)
		evicted++
	}
}

// touch moves a key to the most recently used position, inserting it if
// absent. Caller must hold the write lock.
func (l *lruList) touch(key string) {
	if _, exists := l.keys[key]; exists {
		l.remove(key)
	}

	node := &lruNode{
		key:  key,
		next: l.head,
	}

	if l.head != nil {
		l.head.prev = node
	}
	l.head = node

	if l.tail == nil {
		l.tail = node
	}

	l.keys[key] = node
}

// remove removes a key from the LRU list. Caller must hold the write lock.
func (l *lruList) remove(key string) {
	node, exists := l.keys[key]
	if !exists {
		return
	}

	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}

	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}

	delete(l.keys, key)
}
