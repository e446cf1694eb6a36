package history

import (
	"hash/fnv"
	"sync"

	"github.com/testpulse/testpulse/record"
)

// numShards spreads identities across independent locks. Power of two so the
// modulo compiles to a mask.
const numShards = 32

// Store holds one bounded run window per test fingerprint.
// All methods are safe for concurrent use.
type Store struct {
	capacity int
	shards   [numShards]shard
}

type shard struct {
	mu      sync.RWMutex
	windows map[string]*window
}

// New creates a Store whose windows hold up to capacity runs each.
func New(capacity int) *Store {
	s := &Store{capacity: capacity}
	for i := range s.shards {
		s.shards[i].windows = make(map[string]*window)
	}
	return s
}

// Append records one run summary for the given fingerprint, creating the
// window lazily. It returns the identity's lifetime run count, which callers
// use to decide when a score recomputation is due.
func (s *Store) Append(fingerprint string, sum record.RunSummary) uint64 {
	sh := s.shardFor(fingerprint)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.windows[fingerprint]
	if !ok {
		w = newWindow(s.capacity)
		sh.windows[fingerprint] = w
	}
	w.append(sum)
	return w.total
}

// Snapshot returns a copy of the fingerprint's current window in
// oldest-to-newest order, and whether the identity has been seen at all.
func (s *Store) Snapshot(fingerprint string) ([]record.RunSummary, bool) {
	sh := s.shardFor(fingerprint)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	w, ok := sh.windows[fingerprint]
	if !ok {
		return nil, false
	}
	return w.snapshot(), true
}

// Len returns the number of runs currently held for the fingerprint.
func (s *Store) Len(fingerprint string) int {
	sh := s.shardFor(fingerprint)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	if w, ok := sh.windows[fingerprint]; ok {
		return w.size
	}
	return 0
}

// Count returns the number of distinct identities with at least one run.
func (s *Store) Count() int {
	var n int
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.windows)
		sh.mu.RUnlock()
	}
	return n
}

func (s *Store) shardFor(fingerprint string) *shard {
	h := fnv.New32a()
	h.Write([]byte(fingerprint))
	return &s.shards[h.Sum32()%numShards]
}
