package engine

import (
	"sort"
	"sync"

	"github.com/testpulse/testpulse/scoring"
)

// resultStore is a thread-safe in-memory score store, keyed by fingerprint.
// Results are replaced wholesale on every recomputation.
type resultStore struct {
	mu   sync.RWMutex
	data map[string]*scoring.Result
}

func newResultStore() *resultStore {
	return &resultStore{data: make(map[string]*scoring.Result)}
}

// Put stores or replaces the result for res.Fingerprint.
// Callers must not modify res after calling Put.
func (s *resultStore) Put(res *scoring.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[res.Fingerprint] = res
}

// Get returns the latest result for the given fingerprint.
func (s *resultStore) Get(fingerprint string) (*scoring.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.data[fingerprint]
	return res, ok
}

// List returns all results ordered by fingerprint for stable API output.
func (s *resultStore) List() []*scoring.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*scoring.Result, 0, len(s.data))
	for _, res := range s.data {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out
}

// Count returns the number of tests with a stored result.
func (s *resultStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
