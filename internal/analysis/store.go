package analysis

import (
	"sync"
	"time"

	"github.com/costwise/costwise/internal/dataset"
	"github.com/costwise/costwise/internal/fifo"
)

// Result is one fully processed workbook: the parsed dataset, the
// engine-decorated outgoing records, and the engine itself for audit
// queries. The engine is read-only once stored.
type Result struct {
	ID        string
	CreatedAt time.Time
	Filename  string
	Dataset   *dataset.Dataset
	Items     []dataset.SaleItem
	Shrinkage []dataset.Shrinkage
	Engine    *fifo.Engine
}

// Store keeps processed analyses in memory with bounded retention. When
// the limit is exceeded the oldest analysis is evicted.
type Store struct {
	mu      sync.RWMutex
	results map[string]*Result
	order   []string
	limit   int
}

// NewStore builds a store retaining at most limit analyses. Non-positive
// limits fall back to 50.
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 50
	}
	return &Store{
		results: make(map[string]*Result),
		limit:   limit,
	}
}

// Put stores a result, evicting the oldest entry when over the limit.
func (s *Store) Put(res *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[res.ID]; !exists {
		s.order = append(s.order, res.ID)
	}
	s.results[res.ID] = res
	for len(s.order) > s.limit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.results, oldest)
	}
}

// Get returns the result for id.
func (s *Store) Get(id string) (*Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.results[id]
	return res, ok
}

// Delete removes one result. Reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[id]; !ok {
		return false
	}
	delete(s.results, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Len reports how many analyses are retained.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// IDs returns retained analysis ids, oldest first.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
