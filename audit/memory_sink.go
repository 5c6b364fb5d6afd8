package audit

import (
	"context"
	"sync"
)

// MemorySink stores facts in memory (development/testing use).
type MemorySink struct {
	mu    sync.Mutex
	facts []Fact
}

// NewMemorySink creates a new in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record appends a fact.
func (s *MemorySink) Record(_ context.Context, fact Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = append(s.facts, fact)
	return nil
}

// Facts returns a copy of all recorded facts.
func (s *MemorySink) Facts(_ context.Context) ([]Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Fact, len(s.facts))
	copy(out, s.facts)
	return out, nil
}

// Count returns the number of recorded facts.
func (s *MemorySink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.facts)
}
