// Package memory provides an in-process offsets.Store. It backs local demo
// runs and tests; nothing survives a restart.
package memory

import (
	"sync"

	"tributary/offsets"
	"tributary/source"
)

type Store struct {
	mu        sync.Mutex
	committed map[source.Partition]int64
	durable   map[source.Partition]int64
}

func New() *Store {
	return &Store{
		committed: make(map[source.Partition]int64),
		durable:   make(map[source.Partition]int64),
	}
}

func (s *Store) Update(p source.Partition, offset int64, flushNow bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed[p] = offset
	if flushNow {
		s.durable[p] = offset
	}
	return nil
}

func (s *Store) Persist(p source.Partition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if off, ok := s.committed[p]; ok {
		s.durable[p] = off
	}
	return nil
}

func (s *Store) Fetch(p source.Partition) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if off, ok := s.durable[p]; ok {
		return off, nil
	}
	return -1, nil
}

func (s *Store) Close() error { return nil }

func init() { offsets.Register("memory", func() offsets.Store { return New() }) }
