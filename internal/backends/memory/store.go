package memory

import (
	"clusterdir/internal/ports"
	"clusterdir/internal/types"
	"context"
	"slices"
	"strings"
	"sync"
)

// Store is an in-process transactional KV. It backs tests and the "memory" backend.
// All methods are safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[string]types.Record

	stats Stats
}

// Stats counts mutations that reached the store.
type Stats struct {
	Writes       int
	Deletes      int
	Transactions int
}

func NewStore() *Store {
	return &Store{data: make(map[string]types.Record)}
}

func (s *Store) Read(_ context.Context, path string) (types.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[clean(path)]
	if !ok {
		return nil, types.NotFound("%s", path)
	}
	return rec.Clone(), nil
}

func (s *Store) Write(_ context.Context, path string, rec types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write(path, rec)
	return nil
}

func (s *Store) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delete(path)
	return nil
}

func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dir := clean(prefix) + "/"
	seen := make(map[string]struct{})
	for k := range s.data {
		rest, ok := strings.CutPrefix(k, dir)
		if !ok || rest == "" {
			continue
		}
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i+1]
		}
		seen[rest] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	slices.Sort(out)
	return out, nil
}

// Transact applies every op under one lock.
func (s *Store) Transact(_ context.Context, ops ...ports.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Transactions++
	for _, op := range ops {
		switch op.Kind {
		case ports.OpWrite:
			s.write(op.Path, op.Record)
		case ports.OpDelete:
			s.delete(op.Path)
		}
	}
	return nil
}

// Stats returns a copy of the mutation counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *Store) write(path string, rec types.Record) {
	s.stats.Writes++
	if rec == nil {
		rec = types.Record{}
	}
	s.data[clean(path)] = rec.Clone()
}

func (s *Store) delete(path string) {
	s.stats.Deletes++
	delete(s.data, clean(path))
}

func clean(path string) string {
	return strings.Trim(path, "/")
}
