// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package cursor

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory [Store] used in tests. It mirrors the durable
// backends' behavior but loses everything on process exit.
type MemStore struct {
	mu      sync.RWMutex
	sources map[memKey]State
	seen    map[memKey]map[string]time.Time
	runs    map[string]time.Time
}

type memKey struct{ group, url string }

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		sources: make(map[memKey]State),
		seen:    make(map[memKey]map[string]time.Time),
		runs:    make(map[string]time.Time),
	}
}

// Source returns the persisted state for a source, or nil if absent.
func (s *MemStore) Source(_ context.Context, group, url string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sources[memKey{group, url}]
	if !ok {
		return nil, nil
	}
	cp := st
	return &cp, nil
}

// SaveSource upserts the state for a source.
func (s *MemStore) SaveSource(_ context.Context, group, url string, st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[memKey{group, url}] = *st
	return nil
}

// Seen returns delivered entry identifiers for a source.
func (s *MemStore) Seen(_ context.Context, group, url string) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]time.Time, len(s.seen[memKey{group, url}]))
	for id, at := range s.seen[memKey{group, url}] {
		out[id] = at
	}
	return out, nil
}

// MarkSeen records delivered entry identifiers.
func (s *MemStore) MarkSeen(_ context.Context, group, url string, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memKey{group, url}
	if s.seen[key] == nil {
		s.seen[key] = make(map[string]time.Time)
	}
	for _, id := range ids {
		if _, ok := s.seen[key][id]; !ok {
			s.seen[key][id] = at
		}
	}
	return nil
}

// Prune deletes seen-set rows of a group older than cutoff.
func (s *MemStore) Prune(_ context.Context, group string, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pruned int64
	for key, ids := range s.seen {
		if key.group != group {
			continue
		}
		for id, at := range ids {
			if at.Before(cutoff) {
				delete(ids, id)
				pruned++
			}
		}
	}
	return pruned, nil
}

// LastRun returns the last completed run time of a group.
func (s *MemStore) LastRun(_ context.Context, group string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs[group], nil
}

// SetLastRun records the last completed run time of a group.
func (s *MemStore) SetLastRun(_ context.Context, group string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[group] = at
	return nil
}

// Close is a no-op for MemStore.
func (s *MemStore) Close() error { return nil }

var _ Store = (*MemStore)(nil)
