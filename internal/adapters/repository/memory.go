package repository

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/okian/physiopulse/internal/domain/model"
)

const backendMemory = "memory"

// MemoryStore keeps records in a map. Records are lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]model.Analysis
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]model.Analysis)}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, a model.Analysis) (err error) { //nolint:gocritic // hugeParam: records travel by value
	defer func() { observe(backendMemory, "save", err) }()
	if err := checkSave(&a); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.items[a.ID]; ok {
		a.CreatedAt = old.CreatedAt
	}
	s.items[a.ID] = cloneAnalysis(a)
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (a model.Analysis, err error) {
	defer func() { observe(backendMemory, "get", err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[id]
	if !ok {
		return model.Analysis{}, ErrNotFound
	}
	return cloneAnalysis(a), nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, filter model.Filter, limit, offset int) (out []model.Analysis, err error) {
	defer func() { observe(backendMemory, "list", err) }()
	if err := checkPage(limit, offset); err != nil {
		return nil, err
	}

	s.mu.RLock()
	matched := make([]model.Analysis, 0, len(s.items))
	for _, a := range s.items {
		if filter.Match(a) {
			matched = append(matched, a)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, newestFirst)
	if offset >= len(matched) {
		return []model.Analysis{}, nil
	}
	matched = matched[offset:min(offset+limit, len(matched))]
	out = make([]model.Analysis, len(matched))
	for i, a := range matched {
		out[i] = cloneAnalysis(a)
	}
	return out, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context, filter model.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.items {
		if filter.Match(a) {
			n++
		}
	}
	observe(backendMemory, "count", nil)
	return n, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

func newestFirst(a, b model.Analysis) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(b.ID, a.ID)
}

func cloneAnalysis(a model.Analysis) model.Analysis { //nolint:gocritic // hugeParam: records travel by value
	if a.Summary != nil {
		s := *a.Summary
		a.Summary = &s
	}
	return a
}
