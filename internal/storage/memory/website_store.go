package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/website-archiver/internal/archive"
)

// WebsiteStore is an in-memory website table for development and tests.
type WebsiteStore struct {
	mu     sync.RWMutex
	sites  map[string]archive.Website
	order  []string
	writes int
}

// NewWebsiteStore seeds the store. Later duplicates of an id replace earlier ones.
func NewWebsiteStore(seed []archive.Website) *WebsiteStore {
	s := &WebsiteStore{sites: make(map[string]archive.Website, len(seed))}
	for _, w := range seed {
		if _, ok := s.sites[w.ID]; !ok {
			s.order = append(s.order, w.ID)
		}
		s.sites[w.ID] = w
	}
	return s
}

// ListWebsites returns websites in insertion order.
func (s *WebsiteStore) ListWebsites(context.Context) ([]archive.Website, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]archive.Website, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sites[id])
	}
	return out, nil
}

// UpdateStatus stores the liveness flag of one website.
func (s *WebsiteStore) UpdateStatus(_ context.Context, id string, isValid bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.sites[id]
	if !ok {
		return fmt.Errorf("website %s not found", id)
	}
	w.IsValid = isValid
	s.sites[id] = w
	s.writes++
	return nil
}

// Writes is the number of successful status updates.
func (s *WebsiteStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// RunStore keeps run summaries in memory.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]archive.RunSummary
}

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]archive.RunSummary)}
}

// RecordRun upserts a summary by run id.
func (s *RunStore) RecordRun(_ context.Context, run archive.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = run
	return nil
}

// ListRuns returns up to limit summaries, newest first.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]archive.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]archive.RunSummary, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
