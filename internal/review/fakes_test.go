package review

import (
	"context"
	"sync"
	"time"

	"github.com/juliomeza/memory-card/internal/spaced_repetition"
	"github.com/juliomeza/memory-card/pkg/models"
)

type memRepo struct {
	concepts []models.Concept
	levels   []int
}

func (r *memRepo) ListByGroup(_ context.Context, group string) ([]models.Concept, error) {
	var out []models.Concept
	for _, c := range r.concepts {
		if c.Category == group {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memRepo) ListByLevel(_ context.Context, level int) ([]models.Concept, error) {
	r.levels = append(r.levels, level)
	lo, hi := spaced_repetition.LevelRange(level)
	var out []models.Concept
	for _, c := range r.concepts {
		if c.Level != nil && *c.Level >= lo && *c.Level < hi {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memRepo) ListAll(_ context.Context) ([]models.Concept, error) {
	return append([]models.Concept(nil), r.concepts...), nil
}

func (r *memRepo) Categories(_ context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, c := range r.concepts {
		if !seen[c.Category] {
			seen[c.Category] = true
			out = append(out, c.Category)
		}
	}
	return out, nil
}

type memStore struct {
	mu       sync.Mutex
	records  map[int64]*models.ProgressRecord
	attempts []string
	calls    int

	failAttempt error
	failGroup   error
	interval    int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[int64]*models.ProgressRecord)}
}

func (s *memStore) Get(_ context.Context, userID int64) (*models.ProgressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	rec, ok := s.records[userID]
	if !ok {
		return nil, nil
	}
	out := models.NewProgressRecord(userID)
	for k, v := range rec.Concepts {
		out.Concepts[k] = v
	}
	for k, v := range rec.Groups {
		out.Groups[k] = v
	}
	return out, nil
}

func (s *memStore) record(userID int64) *models.ProgressRecord {
	rec, ok := s.records[userID]
	if !ok {
		rec = models.NewProgressRecord(userID)
		s.records[userID] = rec
	}
	return rec
}

func (s *memStore) RecordAttempt(_ context.Context, userID int64, conceptID string, correct bool, now time.Time) (*models.ConceptProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAttempt != nil {
		return nil, s.failAttempt
	}

	rec := s.record(userID)
	p, ok := rec.Concepts[conceptID]
	if !ok {
		p = models.ConceptProgress{ConceptID: conceptID, Interval: models.DefaultInterval}
	}
	p = spaced_repetition.Apply(p, correct, now)
	if s.interval > 0 {
		p.Interval = s.interval
	}
	rec.Concepts[conceptID] = p
	s.attempts = append(s.attempts, conceptID)
	return &p, nil
}

func (s *memStore) SetGroupProgress(_ context.Context, userID int64, groupKey string, completed, total int) (*models.GroupProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failGroup != nil {
		return nil, s.failGroup
	}

	rec := s.record(userID)
	g := rec.Groups[groupKey]
	g.GroupKey = groupKey
	g.Completed = max(g.Completed, completed)
	g.Total = max(g.Total, total)
	g.Version++
	rec.Groups[groupKey] = g
	return &g, nil
}

func (s *memStore) group(userID int64, key string) models.GroupProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		return models.GroupProgress{}
	}
	return rec.Groups[key]
}

func (s *memStore) concept(userID int64, id string) (models.ConceptProgress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		return models.ConceptProgress{}, false
	}
	p, ok := rec.Concepts[id]
	return p, ok
}

func (s *memStore) attemptLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.attempts...)
}

func (s *memStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
