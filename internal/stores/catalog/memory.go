package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"project-recommender/internal/models"
)

// MemoryStore keeps the catalog in process. It backs local development and
// tests.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]models.Candidate
	limit    int
	now      func() time.Time
}

func NewMemoryStore(config *Config, projects ...models.Candidate) *MemoryStore {
	if config == nil {
		config = LoadConfig()
	}
	s := &MemoryStore{
		projects: make(map[string]models.Candidate, len(projects)),
		limit:    config.MaxCandidates,
		now:      time.Now,
	}
	s.Put(projects...)
	return s
}

// LoadMemoryStore seeds a store from a JSON array of projects.
func LoadMemoryStore(config *Config, path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed: %w", err)
	}
	var projects []models.Candidate
	if err := json.Unmarshal(data, &projects); err != nil {
		return nil, fmt.Errorf("parse catalog seed %s: %w", path, err)
	}
	return NewMemoryStore(config, projects...), nil
}

// Put adds or replaces projects and reports the change for cache
// invalidation.
func (s *MemoryStore) Put(projects ...models.Candidate) models.CatalogChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	var change models.CatalogChange
	for _, p := range projects {
		if p.ID == "" {
			continue
		}
		if old, ok := s.projects[p.ID]; ok {
			change.Categories = append(change.Categories, old.Category)
			change.Skills = append(change.Skills, old.Skills...)
		}
		s.projects[p.ID] = p
		change.Categories = append(change.Categories, p.Category)
		change.Skills = append(change.Skills, p.Skills...)
	}
	return change
}

func (s *MemoryStore) Delete(id string) (models.CatalogChange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return models.CatalogChange{}, false
	}
	delete(s.projects, id)
	return models.CatalogChange{Categories: []string{p.Category}, Skills: p.Skills}, true
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.projects)
}

// GetCandidates returns matching projects newest first.
func (s *MemoryStore) GetCandidates(ctx context.Context, filters *models.Filters) ([]models.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now()
	s.mu.RLock()
	out := make([]models.Candidate, 0, len(s.projects))
	for _, p := range s.projects {
		if Matches(&p, filters, now) {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if s.limit > 0 && len(out) > s.limit {
		out = out[:s.limit]
	}
	return out, nil
}

func (s *MemoryStore) GetCandidatesByIDs(ctx context.Context, ids []string) ([]models.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := make([]models.Candidate, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.projects[id]; ok {
			found = append(found, p)
		}
	}
	return inOrder(ids, found), nil
}
