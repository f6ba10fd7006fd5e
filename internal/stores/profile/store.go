// Package profile provides the user profile backends the ranking engine reads
// from. Profiles are read-only here.
package profile

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"project-recommender/internal/common/errors"
	"project-recommender/internal/models"
)

type Store interface {
	// GetProfile returns ResourceNotFound for unknown users and
	// UpstreamUnavailable when the backend cannot answer.
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

type Config struct {
	CacheTTL    time.Duration
	CachePrefix string
	// Path of the remote API profile resource; %s is the user id.
	RemotePath string
}

func LoadConfig() *Config {
	return &Config{
		CacheTTL:    5 * time.Minute,
		CachePrefix: "user:profile:",
		RemotePath:  "/api/v1/users/%s/profile",
	}
}

type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]models.Profile
}

func NewMemoryStore(profiles ...models.Profile) *MemoryStore {
	s := &MemoryStore{profiles: make(map[string]models.Profile, len(profiles))}
	for _, p := range profiles {
		s.Put(p)
	}
	return s
}

// LoadMemoryStore seeds a store from a JSON array of profiles.
func LoadMemoryStore(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile seed: %w", err)
	}
	var profiles []models.Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("parse profile seed %s: %w", path, err)
	}
	return NewMemoryStore(profiles...), nil
}

func (s *MemoryStore) Put(p models.Profile) {
	if p.ID == "" {
		return
	}
	s.mu.Lock()
	s.profiles[p.ID] = p
	s.mu.Unlock()
}

func (s *MemoryStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	p, ok := s.profiles[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NewResourceNotFoundError("profile", userID)
	}
	return &p, nil
}
