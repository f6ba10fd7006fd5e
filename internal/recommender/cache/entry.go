package cache

import (
	"time"

	"project-recommender/internal/models"
)

// Value is what a computation produces for one request.
type Value struct {
	Items          []models.RankedItem `json:"items"`
	Algorithm      models.Algorithm    `json:"algorithm"`
	Degraded       bool                `json:"degraded"`
	DegradedReason string              `json:"degradedReason,omitempty"`
	ComputedAt     time.Time           `json:"computedAt"`
}

// Entry is a cached result. Entries are replaced wholesale, never mutated;
// callers receive copies.
type Entry struct {
	Key     string                       `json:"key"`
	Request models.RecommendationRequest `json:"request"`
	Value
	TTL       time.Duration `json:"ttl"`
	ExpiresAt time.Time     `json:"expiresAt"`
	HitCount  int64         `json:"hitCount"`
}

func (e *Entry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// clone copies the item slice so callers may reorder or truncate it freely.
func (e *Entry) clone() Entry {
	out := *e
	out.Items = make([]models.RankedItem, len(e.Items))
	copy(out.Items, e.Items)
	return out
}

func (e *Entry) contains(candidateID string) bool {
	for i := range e.Items {
		if e.Items[i].CandidateID == candidateID {
			return true
		}
	}
	return false
}

// Key is the canonical cache key of a normalized request.
func Key(req models.RecommendationRequest) string {
	return req.CanonicalKey()
}
