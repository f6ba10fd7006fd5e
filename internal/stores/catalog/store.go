// Package catalog provides the project catalog backends the ranking engine
// reads candidates from.
package catalog

import (
	"context"
	"strings"
	"time"

	"project-recommender/internal/models"
)

type Store interface {
	// GetCandidates returns the open projects matching filters. A nil filter
	// set matches everything, bounded by the backend's candidate limit.
	GetCandidates(ctx context.Context, filters *models.Filters) ([]models.Candidate, error)
	// GetCandidatesByIDs returns the known projects among ids in the order
	// given. Unknown ids are skipped.
	GetCandidatesByIDs(ctx context.Context, ids []string) ([]models.Candidate, error)
}

type Config struct {
	// MaxCandidates bounds one GetCandidates call.
	MaxCandidates int
	Table         string
	Index         string
}

func LoadConfig() *Config {
	return &Config{
		MaxCandidates: 500,
		Table:         "projects",
		Index:         "projects",
	}
}

// Matches reports whether c satisfies every filter that is set.
func Matches(c *models.Candidate, f *models.Filters, now time.Time) bool {
	if f == nil {
		return true
	}
	if len(f.Categories) > 0 && !containsFold(f.Categories, c.Category) {
		return false
	}
	if len(f.Skills) > 0 && !overlapsFold(f.Skills, c.Skills) {
		return false
	}
	if f.Location != "" && !strings.EqualFold(strings.TrimSpace(f.Location), strings.TrimSpace(c.Location)) {
		return false
	}
	if f.WorkType != "" && !strings.EqualFold(strings.TrimSpace(f.WorkType), strings.TrimSpace(c.WorkType)) {
		return false
	}
	// projects without a budget pass budget filters
	if !c.Budget.IsZero() {
		if f.BudgetMin > 0 && c.Budget.Max < f.BudgetMin {
			return false
		}
		if f.BudgetMax > 0 && c.Budget.Min > f.BudgetMax {
			return false
		}
	}
	if f.PostedWithinDays > 0 && c.CreatedAt.Before(postedSince(f, now)) {
		return false
	}
	return true
}

func postedSince(f *models.Filters, now time.Time) time.Time {
	return now.Add(-time.Duration(f.PostedWithinDays) * 24 * time.Hour)
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func containsFold(values []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, candidate := range values {
		if strings.EqualFold(strings.TrimSpace(candidate), v) {
			return true
		}
	}
	return false
}

func overlapsFold(a, b []string) bool {
	for _, v := range b {
		if containsFold(a, v) {
			return true
		}
	}
	return false
}

// inOrder arranges found by ids, dropping ids that were not found.
func inOrder(ids []string, found []models.Candidate) []models.Candidate {
	byID := make(map[string]models.Candidate, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	out := make([]models.Candidate, 0, len(found))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out
}
