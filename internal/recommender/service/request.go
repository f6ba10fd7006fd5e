package service

import (
	"fmt"
	"math"
	"strings"

	"project-recommender/internal/common/errors"
	"project-recommender/internal/models"
)

// Normalize validates req and fills defaults. The result is what gets keyed
// and computed, so equivalent requests share one cache entry.
func (s *Service) Normalize(req models.RecommendationRequest) (models.RecommendationRequest, error) {
	req.SubjectID = strings.TrimSpace(req.SubjectID)
	req.SubjectType = models.SubjectType(strings.ToLower(strings.TrimSpace(string(req.SubjectType))))
	req.Algorithm = models.Algorithm(strings.ToLower(strings.TrimSpace(string(req.Algorithm))))

	switch req.SubjectType {
	case models.SubjectUser, models.SubjectProject:
	case "":
		return req, errors.NewInvalidRequestError("subjectType is required")
	default:
		return req, errors.NewInvalidRequestError(fmt.Sprintf("unknown subjectType %q", req.SubjectType))
	}
	if req.SubjectID == "" {
		return req, errors.NewInvalidRequestError("subjectId is required")
	}

	if req.Algorithm == "" {
		req.Algorithm = models.AlgorithmHybrid
	}
	if !req.Algorithm.Valid() {
		return req, errors.NewInvalidRequestError(fmt.Sprintf("unknown algorithm %q", req.Algorithm))
	}
	// a project has no profile to match against
	if req.SubjectType == models.SubjectProject && req.Algorithm == models.AlgorithmUserBased {
		req.Algorithm = models.AlgorithmProjectSimilarity
	}

	switch {
	case req.Limit == 0:
		req.Limit = s.config.DefaultLimit
	case req.Limit < 0:
		return req, errors.NewInvalidRequestError("limit must be positive")
	case req.Limit > s.config.MaxLimit:
		return req, errors.NewInvalidRequestError(fmt.Sprintf("limit must be at most %d", s.config.MaxLimit))
	}

	// the computed request must match its key: trimmed, deduplicated ids
	req.ExcludeIDs = models.NormalizeIDs(req.ExcludeIDs)

	if f := req.Filters.Normalize(); f != nil {
		req.Filters = f
		if invalidAmount(f.BudgetMin) || invalidAmount(f.BudgetMax) {
			return req, errors.NewInvalidRequestError("budget filters must be non-negative numbers")
		}
		if f.BudgetMax > 0 && f.BudgetMin > f.BudgetMax {
			return req, errors.NewInvalidRequestError("budgetMin must not exceed budgetMax")
		}
		if f.PostedWithinDays < 0 {
			return req, errors.NewInvalidRequestError("postedWithinDays must not be negative")
		}
		if f.CanonicalString() == "" {
			req.Filters = nil
		}
	}
	return req, nil
}

func invalidAmount(v float64) bool {
	return v < 0 || math.IsNaN(v) || math.IsInf(v, 0)
}
