// Package similarity scores how well a candidate project fits a freelancer
// profile or a seed project. Every function is pure.
package similarity

import (
	"math"
	"sort"
	"strings"

	"project-recommender/internal/models"
)

// NeutralScore is used when one side carries no signal for a component.
const NeutralScore = 0.5

// Match is the similarity-relevant part of a score breakdown.
type Match struct {
	SkillMatch      float64
	ExperienceMatch float64
	BudgetMatch     float64
	LocationMatch   float64
	TypeMatch       float64
	CategoryMatch   float64
	MatchingSkills  []string
}

type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// ScoreProfile compares a freelancer profile with a candidate. CategoryMatch is
// 1 when the candidate's category is one the profile follows.
func (e *Engine) ScoreProfile(p *models.Profile, c *models.Candidate) Match {
	skill, matching := SkillJaccard(p.Skills, c.Skills)
	return Match{
		SkillMatch:      skill,
		ExperienceMatch: ExperienceMatch(p.ExperienceLevel, c.RequiredLevel),
		BudgetMatch:     BudgetOverlap(p.PreferredBudget, c.Budget),
		LocationMatch:   PreferenceMatch(p.Location, c.Location),
		TypeMatch:       PreferenceMatch(p.WorkType, c.WorkType),
		CategoryMatch:   containsFold(p.Categories, c.Category),
		MatchingSkills:  matching,
	}
}

// ScoreSeed compares two projects.
func (e *Engine) ScoreSeed(seed, c *models.Candidate) Match {
	skill, matching := SkillJaccard(seed.Skills, c.Skills)
	category := 0.0
	if seed.Category != "" && strings.EqualFold(seed.Category, c.Category) {
		category = 1
	}
	return Match{
		SkillMatch:      skill,
		ExperienceMatch: ExperienceMatch(seed.RequiredLevel, c.RequiredLevel),
		BudgetMatch:     BudgetOverlap(seed.Budget, c.Budget),
		LocationMatch:   PreferenceMatch(seed.Location, c.Location),
		TypeMatch:       PreferenceMatch(seed.WorkType, c.WorkType),
		CategoryMatch:   category,
		MatchingSkills:  matching,
	}
}

// SkillJaccard returns |a ∩ b| / |a ∪ b| over case-insensitive skills and the
// shared skills as spelled on the b side, sorted. Either set empty yields 0.
func SkillJaccard(a, b []string) (float64, []string) {
	left := normalizeSet(a)
	right := make(map[string]string, len(b))
	for _, s := range b {
		key := normalize(s)
		if key == "" {
			continue
		}
		if _, ok := right[key]; !ok {
			right[key] = strings.TrimSpace(s)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return 0, nil
	}

	var matching []string
	for key, display := range right {
		if _, ok := left[key]; ok {
			matching = append(matching, display)
		}
	}
	sort.Strings(matching)

	union := len(left) + len(right) - len(matching)
	return float64(len(matching)) / float64(union), matching
}

// ExperienceMatch is 1 − normalized ordinal distance. Unknown levels are neutral.
func ExperienceMatch(a, b models.ExperienceLevel) float64 {
	ia, okA := a.Ordinal()
	ib, okB := b.Ordinal()
	if !okA || !okB {
		return NeutralScore
	}
	maxDistance := float64(len(models.ExperienceLevels) - 1)
	return 1 - math.Abs(float64(ia-ib))/maxDistance
}

// BudgetOverlap is the interval Jaccard of two budget ranges, 0 when disjoint.
// A missing range on either side is neutral. A point range scores 1 when it
// falls inside the other range.
func BudgetOverlap(a, b models.BudgetRange) float64 {
	if a.IsZero() || b.IsZero() {
		return NeutralScore
	}
	a = orderRange(a)
	b = orderRange(b)

	lo := math.Max(a.Min, b.Min)
	hi := math.Min(a.Max, b.Max)
	if hi < lo {
		return 0
	}
	if a.Min == a.Max || b.Min == b.Max {
		return 1
	}
	union := math.Max(a.Max, b.Max) - math.Min(a.Min, b.Min)
	if union <= 0 {
		return 1
	}
	return clamp01((hi - lo) / union)
}

// PreferenceMatch is an exact, case-insensitive indicator. Absent values on
// either side carry no penalty.
func PreferenceMatch(pref, actual string) float64 {
	pref = normalize(pref)
	actual = normalize(actual)
	if pref == "" || actual == "" {
		return 1
	}
	if pref == actual {
		return 1
	}
	return 0
}

func orderRange(r models.BudgetRange) models.BudgetRange {
	if r.Max < r.Min {
		r.Min, r.Max = r.Max, r.Min
	}
	return r
}

func containsFold(values []string, target string) float64 {
	if target == "" {
		return 0
	}
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return 1
		}
	}
	return 0
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		if key := normalize(v); key != "" {
			out[key] = struct{}{}
		}
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
