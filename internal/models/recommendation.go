// internal/models/recommendation.go
package models

import "time"

type SubjectType string

const (
	SubjectUser    SubjectType = "user"
	SubjectProject SubjectType = "project"
)

type Algorithm string

const (
	AlgorithmUserBased         Algorithm = "user-based"
	AlgorithmProjectSimilarity Algorithm = "project-similarity"
	AlgorithmPopularity        Algorithm = "popularity"
	AlgorithmHybrid            Algorithm = "hybrid"
)

// Algorithms lists every supported algorithm in a stable order.
var Algorithms = []Algorithm{AlgorithmUserBased, AlgorithmProjectSimilarity, AlgorithmPopularity, AlgorithmHybrid}

func (a Algorithm) Valid() bool {
	for _, known := range Algorithms {
		if a == known {
			return true
		}
	}
	return false
}

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

type Filters struct {
	Categories       []string `json:"categories,omitempty"`
	Skills           []string `json:"skills,omitempty"`
	Location         string   `json:"location,omitempty"`
	WorkType         string   `json:"workType,omitempty"`
	BudgetMin        float64  `json:"budgetMin,omitempty"`
	BudgetMax        float64  `json:"budgetMax,omitempty"`
	PostedWithinDays int      `json:"postedWithinDays,omitempty"`
}

type RecommendationRequest struct {
	SubjectType SubjectType `json:"subjectType"`
	SubjectID   string      `json:"subjectId"`
	Algorithm   Algorithm   `json:"algorithm,omitempty"`
	Limit       int         `json:"limit,omitempty"`
	ExcludeIDs  []string    `json:"excludeIds,omitempty"`
	Filters     *Filters    `json:"filters,omitempty"`
}

// UserID returns the subject id when the subject is a user.
func (r *RecommendationRequest) UserID() string {
	if r.SubjectType == SubjectUser {
		return r.SubjectID
	}
	return ""
}

// Score component names, used for contributions and explanations.
const (
	ComponentSkill          = "skillMatch"
	ComponentExperience     = "experienceMatch"
	ComponentBudget         = "budgetMatch"
	ComponentLocation       = "locationMatch"
	ComponentType           = "typeMatch"
	ComponentCategory       = "categoryMatch"
	ComponentPopularity     = "popularityScore"
	ComponentSimilarity     = "similarityScore"
	ComponentRecentActivity = "recentActivityScore"
	ComponentFreshness      = "freshnessBoost"
	ComponentAffinity       = "categoryAffinity"
)

type ScoreBreakdown struct {
	SkillMatch          float64            `json:"skillMatch"`
	ExperienceMatch     float64            `json:"experienceMatch"`
	BudgetMatch         float64            `json:"budgetMatch"`
	LocationMatch       float64            `json:"locationMatch"`
	TypeMatch           float64            `json:"typeMatch"`
	CategoryMatch       float64            `json:"categoryMatch"`
	PopularityScore     float64            `json:"popularityScore"`
	SimilarityScore     float64            `json:"similarityScore"`
	RecentActivityScore float64            `json:"recentActivityScore"`
	FreshnessBoost      float64            `json:"freshnessBoost,omitempty"`
	Total               float64            `json:"total"`
	Contributions       map[string]float64 `json:"contributions,omitempty"`
}

// Components returns the raw component values keyed by component name.
func (b *ScoreBreakdown) Components() map[string]float64 {
	return map[string]float64{
		ComponentSkill:          b.SkillMatch,
		ComponentExperience:     b.ExperienceMatch,
		ComponentBudget:         b.BudgetMatch,
		ComponentLocation:       b.LocationMatch,
		ComponentType:           b.TypeMatch,
		ComponentCategory:       b.CategoryMatch,
		ComponentPopularity:     b.PopularityScore,
		ComponentSimilarity:     b.SimilarityScore,
		ComponentRecentActivity: b.RecentActivityScore,
	}
}

type RankedItem struct {
	CandidateID    string         `json:"candidateId"`
	Project        Candidate      `json:"project"`
	Breakdown      ScoreBreakdown `json:"breakdown"`
	Reasons        []string       `json:"reasons"`
	MatchingSkills []string       `json:"matchingSkills,omitempty"`
	Confidence     float64        `json:"confidence"`
	Rank           int            `json:"rank"`
}

type ResponseMetadata struct {
	TotalCount      int       `json:"totalCount"`
	Algorithm       Algorithm `json:"algorithm"`
	ExecutionTimeMs int64     `json:"executionTimeMs"`
	CacheHit        bool      `json:"cacheHit"`
	Degraded        bool      `json:"degraded"`
	DegradedReason  string    `json:"degradedReason,omitempty"`
	ComputedAt      time.Time `json:"computedAt"`
}

type RecommendationResponse struct {
	Recommendations []RankedItem     `json:"recommendations"`
	Metadata        ResponseMetadata `json:"metadata"`
}
