package scoring

import (
	"fmt"
	"math"
	"time"

	"project-recommender/internal/models"
)

// ConfigVersion is bumped whenever the meaning of a weight changes.
const ConfigVersion = 1

// weightedComponents lists the components a weight vector covers, in a fixed order.
var weightedComponents = []string{
	models.ComponentSkill,
	models.ComponentExperience,
	models.ComponentBudget,
	models.ComponentLocation,
	models.ComponentType,
	models.ComponentCategory,
	models.ComponentSimilarity,
	models.ComponentPopularity,
	models.ComponentRecentActivity,
}

type Weights struct {
	Skill          float64
	Experience     float64
	Budget         float64
	Location       float64
	WorkType       float64
	Category       float64
	Similarity     float64
	Popularity     float64
	RecentActivity float64
}

func (w Weights) Get(component string) float64 {
	switch component {
	case models.ComponentSkill:
		return w.Skill
	case models.ComponentExperience:
		return w.Experience
	case models.ComponentBudget:
		return w.Budget
	case models.ComponentLocation:
		return w.Location
	case models.ComponentType:
		return w.WorkType
	case models.ComponentCategory:
		return w.Category
	case models.ComponentSimilarity:
		return w.Similarity
	case models.ComponentPopularity:
		return w.Popularity
	case models.ComponentRecentActivity:
		return w.RecentActivity
	}
	return 0
}

func (w *Weights) Set(component string, value float64) {
	switch component {
	case models.ComponentSkill:
		w.Skill = value
	case models.ComponentExperience:
		w.Experience = value
	case models.ComponentBudget:
		w.Budget = value
	case models.ComponentLocation:
		w.Location = value
	case models.ComponentType:
		w.WorkType = value
	case models.ComponentCategory:
		w.Category = value
	case models.ComponentSimilarity:
		w.Similarity = value
	case models.ComponentPopularity:
		w.Popularity = value
	case models.ComponentRecentActivity:
		w.RecentActivity = value
	}
}

func (w Weights) Sum() float64 {
	sum := 0.0
	for _, c := range weightedComponents {
		sum += w.Get(c)
	}
	return sum
}

// Normalized rescales the vector to sum to 1. A zero vector is returned unchanged.
func (w Weights) Normalized() Weights {
	sum := w.Sum()
	if sum <= 0 {
		return w
	}
	var out Weights
	for _, c := range weightedComponents {
		out.Set(c, w.Get(c)/sum)
	}
	return out
}

// Components returns the weighted component names in a fixed order.
func Components() []string {
	out := make([]string, len(weightedComponents))
	copy(out, weightedComponents)
	return out
}

// apply returns Σ weight·component and the per-component contributions.
func (w Weights) apply(components map[string]float64) (float64, map[string]float64) {
	total := 0.0
	contributions := make(map[string]float64)
	for _, c := range weightedComponents {
		weight := w.Get(c)
		if weight == 0 {
			continue
		}
		contribution := weight * components[c]
		if contribution > 0 {
			contributions[c] = contribution
		}
		total += contribution
	}
	return total, contributions
}

type HybridWeights struct {
	User       float64
	Similarity float64
	Popularity float64
}

func (h HybridWeights) Sum() float64 {
	return h.User + h.Similarity + h.Popularity
}

type Config struct {
	Version        int
	UserWeights    Weights
	ProjectWeights Weights
	Hybrid         HybridWeights

	// MaxPerCategory caps items sharing a category; 0 disables the diversity pass.
	MaxPerCategory int

	FreshnessWindow time.Duration
	// FreshnessBoost is the largest additive boost a brand-new project receives.
	FreshnessBoost float64

	// CategoryAffinityBoost scales learned category affinity in user-based scoring.
	CategoryAffinityBoost float64

	// MinSignals is the number of contributing components below which
	// confidence is scaled down.
	MinSignals int

	MaxHistorySeeds   int
	ScoringWorkers    int
	ParallelThreshold int
	ExcludeEngaged    bool
	SnapshotSize      int
}

func LoadConfig() *Config {
	return &Config{
		Version: ConfigVersion,
		UserWeights: Weights{
			Skill:          0.30,
			Experience:     0.12,
			Budget:         0.12,
			Location:       0.08,
			WorkType:       0.08,
			Category:       0.10,
			Similarity:     0.10,
			Popularity:     0.05,
			RecentActivity: 0.05,
		},
		ProjectWeights: Weights{
			Skill:          0.35,
			Category:       0.20,
			Budget:         0.15,
			Experience:     0.10,
			Location:       0.05,
			WorkType:       0.05,
			RecentActivity: 0.10,
		},
		Hybrid: HybridWeights{
			User:       0.5,
			Similarity: 0.2,
			Popularity: 0.3,
		},
		MaxPerCategory:        3,
		FreshnessWindow:       72 * time.Hour,
		FreshnessBoost:        0.05,
		CategoryAffinityBoost: 0.05,
		MinSignals:            3,
		MaxHistorySeeds:       20,
		ScoringWorkers:        4,
		ParallelThreshold:     64,
		ExcludeEngaged:        true,
		SnapshotSize:          64,
	}
}

const weightSumTolerance = 1e-6

// Validate checks weight bounds and sums.
func (c *Config) Validate() error {
	if c.Version != ConfigVersion {
		return fmt.Errorf("unsupported scoring config version %d (want %d)", c.Version, ConfigVersion)
	}
	for name, w := range map[string]Weights{"user": c.UserWeights, "project": c.ProjectWeights} {
		for _, comp := range weightedComponents {
			if v := w.Get(comp); v < 0 || v > 1 {
				return fmt.Errorf("%s weight %s=%v out of [0,1]", name, comp, v)
			}
		}
		if math.Abs(w.Sum()-1) > weightSumTolerance {
			return fmt.Errorf("%s weights must sum to 1, got %v", name, w.Sum())
		}
	}
	if c.ProjectWeights.Popularity != 0 {
		return fmt.Errorf("project weights must not include popularity")
	}
	for name, v := range map[string]float64{"user": c.Hybrid.User, "similarity": c.Hybrid.Similarity, "popularity": c.Hybrid.Popularity} {
		if v < 0 || v > 1 {
			return fmt.Errorf("hybrid weight %s=%v out of [0,1]", name, v)
		}
	}
	if math.Abs(c.Hybrid.Sum()-1) > weightSumTolerance {
		return fmt.Errorf("hybrid weights must sum to 1, got %v", c.Hybrid.Sum())
	}
	if c.FreshnessBoost < 0 || c.FreshnessBoost > 0.2 {
		return fmt.Errorf("freshness boost %v out of [0,0.2]", c.FreshnessBoost)
	}
	if c.CategoryAffinityBoost < 0 || c.CategoryAffinityBoost > 0.2 {
		return fmt.Errorf("category affinity boost %v out of [0,0.2]", c.CategoryAffinityBoost)
	}
	if c.MaxPerCategory < 0 {
		return fmt.Errorf("max per category must be >= 0")
	}
	if c.MinSignals < 1 {
		return fmt.Errorf("min signals must be >= 1")
	}
	return nil
}
