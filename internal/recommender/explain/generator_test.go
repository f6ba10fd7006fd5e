package explain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"project-recommender/internal/models"
)

func TestGenerator_OrdersByContribution(t *testing.T) {
	g := NewGenerator(LoadConfig())
	b := models.ScoreBreakdown{
		Total: 0.8,
		Contributions: map[string]float64{
			models.ComponentSkill:      0.3,
			models.ComponentBudget:     0.1,
			models.ComponentPopularity: 0.2,
			models.ComponentLocation:   0.06,
			models.ComponentType:       0.01,
		},
	}

	reasons := g.Explain(b, []string{"Go", "SQL"})

	assert.Equal(t, []string{
		"Matches your skills: Go, SQL",
		"Trending with freelancers right now",
		"Within your preferred budget",
	}, reasons)
}

func TestGenerator_CapsSkillList(t *testing.T) {
	g := NewGenerator(LoadConfig())
	b := models.ScoreBreakdown{
		Total:         0.5,
		Contributions: map[string]float64{models.ComponentSkill: 0.5},
	}

	reasons := g.Explain(b, []string{"AWS", "Go", "Kubernetes", "SQL", "Terraform"})

	assert.Equal(t, []string{"Matches your skills: AWS, Go, Kubernetes and 2 more"}, reasons)
}

func TestGenerator_FallbackWhenNothingClearsThreshold(t *testing.T) {
	g := NewGenerator(LoadConfig())
	b := models.ScoreBreakdown{
		Total: 0.04,
		Contributions: map[string]float64{
			models.ComponentRecentActivity: 0.03,
			models.ComponentPopularity:     0.01,
		},
	}

	reasons := g.Explain(b, nil)

	assert.Equal(t, []string{"Active project"}, reasons)
}

func TestGenerator_EmptyForZeroTotal(t *testing.T) {
	g := NewGenerator(nil)
	reasons := g.Explain(models.ScoreBreakdown{}, nil)
	assert.Empty(t, reasons)
}

func TestGenerator_UsesComponentsWithoutContributions(t *testing.T) {
	g := NewGenerator(nil)
	b := models.ScoreBreakdown{PopularityScore: 0.9, Total: 0.9}

	assert.Equal(t, []string{"Trending with freelancers right now"}, g.Explain(b, nil))
}

func TestGenerator_ProjectModeWording(t *testing.T) {
	g := NewGenerator(nil)
	b := models.ScoreBreakdown{
		Total: 0.7,
		Contributions: map[string]float64{
			models.ComponentSkill:     0.4,
			models.ComponentCategory:  0.2,
			models.ComponentFreshness: 0.05,
		},
	}

	reasons := g.ExplainFor(ModeProject, b, []string{"Figma"})

	assert.Equal(t, []string{"Shares skills: Figma", "Same category", "Recently posted"}, reasons)
}

func TestGenerator_RespectsMaxReasons(t *testing.T) {
	g := NewGenerator(&Config{MaxReasons: 1, MinContribution: 0.05, MaxSkillsListed: 3})
	b := models.ScoreBreakdown{
		Total: 0.6,
		Contributions: map[string]float64{
			models.ComponentBudget:     0.3,
			models.ComponentExperience: 0.3,
		},
	}

	// equal contributions fall back to component name order
	assert.Equal(t, []string{"Within your preferred budget"}, g.Explain(b, nil))
}
