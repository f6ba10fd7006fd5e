package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"project-recommender/internal/models"
)

func TestSkillJaccard(t *testing.T) {
	tests := []struct {
		name             string
		profile          []string
		candidate        []string
		expectedScore    float64
		expectedMatching []string
	}{
		{
			name:             "two of three shared",
			profile:          []string{"React", "Node.js"},
			candidate:        []string{"React", "Node.js", "AWS"},
			expectedScore:    2.0 / 3.0,
			expectedMatching: []string{"Node.js", "React"},
		},
		{
			name:          "disjoint",
			profile:       []string{"React", "Node.js"},
			candidate:     []string{"Java"},
			expectedScore: 0,
		},
		{
			name:          "empty profile",
			profile:       nil,
			candidate:     []string{"Java"},
			expectedScore: 0,
		},
		{
			name:          "empty candidate",
			profile:       []string{"Java"},
			candidate:     []string{},
			expectedScore: 0,
		},
		{
			name:             "case and whitespace insensitive",
			profile:          []string{"react ", "GO"},
			candidate:        []string{"React", "go"},
			expectedScore:    1,
			expectedMatching: []string{"React", "go"},
		},
		{
			name:             "duplicates do not inflate",
			profile:          []string{"Go", "go", "SQL"},
			candidate:        []string{"Go"},
			expectedScore:    0.5,
			expectedMatching: []string{"Go"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, matching := SkillJaccard(tt.profile, tt.candidate)
			assert.InDelta(t, tt.expectedScore, score, 1e-9)
			assert.Equal(t, tt.expectedMatching, matching)
		})
	}
}

func TestExperienceMatch(t *testing.T) {
	assert.Equal(t, 1.0, ExperienceMatch(models.LevelSenior, models.LevelSenior))
	assert.Equal(t, 0.0, ExperienceMatch(models.LevelEntry, models.LevelExpert))
	assert.Equal(t, 0.75, ExperienceMatch(models.LevelJunior, models.LevelIntermediate))
	assert.Equal(t, 0.5, ExperienceMatch(models.LevelEntry, models.LevelIntermediate))
	assert.Equal(t, NeutralScore, ExperienceMatch("", models.LevelSenior))
	assert.Equal(t, NeutralScore, ExperienceMatch("guru", models.LevelSenior))
	assert.Equal(t, 1.0, ExperienceMatch("Senior", models.LevelSenior))
}

func TestBudgetOverlap(t *testing.T) {
	tests := []struct {
		name     string
		a, b     models.BudgetRange
		expected float64
	}{
		{"identical", models.BudgetRange{Min: 100, Max: 200}, models.BudgetRange{Min: 100, Max: 200}, 1},
		{"half overlap", models.BudgetRange{Min: 0, Max: 200}, models.BudgetRange{Min: 100, Max: 300}, 100.0 / 300.0},
		{"contained", models.BudgetRange{Min: 100, Max: 500}, models.BudgetRange{Min: 200, Max: 300}, 0.25},
		{"disjoint", models.BudgetRange{Min: 100, Max: 200}, models.BudgetRange{Min: 300, Max: 400}, 0},
		{"touching edges", models.BudgetRange{Min: 100, Max: 200}, models.BudgetRange{Min: 200, Max: 300}, 0},
		{"missing side", models.BudgetRange{}, models.BudgetRange{Min: 300, Max: 400}, NeutralScore},
		{"point inside", models.BudgetRange{Min: 250, Max: 250}, models.BudgetRange{Min: 200, Max: 300}, 1},
		{"point outside", models.BudgetRange{Min: 50, Max: 50}, models.BudgetRange{Min: 200, Max: 300}, 0},
		{"reversed bounds", models.BudgetRange{Min: 200, Max: 100}, models.BudgetRange{Min: 100, Max: 200}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, BudgetOverlap(tt.a, tt.b), 1e-9)
			assert.InDelta(t, tt.expected, BudgetOverlap(tt.b, tt.a), 1e-9)
		})
	}
}

func TestPreferenceMatch(t *testing.T) {
	assert.Equal(t, 1.0, PreferenceMatch("Remote", "remote"))
	assert.Equal(t, 0.0, PreferenceMatch("Berlin", "Lisbon"))
	assert.Equal(t, 1.0, PreferenceMatch("", "Lisbon"))
	assert.Equal(t, 1.0, PreferenceMatch("Berlin", ""))
}

func TestEngine_ScoreProfile(t *testing.T) {
	engine := NewEngine()
	profile := &models.Profile{
		ID:              "user-1",
		Skills:          []string{"React", "Node.js"},
		ExperienceLevel: models.LevelSenior,
		PreferredBudget: models.BudgetRange{Min: 1000, Max: 3000},
		Location:        "Berlin",
		WorkType:        "remote",
		Categories:      []string{"web-development"},
	}
	candidate := &models.Candidate{
		ID:            "p-1",
		Category:      "Web-Development",
		Skills:        []string{"React", "Node.js", "AWS"},
		Budget:        models.BudgetRange{Min: 2000, Max: 4000},
		Location:      "Berlin",
		WorkType:      "hybrid",
		RequiredLevel: models.LevelExpert,
	}

	match := engine.ScoreProfile(profile, candidate)

	assert.InDelta(t, 2.0/3.0, match.SkillMatch, 1e-9)
	assert.Equal(t, 0.75, match.ExperienceMatch)
	assert.InDelta(t, 1000.0/3000.0, match.BudgetMatch, 1e-9)
	assert.Equal(t, 1.0, match.LocationMatch)
	assert.Equal(t, 0.0, match.TypeMatch)
	assert.Equal(t, 1.0, match.CategoryMatch)
	assert.Equal(t, []string{"Node.js", "React"}, match.MatchingSkills)
}

func TestEngine_ScoreSeed(t *testing.T) {
	engine := NewEngine()
	seed := &models.Candidate{ID: "seed", Category: "design", Skills: []string{"Figma"}}
	same := &models.Candidate{ID: "a", Category: "Design", Skills: []string{"figma", "Sketch"}}
	other := &models.Candidate{ID: "b", Category: "data", Skills: []string{"SQL"}}

	m1 := engine.ScoreSeed(seed, same)
	m2 := engine.ScoreSeed(seed, other)

	assert.Equal(t, 1.0, m1.CategoryMatch)
	assert.Equal(t, 0.5, m1.SkillMatch)
	assert.Equal(t, 0.0, m2.CategoryMatch)
	assert.Equal(t, 0.0, m2.SkillMatch)
}

func TestEngine_IsDeterministic(t *testing.T) {
	engine := NewEngine()
	profile := &models.Profile{Skills: []string{"Go", "Kubernetes", "SQL"}}
	candidate := &models.Candidate{Skills: []string{"sql", "go", "Terraform"}}

	first := engine.ScoreProfile(profile, candidate)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, engine.ScoreProfile(profile, candidate))
	}
}
