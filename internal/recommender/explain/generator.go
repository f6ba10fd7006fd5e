package explain

import (
	"fmt"
	"sort"
	"strings"

	"project-recommender/internal/models"
)

// Mode selects reason wording for the kind of subject that was scored.
type Mode int

const (
	ModeUser Mode = iota
	ModeProject
)

type Generator struct {
	config *Config
}

func NewGenerator(config *Config) *Generator {
	if config == nil {
		config = LoadConfig()
	}
	return &Generator{config: config}
}

type scored struct {
	component string
	value     float64
}

// Explain turns a breakdown into at most MaxReasons human-readable reasons,
// strongest contribution first. When nothing clears MinContribution and the
// total is positive, a single reason from the strongest component is returned.
func (g *Generator) Explain(b models.ScoreBreakdown, matchingSkills []string) []string {
	return g.ExplainFor(ModeUser, b, matchingSkills)
}

func (g *Generator) ExplainFor(mode Mode, b models.ScoreBreakdown, matchingSkills []string) []string {
	contributions := b.Contributions
	if contributions == nil {
		contributions = b.Components()
	}

	var selected []scored
	for component, value := range contributions {
		if value >= g.config.MinContribution && value > 0 {
			selected = append(selected, scored{component, value})
		}
	}
	sortScored(selected)

	reasons := make([]string, 0, g.config.MaxReasons)
	for _, s := range selected {
		if len(reasons) >= g.config.MaxReasons {
			break
		}
		if reason := g.template(mode, s.component, matchingSkills); reason != "" {
			reasons = append(reasons, reason)
		}
	}
	if len(reasons) > 0 || b.Total <= 0 {
		return reasons
	}

	var best *scored
	all := make([]scored, 0, len(contributions))
	for component, value := range contributions {
		all = append(all, scored{component, value})
	}
	sortScored(all)
	for i := range all {
		if g.template(mode, all[i].component, matchingSkills) != "" {
			best = &all[i]
			break
		}
	}
	if best == nil {
		return []string{"Suggested based on your activity"}
	}
	return []string{g.template(mode, best.component, matchingSkills)}
}

// sortScored orders by value desc, then component name for determinism.
func sortScored(s []scored) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].value != s[j].value {
			return s[i].value > s[j].value
		}
		return s[i].component < s[j].component
	})
}

func (g *Generator) template(mode Mode, component string, matchingSkills []string) string {
	switch component {
	case models.ComponentSkill:
		if len(matchingSkills) == 0 {
			if mode == ModeProject {
				return "Needs similar skills"
			}
			return "Matches your skills"
		}
		if mode == ModeProject {
			return "Shares skills: " + g.skillList(matchingSkills)
		}
		return "Matches your skills: " + g.skillList(matchingSkills)
	case models.ComponentExperience:
		if mode == ModeProject {
			return "Calls for a similar experience level"
		}
		return "Fits your experience level"
	case models.ComponentBudget:
		if mode == ModeProject {
			return "Similar budget range"
		}
		return "Within your preferred budget"
	case models.ComponentLocation:
		if mode == ModeProject {
			return "Same location"
		}
		return "In your preferred location"
	case models.ComponentType:
		if mode == ModeProject {
			return "Same type of engagement"
		}
		return "Matches your preferred work type"
	case models.ComponentCategory:
		if mode == ModeProject {
			return "Same category"
		}
		return "In a category you follow"
	case models.ComponentSimilarity:
		if mode == ModeProject {
			return "Similar to the project you are viewing"
		}
		return "Similar to projects you engaged with"
	case models.ComponentAffinity:
		return "In a category you often engage with"
	case models.ComponentPopularity:
		return "Trending with freelancers right now"
	case models.ComponentRecentActivity:
		return "Active project"
	case models.ComponentFreshness:
		return "Recently posted"
	default:
		return ""
	}
}

func (g *Generator) skillList(skills []string) string {
	if len(skills) <= g.config.MaxSkillsListed {
		return strings.Join(skills, ", ")
	}
	extra := len(skills) - g.config.MaxSkillsListed
	return fmt.Sprintf("%s and %d more", strings.Join(skills[:g.config.MaxSkillsListed], ", "), extra)
}
