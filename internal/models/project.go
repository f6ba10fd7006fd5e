// internal/models/project.go
package models

import (
	"strings"
	"time"
)

type ExperienceLevel string

const (
	LevelEntry        ExperienceLevel = "entry"
	LevelJunior       ExperienceLevel = "junior"
	LevelIntermediate ExperienceLevel = "intermediate"
	LevelSenior       ExperienceLevel = "senior"
	LevelExpert       ExperienceLevel = "expert"
)

// ExperienceLevels is the ordinal scale, lowest first.
var ExperienceLevels = []ExperienceLevel{LevelEntry, LevelJunior, LevelIntermediate, LevelSenior, LevelExpert}

// Ordinal returns the position of the level on the scale. Unknown or empty
// levels report false.
func (l ExperienceLevel) Ordinal() (int, bool) {
	norm := ExperienceLevel(strings.ToLower(strings.TrimSpace(string(l))))
	for i, lvl := range ExperienceLevels {
		if lvl == norm {
			return i, true
		}
	}
	return 0, false
}

type BudgetRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (b BudgetRange) IsZero() bool {
	return b.Min == 0 && b.Max == 0
}

// Candidate is a project's feature view as supplied by the catalog.
type Candidate struct {
	ID            string          `json:"id"`
	Title         string          `json:"title,omitempty"`
	Category      string          `json:"category"`
	Skills        []string        `json:"skills"`
	Budget        BudgetRange     `json:"budgetRange"`
	Location      string          `json:"location,omitempty"`
	WorkType      string          `json:"workType,omitempty"`
	RequiredLevel ExperienceLevel `json:"requiredLevel,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	Views         int64           `json:"views"`
	Applications  int64           `json:"applications"`
	Bookmarks     int64           `json:"bookmarks"`
}

// AgeDays returns the fractional age in days at now. Future timestamps count as zero.
func (c *Candidate) AgeDays(now time.Time) float64 {
	if c.CreatedAt.IsZero() {
		return 0
	}
	age := now.Sub(c.CreatedAt).Hours() / 24.0
	if age < 0 {
		return 0
	}
	return age
}

type Profile struct {
	ID                   string          `json:"id"`
	Skills               []string        `json:"skills"`
	ExperienceLevel      ExperienceLevel `json:"experienceLevel,omitempty"`
	PreferredBudget      BudgetRange     `json:"preferredBudget"`
	Location             string          `json:"location,omitempty"`
	WorkType             string          `json:"workType,omitempty"`
	AppliedProjectIDs    []string        `json:"appliedProjectIds,omitempty"`
	BookmarkedProjectIDs []string        `json:"bookmarkedProjectIds,omitempty"`
	CompletedProjectIDs  []string        `json:"completedProjectIds,omitempty"`
	Categories           []string        `json:"categories,omitempty"`
}

// HistoryIDs returns applied, bookmarked and completed project ids, deduplicated,
// in that order.
func (p *Profile) HistoryIDs() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, group := range [][]string{p.AppliedProjectIDs, p.BookmarkedProjectIDs, p.CompletedProjectIDs} {
		for _, id := range group {
			if _, ok := seen[id]; ok || id == "" {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
