package popularity

import (
	"math"
	"time"

	"project-recommender/internal/models"
)

type Tracker struct {
	config *Config
}

func NewTracker(config *Config) *Tracker {
	if config == nil {
		config = LoadConfig()
	}
	return &Tracker{config: config}
}

// Raw is the weighted engagement signal before decay.
func (t *Tracker) Raw(c *models.Candidate) float64 {
	raw := t.config.ViewWeight*float64(c.Views) +
		t.config.ApplicationWeight*float64(c.Applications) +
		t.config.BookmarkWeight*float64(c.Bookmarks)
	return math.Max(raw, 0)
}

// Decayed applies exp(-ageDays/HalfLifeDays) to the raw signal.
func (t *Tracker) Decayed(c *models.Candidate, now time.Time) float64 {
	return t.Raw(c) * decay(c.AgeDays(now), t.config.HalfLifeDays)
}

// TrendingScores returns one score per candidate in batch order, normalized by
// the largest decayed signal in the batch so scores are relative to the
// current result set.
func (t *Tracker) TrendingScores(batch []models.Candidate, now time.Time) []float64 {
	scores := make([]float64, len(batch))
	maxSignal := 0.0
	for i := range batch {
		scores[i] = t.Decayed(&batch[i], now)
		if scores[i] > maxSignal {
			maxSignal = scores[i]
		}
	}
	if maxSignal <= 0 {
		for i := range scores {
			scores[i] = 0
		}
		return scores
	}
	for i := range scores {
		scores[i] = math.Min(math.Max(scores[i]/maxSignal, 0), 1)
	}
	return scores
}

// RecentActivity scores how recently the project was posted.
func (t *Tracker) RecentActivity(c *models.Candidate, now time.Time) float64 {
	if c.CreatedAt.IsZero() {
		return 0
	}
	return decay(c.AgeDays(now), t.config.RecencyHalfLifeDays)
}

func decay(ageDays, halfLife float64) float64 {
	if halfLife <= 0 {
		return 1
	}
	return math.Exp(-ageDays / halfLife)
}
