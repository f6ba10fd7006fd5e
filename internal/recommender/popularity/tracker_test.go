package popularity

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-recommender/internal/models"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(d float64) time.Time {
	return now.Add(-time.Duration(d * 24 * float64(time.Hour)))
}

func TestTracker_DecayFormula(t *testing.T) {
	tracker := NewTracker(LoadConfig())

	popularOld := models.Candidate{ID: "old", Views: 100, Applications: 5, Bookmarks: 2, CreatedAt: daysAgo(1)}
	quietNew := models.Candidate{ID: "new", Views: 10, Applications: 1, Bookmarks: 0, CreatedAt: daysAgo(30)}

	// raw = 1*views + 3*applications + 5*bookmarks
	expectedA := 125.0 * math.Exp(-1.0/14.0)
	expectedB := 13.0 * math.Exp(-30.0/14.0)

	assert.InDelta(t, expectedA, tracker.Decayed(&popularOld, now), 1e-9)
	assert.InDelta(t, expectedB, tracker.Decayed(&quietNew, now), 1e-9)

	scores := tracker.TrendingScores([]models.Candidate{popularOld, quietNew}, now)
	require.Len(t, scores, 2)
	assert.InDelta(t, 1.0, scores[0], 1e-9)
	assert.InDelta(t, expectedB/expectedA, scores[1], 1e-9)
}

func TestTracker_TrendingScoresAreBatchRelative(t *testing.T) {
	tracker := NewTracker(nil)
	a := models.Candidate{ID: "a", Views: 10, CreatedAt: now}
	b := models.Candidate{ID: "b", Views: 5, CreatedAt: now}
	c := models.Candidate{ID: "c", Views: 1000, CreatedAt: now}

	small := tracker.TrendingScores([]models.Candidate{a, b}, now)
	large := tracker.TrendingScores([]models.Candidate{a, b, c}, now)

	assert.InDelta(t, 1.0, small[0], 1e-9)
	assert.InDelta(t, 0.5, small[1], 1e-9)
	assert.InDelta(t, 0.01, large[0], 1e-9)
	assert.InDelta(t, 1.0, large[2], 1e-9)
}

func TestTracker_EmptyAndZeroBatches(t *testing.T) {
	tracker := NewTracker(nil)

	assert.Empty(t, tracker.TrendingScores(nil, now))

	scores := tracker.TrendingScores([]models.Candidate{{ID: "x"}, {ID: "y"}}, now)
	assert.Equal(t, []float64{0, 0}, scores)
}

func TestTracker_ScoresStayInUnitInterval(t *testing.T) {
	tracker := NewTracker(nil)
	batch := []models.Candidate{
		{ID: "future", Views: 50, CreatedAt: now.Add(48 * time.Hour)},
		{ID: "negative", Views: -10, CreatedAt: daysAgo(3)},
		{ID: "normal", Views: 20, Bookmarks: 4, CreatedAt: daysAgo(3)},
	}
	for _, s := range tracker.TrendingScores(batch, now) {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestTracker_RecentActivity(t *testing.T) {
	tracker := NewTracker(nil)
	fresh := models.Candidate{CreatedAt: now}
	week := models.Candidate{CreatedAt: daysAgo(7)}

	assert.InDelta(t, 1.0, tracker.RecentActivity(&fresh, now), 1e-9)
	assert.InDelta(t, math.Exp(-1), tracker.RecentActivity(&week, now), 1e-9)
	assert.Equal(t, 0.0, tracker.RecentActivity(&models.Candidate{}, now))
}
