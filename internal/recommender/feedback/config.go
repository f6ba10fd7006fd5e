package feedback

import (
	"time"

	"project-recommender/internal/models"
)

type Config struct {
	CooldownTTL time.Duration
	// LearningRate is the EMA step toward a served item's contributions for a
	// full-strength signal.
	LearningRate         float64
	AffinityLearningRate float64
	MinWeight            float64
	MaxWeight            float64
	// Signals maps an action to its strength; negative values only move
	// category affinity.
	Signals map[models.FeedbackAction]float64
	// DedupeWindow is how many recent events per user are remembered for
	// duplicate detection.
	DedupeWindow   int
	Workers        int
	QueueSize      int
	PersistTimeout time.Duration
	SweepInterval  time.Duration
}

func LoadConfig() *Config {
	return &Config{
		CooldownTTL:          24 * time.Hour,
		LearningRate:         0.1,
		AffinityLearningRate: 0.2,
		MinWeight:            0.02,
		MaxWeight:            0.5,
		Signals: map[models.FeedbackAction]float64{
			models.ActionClick:    0.25,
			models.ActionBookmark: 0.5,
			models.ActionApply:    0.75,
			models.ActionLike:     1.0,
			models.ActionDismiss:  -0.5,
			models.ActionDislike:  -1.0,
		},
		DedupeWindow:   1024,
		Workers:        4,
		QueueSize:      1024,
		PersistTimeout: 2 * time.Second,
		SweepInterval:  time.Minute,
	}
}
