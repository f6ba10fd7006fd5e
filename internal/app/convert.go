package app

import (
	"project-recommender/internal/common/config"
	"project-recommender/internal/recommender/cache"
	"project-recommender/internal/recommender/feedback"
	"project-recommender/internal/recommender/scoring"
)

// Zero values in the file config keep the package defaults.

func weights(w config.WeightsConfig) scoring.Weights {
	return scoring.Weights{
		Skill:          w.Skill,
		Experience:     w.Experience,
		Budget:         w.Budget,
		Location:       w.Location,
		WorkType:       w.WorkType,
		Category:       w.Category,
		Similarity:     w.Similarity,
		Popularity:     w.Popularity,
		RecentActivity: w.RecentActivity,
	}
}

func scoringConfig(rc config.RecommenderConfig) *scoring.Config {
	c := scoring.LoadConfig()
	if !rc.UserWeights.IsZero() {
		c.UserWeights = weights(rc.UserWeights)
	}
	if !rc.ProjectWeights.IsZero() {
		c.ProjectWeights = weights(rc.ProjectWeights)
	}
	if !rc.Hybrid.IsZero() {
		c.Hybrid = scoring.HybridWeights{
			User:       rc.Hybrid.User,
			Similarity: rc.Hybrid.Similarity,
			Popularity: rc.Hybrid.Popularity,
		}
	}
	switch {
	case rc.MaxPerCategory > 0:
		c.MaxPerCategory = rc.MaxPerCategory
	case rc.MaxPerCategory < 0:
		// negative turns the diversity pass off
		c.MaxPerCategory = 0
	}
	if rc.ScoringWorkers > 0 {
		c.ScoringWorkers = rc.ScoringWorkers
	}
	return c
}

func cacheConfig(cc config.CacheConfig) *cache.Config {
	c := cache.LoadConfig()
	if cc.TTL > 0 {
		c.TTL = config.GetDuration(cc.TTL)
	}
	if cc.DegradedTTL > 0 {
		c.DegradedTTL = config.GetDuration(cc.DegradedTTL)
	}
	if cc.MaxStale > 0 {
		c.MaxStale = config.GetDuration(cc.MaxStale)
	}
	if cc.Capacity > 0 {
		c.Capacity = cc.Capacity
	}
	if cc.Shards > 0 {
		c.Shards = cc.Shards
	}
	if cc.ComputeTimeout > 0 {
		c.ComputeTimeout = config.GetDuration(cc.ComputeTimeout)
	}
	if cc.SweepInterval > 0 {
		c.SweepInterval = config.GetDuration(cc.SweepInterval)
	}
	return c
}

func feedbackConfig(fc config.FeedbackConfig) *feedback.Config {
	c := feedback.LoadConfig()
	if fc.CooldownTTL > 0 {
		c.CooldownTTL = config.GetDuration(fc.CooldownTTL)
	}
	if fc.LearningRate > 0 {
		c.LearningRate = fc.LearningRate
	}
	if fc.Workers > 0 {
		c.Workers = fc.Workers
	}
	if fc.QueueSize > 0 {
		c.QueueSize = fc.QueueSize
	}
	return c
}
