package api

import "time"

type Config struct {
	ServiceName    string
	ServiceVersion string
	// MaxBodyBytes bounds every JSON request body.
	MaxBodyBytes int64
	// FeedbackRateLimit is requests per FeedbackRateWindow per user.
	FeedbackRateLimit  int
	FeedbackRateWindow time.Duration
	ReadinessTimeout   time.Duration
	UserHeader         string
}

func LoadConfig() *Config {
	return &Config{
		ServiceName:        "project-recommender",
		ServiceVersion:     "dev",
		MaxBodyBytes:       64 << 10,
		FeedbackRateLimit:  120,
		FeedbackRateWindow: time.Minute,
		ReadinessTimeout:   2 * time.Second,
		UserHeader:         "X-User-ID",
	}
}
