package cache

import "time"

type Config struct {
	TTL         time.Duration
	DegradedTTL time.Duration
	// MaxStale is how long past expiry an entry stays available to GetStale.
	MaxStale time.Duration
	Capacity int
	Shards   int
	// ComputeTimeout bounds a detached computation once its callers are gone.
	ComputeTimeout time.Duration
	SweepInterval  time.Duration
}

func LoadConfig() *Config {
	return &Config{
		TTL:            60 * time.Second,
		DegradedTTL:    5 * time.Second,
		MaxStale:       5 * time.Minute,
		Capacity:       10000,
		Shards:         16,
		ComputeTimeout: 2 * time.Second,
		SweepInterval:  30 * time.Second,
	}
}
