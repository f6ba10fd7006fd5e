package service

import "time"

type Config struct {
	// RequestTimeout bounds a request end to end. Past it the service answers
	// from a stale entry or the popularity fallback.
	RequestTimeout time.Duration
	DefaultLimit   int
	MaxLimit       int
}

func LoadConfig() *Config {
	return &Config{
		RequestTimeout: 250 * time.Millisecond,
		DefaultLimit:   10,
		MaxLimit:       100,
	}
}
