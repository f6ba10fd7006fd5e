package profile

import (
	"context"
	stderrors "errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"project-recommender/internal/common/errors"
	"project-recommender/internal/common/logger"
	"project-recommender/internal/models"
)

type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

func LoadBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		Name:             "profile",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}

// Breaker fails fast while the profile backend is unhealthy. Unknown users
// and cancelled callers do not count as failures.
type Breaker struct {
	next Store
	cb   *gobreaker.CircuitBreaker[*models.Profile]
}

func NewBreaker(config *BreakerConfig, next Store, log logger.Logger) *Breaker {
	if config == nil {
		config = LoadBreakerConfig()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	log = logger.ForComponent(log, "profile-breaker")

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.HasCode(err, errors.ErrCodeResourceNotFound) ||
				stderrors.Is(err, context.Canceled)
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker[*models.Profile](settings)}
}

func (b *Breaker) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := b.cb.Execute(func() (*models.Profile, error) {
		return b.next.GetProfile(ctx, userID)
	})
	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errors.NewUpstreamUnavailableError("profile", err)
	}
	return p, err
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
