package catalog

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
		Name:             "catalog",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}

// Breaker stops calling a failing catalog for a while. Calls made while the
// circuit is open fail fast with UpstreamUnavailable, which sends the
// orchestrator to its candidate snapshot.
type Breaker struct {
	next Store
	cb   *gobreaker.CircuitBreaker[[]models.Candidate]
}

func NewBreaker(config *BreakerConfig, next Store, log logger.Logger) *Breaker {
	if config == nil {
		config = LoadBreakerConfig()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	log = logger.ForComponent(log, "catalog-breaker")

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
		// a caller giving up says nothing about the catalog's health
		IsSuccessful: func(err error) bool {
			return err == nil || stderrors.Is(err, context.Canceled)
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker[[]models.Candidate](settings)}
}

func (b *Breaker) GetCandidates(ctx context.Context, filters *models.Filters) ([]models.Candidate, error) {
	out, err := b.cb.Execute(func() ([]models.Candidate, error) {
		return b.next.GetCandidates(ctx, filters)
	})
	return out, breakerError(err)
}

func (b *Breaker) GetCandidatesByIDs(ctx context.Context, ids []string) ([]models.Candidate, error) {
	out, err := b.cb.Execute(func() ([]models.Candidate, error) {
		return b.next.GetCandidatesByIDs(ctx, ids)
	})
	return out, breakerError(err)
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func breakerError(err error) error {
	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.NewUpstreamUnavailableError("catalog", err)
	}
	return err
}
