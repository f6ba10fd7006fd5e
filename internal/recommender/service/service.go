// Package service answers recommendation requests: it validates them, serves
// them through the result cache and keeps the engine's counters.
package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"project-recommender/internal/common/errors"
	"project-recommender/internal/common/logger"
	"project-recommender/internal/common/metrics"
	"project-recommender/internal/models"
	"project-recommender/internal/recommender/cache"
	"project-recommender/internal/recommender/feedback"
	"project-recommender/internal/recommender/scoring"
)

// ReasonStaleResult marks a response served from an expired cache entry.
const ReasonStaleResult = "stale_result"

type Stats struct {
	Requests       int64            `json:"requests"`
	Failures       int64            `json:"failures"`
	Degraded       int64            `json:"degraded"`
	StaleServed    int64            `json:"staleServed"`
	AlgorithmUsage map[string]int64 `json:"algorithmUsage"`
	Cache          cache.Stats      `json:"cache"`
	Feedback       feedback.Stats   `json:"feedback"`
}

type Service struct {
	config       *Config
	orchestrator *scoring.Orchestrator
	cache        *cache.Layer
	feedback     *feedback.Collector
	logger       logger.Logger
	now          func() time.Time

	// fixed key set, only the counters change
	usage    map[models.Algorithm]*atomic.Int64
	requests atomic.Int64
	failures atomic.Int64
	degraded atomic.Int64
	stale    atomic.Int64
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(
	config *Config,
	orchestrator *scoring.Orchestrator,
	results *cache.Layer,
	collector *feedback.Collector,
	log logger.Logger,
	opts ...Option,
) (*Service, error) {
	if orchestrator == nil || results == nil || collector == nil {
		return nil, fmt.Errorf("orchestrator, cache and feedback collector are required")
	}
	if config == nil {
		config = LoadConfig()
	}
	if config.RequestTimeout <= 0 {
		return nil, fmt.Errorf("request timeout must be > 0")
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	s := &Service{
		config:       config,
		orchestrator: orchestrator,
		cache:        results,
		feedback:     collector,
		logger:       logger.ForComponent(log, "recommendation-service"),
		now:          time.Now,
		usage:        make(map[models.Algorithm]*atomic.Int64, len(models.Algorithms)),
	}
	for _, alg := range models.Algorithms {
		s.usage[alg] = new(atomic.Int64)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Recommend answers req within RequestTimeout. When the computation runs
// past the deadline the answer is, in order: the last cached result for the
// same request, a popularity ranking of the last candidate snapshot, or a
// ComputeTimeout error.
func (s *Service) Recommend(ctx context.Context, req models.RecommendationRequest) (*models.RecommendationResponse, error) {
	start := time.Now()
	s.requests.Add(1)

	req, err := s.Normalize(req)
	if err != nil {
		return nil, s.fail(err)
	}
	key := cache.Key(req)

	deadline, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	var (
		value cache.Value
		hit   bool
	)
	lookup, err := s.cache.GetOrCompute(deadline, key, req, s.compute(req))
	switch {
	case err == nil:
		value, hit = lookup.Entry.Value, lookup.Hit
	case timedOut(err) && !stderrors.Is(ctx.Err(), context.Canceled):
		v, staleHit, rerr := s.recoverTimeout(req, key, err)
		if rerr != nil {
			return nil, s.fail(rerr)
		}
		value, hit = *v, staleHit
	case ctx.Err() != nil:
		return nil, s.fail(errors.NewComputeTimeoutError(ctx.Err()))
	default:
		return nil, s.fail(err)
	}

	items := s.withoutCooldowns(req.UserID(), value.Items)
	resp := &models.RecommendationResponse{
		Recommendations: items,
		Metadata: models.ResponseMetadata{
			TotalCount:      len(items),
			Algorithm:       value.Algorithm,
			ExecutionTimeMs: time.Since(start).Milliseconds(),
			CacheHit:        hit,
			Degraded:        value.Degraded,
			DegradedReason:  value.DegradedReason,
			ComputedAt:      value.ComputedAt,
		},
	}
	s.record(resp, time.Since(start))
	return resp, nil
}

func (s *Service) compute(req models.RecommendationRequest) cache.ComputeFunc {
	return func(ctx context.Context) (*cache.Value, error) {
		result, err := s.orchestrator.Recommend(ctx, req)
		if err != nil {
			return nil, err
		}
		return &cache.Value{
			Items:          result.Items,
			Algorithm:      result.Algorithm,
			Degraded:       result.Degraded,
			DegradedReason: result.DegradedReason,
			ComputedAt:     result.ComputedAt,
		}, nil
	}
}

func (s *Service) recoverTimeout(req models.RecommendationRequest, key string, cause error) (*cache.Value, bool, error) {
	if entry, ok := s.cache.GetStale(key); ok {
		s.stale.Add(1)
		s.logger.Warn("deadline exceeded, serving stale result", map[string]interface{}{
			"key":        key,
			"computedAt": entry.ComputedAt,
		})
		v := entry.Value
		v.Degraded = true
		if v.DegradedReason == "" {
			v.DegradedReason = ReasonStaleResult
		}
		return &v, true, nil
	}
	if result, ok := s.orchestrator.Fallback(req, scoring.ReasonComputeTimeout); ok {
		s.logger.Warn("deadline exceeded, serving popularity fallback", map[string]interface{}{
			"key":   key,
			"items": len(result.Items),
		})
		return &cache.Value{
			Items:          result.Items,
			Algorithm:      result.Algorithm,
			Degraded:       result.Degraded,
			DegradedReason: result.DegradedReason,
			ComputedAt:     result.ComputedAt,
		}, false, nil
	}
	return nil, false, errors.NewComputeTimeoutError(cause)
}

// withoutCooldowns drops candidates under an active dislike cool-down and
// re-ranks what is left. Synchronous invalidation normally leaves nothing to
// drop.
func (s *Service) withoutCooldowns(userID string, items []models.RankedItem) []models.RankedItem {
	if items == nil {
		return []models.RankedItem{}
	}
	if userID == "" {
		return items
	}
	suppressed := s.feedback.Suppressed(userID, s.now())
	if len(suppressed) == 0 {
		return items
	}
	kept := make([]models.RankedItem, 0, len(items))
	for _, item := range items {
		if _, ok := suppressed[item.CandidateID]; ok {
			continue
		}
		item.Rank = len(kept) + 1
		kept = append(kept, item)
	}
	return kept
}

func (s *Service) record(resp *models.RecommendationResponse, elapsed time.Duration) {
	meta := resp.Metadata
	if counter, ok := s.usage[meta.Algorithm]; ok {
		counter.Add(1)
	}
	cacheLabel := "miss"
	if meta.CacheHit {
		cacheLabel = "hit"
	}
	metrics.RecommendationsServed.WithLabelValues(string(meta.Algorithm), cacheLabel).Inc()
	metrics.RecommendationDuration.WithLabelValues(string(meta.Algorithm)).Observe(elapsed.Seconds())
	if meta.Degraded {
		s.degraded.Add(1)
		metrics.RecommendationsDegraded.WithLabelValues(meta.DegradedReason).Inc()
	}
	s.logger.Debug("recommendations served", map[string]interface{}{
		"algorithm":  string(meta.Algorithm),
		"count":      meta.TotalCount,
		"cacheHit":   meta.CacheHit,
		"degraded":   meta.Degraded,
		"durationMs": elapsed.Milliseconds(),
	})
}

func (s *Service) fail(err error) error {
	s.failures.Add(1)
	stdErr := errors.AsStandardError(err)
	metrics.RecommendationsFailed.WithLabelValues(string(stdErr.Code)).Inc()
	return stdErr
}

// RecordFeedback stores one feedback event. A dislike takes effect before
// this returns.
func (s *Service) RecordFeedback(ctx context.Context, event models.FeedbackEvent) (*models.FeedbackAck, error) {
	ack, err := s.feedback.Record(ctx, event)
	if err != nil {
		metrics.FeedbackEvents.WithLabelValues(string(event.Action), "rejected").Inc()
		return nil, err
	}
	outcome := "accepted"
	if ack.Duplicate {
		outcome = "duplicate"
	}
	metrics.FeedbackEvents.WithLabelValues(string(event.Action), outcome).Inc()
	return ack, nil
}

// CatalogChanged drops cached results the change may affect.
func (s *Service) CatalogChanged(ctx context.Context, change models.CatalogChange) int {
	return s.cache.InvalidateCatalogChange(ctx, change)
}

func (s *Service) Stats() Stats {
	usage := make(map[string]int64, len(s.usage))
	for alg, counter := range s.usage {
		usage[string(alg)] = counter.Load()
	}
	cacheStats := s.cache.Stats()
	metrics.CacheEntries.Set(float64(cacheStats.Size))
	return Stats{
		Requests:       s.requests.Load(),
		Failures:       s.failures.Load(),
		Degraded:       s.degraded.Load(),
		StaleServed:    s.stale.Load(),
		AlgorithmUsage: usage,
		Cache:          cacheStats,
		Feedback:       s.feedback.Stats(),
	}
}

func timedOut(err error) bool {
	return stderrors.Is(err, context.DeadlineExceeded) || errors.HasCode(err, errors.ErrCodeComputeTimeout)
}
