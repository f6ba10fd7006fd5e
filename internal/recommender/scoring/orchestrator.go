package scoring

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"project-recommender/internal/common/errors"
	"project-recommender/internal/common/logger"
	"project-recommender/internal/models"
	"project-recommender/internal/recommender/explain"
	"project-recommender/internal/recommender/popularity"
	"project-recommender/internal/recommender/similarity"
)

const (
	ReasonProfileUnavailable = "profile_unavailable"
	ReasonProfileNotFound    = "profile_not_found"
	ReasonCatalogUnavailable = "catalog_unavailable"
	ReasonComputeTimeout     = "compute_timeout"
)

type CatalogStore interface {
	GetCandidates(ctx context.Context, filters *models.Filters) ([]models.Candidate, error)
	GetCandidatesByIDs(ctx context.Context, ids []string) ([]models.Candidate, error)
}

type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// Suppressor reports the candidates a user must not be shown at now.
type Suppressor interface {
	Suppressed(userID string, now time.Time) map[string]struct{}
}

// Adjustment is a per-user override of the user-based weights plus learned
// category affinity in [-1, 1], keyed by lower-cased category.
type Adjustment struct {
	Weights          Weights
	CategoryAffinity map[string]float64
}

type WeightSource interface {
	Adjustment(userID string) (Adjustment, bool)
}

// Result is one ranked answer. Algorithm is the algorithm actually used,
// which differs from the requested one after a fallback.
type Result struct {
	Items          []models.RankedItem
	Algorithm      models.Algorithm
	Degraded       bool
	DegradedReason string
	ComputedAt     time.Time
}

func (r *Result) degrade(reason string) {
	r.Degraded = true
	if r.DegradedReason == "" {
		r.DegradedReason = reason
	}
}

type Orchestrator struct {
	config     *Config
	sim        *similarity.Engine
	pop        *popularity.Tracker
	explainer  *explain.Generator
	catalog    CatalogStore
	profiles   ProfileStore
	suppressor Suppressor
	weights    WeightSource
	snapshots  *lru.Cache[string, []models.Candidate]
	logger     logger.Logger
	now        func() time.Time
}

type Option func(*Orchestrator)

func WithSuppressor(s Suppressor) Option {
	return func(o *Orchestrator) { o.suppressor = s }
}

func WithWeightSource(w WeightSource) Option {
	return func(o *Orchestrator) { o.weights = w }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(
	config *Config,
	catalog CatalogStore,
	profiles ProfileStore,
	pop *popularity.Tracker,
	explainer *explain.Generator,
	log logger.Logger,
	opts ...Option,
) (*Orchestrator, error) {
	if config == nil {
		config = LoadConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring config: %w", err)
	}
	size := config.SnapshotSize
	if size <= 0 {
		size = 1
	}
	snapshots, err := lru.New[string, []models.Candidate](size)
	if err != nil {
		return nil, fmt.Errorf("create snapshot cache: %w", err)
	}
	if pop == nil {
		pop = popularity.NewTracker(nil)
	}
	if explainer == nil {
		explainer = explain.NewGenerator(nil)
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	o := &Orchestrator{
		config:    config,
		sim:       similarity.NewEngine(),
		pop:       pop,
		explainer: explainer,
		catalog:   catalog,
		profiles:  profiles,
		snapshots: snapshots,
		logger:    logger.ForComponent(log, "scoring"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// SetFeedback attaches the cool-down and weight sources after construction.
func (o *Orchestrator) SetFeedback(s Suppressor, w WeightSource) {
	o.suppressor = s
	o.weights = w
}

func (o *Orchestrator) Config() *Config {
	return o.config
}

// Recommend gathers candidates and subject data, then ranks. A failing
// profile source degrades to popularity over fresh candidates; a failing
// catalog degrades to popularity over the last good candidate snapshot for
// the same filters. Without a snapshot the catalog error is returned.
func (o *Orchestrator) Recommend(ctx context.Context, req models.RecommendationRequest) (*Result, error) {
	start := time.Now()
	now := o.now()
	alg := req.Algorithm
	result := &Result{Algorithm: alg, ComputedAt: now}

	candidates, err := o.catalog.GetCandidates(ctx, req.Filters)
	if err != nil {
		snapshot, ok := o.snapshot(req.Filters)
		if !ok {
			if ctx.Err() != nil {
				return nil, errors.NewComputeTimeoutError(err)
			}
			if errors.HasCode(err, errors.ErrCodeUpstreamUnavailable) {
				return nil, err
			}
			return nil, errors.NewUpstreamUnavailableError("catalog", err)
		}
		o.logger.Warn("catalog unavailable, ranking last snapshot by popularity", map[string]interface{}{
			"error":      err,
			"candidates": len(snapshot),
		})
		candidates = snapshot
		alg = models.AlgorithmPopularity
		result.degrade(ReasonCatalogUnavailable)
	} else {
		o.snapshots.Add(req.Filters.CanonicalString(), candidates)
	}

	var subject Subject
	if !result.Degraded {
		switch req.SubjectType {
		case models.SubjectUser:
			if alg != models.AlgorithmPopularity {
				profile, perr := o.profiles.GetProfile(ctx, req.SubjectID)
				if perr != nil {
					reason := ReasonProfileUnavailable
					if errors.HasCode(perr, errors.ErrCodeResourceNotFound) {
						reason = ReasonProfileNotFound
					}
					o.logger.Warn("profile unavailable, falling back to popularity", map[string]interface{}{
						"userId": req.SubjectID,
						"reason": reason,
						"error":  perr,
					})
					alg = models.AlgorithmPopularity
					result.degrade(reason)
				} else {
					subject.Profile = profile
					subject.Seeds = o.historySeeds(ctx, profile)
					if alg == models.AlgorithmProjectSimilarity && len(subject.Seeds) == 0 {
						alg = models.AlgorithmUserBased
					}
				}
			}
		case models.SubjectProject:
			seeds, serr := o.catalog.GetCandidatesByIDs(ctx, []string{req.SubjectID})
			switch {
			case serr != nil:
				o.logger.Warn("seed project unavailable, falling back to popularity", map[string]interface{}{
					"projectId": req.SubjectID,
					"error":     serr,
				})
				alg = models.AlgorithmPopularity
				result.degrade(ReasonCatalogUnavailable)
			case len(seeds) == 0:
				return nil, errors.NewResourceNotFoundError("project", req.SubjectID)
			default:
				subject.Seeds = seeds[:1]
				if alg == models.AlgorithmUserBased {
					alg = models.AlgorithmProjectSimilarity
				}
			}
		}
	}

	o.applyFeedback(&subject, req.UserID(), now)

	req.Algorithm = alg
	result.Algorithm = alg
	result.Items = o.Rank(req, candidates, subject, now)

	o.logger.Debug("ranking completed", map[string]interface{}{
		"subject":    string(req.SubjectType) + ":" + req.SubjectID,
		"algorithm":  string(alg),
		"candidates": len(candidates),
		"returned":   len(result.Items),
		"degraded":   result.Degraded,
		"durationMs": time.Since(start).Milliseconds(),
	})
	return result, nil
}

// Fallback ranks the last candidate snapshot for the request's filters by
// popularity without touching any upstream. It reports false when no
// snapshot exists.
func (o *Orchestrator) Fallback(req models.RecommendationRequest, reason string) (*Result, bool) {
	candidates, ok := o.snapshot(req.Filters)
	if !ok {
		return nil, false
	}
	now := o.now()
	var subject Subject
	o.applyFeedback(&subject, req.UserID(), now)

	req.Algorithm = models.AlgorithmPopularity
	result := &Result{Algorithm: models.AlgorithmPopularity, ComputedAt: now}
	result.degrade(reason)
	result.Items = o.Rank(req, candidates, subject, now)
	return result, true
}

func (o *Orchestrator) applyFeedback(subject *Subject, userID string, now time.Time) {
	if userID == "" {
		return
	}
	if o.suppressor != nil {
		subject.Suppressed = o.suppressor.Suppressed(userID, now)
	}
	if o.weights != nil {
		if adj, ok := o.weights.Adjustment(userID); ok {
			subject.Adjustment = &adj
		}
	}
}

// historySeeds loads the projects the user engaged with. Failures only cost
// the similarity signal.
func (o *Orchestrator) historySeeds(ctx context.Context, profile *models.Profile) []models.Candidate {
	ids := profile.HistoryIDs()
	if len(ids) == 0 {
		return nil
	}
	if limit := o.config.MaxHistorySeeds; limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	seeds, err := o.catalog.GetCandidatesByIDs(ctx, ids)
	if err != nil {
		o.logger.Warn("failed to load history projects", map[string]interface{}{
			"userId": profile.ID,
			"count":  len(ids),
			"error":  err,
		})
		return nil
	}
	return seeds
}

func (o *Orchestrator) snapshot(filters *models.Filters) ([]models.Candidate, bool) {
	return o.snapshots.Get(filters.CanonicalString())
}
