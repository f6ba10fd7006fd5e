// Package feedback records user reactions to served recommendations. A
// dislike hides the project for a cool-down and drops it from cached results
// right away; every other signal is folded in the background into per-user
// weight and category-affinity state that later rankings read.
package feedback

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"project-recommender/internal/common/errors"
	"project-recommender/internal/common/logger"
	"project-recommender/internal/models"
	"project-recommender/internal/recommender/scoring"
)

// Cache is the part of the result cache feedback needs.
type Cache interface {
	InvalidateUserCandidate(ctx context.Context, userID, candidateID string) int
	FindItem(userID, candidateID string) (models.RankedItem, bool)
}

type Stats struct {
	Accepted        int64 `json:"accepted"`
	Duplicates      int64 `json:"duplicates"`
	PersistFailures int64 `json:"persistFailures"`
	PublishFailures int64 `json:"publishFailures"`
	Folded          int64 `json:"folded"`
	Users           int   `json:"users"`
	Cooldowns       int   `json:"activeCooldowns"`
}

type dedupeKey struct {
	candidateID string
	action      models.FeedbackAction
	at          int64
}

type userState struct {
	mu       sync.Mutex
	weights  scoring.Weights
	tuned    bool
	affinity map[string]float64
	seen     map[dedupeKey]struct{}
	order    []dedupeKey

	cooldownMu sync.RWMutex
	cooldowns  map[string]time.Time
}

type fold struct {
	event    models.FeedbackEvent
	strength float64
	item     models.RankedItem
	found    bool
}

type Collector struct {
	config    *Config
	base      scoring.Weights
	cache     Cache
	sink      Sink
	publisher Publisher
	logger    logger.Logger
	now       func() time.Time

	users   sync.Map
	queue   chan fold
	workers sync.WaitGroup
	pending sync.WaitGroup
	mu      sync.RWMutex
	closed  bool

	accepted        atomic.Int64
	duplicates      atomic.Int64
	persistFailures atomic.Int64
	publishFailures atomic.Int64
	folded          atomic.Int64
}

type Option func(*Collector)

func WithSink(s Sink) Option {
	return func(c *Collector) { c.sink = s }
}

func WithPublisher(p Publisher) Option {
	return func(c *Collector) { c.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// NewCollector starts the fold workers. base is the user-based weight vector
// learning starts from. Close stops the workers.
func NewCollector(config *Config, base scoring.Weights, cache Cache, log logger.Logger, opts ...Option) *Collector {
	if config == nil {
		config = LoadConfig()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	c := &Collector{
		config: config,
		base:   base,
		cache:  cache,
		logger: logger.ForComponent(log, "feedback"),
		now:    time.Now,
		queue:  make(chan fold, max(config.QueueSize, 0)),
	}
	for _, opt := range opts {
		opt(c)
	}
	for i := 0; i < max(config.Workers, 1); i++ {
		c.workers.Add(1)
		go c.work()
	}
	return c
}

// Record validates, deduplicates and applies one event.
func (c *Collector) Record(ctx context.Context, event models.FeedbackEvent) (*models.FeedbackAck, error) {
	if strings.TrimSpace(event.UserID) == "" {
		return nil, errors.NewUnauthenticatedError("feedback requires an authenticated user")
	}
	if strings.TrimSpace(event.CandidateID) == "" {
		return nil, errors.NewInvalidRequestError("candidateId is required")
	}
	if !event.Action.Valid() {
		return nil, errors.NewInvalidRequestError(fmt.Sprintf("unknown action %q", event.Action))
	}
	if r := event.RelevanceScore; r != nil && (math.IsNaN(*r) || *r < 0 || *r > 1) {
		return nil, errors.NewInvalidRequestError("relevanceScore must be within [0,1]")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = c.now()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	state := c.state(event.UserID)
	key := dedupeKey{candidateID: event.CandidateID, action: event.Action, at: event.Timestamp.UnixNano()}
	if !state.remember(key, c.config.DedupeWindow) {
		c.duplicates.Add(1)
		return &models.FeedbackAck{EventID: event.ID, Accepted: true, Duplicate: true}, nil
	}

	ack := &models.FeedbackAck{EventID: event.ID, Accepted: true}
	if c.sink != nil {
		pctx, cancel := context.WithTimeout(ctx, c.config.PersistTimeout)
		inserted, err := c.sink.Append(pctx, event)
		cancel()
		switch {
		case err != nil:
			c.persistFailures.Add(1)
			c.logger.Error("failed to persist feedback event", map[string]interface{}{
				"eventId": event.ID,
				"userId":  event.UserID,
				"error":   err,
			})
		case !inserted:
			c.duplicates.Add(1)
			ack.Duplicate = true
			ack.Persisted = true
			return ack, nil
		default:
			ack.Persisted = true
		}
	}
	c.accepted.Add(1)

	// the served item is resolved before a dislike drops it from the cache
	f := fold{event: event, strength: c.strength(event)}
	if f.strength != 0 && c.cache != nil {
		f.item, f.found = c.cache.FindItem(event.UserID, event.CandidateID)
	}

	if event.Action == models.ActionDislike {
		state.addCooldown(event.CandidateID, c.now().Add(c.config.CooldownTTL))
		removed := 0
		if c.cache != nil {
			removed = c.cache.InvalidateUserCandidate(ctx, event.UserID, event.CandidateID)
		}
		c.logger.Debug("candidate cooled down", map[string]interface{}{
			"userId":      event.UserID,
			"candidateId": event.CandidateID,
			"invalidated": removed,
		})
	}

	c.publish(ctx, event)

	if f.strength != 0 {
		c.enqueue(f)
	}
	return ack, nil
}

func (c *Collector) publish(ctx context.Context, event models.FeedbackEvent) {
	if c.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, c.config.PersistTimeout)
	defer cancel()
	if err := c.publisher.Publish(pctx, event); err != nil {
		c.publishFailures.Add(1)
		c.logger.Warn("failed to publish feedback event", map[string]interface{}{
			"eventId": event.ID,
			"error":   err,
		})
	}
}

// strength is the configured signal, rescaled by the relevance score when
// the client sent one.
func (c *Collector) strength(event models.FeedbackEvent) float64 {
	s := c.config.Signals[event.Action]
	if event.RelevanceScore != nil && s != 0 {
		s = math.Copysign(*event.RelevanceScore, s)
	}
	return s
}

// enqueue hands the fold to a worker, folding inline when the queue is full
// or the collector is closed.
func (c *Collector) enqueue(f fold) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.pending.Add(1)
	if !c.closed {
		select {
		case c.queue <- f:
			return
		default:
		}
	}
	c.apply(f)
	c.pending.Done()
}

func (c *Collector) work() {
	defer c.workers.Done()
	for f := range c.queue {
		c.apply(f)
		c.pending.Done()
	}
}

// apply moves the user's weights toward the served item's normalized
// contributions and the item's category affinity toward the signal's sign.
func (c *Collector) apply(f fold) {
	defer c.folded.Add(1)
	item := f.item
	if !f.found {
		c.logger.Debug("served item no longer cached, skipping fold", map[string]interface{}{
			"userId":      f.event.UserID,
			"candidateId": f.event.CandidateID,
		})
		return
	}

	state := c.state(f.event.UserID)
	state.mu.Lock()
	defer state.mu.Unlock()

	if category := strings.ToLower(strings.TrimSpace(item.Project.Category)); category != "" {
		rate := math.Min(c.config.AffinityLearningRate*math.Abs(f.strength), 1)
		target := math.Copysign(1, f.strength)
		a := (1-rate)*state.affinity[category] + rate*target
		state.affinity[category] = math.Max(-1, math.Min(1, a))
	}

	if f.strength <= 0 {
		return
	}
	target, ok := targetWeights(item.Breakdown.Contributions)
	if !ok {
		return
	}
	rate := math.Min(c.config.LearningRate*f.strength, 1)
	w := state.weights
	for _, component := range scoring.Components() {
		w.Set(component, (1-rate)*w.Get(component)+rate*target.Get(component))
	}
	state.weights = c.clampWeights(w.Normalized())
	state.tuned = true
}

func targetWeights(contributions map[string]float64) (scoring.Weights, bool) {
	var target scoring.Weights
	for _, component := range scoring.Components() {
		if v := contributions[component]; v > 0 {
			target.Set(component, v)
		}
	}
	if target.Sum() <= 0 {
		return target, false
	}
	return target.Normalized(), true
}

func (c *Collector) clampWeights(w scoring.Weights) scoring.Weights {
	for _, component := range scoring.Components() {
		v := math.Max(c.config.MinWeight, math.Min(c.config.MaxWeight, w.Get(component)))
		w.Set(component, v)
	}
	return w
}

// Adjustment returns the user's learned weights and category affinity.
func (c *Collector) Adjustment(userID string) (scoring.Adjustment, bool) {
	v, ok := c.users.Load(userID)
	if !ok {
		return scoring.Adjustment{}, false
	}
	state := v.(*userState)
	state.mu.Lock()
	defer state.mu.Unlock()
	if !state.tuned && len(state.affinity) == 0 {
		return scoring.Adjustment{}, false
	}
	adj := scoring.Adjustment{
		Weights:          c.base,
		CategoryAffinity: make(map[string]float64, len(state.affinity)),
	}
	if state.tuned {
		adj.Weights = state.weights
	}
	for k, v := range state.affinity {
		adj.CategoryAffinity[k] = v
	}
	return adj, true
}

// Suppressed returns the candidates still cooling down for userID at now.
func (c *Collector) Suppressed(userID string, now time.Time) map[string]struct{} {
	v, ok := c.users.Load(userID)
	if !ok {
		return nil
	}
	state := v.(*userState)
	state.cooldownMu.RLock()
	defer state.cooldownMu.RUnlock()
	var out map[string]struct{}
	for id, until := range state.cooldowns {
		if now.Before(until) {
			if out == nil {
				out = make(map[string]struct{})
			}
			out[id] = struct{}{}
		}
	}
	return out
}

// Sweep drops expired cool-downs and returns how many were removed.
func (c *Collector) Sweep(now time.Time) int {
	removed := 0
	c.users.Range(func(_, v any) bool {
		state := v.(*userState)
		state.cooldownMu.Lock()
		for id, until := range state.cooldowns {
			if !now.Before(until) {
				delete(state.cooldowns, id)
				removed++
			}
		}
		state.cooldownMu.Unlock()
		return true
	})
	return removed
}

// Run sweeps cool-downs until ctx is done.
func (c *Collector) Run(ctx context.Context) {
	if c.config.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(c.now()); n > 0 {
				c.logger.Debug("cool-down sweep", map[string]interface{}{"expired": n})
			}
		}
	}
}

// Wait blocks until every queued fold has been applied.
func (c *Collector) Wait() {
	c.pending.Wait()
}

// Close drains the queue and stops the workers. Later events fold inline.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()
	c.workers.Wait()
}

func (c *Collector) Stats() Stats {
	s := Stats{
		Accepted:        c.accepted.Load(),
		Duplicates:      c.duplicates.Load(),
		PersistFailures: c.persistFailures.Load(),
		PublishFailures: c.publishFailures.Load(),
		Folded:          c.folded.Load(),
	}
	now := c.now()
	c.users.Range(func(_, v any) bool {
		s.Users++
		state := v.(*userState)
		state.cooldownMu.RLock()
		for _, until := range state.cooldowns {
			if now.Before(until) {
				s.Cooldowns++
			}
		}
		state.cooldownMu.RUnlock()
		return true
	})
	return s
}

func (c *Collector) state(userID string) *userState {
	if v, ok := c.users.Load(userID); ok {
		return v.(*userState)
	}
	v, _ := c.users.LoadOrStore(userID, &userState{
		weights:   c.base,
		affinity:  make(map[string]float64),
		seen:      make(map[dedupeKey]struct{}),
		cooldowns: make(map[string]time.Time),
	})
	return v.(*userState)
}

// remember reports false when k was already seen within the window.
func (s *userState) remember(k dedupeKey, window int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[k]; ok {
		return false
	}
	if window > 0 && len(s.order) >= window {
		delete(s.seen, s.order[0])
		s.order = s.order[1:]
	}
	s.seen[k] = struct{}{}
	s.order = append(s.order, k)
	return true
}

func (s *userState) addCooldown(candidateID string, until time.Time) {
	s.cooldownMu.Lock()
	s.cooldowns[candidateID] = until
	s.cooldownMu.Unlock()
}
