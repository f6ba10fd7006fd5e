// Package cache memoizes ranked results per request shape. Keys are spread
// over shards; each shard has its own lock, LRU and single-flight group, so
// unrelated keys never contend.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"

	"project-recommender/internal/common/logger"
	"project-recommender/internal/models"
)

// ComputeFunc produces the value for a missing key. The context it receives
// is detached from the caller and bounded by ComputeTimeout.
type ComputeFunc func(ctx context.Context) (*Value, error)

// Remote is a second-level store shared across replicas.
type Remote interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, entry *Entry) error
	DeleteUser(ctx context.Context, userID string) error
	Purge(ctx context.Context) error
}

type Lookup struct {
	Entry Entry
	// Hit is set when the entry was served without waiting on a computation.
	Hit bool
	// Shared is set when the caller joined a computation started by another.
	Shared bool
}

type Stats struct {
	Size          int     `json:"size"`
	Capacity      int     `json:"capacity"`
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	SharedJoins   int64   `json:"sharedJoins"`
	Evictions     int64   `json:"evictions"`
	Invalidations int64   `json:"invalidations"`
	RemoteErrors  int64   `json:"remoteErrors"`
	HitRate       float64 `json:"hitRate"`
}

type stored struct {
	entry Entry
	hits  atomic.Int64
}

type shard struct {
	mu      sync.Mutex
	entries *simplelru.LRU[string, *stored]
	group   singleflight.Group
}

type Layer struct {
	config   *Config
	shards   []*shard
	perShard int
	remote   Remote
	logger   logger.Logger
	now      func() time.Time

	hits          atomic.Int64
	misses        atomic.Int64
	shared        atomic.Int64
	evictions     atomic.Int64
	invalidations atomic.Int64
	remoteErrors  atomic.Int64
}

type Option func(*Layer)

func WithRemote(r Remote) Option {
	return func(l *Layer) { l.remote = r }
}

func WithClock(now func() time.Time) Option {
	return func(l *Layer) { l.now = now }
}

func NewLayer(config *Config, log logger.Logger, opts ...Option) (*Layer, error) {
	if config == nil {
		config = LoadConfig()
	}
	if config.Shards <= 0 {
		return nil, fmt.Errorf("cache shards must be > 0")
	}
	if config.Capacity < config.Shards {
		return nil, fmt.Errorf("cache capacity %d must be >= shards %d", config.Capacity, config.Shards)
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	perShard := (config.Capacity + config.Shards - 1) / config.Shards
	l := &Layer{
		config:   config,
		shards:   make([]*shard, config.Shards),
		perShard: perShard,
		logger:   logger.ForComponent(log, "cache"),
		now:      time.Now,
	}
	for i := range l.shards {
		entries, err := simplelru.NewLRU[string, *stored](perShard, nil)
		if err != nil {
			return nil, fmt.Errorf("create shard %d: %w", i, err)
		}
		l.shards[i] = &shard{entries: entries}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Layer) shardFor(key string) *shard {
	return l.shards[xxhash.Sum64String(key)%uint64(len(l.shards))]
}

// GetOrCompute returns the fresh entry for key, computing it at most once
// across concurrent callers. A caller whose context ends gets ctx.Err(); the
// computation carries on and populates the cache for later callers.
func (l *Layer) GetOrCompute(ctx context.Context, key string, req models.RecommendationRequest, compute ComputeFunc) (*Lookup, error) {
	sh := l.shardFor(key)
	if e, ok := l.fresh(sh, key); ok {
		l.hits.Add(1)
		return &Lookup{Entry: e, Hit: true}, nil
	}
	l.misses.Add(1)

	ch := sh.group.DoChan(key, func() (interface{}, error) {
		detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.config.ComputeTimeout)
		defer cancel()

		if e, ok := l.fresh(sh, key); ok {
			return e, nil
		}
		if e := l.remoteGet(detached, key); e != nil {
			l.put(sh, e)
			return *e, nil
		}

		value, err := compute(detached)
		if err != nil {
			return nil, err
		}
		entry := l.store(sh, key, req, value)
		l.remoteSet(detached, &entry)
		return entry, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			l.shared.Add(1)
		}
		e := res.Val.(Entry)
		return &Lookup{Entry: e.clone(), Shared: res.Shared}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Layer) fresh(sh *shard, key string) (Entry, bool) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.entries.Get(key)
	if !ok || !s.entry.Fresh(l.now()) {
		return Entry{}, false
	}
	e := s.entry.clone()
	e.HitCount = s.hits.Add(1)
	return e, true
}

func (l *Layer) store(sh *shard, key string, req models.RecommendationRequest, v *Value) Entry {
	now := l.now()
	ttl := l.config.TTL
	if v.Degraded {
		ttl = l.config.DegradedTTL
	}
	entry := Entry{
		Key:       key,
		Request:   req,
		Value:     *v,
		TTL:       ttl,
		ExpiresAt: now.Add(ttl),
	}
	if entry.ComputedAt.IsZero() {
		entry.ComputedAt = now
	}
	entry = entry.clone()
	if ttl > 0 {
		l.put(sh, &entry)
	}
	return entry
}

func (l *Layer) put(sh *shard, e *Entry) {
	sh.mu.Lock()
	evicted := sh.entries.Add(e.Key, &stored{entry: e.clone()})
	sh.mu.Unlock()
	if evicted {
		l.evictions.Add(1)
	}
}

// GetStale returns the entry for key even when expired, as long as it is
// within MaxStale of its expiry.
func (l *Layer) GetStale(key string) (*Entry, bool) {
	sh := l.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.entries.Peek(key)
	if !ok || !l.now().Before(s.entry.ExpiresAt.Add(l.config.MaxStale)) {
		return nil, false
	}
	e := s.entry.clone()
	e.HitCount = s.hits.Load()
	return &e, true
}

// Invalidate removes every local entry matching pred. pred must not retain or
// modify the entry.
func (l *Layer) Invalidate(pred func(*Entry) bool) int {
	removed := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		for _, key := range sh.entries.Keys() {
			if s, ok := sh.entries.Peek(key); ok && pred(&s.entry) {
				sh.entries.Remove(key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	l.invalidations.Add(int64(removed))
	return removed
}

// InvalidateUserCandidate drops the user's entries that contain candidateID.
// The remote store only indexes by user, so all of the user's remote entries go.
func (l *Layer) InvalidateUserCandidate(ctx context.Context, userID, candidateID string) int {
	removed := l.Invalidate(func(e *Entry) bool {
		return e.Request.UserID() == userID && e.contains(candidateID)
	})
	if l.remote != nil {
		if err := l.remote.DeleteUser(ctx, userID); err != nil {
			l.remoteFailed("delete user entries", err)
		}
	}
	return removed
}

// InvalidateCatalogChange drops entries touching the changed categories or
// skills, either through their items or their filters. An unscoped change
// clears everything.
func (l *Layer) InvalidateCatalogChange(ctx context.Context, change models.CatalogChange) int {
	var removed int
	if !change.Scoped() {
		removed = l.Purge()
	} else {
		categories := lowerSet(change.Categories)
		skills := lowerSet(change.Skills)
		removed = l.Invalidate(func(e *Entry) bool {
			return touches(e, categories, skills)
		})
	}
	if l.remote != nil {
		if err := l.remote.Purge(ctx); err != nil {
			l.remoteFailed("purge", err)
		}
	}
	l.logger.Info("catalog change invalidated cache", map[string]interface{}{
		"categories": change.Categories,
		"skills":     change.Skills,
		"removed":    removed,
	})
	return removed
}

func touches(e *Entry, categories, skills map[string]struct{}) bool {
	if f := e.Request.Filters; f != nil {
		if anyIn(f.Categories, categories) || anyIn(f.Skills, skills) {
			return true
		}
	}
	for i := range e.Items {
		p := &e.Items[i].Project
		if _, ok := categories[strings.ToLower(strings.TrimSpace(p.Category))]; ok {
			return true
		}
		if anyIn(p.Skills, skills) {
			return true
		}
	}
	return false
}

// Purge clears every local entry.
func (l *Layer) Purge() int {
	removed := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		removed += sh.entries.Len()
		sh.entries.Purge()
		sh.mu.Unlock()
	}
	l.invalidations.Add(int64(removed))
	return removed
}

// EvictIfOverCapacity drops entries past MaxStale and trims shards back to
// their capacity.
func (l *Layer) EvictIfOverCapacity() int {
	now := l.now()
	evicted := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		for _, key := range sh.entries.Keys() {
			if s, ok := sh.entries.Peek(key); ok && !now.Before(s.entry.ExpiresAt.Add(l.config.MaxStale)) {
				sh.entries.Remove(key)
				evicted++
			}
		}
		for sh.entries.Len() > l.perShard {
			sh.entries.RemoveOldest()
			evicted++
		}
		sh.mu.Unlock()
	}
	l.evictions.Add(int64(evicted))
	return evicted
}

// FindItem returns the most recently computed copy of candidateID served to
// userID.
func (l *Layer) FindItem(userID, candidateID string) (models.RankedItem, bool) {
	var (
		found    models.RankedItem
		foundAt  time.Time
		hasFound bool
	)
	for _, sh := range l.shards {
		sh.mu.Lock()
		for _, s := range sh.entries.Values() {
			if s.entry.Request.UserID() != userID {
				continue
			}
			if hasFound && !s.entry.ComputedAt.After(foundAt) {
				continue
			}
			for i := range s.entry.Items {
				if s.entry.Items[i].CandidateID == candidateID {
					found, foundAt, hasFound = s.entry.Items[i], s.entry.ComputedAt, true
					break
				}
			}
		}
		sh.mu.Unlock()
	}
	return found, hasFound
}

func (l *Layer) Stats() Stats {
	size := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		size += sh.entries.Len()
		sh.mu.Unlock()
	}
	hits, misses := l.hits.Load(), l.misses.Load()
	rate := 0.0
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}
	return Stats{
		Size:          size,
		Capacity:      l.perShard * len(l.shards),
		Hits:          hits,
		Misses:        misses,
		SharedJoins:   l.shared.Load(),
		Evictions:     l.evictions.Load(),
		Invalidations: l.invalidations.Load(),
		RemoteErrors:  l.remoteErrors.Load(),
		HitRate:       rate,
	}
}

// Run sweeps expired entries until ctx is done.
func (l *Layer) Run(ctx context.Context) {
	if l.config.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(l.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.EvictIfOverCapacity(); n > 0 {
				l.logger.Debug("cache sweep", map[string]interface{}{"evicted": n})
			}
		}
	}
}

func (l *Layer) remoteGet(ctx context.Context, key string) *Entry {
	if l.remote == nil {
		return nil
	}
	e, err := l.remote.Get(ctx, key)
	if err != nil {
		l.remoteFailed("get", err)
		return nil
	}
	if e == nil || e.Key != key || !e.Fresh(l.now()) {
		return nil
	}
	return e
}

func (l *Layer) remoteSet(ctx context.Context, e *Entry) {
	if l.remote == nil || e.TTL <= 0 {
		return
	}
	if err := l.remote.Set(ctx, e); err != nil {
		l.remoteFailed("set", err)
	}
}

func (l *Layer) remoteFailed(op string, err error) {
	l.remoteErrors.Add(1)
	l.logger.Warn("remote cache unavailable", map[string]interface{}{
		"op":    op,
		"error": err,
	})
}

func lowerSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

func anyIn(values []string, set map[string]struct{}) bool {
	if len(set) == 0 {
		return false
	}
	for _, v := range values {
		if _, ok := set[strings.ToLower(strings.TrimSpace(v))]; ok {
			return true
		}
	}
	return false
}
