package profile

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"project-recommender/internal/common/errors"
	"project-recommender/internal/common/logger"
	"project-recommender/internal/models"
)

const (
	relationApplied    = "applied"
	relationBookmarked = "bookmarked"
	relationCompleted  = "completed"
)

// PostgresStore reads profiles from Postgres through an optional Redis
// read-through cache. Redis failures only cost the cache.
type PostgresStore struct {
	config *Config
	db     *sql.DB
	redis  *redis.Client
	logger logger.Logger
}

func NewPostgresStore(config *Config, db *sql.DB, redis *redis.Client, log logger.Logger) *PostgresStore {
	if config == nil {
		config = LoadConfig()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &PostgresStore{
		config: config,
		db:     db,
		redis:  redis,
		logger: logger.ForComponent(log, "profile-postgres"),
	}
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	cacheKey := s.config.CachePrefix + userID
	if s.redis != nil {
		if val, err := s.redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var profile models.Profile
			if err := json.Unmarshal(val, &profile); err == nil {
				return &profile, nil
			}
		} else if !stderrors.Is(err, redis.Nil) {
			s.logger.Warn("profile cache read failed", map[string]interface{}{
				"userId": userID,
				"error":  err,
			})
		}
	}

	profile, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		data, _ := json.Marshal(profile)
		if err := s.redis.Set(ctx, cacheKey, data, s.config.CacheTTL).Err(); err != nil {
			s.logger.Warn("profile cache write failed", map[string]interface{}{
				"userId": userID,
				"error":  err,
			})
		}
	}
	return profile, nil
}

// Forget drops the cached copy of a profile after it changed upstream.
func (s *PostgresStore) Forget(ctx context.Context, userID string) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Del(ctx, s.config.CachePrefix+userID).Err()
}

func (s *PostgresStore) load(ctx context.Context, userID string) (*models.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, skills, experience_level, budget_min, budget_max, location, work_type, categories
		FROM user_profiles WHERE id = $1`, userID)

	var (
		profile              models.Profile
		level, loc, wt       sql.NullString
		budgetMin, budgetMax sql.NullFloat64
	)
	err := row.Scan(&profile.ID, pq.Array(&profile.Skills), &level, &budgetMin, &budgetMax,
		&loc, &wt, pq.Array(&profile.Categories))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewResourceNotFoundError("profile", userID)
	}
	if err != nil {
		return nil, errors.NewUpstreamUnavailableError("profile", err)
	}
	profile.ExperienceLevel = models.ExperienceLevel(level.String)
	profile.PreferredBudget = models.BudgetRange{Min: budgetMin.Float64, Max: budgetMax.Float64}
	profile.Location = loc.String
	profile.WorkType = wt.String

	if err := s.loadHistory(ctx, &profile); err != nil {
		return nil, errors.NewUpstreamUnavailableError("profile", err)
	}
	return &profile, nil
}

func (s *PostgresStore) loadHistory(ctx context.Context, profile *models.Profile) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, relation FROM user_project_relations
		WHERE user_id = $1 ORDER BY created_at DESC`, profile.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var projectID, relation string
		if err := rows.Scan(&projectID, &relation); err != nil {
			return fmt.Errorf("scan relation: %w", err)
		}
		switch relation {
		case relationApplied:
			profile.AppliedProjectIDs = append(profile.AppliedProjectIDs, projectID)
		case relationBookmarked:
			profile.BookmarkedProjectIDs = append(profile.BookmarkedProjectIDs, projectID)
		case relationCompleted:
			profile.CompletedProjectIDs = append(profile.CompletedProjectIDs, projectID)
		}
	}
	return rows.Err()
}
