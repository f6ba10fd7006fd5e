package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"project-recommender/internal/common/errors"
	"project-recommender/internal/common/logger"
	"project-recommender/internal/models"
)

const projectColumns = `id, title, category, skills, budget_min, budget_max, location, work_type,
		required_level, created_at, views, applications, bookmarks`

type PostgresStore struct {
	config *Config
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

func NewPostgresStore(config *Config, db *sql.DB, log logger.Logger) *PostgresStore {
	if config == nil {
		config = LoadConfig()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &PostgresStore{
		config: config,
		db:     db,
		logger: logger.ForComponent(log, "catalog-postgres"),
		now:    time.Now,
	}
}

func (s *PostgresStore) GetCandidates(ctx context.Context, filters *models.Filters) ([]models.Candidate, error) {
	query, args := s.buildQuery(filters)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewUpstreamUnavailableError("catalog", err)
	}
	defer rows.Close()

	candidates, err := scanCandidates(rows)
	if err != nil {
		return nil, errors.NewUpstreamUnavailableError("catalog", err)
	}
	s.logger.Debug("candidates loaded", map[string]interface{}{
		"filters": filters.CanonicalString(),
		"count":   len(candidates),
	})
	return candidates, nil
}

func (s *PostgresStore) GetCandidatesByIDs(ctx context.Context, ids []string) ([]models.Candidate, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ANY($1)`, projectColumns, s.config.Table)
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, errors.NewUpstreamUnavailableError("catalog", err)
	}
	defer rows.Close()

	found, err := scanCandidates(rows)
	if err != nil {
		return nil, errors.NewUpstreamUnavailableError("catalog", err)
	}
	return inOrder(ids, found), nil
}

func (s *PostgresStore) buildQuery(f *models.Filters) (string, []interface{}) {
	conditions := []string{"status = 'open'"}
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f != nil {
		if categories := lowerAll(f.Categories); len(categories) > 0 {
			conditions = append(conditions, "lower(category) = ANY("+arg(pq.Array(categories))+")")
		}
		if skills := lowerAll(f.Skills); len(skills) > 0 {
			conditions = append(conditions,
				"EXISTS (SELECT 1 FROM unnest(skills) AS s WHERE lower(s) = ANY("+arg(pq.Array(skills))+"))")
		}
		if loc := strings.TrimSpace(f.Location); loc != "" {
			conditions = append(conditions, "lower(location) = "+arg(strings.ToLower(loc)))
		}
		if wt := strings.TrimSpace(f.WorkType); wt != "" {
			conditions = append(conditions, "lower(work_type) = "+arg(strings.ToLower(wt)))
		}
		if f.BudgetMin > 0 {
			conditions = append(conditions, "(budget_max = 0 OR budget_max >= "+arg(f.BudgetMin)+")")
		}
		if f.BudgetMax > 0 {
			conditions = append(conditions, "(budget_min = 0 OR budget_min <= "+arg(f.BudgetMax)+")")
		}
		if f.PostedWithinDays > 0 {
			conditions = append(conditions, "created_at >= "+arg(postedSince(f, s.now()).UTC()))
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY created_at DESC LIMIT %s`,
		projectColumns, s.config.Table, strings.Join(conditions, " AND "), arg(s.config.MaxCandidates))
	return query, args
}

func scanCandidates(rows *sql.Rows) ([]models.Candidate, error) {
	var out []models.Candidate
	for rows.Next() {
		var (
			c                         models.Candidate
			location, workType, level sql.NullString
		)
		err := rows.Scan(
			&c.ID, &c.Title, &c.Category, pq.Array(&c.Skills),
			&c.Budget.Min, &c.Budget.Max, &location, &workType, &level,
			&c.CreatedAt, &c.Views, &c.Applications, &c.Bookmarks,
		)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		c.Location = location.String
		c.WorkType = workType.String
		c.RequiredLevel = models.ExperienceLevel(level.String)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
