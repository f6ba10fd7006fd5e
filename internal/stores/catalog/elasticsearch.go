package catalog

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	json "github.com/goccy/go-json"

	"project-recommender/internal/common/errors"
	"project-recommender/internal/common/logger"
	"project-recommender/internal/models"
)

// projectDocument is the indexed form of a project.
type projectDocument struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Category      string    `json:"category"`
	Skills        []string  `json:"skills"`
	BudgetMin     float64   `json:"budget_min"`
	BudgetMax     float64   `json:"budget_max"`
	Location      string    `json:"location"`
	WorkType      string    `json:"work_type"`
	RequiredLevel string    `json:"required_level"`
	CreatedAt     time.Time `json:"created_at"`
	Views         int64     `json:"views"`
	Applications  int64     `json:"applications"`
	Bookmarks     int64     `json:"bookmarks"`
}

func (d *projectDocument) candidate(id string) models.Candidate {
	if d.ID != "" {
		id = d.ID
	}
	return models.Candidate{
		ID:            id,
		Title:         d.Title,
		Category:      d.Category,
		Skills:        d.Skills,
		Budget:        models.BudgetRange{Min: d.BudgetMin, Max: d.BudgetMax},
		Location:      d.Location,
		WorkType:      d.WorkType,
		RequiredLevel: models.ExperienceLevel(d.RequiredLevel),
		CreatedAt:     d.CreatedAt,
		Views:         d.Views,
		Applications:  d.Applications,
		Bookmarks:     d.Bookmarks,
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string          `json:"_id"`
			Source projectDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// ElasticsearchStore reads candidates from the search index. Keyword fields
// (category, skills, location, work_type) are expected to be indexed
// lower-cased.
type ElasticsearchStore struct {
	config *Config
	client *elasticsearch.Client
	logger logger.Logger
	now    func() time.Time
}

func NewElasticsearchStore(config *Config, client *elasticsearch.Client, log logger.Logger) *ElasticsearchStore {
	if config == nil {
		config = LoadConfig()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &ElasticsearchStore{
		config: config,
		client: client,
		logger: logger.ForComponent(log, "catalog-elasticsearch"),
		now:    time.Now,
	}
}

func (s *ElasticsearchStore) GetCandidates(ctx context.Context, filters *models.Filters) ([]models.Candidate, error) {
	return s.search(ctx, buildCandidateQuery(filters, s.now()), s.config.MaxCandidates)
}

func (s *ElasticsearchStore) GetCandidatesByIDs(ctx context.Context, ids []string) ([]models.Candidate, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"ids": map[string]interface{}{"values": ids},
		},
	}
	found, err := s.search(ctx, query, len(ids))
	if err != nil {
		return nil, err
	}
	return inOrder(ids, found), nil
}

func (s *ElasticsearchStore) search(ctx context.Context, query map[string]interface{}, size int) ([]models.Candidate, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, errors.NewInternalError(fmt.Errorf("encode search query: %w", err))
	}

	req := esapi.SearchRequest{
		Index: []string{s.config.Index},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, errors.NewUpstreamUnavailableError("catalog-search", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.NewUpstreamUnavailableError("catalog-search", fmt.Errorf("search failed: %s", res.Status()))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, errors.NewUpstreamUnavailableError("catalog-search", fmt.Errorf("decode search response: %w", err))
	}

	out := make([]models.Candidate, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		out = append(out, hit.Source.candidate(hit.ID))
	}
	return out, nil
}

func buildCandidateQuery(f *models.Filters, now time.Time) map[string]interface{} {
	filterClauses := []interface{}{
		map[string]interface{}{"term": map[string]interface{}{"status": "open"}},
	}

	if f != nil {
		if categories := lowerAll(f.Categories); len(categories) > 0 {
			filterClauses = append(filterClauses, map[string]interface{}{
				"terms": map[string]interface{}{"category": categories},
			})
		}
		if skills := lowerAll(f.Skills); len(skills) > 0 {
			filterClauses = append(filterClauses, map[string]interface{}{
				"terms": map[string]interface{}{"skills": skills},
			})
		}
		if loc := strings.ToLower(strings.TrimSpace(f.Location)); loc != "" {
			filterClauses = append(filterClauses, map[string]interface{}{
				"term": map[string]interface{}{"location": loc},
			})
		}
		if wt := strings.ToLower(strings.TrimSpace(f.WorkType)); wt != "" {
			filterClauses = append(filterClauses, map[string]interface{}{
				"term": map[string]interface{}{"work_type": wt},
			})
		}

		// budget ranges overlap: project max >= wanted min and project min <= wanted max
		if f.BudgetMin > 0 {
			filterClauses = append(filterClauses, map[string]interface{}{
				"range": map[string]interface{}{
					"budget_max": map[string]interface{}{"gte": f.BudgetMin},
				},
			})
		}
		if f.BudgetMax > 0 {
			filterClauses = append(filterClauses, map[string]interface{}{
				"range": map[string]interface{}{
					"budget_min": map[string]interface{}{"lte": f.BudgetMax},
				},
			})
		}

		if f.PostedWithinDays > 0 {
			filterClauses = append(filterClauses, map[string]interface{}{
				"range": map[string]interface{}{
					"created_at": map[string]interface{}{"gte": postedSince(f, now).UTC().Format(time.RFC3339)},
				},
			})
		}
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   []interface{}{map[string]interface{}{"match_all": map[string]interface{}{}}},
				"filter": filterClauses,
			},
		},
		"sort": []map[string]interface{}{{"created_at": "desc"}},
	}
}
