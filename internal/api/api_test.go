package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-recommender/internal/common/auth"
	"project-recommender/internal/common/errors"
	"project-recommender/internal/common/logger"
	"project-recommender/internal/models"
	"project-recommender/internal/recommender/service"
)

type fakeRecommender struct {
	mu        sync.Mutex
	requests  []models.RecommendationRequest
	events    []models.FeedbackEvent
	changes   []models.CatalogChange
	recommErr error
}

func (f *fakeRecommender) Recommend(ctx context.Context, req models.RecommendationRequest) (*models.RecommendationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.recommErr != nil {
		return nil, f.recommErr
	}
	return &models.RecommendationResponse{
		Recommendations: []models.RankedItem{{CandidateID: "p1", Rank: 1, Reasons: []string{"Strong skill match"}}},
		Metadata:        models.ResponseMetadata{TotalCount: 1, Algorithm: req.Algorithm},
	}, nil
}

func (f *fakeRecommender) RecordFeedback(ctx context.Context, event models.FeedbackEvent) (*models.FeedbackAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return &models.FeedbackAck{EventID: "evt-1", Accepted: true}, nil
}

func (f *fakeRecommender) CatalogChanged(ctx context.Context, change models.CatalogChange) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, change)
	return 3
}

func (f *fakeRecommender) Stats() service.Stats {
	return service.Stats{Requests: 7}
}

func (f *fakeRecommender) lastRequest(t *testing.T) models.RecommendationRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

type fakeValidator struct {
	tokens map[string]string
}

func (v fakeValidator) ValidateToken(ctx context.Context, token string) (*auth.TokenInfo, error) {
	sub, ok := v.tokens[token]
	if !ok {
		return nil, errors.NewUnauthenticatedError("token is not active")
	}
	return &auth.TokenInfo{Active: true, Sub: sub}, nil
}

func newTestServer(t *testing.T, svc Recommender, identity Identifier, cfg *Config, opts ...Option) *httptest.Server {
	t.Helper()
	srv := NewServer(cfg, svc, identity, logger.NewTestLogger(t), opts...)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func errorCode(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

// ==========================
// Health
// ==========================

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakeRecommender{}, nil, nil)

	resp, body := do(t, http.MethodGet, ts.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "project-recommender", body["service"])
}

func TestReady(t *testing.T) {
	t.Run("all checks pass", func(t *testing.T) {
		ts := newTestServer(t, &fakeRecommender{}, nil, nil,
			WithReadinessCheck("redis", func(ctx context.Context) error { return nil }))

		resp, body := do(t, http.MethodGet, ts.URL+"/ready", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ready", body["status"])
	})

	t.Run("failing check", func(t *testing.T) {
		ts := newTestServer(t, &fakeRecommender{}, nil, nil,
			WithReadinessCheck("redis", func(ctx context.Context) error { return nil }),
			WithReadinessCheck("postgres", func(ctx context.Context) error { return assert.AnError }))

		resp, body := do(t, http.MethodGet, ts.URL+"/ready", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "not_ready", body["status"])
		checks := body["checks"].(map[string]interface{})
		assert.Equal(t, "ok", checks["redis"])
		assert.Equal(t, assert.AnError.Error(), checks["postgres"])
	})
}

func TestMetricsHandler(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"scraped"}`))
	})
	ts := newTestServer(t, &fakeRecommender{}, nil, nil, WithMetricsHandler(metrics))

	resp, body := do(t, http.MethodGet, ts.URL+"/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "scraped", body["status"])
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, &fakeRecommender{}, nil, nil)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, string(errors.ErrCodeResourceNotFound), errorCode(body))
}

// ==========================
// Recommendations
// ==========================

func TestPostRecommendations_DefaultsSubjectToCaller(t *testing.T) {
	svc := &fakeRecommender{}
	ts := newTestServer(t, svc, nil, nil)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/v1/recommendations",
		`{"algorithm":"hybrid","limit":5,"filters":{"skills":["Go"]}}`,
		map[string]string{"X-User-ID": "u1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["recommendations"], 1)

	req := svc.lastRequest(t)
	assert.Equal(t, models.SubjectUser, req.SubjectType)
	assert.Equal(t, "u1", req.SubjectID)
	assert.Equal(t, models.AlgorithmHybrid, req.Algorithm)
	assert.Equal(t, 5, req.Limit)
	require.NotNil(t, req.Filters)
	assert.Equal(t, []string{"Go"}, req.Filters.Skills)
}

func TestPostRecommendations_ExplicitSubject(t *testing.T) {
	svc := &fakeRecommender{}
	ts := newTestServer(t, svc, nil, nil)

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/v1/recommendations",
		`{"subjectType":"project","subjectId":"p9"}`, map[string]string{"X-User-ID": "u1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req := svc.lastRequest(t)
	assert.Equal(t, models.SubjectProject, req.SubjectType)
	assert.Equal(t, "p9", req.SubjectID)
}

func TestPostRecommendations_RejectsBadBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"limit":`},
		{"wrong type", `{"limit":"ten"}`},
		{"unknown field", `{"colour":"blue"}`},
		{"unknown filter", `{"filters":{"mood":"happy"}}`},
	}

	svc := &fakeRecommender{}
	ts := newTestServer(t, svc, nil, nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, ts.URL+"/api/v1/recommendations", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, string(errors.ErrCodeInvalidRequest), errorCode(body))
		})
	}
	assert.Empty(t, svc.requests)
}

func TestPostRecommendations_BodyTooLarge(t *testing.T) {
	cfg := LoadConfig()
	cfg.MaxBodyBytes = 16
	ts := newTestServer(t, &fakeRecommender{}, nil, cfg)

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/v1/recommendations",
		`{"subjectId":"`+strings.Repeat("x", 64)+`"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUserRecommendations_QueryParameters(t *testing.T) {
	svc := &fakeRecommender{}
	ts := newTestServer(t, svc, nil, nil)

	resp, _ := do(t, http.MethodGet,
		ts.URL+"/api/v1/users/u42/recommendations?algorithm=popularity&limit=3&exclude=p1,p2&exclude=p3&skills=Go&location=Berlin&budgetMin=100&postedWithinDays=7",
		"", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req := svc.lastRequest(t)
	assert.Equal(t, models.SubjectUser, req.SubjectType)
	assert.Equal(t, "u42", req.SubjectID)
	assert.Equal(t, models.AlgorithmPopularity, req.Algorithm)
	assert.Equal(t, 3, req.Limit)
	assert.Equal(t, []string{"p1", "p2", "p3"}, req.ExcludeIDs)
	require.NotNil(t, req.Filters)
	assert.Equal(t, []string{"Go"}, req.Filters.Skills)
	assert.Equal(t, "Berlin", req.Filters.Location)
	assert.Equal(t, 100.0, req.Filters.BudgetMin)
	assert.Equal(t, 7, req.Filters.PostedWithinDays)
}

func TestUserRecommendations_NoFilters(t *testing.T) {
	svc := &fakeRecommender{}
	ts := newTestServer(t, svc, nil, nil)

	resp, _ := do(t, http.MethodGet, ts.URL+"/api/v1/users/u1/recommendations", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, svc.lastRequest(t).Filters)
}

func TestUserRecommendations_BadLimit(t *testing.T) {
	ts := newTestServer(t, &fakeRecommender{}, nil, nil)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/users/u1/recommendations?limit=many", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(errors.ErrCodeInvalidRequest), errorCode(body))
}

func TestSimilarProjects(t *testing.T) {
	svc := &fakeRecommender{}
	ts := newTestServer(t, svc, nil, nil)

	resp, _ := do(t, http.MethodGet, ts.URL+"/api/v1/projects/p7/similar?limit=4", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req := svc.lastRequest(t)
	assert.Equal(t, models.SubjectProject, req.SubjectType)
	assert.Equal(t, "p7", req.SubjectID)
	assert.Equal(t, models.AlgorithmProjectSimilarity, req.Algorithm)
	assert.Equal(t, 4, req.Limit)
}

func TestRecommendations_ServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", errors.NewResourceNotFoundError("profile", "u1"), http.StatusNotFound},
		{"timeout", errors.NewComputeTimeoutError(context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"upstream", errors.NewUpstreamUnavailableError("catalog", assert.AnError), http.StatusServiceUnavailable},
		{"invalid", errors.NewInvalidRequestError("limit out of range"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &fakeRecommender{recommErr: tt.err}, nil, nil)
			resp, _ := do(t, http.MethodGet, ts.URL+"/api/v1/users/u1/recommendations", "", nil)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestStats(t *testing.T) {
	ts := newTestServer(t, &fakeRecommender{}, nil, nil)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/recommendations/stats", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 7.0, body["requests"])
}

// ==========================
// Feedback
// ==========================

func TestFeedback_RequiresIdentity(t *testing.T) {
	svc := &fakeRecommender{}
	ts := newTestServer(t, svc, nil, nil)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/v1/feedback", `{"candidateId":"p1","action":"like"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, string(errors.ErrCodeUnauthenticated), errorCode(body))
	assert.Empty(t, svc.events)
}

func TestFeedback_Accepted(t *testing.T) {
	svc := &fakeRecommender{}
	ts := newTestServer(t, svc, nil, nil)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/v1/feedback",
		`{"candidateId":"p1","action":"like","relevanceScore":0.8}`,
		map[string]string{"X-User-ID": "u1"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "evt-1", body["eventId"])

	require.Len(t, svc.events, 1)
	event := svc.events[0]
	assert.Equal(t, "u1", event.UserID)
	assert.Equal(t, "p1", event.CandidateID)
	assert.Equal(t, models.ActionLike, event.Action)
	require.NotNil(t, event.RelevanceScore)
	assert.Equal(t, 0.8, *event.RelevanceScore)
	assert.True(t, event.Timestamp.IsZero())
}

func TestFeedback_RejectsBadBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing action", `{"candidateId":"p1"}`},
		{"unknown action", `{"candidateId":"p1","action":"poke"}`},
		{"score out of range", `{"candidateId":"p1","action":"like","relevanceScore":1.5}`},
		{"empty candidate", `{"candidateId":"","action":"like"}`},
	}

	ts := newTestServer(t, &fakeRecommender{}, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := do(t, http.MethodPost, ts.URL+"/api/v1/feedback", tt.body, map[string]string{"X-User-ID": "u1"})
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestFeedback_RateLimitedPerUser(t *testing.T) {
	cfg := LoadConfig()
	cfg.FeedbackRateLimit = 2
	cfg.FeedbackRateWindow = time.Minute
	svc := &fakeRecommender{}
	ts := newTestServer(t, svc, nil, cfg)

	body := `{"candidateId":"p1","action":"click"}`
	for i := 0; i < 2; i++ {
		resp, _ := do(t, http.MethodPost, ts.URL+"/api/v1/feedback", body, map[string]string{"X-User-ID": "u1"})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}

	resp, out := do(t, http.MethodPost, ts.URL+"/api/v1/feedback", body, map[string]string{"X-User-ID": "u1"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, string(errors.ErrCodeRateLimited), errorCode(out))

	// other users have their own budget
	resp, _ = do(t, http.MethodPost, ts.URL+"/api/v1/feedback", body, map[string]string{"X-User-ID": "u2"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Len(t, svc.events, 3)
}

// ==========================
// Catalog changes
// ==========================

func TestCatalogChanged(t *testing.T) {
	svc := &fakeRecommender{}
	ts := newTestServer(t, svc, nil, nil)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/v1/catalog/changes", `{"categories":["backend"]}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3.0, body["invalidated"])
	require.Len(t, svc.changes, 1)
	assert.Equal(t, []string{"backend"}, svc.changes[0].Categories)
}

func TestCatalogChanged_EmptyBodyIsUnscoped(t *testing.T) {
	svc := &fakeRecommender{}
	ts := newTestServer(t, svc, nil, nil)

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/v1/catalog/changes", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, svc.changes, 1)
	assert.False(t, svc.changes[0].Scoped())
}

// ==========================
// Token identity
// ==========================

func TestTokenIdentity(t *testing.T) {
	svc := &fakeRecommender{}
	identity := TokenIdentity{Validator: fakeValidator{tokens: map[string]string{"good": "u-token"}}}
	ts := newTestServer(t, svc, identity, nil)

	t.Run("valid bearer", func(t *testing.T) {
		resp, _ := do(t, http.MethodPost, ts.URL+"/api/v1/feedback", `{"candidateId":"p1","action":"bookmark"}`,
			map[string]string{"Authorization": "Bearer good"})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		require.NotEmpty(t, svc.events)
		assert.Equal(t, "u-token", svc.events[len(svc.events)-1].UserID)
	})

	t.Run("rejected token", func(t *testing.T) {
		resp, _ := do(t, http.MethodGet, ts.URL+"/api/v1/users/u1/recommendations", "",
			map[string]string{"Authorization": "Bearer bad"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		resp, _ := do(t, http.MethodGet, ts.URL+"/api/v1/users/u1/recommendations", "",
			map[string]string{"Authorization": "Basic dTpw"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("anonymous read", func(t *testing.T) {
		resp, _ := do(t, http.MethodGet, ts.URL+"/api/v1/users/u1/recommendations", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
