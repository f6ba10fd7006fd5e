// test/e2e/e2e_test.go
package e2e

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-recommender/internal/app"
	"project-recommender/internal/common/config"
	"project-recommender/internal/common/database"
	"project-recommender/internal/common/logger"
	"project-recommender/internal/models"
)

// repoRoot locates the seed data relative to this file.
func repoRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..")
}

func writeConfig(t *testing.T, redisAddr string) *config.Config {
	t.Helper()
	root := repoRoot(t)
	yaml := fmt.Sprintf(`
app:
  name: project-recommender
  version: e2e
  environment: test
stores:
  catalog:
    backend: memory
    seed_path: %s
  profile:
    backend: memory
    seed_path: %s
database:
  redis:
    address: %s
recommender:
  request_timeout: 2000
cache:
  remote_enabled: true
  remote_prefix: "e2e:"
feedback:
  persist: false
auth:
  mode: header
logging:
  level: debug
  format: console
`, filepath.Join(root, "data", "catalog.json"), filepath.Join(root, "data", "profiles.json"), redisAddr)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	return cfg
}

type replica struct {
	server *httptest.Server
}

func startReplica(t *testing.T, cfg *config.Config) *replica {
	t.Helper()
	redis := database.NewRedis(cfg.Database.Redis)
	t.Cleanup(func() { _ = redis.Close() })

	engine, err := app.New(cfg, app.Connections{Redis: redis}, logger.NewTestLogger(t),
		app.WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	engine.Run(t.Context())
	t.Cleanup(engine.Close)

	ts := httptest.NewServer(engine.Handler)
	t.Cleanup(ts.Close)
	return &replica{server: ts}
}

func (r *replica) do(t *testing.T, method, path, userID, body string, out interface{}) int {
	t.Helper()
	req, err := http.NewRequest(method, r.server.URL+path, bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func ids(resp models.RecommendationResponse) []string {
	out := make([]string, len(resp.Recommendations))
	for i, item := range resp.Recommendations {
		out[i] = item.CandidateID
	}
	return out
}

func TestRecommendationFlow(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := writeConfig(t, mr.Addr())
	r := startReplica(t, cfg)

	// ==========================
	// First request computes
	// ==========================
	var first models.RecommendationResponse
	status := r.do(t, http.MethodGet, "/api/v1/users/u-1/recommendations?limit=5", "", "", &first)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, first.Recommendations)
	assert.False(t, first.Metadata.CacheHit)
	assert.Equal(t, models.AlgorithmHybrid, first.Metadata.Algorithm)
	assert.LessOrEqual(t, len(first.Recommendations), 5)
	assert.NotContains(t, ids(first), "p-1001", "applied projects are not recommended again")
	assert.NotEmpty(t, first.Recommendations[0].Reasons)
	for i, item := range first.Recommendations {
		assert.Equal(t, i+1, item.Rank)
		assert.GreaterOrEqual(t, item.Breakdown.Total, 0.0)
		assert.LessOrEqual(t, item.Breakdown.Total, 1.0)
	}

	var remoteKeys int
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, "e2e:entry:") {
			remoteKeys++
		}
	}
	assert.Equal(t, 1, remoteKeys)

	// ==========================
	// Same request is a cache hit
	// ==========================
	var second models.RecommendationResponse
	status = r.do(t, http.MethodGet, "/api/v1/users/u-1/recommendations?limit=5", "", "", &second)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, second.Metadata.CacheHit)
	assert.Equal(t, ids(first), ids(second))

	// ==========================
	// Dislike hides the item
	// ==========================
	disliked := first.Recommendations[0].CandidateID
	var ack models.FeedbackAck
	status = r.do(t, http.MethodPost, "/api/v1/feedback", "u-1",
		fmt.Sprintf(`{"candidateId":%q,"action":"dislike"}`, disliked), &ack)
	require.Equal(t, http.StatusAccepted, status)
	assert.True(t, ack.Accepted)
	assert.NotEmpty(t, ack.EventID)

	var third models.RecommendationResponse
	status = r.do(t, http.MethodGet, "/api/v1/users/u-1/recommendations?limit=5", "", "", &third)
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, ids(third), disliked)

	// ==========================
	// Catalog change invalidates
	// ==========================
	var change struct {
		Invalidated int `json:"invalidated"`
	}
	status = r.do(t, http.MethodPost, "/api/v1/catalog/changes", "", `{}`, &change)
	require.Equal(t, http.StatusOK, status)
	assert.GreaterOrEqual(t, change.Invalidated, 1)

	var fourth models.RecommendationResponse
	status = r.do(t, http.MethodGet, "/api/v1/users/u-1/recommendations?limit=5", "", "", &fourth)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, fourth.Metadata.CacheHit)
	assert.NotContains(t, ids(fourth), disliked)
}

func TestSimilarProjects(t *testing.T) {
	mr := miniredis.RunT(t)
	r := startReplica(t, writeConfig(t, mr.Addr()))

	var resp models.RecommendationResponse
	status := r.do(t, http.MethodGet, "/api/v1/projects/p-1001/similar?limit=3", "", "", &resp)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, resp.Recommendations)
	assert.Equal(t, models.AlgorithmProjectSimilarity, resp.Metadata.Algorithm)
	assert.NotContains(t, ids(resp), "p-1001")
	assert.LessOrEqual(t, len(resp.Recommendations), 3)

	status = r.do(t, http.MethodGet, "/api/v1/projects/p-missing/similar", "", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUnknownUserFallsBackToPopularity(t *testing.T) {
	mr := miniredis.RunT(t)
	r := startReplica(t, writeConfig(t, mr.Addr()))

	var resp models.RecommendationResponse
	status := r.do(t, http.MethodGet, "/api/v1/users/u-unknown/recommendations", "", "", &resp)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Metadata.Degraded)
	assert.Equal(t, models.AlgorithmPopularity, resp.Metadata.Algorithm)
	assert.NotEmpty(t, resp.Recommendations)
}

func TestInvalidRequests(t *testing.T) {
	mr := miniredis.RunT(t)
	r := startReplica(t, writeConfig(t, mr.Addr()))

	assert.Equal(t, http.StatusBadRequest,
		r.do(t, http.MethodGet, "/api/v1/users/u-1/recommendations?limit=1000", "", "", nil))
	assert.Equal(t, http.StatusBadRequest,
		r.do(t, http.MethodGet, "/api/v1/users/u-1/recommendations?algorithm=magic", "", "", nil))
	assert.Equal(t, http.StatusUnauthorized,
		r.do(t, http.MethodPost, "/api/v1/feedback", "", `{"candidateId":"p-1002","action":"like"}`, nil))
}

func TestReplicasShareRemoteCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := writeConfig(t, mr.Addr())
	a := startReplica(t, cfg)
	b := startReplica(t, cfg)

	var fromA, fromB models.RecommendationResponse
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/v1/users/u-2/recommendations", "", "", &fromA))
	require.Equal(t, http.StatusOK, b.do(t, http.MethodGet, "/api/v1/users/u-2/recommendations", "", "", &fromB))

	assert.Equal(t, ids(fromA), ids(fromB))
	assert.True(t, fromA.Metadata.ComputedAt.Equal(fromB.Metadata.ComputedAt),
		"replica b should serve the entry replica a computed")
}

func TestOperationalEndpoints(t *testing.T) {
	mr := miniredis.RunT(t)
	r := startReplica(t, writeConfig(t, mr.Addr()))

	var ready map[string]interface{}
	require.Equal(t, http.StatusOK, r.do(t, http.MethodGet, "/ready", "", "", &ready))
	assert.Equal(t, "ready", ready["status"])

	require.Equal(t, http.StatusOK, r.do(t, http.MethodGet, "/api/v1/users/u-3/recommendations", "", "", nil))

	var stats map[string]interface{}
	require.Equal(t, http.StatusOK, r.do(t, http.MethodGet, "/api/v1/recommendations/stats", "", "", &stats))
	assert.Equal(t, 1.0, stats["requests"])

	req, err := http.NewRequest(http.MethodGet, r.server.URL+"/metrics", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
