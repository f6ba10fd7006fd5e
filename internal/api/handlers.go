package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"

	"project-recommender/internal/common/errors"
	"project-recommender/internal/common/validation"
	"project-recommender/internal/models"
)

func (s *Server) postRecommendations(w http.ResponseWriter, r *http.Request) {
	var req models.RecommendationRequest
	if err := s.decode(r, recommendationRequestSchema, &req); err != nil {
		s.errors.WriteError(w, r, err)
		return
	}
	// a user request without a subject is about the caller
	if req.SubjectType == "" {
		req.SubjectType = models.SubjectUser
	}
	if req.SubjectType == models.SubjectUser && strings.TrimSpace(req.SubjectID) == "" {
		req.SubjectID = UserIDFrom(r.Context())
	}
	s.recommend(w, r, req)
}

func (s *Server) userRecommendations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryLimit(q.Get("limit"))
	if err != nil {
		s.errors.WriteError(w, r, err)
		return
	}
	req := models.RecommendationRequest{
		SubjectType: models.SubjectUser,
		SubjectID:   chi.URLParam(r, "userID"),
		Algorithm:   models.Algorithm(q.Get("algorithm")),
		Limit:       limit,
		ExcludeIDs:  queryList(q["exclude"]),
		Filters:     queryFilters(r),
	}
	s.recommend(w, r, req)
}

func (s *Server) similarProjects(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.errors.WriteError(w, r, err)
		return
	}
	req := models.RecommendationRequest{
		SubjectType: models.SubjectProject,
		SubjectID:   chi.URLParam(r, "projectID"),
		Algorithm:   models.AlgorithmProjectSimilarity,
		Limit:       limit,
		ExcludeIDs:  queryList(r.URL.Query()["exclude"]),
	}
	s.recommend(w, r, req)
}

func (s *Server) recommend(w http.ResponseWriter, r *http.Request, req models.RecommendationRequest) {
	resp, err := s.service.Recommend(r.Context(), req)
	if err != nil {
		s.errors.WriteError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type feedbackBody struct {
	CandidateID    string                `json:"candidateId"`
	Action         models.FeedbackAction `json:"action"`
	RelevanceScore *float64              `json:"relevanceScore,omitempty"`
}

func (s *Server) postFeedback(w http.ResponseWriter, r *http.Request) {
	var body feedbackBody
	if err := s.decode(r, feedbackSchema, &body); err != nil {
		s.errors.WriteError(w, r, err)
		return
	}
	// the timestamp is always assigned server side
	event := models.FeedbackEvent{
		UserID:         UserIDFrom(r.Context()),
		CandidateID:    body.CandidateID,
		Action:         body.Action,
		RelevanceScore: body.RelevanceScore,
	}
	ack, err := s.service.RecordFeedback(r.Context(), event)
	if err != nil {
		s.errors.WriteError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, ack)
}

type catalogChangeResponse struct {
	Invalidated int `json:"invalidated"`
}

func (s *Server) catalogChanged(w http.ResponseWriter, r *http.Request) {
	var change models.CatalogChange
	if err := s.decode(r, catalogChangeSchema, &change); err != nil {
		s.errors.WriteError(w, r, err)
		return
	}
	n := s.service.CatalogChanged(r.Context(), change)
	s.logger.Info("catalog change applied", map[string]interface{}{
		"requestId":   chimiddleware.GetReqID(r.Context()),
		"categories":  change.Categories,
		"skills":      change.Skills,
		"invalidated": n,
	})
	s.writeJSON(w, http.StatusOK, catalogChangeResponse{Invalidated: n})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.Stats())
}

type healthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Service: s.config.ServiceName,
		Version: s.config.ServiceVersion,
	})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.ReadinessTimeout)
	defer cancel()

	resp := healthResponse{
		Status:  "ready",
		Service: s.config.ServiceName,
		Version: s.config.ServiceVersion,
		Checks:  make(map[string]string, len(s.checks)),
	}
	status := http.StatusOK
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	s.writeJSON(w, status, resp)
}

// decode validates the body against schema, then unmarshals it into out.
func (s *Server) decode(r *http.Request, schema *validation.Schema, out interface{}) error {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		return errors.NewInvalidRequestError("request body is too large or unreadable")
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := schema.ValidateBytes(body).Err(); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewInvalidRequestError("request body does not match " + schema.Name())
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", map[string]interface{}{"error": err})
	}
}

func queryLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewInvalidRequestError("limit must be an integer")
	}
	return limit, nil
}

// queryList accepts repeated and comma separated values.
func queryList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func queryFilters(r *http.Request) *models.Filters {
	q := r.URL.Query()
	f := &models.Filters{
		Categories: queryList(q["categories"]),
		Skills:     queryList(q["skills"]),
		Location:   q.Get("location"),
		WorkType:   q.Get("workType"),
	}
	if v, err := strconv.ParseFloat(q.Get("budgetMin"), 64); err == nil {
		f.BudgetMin = v
	}
	if v, err := strconv.ParseFloat(q.Get("budgetMax"), 64); err == nil {
		f.BudgetMax = v
	}
	if v, err := strconv.Atoi(q.Get("postedWithinDays")); err == nil {
		f.PostedWithinDays = v
	}
	if f.CanonicalString() == "" {
		return nil
	}
	return f
}
