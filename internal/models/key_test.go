package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalKey(t *testing.T) {
	base := func() RecommendationRequest {
		return RecommendationRequest{SubjectType: SubjectUser, SubjectID: "u1", Algorithm: AlgorithmHybrid, Limit: 10}
	}
	key := func(mutate func(*RecommendationRequest)) string {
		r := base()
		mutate(&r)
		return r.CanonicalKey()
	}

	t.Run("equivalent spellings share a key", func(t *testing.T) {
		want := key(func(r *RecommendationRequest) {
			r.ExcludeIDs = []string{"p1", "p3"}
			r.Filters = &Filters{Categories: []string{"backend"}, Location: "remote"}
		})
		got := key(func(r *RecommendationRequest) {
			r.ExcludeIDs = []string{" p3", "p1", "p3"}
			r.Filters = &Filters{Categories: []string{"Backend ", "backend"}, Location: " Remote"}
		})
		assert.Equal(t, want, got)
	})

	distinct := []struct {
		name string
		a, b func(*RecommendationRequest)
	}{
		{"comma inside an id",
			func(r *RecommendationRequest) { r.ExcludeIDs = []string{"p1,p3"} },
			func(r *RecommendationRequest) { r.ExcludeIDs = []string{"p1", "p3"} }},
		{"separator inside the subject",
			func(r *RecommendationRequest) { r.SubjectID = "u1|alg=popularity" },
			func(r *RecommendationRequest) { r.SubjectID = "u1" }},
		{"semicolon inside a filter value",
			func(r *RecommendationRequest) { r.Filters = &Filters{Location: "remote;workType=contract"} },
			func(r *RecommendationRequest) { r.Filters = &Filters{Location: "remote", WorkType: "contract"} }},
		{"case differs in ids",
			func(r *RecommendationRequest) { r.ExcludeIDs = []string{"P1"} },
			func(r *RecommendationRequest) { r.ExcludeIDs = []string{"p1"} }},
	}
	for _, tt := range distinct {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, key(tt.a), key(tt.b))
		})
	}
}

func TestFilters_Normalize(t *testing.T) {
	var nilFilters *Filters
	assert.Nil(t, nilFilters.Normalize())

	f := &Filters{Skills: []string{" Go", "go", " "}, WorkType: " Contract ", BudgetMin: 10}
	got := f.Normalize()
	assert.Equal(t, []string{"go"}, got.Skills)
	assert.Nil(t, got.Categories)
	assert.Equal(t, "contract", got.WorkType)
	assert.Equal(t, 10.0, got.BudgetMin)
	assert.Equal(t, []string{" Go", "go", " "}, f.Skills, "receiver is not modified")

	assert.Equal(t, []string{"a", "b"}, NormalizeIDs([]string{"b", " a", "", "b "}))
	assert.Nil(t, NormalizeIDs(nil))
}
