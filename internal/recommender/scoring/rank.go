package scoring

import (
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"project-recommender/internal/models"
	"project-recommender/internal/recommender/explain"
	"project-recommender/internal/recommender/similarity"
)

// Subject carries everything known about who or what is being recommended for.
type Subject struct {
	Profile    *models.Profile
	Seeds      []models.Candidate
	Adjustment *Adjustment
	Suppressed map[string]struct{}
}

type scoredCandidate struct {
	item     models.RankedItem
	category string
}

// Rank scores, orders, diversifies and explains candidates for one request.
// It performs no I/O. The result is ordered by rank and never longer than
// req.Limit.
func (o *Orchestrator) Rank(req models.RecommendationRequest, candidates []models.Candidate, subject Subject, now time.Time) []models.RankedItem {
	pool := o.eligible(req, candidates, &subject)
	if len(pool) == 0 {
		return []models.RankedItem{}
	}

	trending := o.pop.TrendingScores(pool, now)
	scored := make([]scoredCandidate, len(pool))
	scoreRange := func(from, to int) {
		for i := from; i < to; i++ {
			item := o.score(req.Algorithm, &pool[i], trending[i], &subject, now)
			scored[i] = scoredCandidate{item: item, category: normalizeCategory(pool[i].Category)}
		}
	}

	if o.config.ScoringWorkers > 1 && len(pool) >= o.config.ParallelThreshold {
		chunk := (len(pool) + o.config.ScoringWorkers - 1) / o.config.ScoringWorkers
		var g errgroup.Group
		g.SetLimit(o.config.ScoringWorkers)
		for from := 0; from < len(pool); from += chunk {
			to := min(from+chunk, len(pool))
			g.Go(func() error {
				scoreRange(from, to)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		scoreRange(0, len(pool))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return less(&scored[i].item, &scored[j].item)
	})
	scored = diversify(scored, o.config.MaxPerCategory)

	limit := req.Limit
	if limit <= 0 {
		limit = models.DefaultLimit
	}
	if len(scored) > limit {
		scored = scored[:limit]
	}

	mode := explain.ModeUser
	if req.Algorithm == models.AlgorithmProjectSimilarity || (subject.Profile == nil && len(subject.Seeds) > 0) {
		mode = explain.ModeProject
	}

	items := make([]models.RankedItem, len(scored))
	for i := range scored {
		item := scored[i].item
		item.Rank = i + 1
		item.Reasons = o.explainer.ExplainFor(mode, item.Breakdown, item.MatchingSkills)
		items[i] = item
	}
	return items
}

// eligible drops duplicates and every excluded id: request exclusions, active
// cool-downs, the seed project and, when configured, projects the user has
// already applied to or completed.
func (o *Orchestrator) eligible(req models.RecommendationRequest, candidates []models.Candidate, subject *Subject) []models.Candidate {
	excluded := make(map[string]struct{}, len(req.ExcludeIDs)+len(subject.Suppressed))
	for _, id := range req.ExcludeIDs {
		excluded[id] = struct{}{}
	}
	for id := range subject.Suppressed {
		excluded[id] = struct{}{}
	}
	if req.SubjectType == models.SubjectProject {
		excluded[req.SubjectID] = struct{}{}
	}
	if o.config.ExcludeEngaged && subject.Profile != nil {
		for _, id := range subject.Profile.AppliedProjectIDs {
			excluded[id] = struct{}{}
		}
		for _, id := range subject.Profile.CompletedProjectIDs {
			excluded[id] = struct{}{}
		}
	}

	pool := make([]models.Candidate, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if c.ID == "" {
			continue
		}
		if _, ok := excluded[c.ID]; ok {
			continue
		}
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		pool = append(pool, c)
	}
	return pool
}

func (o *Orchestrator) score(alg models.Algorithm, c *models.Candidate, trending float64, subject *Subject, now time.Time) models.RankedItem {
	recent := o.pop.RecentActivity(c, now)

	var profileMatch, seedMatch *similarity.Match
	if subject.Profile != nil {
		m := o.sim.ScoreProfile(subject.Profile, c)
		profileMatch = &m
	}
	seedScore := 0.0
	if len(subject.Seeds) > 0 {
		m, s := o.bestSeed(subject.Seeds, c)
		seedMatch = &m
		seedScore = s
	}

	b := models.ScoreBreakdown{
		PopularityScore:     trending,
		RecentActivityScore: recent,
	}
	var shown *similarity.Match
	switch {
	case alg == models.AlgorithmProjectSimilarity && seedMatch != nil:
		shown = seedMatch
	case profileMatch != nil:
		shown = profileMatch
	default:
		shown = seedMatch
	}
	var matching []string
	if shown != nil {
		b.SkillMatch = shown.SkillMatch
		b.ExperienceMatch = shown.ExperienceMatch
		b.BudgetMatch = shown.BudgetMatch
		b.LocationMatch = shown.LocationMatch
		b.TypeMatch = shown.TypeMatch
		b.CategoryMatch = shown.CategoryMatch
		matching = shown.MatchingSkills
	}
	switch {
	case seedMatch != nil:
		b.SimilarityScore = seedScore
	case profileMatch != nil:
		b.SimilarityScore = profileMatch.CategoryMatch
	}

	var total float64
	var contributions map[string]float64
	switch alg {
	case models.AlgorithmPopularity:
		total, contributions = trending, map[string]float64{}
		if trending > 0 {
			contributions[models.ComponentPopularity] = trending
		}
	case models.AlgorithmProjectSimilarity:
		total, contributions = o.projectTotal(seedMatch, recent)
	case models.AlgorithmHybrid:
		total, contributions = o.hybridTotal(c, profileMatch, seedMatch, &b, subject)
	default:
		total, contributions = o.userTotal(c, profileMatch, &b, subject)
	}

	if boost := o.freshness(alg, c, profileMatch, now); boost > 0 {
		b.FreshnessBoost = boost
		contributions[models.ComponentFreshness] = boost
		total += boost
	}
	b.Total = clamp01(total)
	b.Contributions = contributions

	return models.RankedItem{
		CandidateID:    c.ID,
		Project:        *c,
		Breakdown:      b,
		MatchingSkills: matching,
		Confidence:     o.confidence(b.Total, contributions),
	}
}

// bestSeed returns the closest seed's match and its aggregate similarity.
func (o *Orchestrator) bestSeed(seeds []models.Candidate, c *models.Candidate) (similarity.Match, float64) {
	var best similarity.Match
	bestScore := -1.0
	for i := range seeds {
		if seeds[i].ID == c.ID {
			continue
		}
		m := o.sim.ScoreSeed(&seeds[i], c)
		if s := o.seedSimilarity(m); s > bestScore {
			best, bestScore = m, s
		}
	}
	if bestScore < 0 {
		return best, 0
	}
	return best, bestScore
}

// seedSimilarity is the project-weighted mean of the match components.
func (o *Orchestrator) seedSimilarity(m similarity.Match) float64 {
	w := o.config.ProjectWeights
	weightSum := w.Skill + w.Experience + w.Budget + w.Location + w.WorkType + w.Category
	if weightSum <= 0 {
		return 0
	}
	sum := w.Skill*m.SkillMatch +
		w.Experience*m.ExperienceMatch +
		w.Budget*m.BudgetMatch +
		w.Location*m.LocationMatch +
		w.WorkType*m.TypeMatch +
		w.Category*m.CategoryMatch
	return clamp01(sum / weightSum)
}

func (o *Orchestrator) projectTotal(m *similarity.Match, recent float64) (float64, map[string]float64) {
	if m == nil {
		return 0, map[string]float64{}
	}
	return o.config.ProjectWeights.apply(matchComponents(m, recent))
}

func (o *Orchestrator) userTotal(c *models.Candidate, m *similarity.Match, b *models.ScoreBreakdown, subject *Subject) (float64, map[string]float64) {
	if m == nil {
		return 0, map[string]float64{}
	}
	weights := o.config.UserWeights
	if subject.Adjustment != nil && subject.Adjustment.Weights.Sum() > 0 {
		weights = subject.Adjustment.Weights.Normalized()
	}
	components := matchComponents(m, b.RecentActivityScore)
	components[models.ComponentSimilarity] = b.SimilarityScore
	components[models.ComponentPopularity] = b.PopularityScore
	total, contributions := weights.apply(components)

	if subject.Adjustment != nil && o.config.CategoryAffinityBoost > 0 {
		affinity := subject.Adjustment.CategoryAffinity[normalizeCategory(c.Category)]
		boost := math.Max(-1, math.Min(1, affinity)) * o.config.CategoryAffinityBoost
		total += boost
		if boost > 0 {
			contributions[models.ComponentAffinity] = boost
		}
	}
	return total, contributions
}

// hybridTotal blends the user, seed-similarity and popularity scores,
// renormalizing the blend over the parts that have data.
func (o *Orchestrator) hybridTotal(c *models.Candidate, profileMatch, seedMatch *similarity.Match, b *models.ScoreBreakdown, subject *Subject) (float64, map[string]float64) {
	type part struct {
		share         float64
		total         float64
		contributions map[string]float64
	}
	var parts []part
	if profileMatch != nil && o.config.Hybrid.User > 0 {
		t, contrib := o.userTotal(c, profileMatch, b, subject)
		parts = append(parts, part{o.config.Hybrid.User, t, contrib})
	}
	if seedMatch != nil && o.config.Hybrid.Similarity > 0 {
		t, contrib := o.projectTotal(seedMatch, b.RecentActivityScore)
		parts = append(parts, part{o.config.Hybrid.Similarity, t, contrib})
	}
	if o.config.Hybrid.Popularity > 0 {
		contrib := map[string]float64{}
		if b.PopularityScore > 0 {
			contrib[models.ComponentPopularity] = b.PopularityScore
		}
		parts = append(parts, part{o.config.Hybrid.Popularity, b.PopularityScore, contrib})
	}

	shareSum := 0.0
	for _, p := range parts {
		shareSum += p.share
	}
	total := 0.0
	contributions := make(map[string]float64)
	if shareSum <= 0 {
		return total, contributions
	}
	for _, p := range parts {
		share := p.share / shareSum
		total += share * p.total
		for component, v := range p.contributions {
			contributions[component] += share * v
		}
	}
	return total, contributions
}

// freshness returns the additive boost for recently posted projects. It is
// withheld from projects sharing no skill with the user's profile, and
// popularity totals are the trending score alone.
func (o *Orchestrator) freshness(alg models.Algorithm, c *models.Candidate, profileMatch *similarity.Match, now time.Time) float64 {
	window := o.config.FreshnessWindow
	if alg == models.AlgorithmPopularity || window <= 0 || o.config.FreshnessBoost <= 0 || c.CreatedAt.IsZero() {
		return 0
	}
	age := now.Sub(c.CreatedAt)
	if age < 0 {
		age = 0
	}
	if age >= window {
		return 0
	}
	usesProfile := alg == models.AlgorithmUserBased || alg == models.AlgorithmHybrid
	if usesProfile && profileMatch != nil && profileMatch.SkillMatch == 0 {
		return 0
	}
	return o.config.FreshnessBoost * (1 - float64(age)/float64(window))
}

// confidence is the total, scaled down when fewer than MinSignals components
// contributed.
func (o *Orchestrator) confidence(total float64, contributions map[string]float64) float64 {
	signals := 0
	for component, v := range contributions {
		if component == models.ComponentFreshness || v <= 0 {
			continue
		}
		signals++
	}
	if signals >= o.config.MinSignals {
		return total
	}
	return clamp01(total * float64(signals) / float64(o.config.MinSignals))
}

func matchComponents(m *similarity.Match, recent float64) map[string]float64 {
	return map[string]float64{
		models.ComponentSkill:          m.SkillMatch,
		models.ComponentExperience:     m.ExperienceMatch,
		models.ComponentBudget:         m.BudgetMatch,
		models.ComponentLocation:       m.LocationMatch,
		models.ComponentType:           m.TypeMatch,
		models.ComponentCategory:       m.CategoryMatch,
		models.ComponentRecentActivity: recent,
	}
}

// less orders by total desc, then newer first, then id asc.
func less(a, b *models.RankedItem) bool {
	if a.Breakdown.Total != b.Breakdown.Total {
		return a.Breakdown.Total > b.Breakdown.Total
	}
	if !a.Project.CreatedAt.Equal(b.Project.CreatedAt) {
		return a.Project.CreatedAt.After(b.Project.CreatedAt)
	}
	return a.CandidateID < b.CandidateID
}

// diversify keeps at most maxPer items of a category in the head of the list;
// the rest follow in their original order.
func diversify(items []scoredCandidate, maxPer int) []scoredCandidate {
	if maxPer <= 0 {
		return items
	}
	counts := make(map[string]int)
	head := make([]scoredCandidate, 0, len(items))
	var overflow []scoredCandidate
	for _, it := range items {
		if it.category == "" || counts[it.category] < maxPer {
			counts[it.category]++
			head = append(head, it)
			continue
		}
		overflow = append(overflow, it)
	}
	return append(head, overflow...)
}

func normalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, 0), 1)
}
