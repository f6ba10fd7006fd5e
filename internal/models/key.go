package models

import (
	"sort"
	"strconv"
	"strings"
)

// Normalize returns a copy with list values lower-cased, trimmed, deduplicated
// and sorted, and scalar text values trimmed and lower-cased. Matching in the
// stores is case-insensitive, so this never changes what the filters select.
func (f *Filters) Normalize() *Filters {
	if f == nil {
		return nil
	}
	out := *f
	out.Categories = canonicalValues(f.Categories, true)
	out.Skills = canonicalValues(f.Skills, true)
	out.Location = strings.ToLower(strings.TrimSpace(f.Location))
	out.WorkType = strings.ToLower(strings.TrimSpace(f.WorkType))
	return &out
}

// NormalizeIDs trims, deduplicates and sorts ids, dropping blanks. Ids are
// case-sensitive.
func NormalizeIDs(ids []string) []string {
	return canonicalValues(ids, false)
}

// CanonicalString serializes the filters deterministically: list values are
// lower-cased, deduplicated and sorted, and every text value is quoted. A nil
// receiver serializes to "".
func (f *Filters) CanonicalString() string {
	if f == nil {
		return ""
	}
	var parts []string
	if v := quotedList(canonicalValues(f.Categories, true)); v != "" {
		parts = append(parts, "categories="+v)
	}
	if v := quotedList(canonicalValues(f.Skills, true)); v != "" {
		parts = append(parts, "skills="+v)
	}
	if v := strings.ToLower(strings.TrimSpace(f.Location)); v != "" {
		parts = append(parts, "location="+strconv.Quote(v))
	}
	if v := strings.ToLower(strings.TrimSpace(f.WorkType)); v != "" {
		parts = append(parts, "workType="+strconv.Quote(v))
	}
	if f.BudgetMin != 0 {
		parts = append(parts, "budgetMin="+strconv.FormatFloat(f.BudgetMin, 'f', -1, 64))
	}
	if f.BudgetMax != 0 {
		parts = append(parts, "budgetMax="+strconv.FormatFloat(f.BudgetMax, 'f', -1, 64))
	}
	if f.PostedWithinDays != 0 {
		parts = append(parts, "postedWithinDays="+strconv.Itoa(f.PostedWithinDays))
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

// CanonicalKey serializes the request shape: subject, algorithm, limit, sorted
// filters and sorted exclusions. Ids are quoted so a separator inside an id
// cannot collide with a list of ids. Callers normalize defaults first.
func (r *RecommendationRequest) CanonicalKey() string {
	var b strings.Builder
	b.WriteString("v2|")
	b.WriteString(string(r.SubjectType))
	b.WriteByte(':')
	b.WriteString(strconv.Quote(r.SubjectID))
	b.WriteString("|alg=")
	b.WriteString(string(r.Algorithm))
	b.WriteString("|limit=")
	b.WriteString(strconv.Itoa(r.Limit))
	b.WriteString("|exclude=")
	b.WriteString(quotedList(NormalizeIDs(r.ExcludeIDs)))
	b.WriteString("|filters=")
	b.WriteString(r.Filters.CanonicalString())
	return b.String()
}

func canonicalValues(values []string, fold bool) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if fold {
			v = strings.ToLower(v)
		}
		if v != "" {
			set[v] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func quotedList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return strings.Join(quoted, ",")
}
