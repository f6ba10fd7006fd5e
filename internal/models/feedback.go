// internal/models/feedback.go
package models

import "time"

type FeedbackAction string

const (
	ActionClick    FeedbackAction = "click"
	ActionApply    FeedbackAction = "apply"
	ActionBookmark FeedbackAction = "bookmark"
	ActionDismiss  FeedbackAction = "dismiss"
	ActionLike     FeedbackAction = "like"
	ActionDislike  FeedbackAction = "dislike"
)

var FeedbackActions = []FeedbackAction{ActionClick, ActionApply, ActionBookmark, ActionDismiss, ActionLike, ActionDislike}

func (a FeedbackAction) Valid() bool {
	for _, known := range FeedbackActions {
		if a == known {
			return true
		}
	}
	return false
}

type FeedbackEvent struct {
	ID             string         `json:"id,omitempty"`
	UserID         string         `json:"userId"`
	CandidateID    string         `json:"candidateId"`
	Action         FeedbackAction `json:"action"`
	RelevanceScore *float64       `json:"relevanceScore,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

type FeedbackAck struct {
	EventID   string `json:"eventId"`
	Accepted  bool   `json:"accepted"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Persisted bool   `json:"persisted"`
}

// CatalogChange describes projects added or removed from the catalog. Empty
// categories and skills mean the change could not be scoped.
type CatalogChange struct {
	Categories []string `json:"categories,omitempty"`
	Skills     []string `json:"skills,omitempty"`
}

func (c CatalogChange) Scoped() bool {
	return len(c.Categories) > 0 || len(c.Skills) > 0
}
