package api

import "project-recommender/internal/common/validation"

// Request bodies are checked for shape here; value rules such as limit bounds
// and algorithm names are enforced by the service.

var recommendationRequestSchema = validation.MustCompile("recommendation-request", `{
	"type": "object",
	"properties": {
		"subjectType": {"type": "string"},
		"subjectId": {"type": "string", "maxLength": 256},
		"algorithm": {"type": "string"},
		"limit": {"type": "integer"},
		"excludeIds": {"type": "array", "items": {"type": "string"}, "maxItems": 1000},
		"filters": {
			"type": "object",
			"properties": {
				"categories": {"type": "array", "items": {"type": "string"}},
				"skills": {"type": "array", "items": {"type": "string"}},
				"location": {"type": "string"},
				"workType": {"type": "string"},
				"budgetMin": {"type": "number"},
				"budgetMax": {"type": "number"},
				"postedWithinDays": {"type": "integer"}
			},
			"additionalProperties": false
		}
	},
	"additionalProperties": false
}`)

var feedbackSchema = validation.MustCompile("feedback", `{
	"type": "object",
	"required": ["candidateId", "action"],
	"properties": {
		"candidateId": {"type": "string", "minLength": 1, "maxLength": 256},
		"action": {"type": "string", "enum": ["click", "apply", "bookmark", "dismiss", "like", "dislike"]},
		"relevanceScore": {"type": "number", "minimum": 0, "maximum": 1}
	}
}`)

var catalogChangeSchema = validation.MustCompile("catalog-change", `{
	"type": "object",
	"properties": {
		"categories": {"type": "array", "items": {"type": "string"}},
		"skills": {"type": "array", "items": {"type": "string"}}
	},
	"additionalProperties": false
}`)
