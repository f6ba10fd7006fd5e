package feedback

import (
	"context"
	"database/sql"
	"fmt"

	"project-recommender/internal/common/aws"
	"project-recommender/internal/models"
)

// Sink is the append-only event log. Append reports false when the event was
// already recorded.
type Sink interface {
	Append(ctx context.Context, event models.FeedbackEvent) (bool, error)
}

type Publisher interface {
	Publish(ctx context.Context, event models.FeedbackEvent) error
}

const insertEventQuery = `
	INSERT INTO feedback_events (id, user_id, candidate_id, action, relevance_score, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (user_id, candidate_id, action, occurred_at) DO NOTHING`

type PostgresLog struct {
	db *sql.DB
}

func NewPostgresLog(db *sql.DB) *PostgresLog {
	return &PostgresLog{db: db}
}

func (p *PostgresLog) Append(ctx context.Context, event models.FeedbackEvent) (bool, error) {
	var relevance sql.NullFloat64
	if event.RelevanceScore != nil {
		relevance = sql.NullFloat64{Float64: *event.RelevanceScore, Valid: true}
	}
	res, err := p.db.ExecContext(ctx, insertEventQuery,
		event.ID,
		event.UserID,
		event.CandidateID,
		string(event.Action),
		relevance,
		event.Timestamp.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("insert feedback event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// SNSPublisher fans accepted events out to an SNS topic.
type SNSPublisher struct {
	client *aws.SNSClient
}

func NewSNSPublisher(client *aws.SNSClient) *SNSPublisher {
	return &SNSPublisher{client: client}
}

func (p *SNSPublisher) Publish(ctx context.Context, event models.FeedbackEvent) error {
	_, err := p.client.PublishJSON(ctx, event, map[string]string{
		"action": string(event.Action),
		"userId": event.UserID,
	})
	return err
}
